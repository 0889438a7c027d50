package tx

import (
	"fmt"
	"math"

	"github.com/certledger/certanchor/pkg/crypto"
	"github.com/certledger/certanchor/pkg/types"
)

// Placeholder witness sizes used when estimating the signed size.
const (
	placeholderVKeySize = 32
	placeholderSigSize  = 64
)

// Builder constructs transaction bodies incrementally.
type Builder struct {
	body Body
	aux  AuxData
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddInput adds an input spending a previous output.
func (b *Builder) AddInput(prevOut types.Outpoint) *Builder {
	b.body.Inputs = append(b.body.Inputs, prevOut)
	return b
}

// AddOutput adds an output paying amount to addr.
func (b *Builder) AddOutput(addr types.Address, amount uint64) *Builder {
	b.body.Outputs = append(b.body.Outputs, Output{Address: addr, Amount: amount})
	return b
}

// SetOutputAmount replaces the amount of output i.
func (b *Builder) SetOutputAmount(i int, amount uint64) *Builder {
	b.body.Outputs[i].Amount = amount
	return b
}

// SetTTL sets the slot after which the transaction is invalid.
func (b *Builder) SetTTL(slot uint64) *Builder {
	b.body.TTL = slot
	return b
}

// SetAuxData attaches aux data and commits its hash in the body.
func (b *Builder) SetAuxData(aux AuxData) *Builder {
	b.aux = aux
	if aux == nil {
		b.body.AuxDataHash = nil
		return b
	}
	h := aux.Hash()
	b.body.AuxDataHash = &h
	return b
}

// SetFee sets the transaction fee.
func (b *Builder) SetFee(fee uint64) *Builder {
	b.body.Fee = fee
	return b
}

// EstimateSize returns the size of the fully signed transaction assuming
// numWitnesses vkey witnesses. An unset fee is sized as the widest fee the
// ledger can charge so the estimate is an upper bound.
func (b *Builder) EstimateSize(numWitnesses int) (int, error) {
	body := b.body
	if body.Fee == 0 {
		body.Fee = math.MaxUint32
	}
	raw, err := body.CBOR()
	if err != nil {
		return 0, err
	}
	witnesses := make([]Witness, numWitnesses)
	for i := range witnesses {
		witnesses[i] = Witness{
			VKey:      make([]byte, placeholderVKeySize),
			Signature: make([]byte, placeholderSigSize),
		}
	}
	var aux []byte
	if b.aux != nil {
		aux = b.aux.CBOR()
	}
	data, err := encodeTx(raw, witnesses, aux)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// MinFee returns the ledger minimum fee for the current body signed by one key.
func (b *Builder) MinFee(params ProtocolParams) (uint64, error) {
	size, err := b.EstimateSize(1)
	if err != nil {
		return 0, fmt.Errorf("estimate size: %w", err)
	}
	return params.LinearFee(size), nil
}

// Build returns a copy of the constructed body.
// Does NOT validate; call Body.Validate() separately.
func (b *Builder) Build() *Body {
	body := b.body
	body.Inputs = append([]types.Outpoint(nil), b.body.Inputs...)
	body.Outputs = append([]Output(nil), b.body.Outputs...)
	if b.body.AuxDataHash != nil {
		h := *b.body.AuxDataHash
		body.AuxDataHash = &h
	}
	return &body
}

// Sign builds the body and signs it with key.
func (b *Builder) Sign(key crypto.Signer) (*Transaction, error) {
	return Sign(b.Build(), b.aux, key)
}
