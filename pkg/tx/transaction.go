// Package tx builds, sizes and signs ledger transactions.
package tx

import (
	"fmt"
	"math"

	"github.com/blinklabs-io/gouroboros/cbor"
	fxcbor "github.com/fxamacker/cbor/v2"

	"github.com/certledger/certanchor/pkg/cbormap"
	"github.com/certledger/certanchor/pkg/crypto"
	"github.com/certledger/certanchor/pkg/types"
)

// Transaction body map keys.
const (
	bodyKeyInputs      uint64 = 0
	bodyKeyOutputs     uint64 = 1
	bodyKeyFee         uint64 = 2
	bodyKeyTTL         uint64 = 3
	bodyKeyAuxDataHash uint64 = 7

	witnessKeyVKey uint64 = 0
)

// Output sends Amount lovelace to Address.
type Output struct {
	Address types.Address `json:"address"`
	Amount  uint64        `json:"amount"`
}

// Body is an unsigned transaction body.
type Body struct {
	Inputs      []types.Outpoint `json:"inputs"`
	Outputs     []Output         `json:"outputs"`
	Fee         uint64           `json:"fee"`
	TTL         uint64           `json:"ttl"`
	AuxDataHash *types.Hash      `json:"aux_data_hash,omitempty"`
}

type wireInput struct {
	cbor.StructAsArray
	TxID  []byte
	Index uint32
}

type wireOutput struct {
	cbor.StructAsArray
	Address []byte
	Amount  uint64
}

type wireWitness struct {
	cbor.StructAsArray
	VKey      []byte
	Signature []byte
}

// CBOR encodes the body map with keys in ascending order.
func (b *Body) CBOR() ([]byte, error) {
	inputs := make([]wireInput, len(b.Inputs))
	for i, in := range b.Inputs {
		inputs[i] = wireInput{TxID: in.TxID.Bytes(), Index: in.Index}
	}
	outputs := make([]wireOutput, len(b.Outputs))
	for i, out := range b.Outputs {
		outputs[i] = wireOutput{Address: out.Address.Bytes(), Amount: out.Amount}
	}

	m := cbormap.Map{}.
		Add(bodyKeyInputs, inputs).
		Add(bodyKeyOutputs, outputs).
		Add(bodyKeyFee, b.Fee).
		Add(bodyKeyTTL, b.TTL)
	if b.AuxDataHash != nil {
		m = m.Add(bodyKeyAuxDataHash, b.AuxDataHash.Bytes())
	}
	data, err := m.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("encode tx body: %w", err)
	}
	return data, nil
}

// Hash computes the transaction ID (blake2b-256 of the body CBOR).
func (b *Body) Hash() (types.Hash, error) {
	data, err := b.CBOR()
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}

// TotalOutputValue returns the sum of all output amounts.
// Returns an error if the sum overflows uint64.
func (b *Body) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range b.Outputs {
		if total > math.MaxUint64-out.Amount {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Amount
	}
	return total, nil
}

// Witness is a verification key and its signature over the body hash.
type Witness struct {
	VKey      []byte `json:"vkey"`
	Signature []byte `json:"signature"`
}

// Transaction is a signed transaction ready for submission.
type Transaction struct {
	Body      *Body
	Witnesses []Witness
	AuxData   []byte

	id   types.Hash
	body []byte
}

// ID returns the transaction ID.
func (t *Transaction) ID() types.Hash {
	return t.id
}

// Bytes returns the submission encoding [body, witness_set, true, aux_data].
func (t *Transaction) Bytes() ([]byte, error) {
	return encodeTx(t.body, t.Witnesses, t.AuxData)
}

func encodeTx(body []byte, witnesses []Witness, aux []byte) ([]byte, error) {
	vkeys := make([]wireWitness, len(witnesses))
	for i, w := range witnesses {
		vkeys[i] = wireWitness{VKey: w.VKey, Signature: w.Signature}
	}
	witnessSet := cbormap.Map{}.Add(witnessKeyVKey, vkeys)

	var auxField any
	if aux != nil {
		auxField = fxcbor.RawMessage(aux)
	}
	data, err := cbor.Encode([]any{fxcbor.RawMessage(body), witnessSet, true, auxField})
	if err != nil {
		return nil, fmt.Errorf("encode tx: %w", err)
	}
	return data, nil
}
