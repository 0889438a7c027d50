package tx

import (
	"fmt"
	"math"

	"github.com/certledger/certanchor/pkg/types"
)

// AnchorRequest describes a metadata-carrying transaction funded from a
// single wallet address. ChildAddresses is empty for single anchors.
type AnchorRequest struct {
	UTXOs          []types.UTXO
	TipSlot        uint64
	ChangeAddress  types.Address
	ChildAddresses []types.Address
	Metadata       AuxData
	Params         ProtocolParams
	// TTLWindow defaults to DefaultTTLWindow when zero.
	TTLWindow uint64
}

// Plan is a built, unsigned anchor transaction.
type Plan struct {
	Body   *Body
	Input  types.UTXO
	MinFee uint64
	Change uint64
	Size   int
}

// BuildAnchor assembles the anchor body: spend the largest UTXO, pay the
// change back first, then MinUTxO to each child address in order, with the
// minimum fee plus FeeBufferPercent.
func BuildAnchor(req AnchorRequest) (*Plan, error) {
	if req.Metadata == nil {
		return nil, ErrMissingMetadata
	}
	if err := req.Params.Validate(); err != nil {
		return nil, fmt.Errorf("protocol params: %w", err)
	}
	input, err := SelectLargestUTXO(req.UTXOs)
	if err != nil {
		return nil, err
	}

	window := req.TTLWindow
	if window == 0 {
		window = DefaultTTLWindow
	}
	if req.TipSlot > math.MaxUint64-window {
		return nil, fmt.Errorf("ttl overflow at tip slot %d", req.TipSlot)
	}

	n := uint64(len(req.ChildAddresses))
	insufficient := ErrInsufficientFunds
	if n > 0 {
		insufficient = ErrInsufficientFundsForBulk
	}
	if n > 0 && req.Params.MinUTxO > math.MaxUint64/n {
		return nil, fmt.Errorf("%w: child outputs overflow", insufficient)
	}
	childTotal := n * req.Params.MinUTxO

	// The change output is sized at the full input amount while estimating,
	// which is the widest value it can take.
	b := NewBuilder().
		AddInput(input.Outpoint).
		SetTTL(req.TipSlot+window).
		SetAuxData(req.Metadata).
		AddOutput(req.ChangeAddress, input.Amount)
	for _, addr := range req.ChildAddresses {
		b.AddOutput(addr, req.Params.MinUTxO)
	}

	minFee, err := b.MinFee(req.Params)
	if err != nil {
		return nil, err
	}
	fee := ApplyFeeBuffer(minFee)

	if input.Amount < fee || input.Amount-fee < childTotal {
		return nil, fmt.Errorf("%w: input %d cannot cover fee %d and %d child outputs",
			insufficient, input.Amount, fee, n)
	}
	change := input.Amount - fee - childTotal
	if change < req.Params.MinUTxO {
		return nil, fmt.Errorf("%w: change %d below minimum %d", insufficient, change, req.Params.MinUTxO)
	}

	b.SetOutputAmount(0, change).SetFee(fee)
	size, err := b.EstimateSize(1)
	if err != nil {
		return nil, err
	}
	if size > req.Params.MaxTxSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTxTooLarge, size, req.Params.MaxTxSize)
	}

	return &Plan{
		Body:   b.Build(),
		Input:  input,
		MinFee: minFee,
		Change: change,
		Size:   size,
	}, nil
}
