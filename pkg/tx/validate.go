package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/certledger/certanchor/pkg/types"
)

// Build and validation errors.
var (
	ErrNoUTXOs                  = errors.New("no UTXOs found at wallet address")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrInsufficientFundsForBulk = errors.New("insufficient funds for bulk submission")
	ErrTxTooLarge               = errors.New("transaction too large")
	ErrMissingMetadata          = errors.New("aux data does not match body")
	ErrNoInputs                 = errors.New("transaction has no inputs")
	ErrNoOutputs                = errors.New("transaction has no outputs")
	ErrDuplicateInput           = errors.New("duplicate input")
	ErrOutputOverflow           = errors.New("output values overflow")
	ErrZeroOutput               = errors.New("output value is zero")
	ErrInvalidAddress           = errors.New("output address is empty")
	ErrMissingSig               = errors.New("transaction has no witnesses")
	ErrInvalidSig               = errors.New("invalid signature")
	ErrZeroFee                  = errors.New("fee is zero")
)

// Validate checks body structure. It does not check that inputs exist.
func (b *Body) Validate() error {
	if len(b.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(b.Outputs) == 0 {
		return ErrNoOutputs
	}
	if b.Fee == 0 {
		return ErrZeroFee
	}

	seen := make(map[types.Outpoint]bool, len(b.Inputs))
	for i, in := range b.Inputs {
		if seen[in] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[in] = true
	}

	var total uint64
	for i, out := range b.Outputs {
		if out.Amount == 0 {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
		if out.Address.IsZero() {
			return fmt.Errorf("output %d: %w", i, ErrInvalidAddress)
		}
		if total > math.MaxUint64-out.Amount {
			return fmt.Errorf("output %d: %w", i, ErrOutputOverflow)
		}
		total += out.Amount
	}
	return nil
}
