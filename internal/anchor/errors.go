package anchor

import (
	"errors"
	"fmt"

	"github.com/certledger/certanchor/internal/chain"
	"github.com/certledger/certanchor/internal/metadata"
	"github.com/certledger/certanchor/internal/walletlock"
	"github.com/certledger/certanchor/pkg/tx"
	"github.com/certledger/certanchor/pkg/types"
)

// Anchoring errors.
var (
	ErrNotOnChain        = errors.New("certificate not found on chain")
	ErrNoMnemonic        = errors.New("wallet mnemonic not configured")
	ErrRebuildsExhausted = errors.New("inputs spent on every rebuild")
)

// UnrecordedSubmissionError reports a transaction that the ledger accepted
// but whose records could not be written to the tenant store. The
// submission is in the recovery journal.
type UnrecordedSubmissionError struct {
	TxHash types.Hash
	Tenant string
	Err    error
}

func (e *UnrecordedSubmissionError) Error() string {
	return fmt.Sprintf("tx %s submitted for tenant %s but not recorded: %v", e.TxHash, e.Tenant, e.Err)
}

func (e *UnrecordedSubmissionError) Unwrap() error { return e.Err }

// AmbiguousSubmissionError reports a transaction whose submission may or
// may not have reached the ledger. It is not resubmitted: its records wait
// in the recovery journal until the ledger shows the transaction or the
// tip passes TTL.
type AmbiguousSubmissionError struct {
	TxHash types.Hash
	Tenant string
	TTL    uint64
	Err    error
}

func (e *AmbiguousSubmissionError) Error() string {
	return fmt.Sprintf("tx %s for tenant %s: outcome unknown until slot %d: %v", e.TxHash, e.Tenant, e.TTL, e.Err)
}

func (e *AmbiguousSubmissionError) Unwrap() error { return e.Err }

// failureReason maps an anchoring error to a metrics label.
func failureReason(err error) string {
	var unrecorded *UnrecordedSubmissionError
	switch {
	case errors.As(err, &unrecorded):
		return "unrecorded"
	case errors.Is(err, metadata.ErrValidation):
		return "validation"
	case errors.Is(err, metadata.ErrMetadataTooLarge), errors.Is(err, tx.ErrTxTooLarge):
		return "too_large"
	case errors.Is(err, tx.ErrNoUTXOs):
		return "no_utxo"
	case errors.Is(err, tx.ErrInsufficientFunds), errors.Is(err, tx.ErrInsufficientFundsForBulk):
		return "insufficient_funds"
	case errors.Is(err, chain.ErrSubmissionAmbiguous):
		return "ambiguous"
	case errors.Is(err, chain.ErrInputsSpent), errors.Is(err, ErrRebuildsExhausted):
		return "inputs_spent"
	case errors.Is(err, walletlock.ErrLockTimeout):
		return "lock"
	default:
		return "other"
	}
}
