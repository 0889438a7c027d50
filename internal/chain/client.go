// Package chain defines the ledger data provider boundary used by the
// anchoring engine and the confirmation reconciler.
package chain

//go:generate mockgen -source=client.go -destination=mocks/mock_client.go -package=mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/certledger/certanchor/pkg/types"
)

// Provider errors.
var (
	// ErrTxNotFound is returned when the provider does not know a transaction.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrSubmissionAmbiguous is returned when a submission may or may not
	// have reached the ledger. It must not be retried automatically.
	ErrSubmissionAmbiguous = errors.New("submission outcome unknown")

	// ErrInputsSpent is returned when the ledger rejected a submission because
	// an input was already consumed.
	ErrInputsSpent = errors.New("transaction inputs already spent")
)

// Client reads ledger state and submits transactions.
type Client interface {
	// UTXOs lists the unspent outputs at addr. An unknown address has none.
	UTXOs(ctx context.Context, addr types.Address) ([]types.UTXO, error)

	// Tip returns the latest block.
	Tip(ctx context.Context) (*Tip, error)

	// Submit sends a signed transaction and returns its ID.
	Submit(ctx context.Context, tx []byte) (types.Hash, error)

	// Transaction returns what the ledger knows about id, or ErrTxNotFound.
	Transaction(ctx context.Context, id types.Hash) (*TxInfo, error)

	// TransactionMetadata returns the metadata entries of id. A transaction
	// without metadata, or one not yet known, has none.
	TransactionMetadata(ctx context.Context, id types.Hash) ([]MetadataEntry, error)
}

// Tip is the latest block as seen by the provider.
type Tip struct {
	Slot   uint64 `json:"slot"`
	Epoch  uint64 `json:"epoch"`
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
	Time   int64  `json:"time"`
}

// TxInfo is the ledger view of a transaction.
type TxInfo struct {
	Hash        types.Hash `json:"hash"`
	Block       string     `json:"block"`
	BlockHeight uint64     `json:"block_height"`
	BlockTime   int64      `json:"block_time"`
	Slot        uint64     `json:"slot"`
	Fees        uint64     `json:"fees"`
}

// Confirmed reports whether the transaction is in a block.
func (t *TxInfo) Confirmed() bool {
	return t != nil && t.Block != ""
}

// MetadataEntry is one label of a transaction's metadata, in the provider's
// JSON rendering.
type MetadataEntry struct {
	Label uint64          `json:"label"`
	JSON  json.RawMessage `json:"json_metadata"`
}

// ProviderError is a failed provider call.
type ProviderError struct {
	Op      string
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("provider %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("provider %s: status %d: %s", e.Op, e.Status, e.Message)
}

// Retryable reports whether the failure is transient (rate limit or server side).
func (e *ProviderError) Retryable() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}
