package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/certledger/certanchor/internal/certstore"
	"github.com/certledger/certanchor/internal/chain"
	klog "github.com/certledger/certanchor/internal/log"
	"github.com/certledger/certanchor/internal/storage"
	"github.com/certledger/certanchor/internal/tenant"
	"github.com/certledger/certanchor/pkg/types"
)

var prefixJournal = []byte("journal/")

// JournalEntry is a submitted transaction whose records are missing from
// the tenant store. Ambiguous entries were never confirmed as accepted;
// they are settled against the ledger before their records are written.
type JournalEntry struct {
	TxHash    types.Hash          `json:"tx_hash"`
	Tenant    tenant.Tenant       `json:"tenant"`
	Records   []*certstore.Record `json:"records"`
	Reason    string              `json:"reason"`
	LoggedAt  time.Time           `json:"logged_at"`
	Ambiguous bool                `json:"ambiguous,omitempty"`
	// TTL is the last slot the transaction is valid in.
	TTL uint64 `json:"ttl,omitempty"`
}

// Journal is the recovery log of unrecorded submissions.
type Journal struct {
	db     storage.DB
	logger zerolog.Logger
}

// NewJournal creates a journal over db.
func NewJournal(db storage.DB) *Journal {
	return &Journal{db: db, logger: klog.Anchor}
}

func journalKey(h types.Hash) []byte {
	return append(append([]byte{}, prefixJournal...), h.String()...)
}

// Add writes e, replacing any entry for the same transaction.
func (j *Journal) Add(e *JournalEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry %s: %w", e.TxHash, err)
	}
	if err := j.db.Put(journalKey(e.TxHash), data); err != nil {
		return fmt.Errorf("write journal entry %s: %w", e.TxHash, err)
	}
	return nil
}

// Entries returns all entries, oldest first.
func (j *Journal) Entries() ([]*JournalEntry, error) {
	var out []*JournalEntry
	err := j.db.ForEach(prefixJournal, func(key, value []byte) error {
		var e JournalEntry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decode journal entry %q: %w", key, err)
		}
		out = append(out, &e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].LoggedAt.Before(out[b].LoggedAt) })
	return out, nil
}

// Remove deletes the entry of txHash.
func (j *Journal) Remove(txHash types.Hash) error {
	return j.db.Delete(journalKey(txHash))
}

// Replay writes journaled records to their tenant stores through router and
// removes the entries that succeed. Records already present count as
// written. Ambiguous entries are checked against ledger first: they are
// written once the transaction is known, dropped once the tip has passed
// their TTL without it, and otherwise kept. With a nil ledger they are
// kept. It returns the number of entries resolved.
func (j *Journal) Replay(ctx context.Context, router tenant.Router, ledger chain.Client) (int, error) {
	entries, err := j.Entries()
	if err != nil {
		return 0, err
	}

	resolved := 0
	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if e.Ambiguous {
			landed, expired, err := settle(ctx, ledger, e)
			if err != nil {
				errs = append(errs, fmt.Errorf("tx %s: %w", e.TxHash, err))
				continue
			}
			if expired {
				if err := j.Remove(e.TxHash); err != nil {
					errs = append(errs, err)
					continue
				}
				j.logger.Warn().
					Str("tenant", e.Tenant.Name).
					Str("tx", e.TxHash.String()).
					Uint64("ttl", e.TTL).
					Int("records", len(e.Records)).
					Msg("Ambiguous submission expired without landing, records dropped")
				resolved++
				continue
			}
			if !landed {
				continue
			}
		}
		store, err := router.Open(ctx, e.Tenant)
		if err != nil {
			errs = append(errs, fmt.Errorf("tx %s: %w", e.TxHash, err))
			continue
		}
		if err := restore(ctx, store, e.Records); err != nil {
			errs = append(errs, fmt.Errorf("tx %s: %w", e.TxHash, err))
			continue
		}
		if err := j.Remove(e.TxHash); err != nil {
			errs = append(errs, err)
			continue
		}
		resolved++
	}
	return resolved, errors.Join(errs...)
}

// settle looks up an ambiguous entry: landed when the ledger knows the
// transaction, expired when it does not and the tip is past the TTL.
func settle(ctx context.Context, ledger chain.Client, e *JournalEntry) (landed, expired bool, err error) {
	if ledger == nil {
		return false, false, nil
	}
	_, err = ledger.Transaction(ctx, e.TxHash)
	if err == nil {
		return true, false, nil
	}
	if !errors.Is(err, chain.ErrTxNotFound) {
		return false, false, err
	}
	tip, err := ledger.Tip(ctx)
	if err != nil {
		return false, false, err
	}
	return false, tip.Slot > e.TTL, nil
}

func restore(ctx context.Context, store certstore.Store, records []*certstore.Record) error {
	err := store.CreateBatch(ctx, records)
	if !errors.Is(err, certstore.ErrDuplicate) {
		return err
	}
	// The original write may have landed despite reporting an error.
	for _, r := range records {
		if err := store.Create(ctx, r); err != nil && !errors.Is(err, certstore.ErrDuplicate) {
			return err
		}
	}
	return nil
}
