package certstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/certledger/certanchor/internal/storage"
)

// Key prefixes within a tenant namespace.
var (
	prefixRecord  = []byte("cert/")
	prefixPending = []byte("pending/")
	prefixTx      = []byte("tx/")
)

func recordKey(id uuid.UUID) []byte {
	return append(append([]byte{}, prefixRecord...), id.String()...)
}

func pendingKey(id uuid.UUID) []byte {
	return append(append([]byte{}, prefixPending...), id.String()...)
}

func txKey(txHash string, id uuid.UUID) []byte {
	k := append(append([]byte{}, prefixTx...), txHash...)
	k = append(k, '/')
	return append(k, id.String()...)
}

// KVStore implements Store on a key-value database, usually a tenant's
// storage.PrefixDB.
type KVStore struct {
	mu  sync.Mutex
	db  storage.DB
	now func() time.Time
}

var _ Store = (*KVStore)(nil)

// NewKVStore creates a record store over db. now supplies record timestamps.
func NewKVStore(db storage.DB, now func() time.Time) *KVStore {
	if now == nil {
		now = time.Now
	}
	return &KVStore{db: db, now: now}
}

// Create inserts a new record.
func (s *KVStore) Create(ctx context.Context, r *Record) error {
	return s.CreateBatch(ctx, []*Record{r})
}

// CreateBatch inserts all records in one atomic batch.
func (s *KVStore) CreateBatch(_ context.Context, rs []*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := storage.NewBatch(s.db)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	seen := make(map[uuid.UUID]bool, len(rs))
	for _, r := range rs {
		if r.ID == uuid.Nil {
			return fmt.Errorf("record without id")
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicate, r.ID)
		}
		seen[r.ID] = true
		exists, err := s.db.Has(recordKey(r.ID))
		if err != nil {
			return fmt.Errorf("check record %s: %w", r.ID, err)
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicate, r.ID)
		}

		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = r.CreatedAt
		if r.BlockID == "" {
			r.BlockID = PendingBlock
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
		if err := batch.Put(recordKey(r.ID), data); err != nil {
			return err
		}
		if r.Pending() {
			if err := batch.Put(pendingKey(r.ID), nil); err != nil {
				return err
			}
		}
		if r.TxHash != "" {
			if err := batch.Put(txKey(r.TxHash, r.ID), nil); err != nil {
				return err
			}
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

// Get returns the record with id.
func (s *KVStore) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	return s.get(id)
}

func (s *KVStore) get(id uuid.UUID) (*Record, error) {
	data, err := s.db.Get(recordKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", id, err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &r, nil
}

// FindByTx returns the records anchored by txHash ordered by index.
func (s *KVStore) FindByTx(_ context.Context, txHash string) ([]*Record, error) {
	prefix := append(append(append([]byte{}, prefixTx...), txHash...), '/')
	ids, err := s.idsUnder(prefix)
	if err != nil {
		return nil, err
	}
	out, err := s.load(ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CertificateIndex < out[j].CertificateIndex })
	return out, nil
}

// ListPending returns pending records, oldest first.
func (s *KVStore) ListPending(_ context.Context) ([]*Record, error) {
	ids, err := s.idsUnder(prefixPending)
	if err != nil {
		return nil, err
	}
	out, err := s.load(ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ConfirmBlock sets the block reference of a pending record.
func (s *KVStore) ConfirmBlock(_ context.Context, id uuid.UUID, blockRef string) error {
	if IsPending(blockRef) {
		return fmt.Errorf("invalid block reference %q", blockRef)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}
	if !r.Pending() {
		return fmt.Errorf("%w: %s in block %s", ErrAlreadyConfirmed, id, r.BlockID)
	}
	r.BlockID = blockRef
	r.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", id, err)
	}

	batch, err := storage.NewBatch(s.db)
	if err != nil {
		return err
	}
	if err := batch.Put(recordKey(id), data); err != nil {
		return err
	}
	if err := batch.Delete(pendingKey(id)); err != nil {
		return err
	}
	return batch.Commit()
}

func (s *KVStore) idsUnder(prefix []byte) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		i := bytes.LastIndexByte(key, '/')
		id, err := uuid.ParseBytes(key[i+1:])
		if err != nil {
			return fmt.Errorf("index key %q: %w", key, err)
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

func (s *KVStore) load(ids []uuid.UUID) ([]*Record, error) {
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		r, err := s.get(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
