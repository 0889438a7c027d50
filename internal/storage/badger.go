package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerDB is the on-disk DB used for the tenant stores and the journal.
type BadgerDB struct {
	db *badger.DB
}

// NewBadger opens (or creates) a Badger database in dir.
func NewBadger(dir string) (*BadgerDB, error) {
	db, err := openBadger(badger.DefaultOptions(dir))
	if err != nil {
		if dirLocked(err) {
			return nil, fmt.Errorf("store %s is held by another certanchord: %w", dir, err)
		}
		return nil, fmt.Errorf("open store %s: %w", dir, err)
	}
	return db, nil
}

// NewBadgerInMemory opens a Badger instance without a directory.
func NewBadgerInMemory() (*BadgerDB, error) {
	db, err := openBadger(badger.DefaultOptions("").WithInMemory(true))
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	return db, nil
}

func openBadger(opts badger.Options) (*BadgerDB, error) {
	// Engine logging goes through zerolog; badger's own logger is noise.
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerDB{db: db}, nil
}

func dirLocked(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Cannot acquire directory lock") ||
		strings.Contains(msg, "resource temporarily unavailable")
}

func (b *BadgerDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("badger get %q: %w", key, err)
	}
	return val, nil
}

func (b *BadgerDB) Put(key, value []byte) error {
	return b.update("put", func(txn *badger.Txn) error { return txn.Set(key, value) })
}

func (b *BadgerDB) Delete(key []byte) error {
	return b.update("delete", func(txn *badger.Txn) error { return txn.Delete(key) })
}

func (b *BadgerDB) update(op string, fn func(*badger.Txn) error) error {
	if err := b.db.Update(fn); err != nil {
		return fmt.Errorf("badger %s: %w", op, err)
	}
	return nil
}

func (b *BadgerDB) Has(key []byte) (bool, error) {
	_, err := b.Get(key)
	switch {
	case errors.Is(err, ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// ForEach walks the keys under prefix inside one read transaction.
func (b *BadgerDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerDB) Close() error {
	return b.db.Close()
}

// NewBatch returns a batch backed by one read-write transaction. A failed
// write discards the transaction and every later call returns that error.
func (b *BadgerDB) NewBatch() Batch {
	return &badgerBatch{txn: b.db.NewTransaction(true)}
}

type badgerBatch struct {
	txn *badger.Txn
	err error
}

func (bb *badgerBatch) do(op string, fn func() error) error {
	if bb.err != nil {
		return bb.err
	}
	if err := fn(); err != nil {
		bb.err = fmt.Errorf("badger batch %s: %w", op, err)
		bb.txn.Discard()
	}
	return bb.err
}

func (bb *badgerBatch) Put(key, value []byte) error {
	return bb.do("put", func() error { return bb.txn.Set(copyBytes(key), copyBytes(value)) })
}

func (bb *badgerBatch) Delete(key []byte) error {
	return bb.do("delete", func() error { return bb.txn.Delete(copyBytes(key)) })
}

func (bb *badgerBatch) Commit() error {
	return bb.do("commit", bb.txn.Commit)
}
