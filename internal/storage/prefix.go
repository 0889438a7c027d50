package storage

import "errors"

// PrefixDB is a namespace inside another DB. Keys are stored under a fixed
// prefix and handed back without it, so tenant stores and the submission
// journal can share one database without seeing each other's keys.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB returns the namespace prefix of inner. Nesting a PrefixDB
// concatenates the prefixes onto the same underlying database.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	if outer, ok := inner.(*PrefixDB); ok {
		return &PrefixDB{inner: outer.inner, prefix: outer.key(prefix)}
	}
	return &PrefixDB{inner: inner, prefix: copyBytes(prefix)}
}

// Prefix returns a copy of the namespace prefix.
func (p *PrefixDB) Prefix() []byte {
	return copyBytes(p.prefix)
}

func (p *PrefixDB) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	return append(append(out, p.prefix...), k...)
}

func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(p.key(key))
}

func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(p.key(key), value)
}

func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(p.key(key))
}

func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(p.key(key))
}

// ForEach visits the namespace keys starting with prefix. fn sees keys
// relative to the namespace.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.inner.ForEach(p.key(prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// Close does nothing; the inner DB owns the handle.
func (p *PrefixDB) Close() error {
	return nil
}

// NewBatch returns a batch on the inner DB that writes namespaced keys.
func (p *PrefixDB) NewBatch() Batch {
	b, err := NewBatch(p.inner)
	if err != nil {
		return failedBatch{err: err}
	}
	return &prefixBatch{Batch: b, db: p}
}

type prefixBatch struct {
	Batch
	db *PrefixDB
}

func (b *prefixBatch) Put(key, value []byte) error {
	return b.Batch.Put(b.db.key(key), value)
}

func (b *prefixBatch) Delete(key []byte) error {
	return b.Batch.Delete(b.db.key(key))
}

// failedBatch reports err on Commit.
type failedBatch struct{ err error }

func (failedBatch) Put(_, _ []byte) error { return nil }
func (failedBatch) Delete(_ []byte) error { return nil }
func (b failedBatch) Commit() error {
	return errors.Join(errors.New("storage: namespace batch"), b.err)
}
