package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryDB keeps everything in a map. It backs the memory store backend and
// tests, and is safe for concurrent use.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *MemoryDB {
	return &MemoryDB{data: make(map[string][]byte)}
}

func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.data[string(key)]; ok {
		return copyBytes(v), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryDB) Put(key, value []byte) error {
	m.apply([]batchOp{{key: string(key), value: stored(value)}})
	return nil
}

func (m *MemoryDB) Delete(key []byte) error {
	m.apply([]batchOp{{key: string(key), del: true}})
	return nil
}

func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// ForEach visits a sorted snapshot of the keys under prefix, so fn may write
// to the database.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	type kv struct {
		k string
		v []byte
	}
	var snap []kv
	m.mu.RLock()
	for k, v := range m.data {
		if strings.HasPrefix(k, string(prefix)) {
			snap = append(snap, kv{k, copyBytes(v)})
		}
	}
	m.mu.RUnlock()

	sort.Slice(snap, func(i, j int) bool { return snap[i].k < snap[j].k })
	for _, e := range snap {
		if err := fn([]byte(e.k), e.v); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryDB) Close() error { return nil }

// NewBatch returns a batch applied under a single write lock.
func (m *MemoryDB) NewBatch() Batch {
	return &memoryBatch{db: m}
}

func (m *MemoryDB) apply(ops []batchOp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if op.del {
			delete(m.data, op.key)
			continue
		}
		m.data[op.key] = op.value
	}
}

// stored copies value, keeping an empty value distinct from nil.
func stored(value []byte) []byte {
	v := make([]byte, len(value))
	copy(v, value)
	return v
}

type batchOp struct {
	key   string
	value []byte
	del   bool
}

type memoryBatch struct {
	db  *MemoryDB
	ops []batchOp
}

func (b *memoryBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, batchOp{key: string(key), value: stored(value)})
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	b.ops = append(b.ops, batchOp{key: string(key), del: true})
	return nil
}

func (b *memoryBatch) Commit() error {
	b.db.apply(b.ops)
	b.ops = nil
	return nil
}
