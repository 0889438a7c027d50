package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/certledger/certanchor/internal/certstore"
	"github.com/certledger/certanchor/internal/storage"
)

var prefixTenant = []byte("tenant/")

func tenantKey(name string) []byte {
	return append(append([]byte{}, prefixTenant...), name...)
}

// KVDirectory stores tenant entries under "tenant/<name>" keys.
type KVDirectory struct {
	db storage.DB
}

var _ Registry = (*KVDirectory)(nil)

// NewKVDirectory creates a directory over db.
func NewKVDirectory(db storage.DB) *KVDirectory {
	return &KVDirectory{db: db}
}

// Put creates or replaces a tenant entry.
func (d *KVDirectory) Put(t Tenant) error {
	if t.Name == "" {
		return fmt.Errorf("tenant without name")
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tenant %q: %w", t.Name, err)
	}
	return d.db.Put(tenantKey(t.Name), data)
}

// Get returns the tenant with name.
func (d *KVDirectory) Get(name string) (Tenant, error) {
	data, err := d.db.Get(tenantKey(name))
	if errors.Is(err, storage.ErrNotFound) {
		return Tenant{}, fmt.Errorf("%w: %s", ErrUnknownTenant, name)
	}
	if err != nil {
		return Tenant{}, err
	}
	var t Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		return Tenant{}, fmt.Errorf("decode tenant %q: %w", name, err)
	}
	return t, nil
}

// Lookup implements Registry.
func (d *KVDirectory) Lookup(_ context.Context, name string) (Tenant, error) {
	return d.Get(name)
}

// Register implements Registry.
func (d *KVDirectory) Register(_ context.Context, t Tenant) error {
	return d.Put(t)
}

// ActiveTenants returns active tenants ordered by name.
func (d *KVDirectory) ActiveTenants(_ context.Context) ([]Tenant, error) {
	var out []Tenant
	err := d.db.ForEach(prefixTenant, func(key, value []byte) error {
		var t Tenant
		if err := json.Unmarshal(value, &t); err != nil {
			return fmt.Errorf("decode tenant %q: %w", key, err)
		}
		if t.Active() {
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// KVRouter gives each tenant a KVStore under its own key prefix of one
// database. Stores are cached so their write locks are shared.
type KVRouter struct {
	db  storage.DB
	now func() time.Time

	mu     sync.Mutex
	stores map[string]*certstore.KVStore
}

var _ Router = (*KVRouter)(nil)

// NewKVRouter creates a router over db.
func NewKVRouter(db storage.DB, now func() time.Time) *KVRouter {
	return &KVRouter{db: db, now: now, stores: make(map[string]*certstore.KVStore)}
}

// Open returns the store of t.
func (r *KVRouter) Open(_ context.Context, t Tenant) (certstore.Store, error) {
	if t.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnknownTenant)
	}
	name := t.DBName()

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[name]; ok {
		return s, nil
	}
	s := certstore.NewKVStore(storage.NewPrefixDB(r.db, []byte(name+"/")), r.now)
	r.stores[name] = s
	return s, nil
}
