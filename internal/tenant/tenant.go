// Package tenant resolves tenant organizations to their certificate stores.
package tenant

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/certledger/certanchor/internal/certstore"
)

// Status of a tenant.
type Status string

// Tenant statuses.
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ErrUnknownTenant is returned when a tenant name has no directory entry.
var ErrUnknownTenant = errors.New("unknown tenant")

var whitespace = regexp.MustCompile(`\s+`)

// Tenant is an organization whose certificates live in an isolated store.
type Tenant struct {
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	Subdomain    string `json:"subdomain"`
	Status       Status `json:"status"`
}

// Active reports whether the tenant takes part in anchoring and
// reconciliation.
func (t Tenant) Active() bool {
	return t.Status == StatusActive
}

// DBName returns the name of the tenant's isolated database or schema:
// "tenant_" followed by the name with whitespace runs replaced by "_",
// lowercased.
func (t Tenant) DBName() string {
	return "tenant_" + strings.ToLower(whitespace.ReplaceAllString(t.Name, "_"))
}

// Context carries the tenant and its resolved store into engine calls.
type Context struct {
	Tenant Tenant
	Store  certstore.Store
}

// Directory lists tenants.
type Directory interface {
	ActiveTenants(ctx context.Context) ([]Tenant, error)
}

// Registry is a Directory that also looks up and registers tenants.
type Registry interface {
	Directory
	Lookup(ctx context.Context, name string) (Tenant, error)
	Register(ctx context.Context, t Tenant) error
}

// Router opens a tenant's certificate store.
type Router interface {
	Open(ctx context.Context, t Tenant) (certstore.Store, error)
}

// Resolve opens the store of t through r and returns the call context.
func Resolve(ctx context.Context, r Router, t Tenant) (Context, error) {
	store, err := r.Open(ctx, t)
	if err != nil {
		return Context{}, err
	}
	return Context{Tenant: t, Store: store}, nil
}
