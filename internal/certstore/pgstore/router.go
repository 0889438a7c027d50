package pgstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/certledger/certanchor/internal/certstore"
	"github.com/certledger/certanchor/internal/tenant"
)

// Router opens tenant stores on per-tenant schemas of one database.
type Router struct {
	pool  Pool
	clock clock.Clock

	mu       sync.Mutex
	migrated map[string]bool
}

var _ tenant.Router = (*Router)(nil)

// NewRouter creates a router over pool.
func NewRouter(pool Pool, clk clock.Clock) *Router {
	return &Router{pool: pool, clock: clk, migrated: make(map[string]bool)}
}

// Open returns the store of t, creating its schema on first use.
func (r *Router) Open(ctx context.Context, t tenant.Tenant) (certstore.Store, error) {
	if t.Name == "" {
		return nil, fmt.Errorf("%w: empty name", tenant.ErrUnknownTenant)
	}
	schema := t.DBName()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.migrated[schema] {
		if err := Migrate(ctx, r.pool, schema); err != nil {
			return nil, err
		}
		r.migrated[schema] = true
	}
	return NewStore(r.pool, schema, r.clock), nil
}

// Directory reads tenants from the shared tenants table.
type Directory struct {
	pool Pool
}

var _ tenant.Registry = (*Directory)(nil)

// NewDirectory creates a directory over pool.
func NewDirectory(pool Pool) *Directory {
	return &Directory{pool: pool}
}

// ActiveTenants returns active tenants ordered by name.
func (d *Directory) ActiveTenants(ctx context.Context) ([]tenant.Tenant, error) {
	query := `SELECT tenant_name, organization_name, subdomain, status
		FROM tenants WHERE status = $1 ORDER BY tenant_name`

	rows, err := d.pool.Query(ctx, query, string(tenant.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []tenant.Tenant
	for rows.Next() {
		var (
			t      tenant.Tenant
			status string
		)
		if err := rows.Scan(&t.Name, &t.Organization, &t.Subdomain, &status); err != nil {
			return nil, fmt.Errorf("scan tenant row: %w", err)
		}
		t.Status = tenant.Status(status)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant rows: %w", err)
	}
	return out, nil
}

// Lookup returns the tenant with name.
func (d *Directory) Lookup(ctx context.Context, name string) (tenant.Tenant, error) {
	query := `SELECT tenant_name, organization_name, subdomain, status
		FROM tenants WHERE tenant_name = $1`

	var (
		t      tenant.Tenant
		status string
	)
	err := d.pool.QueryRow(ctx, query, name).Scan(&t.Name, &t.Organization, &t.Subdomain, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return tenant.Tenant{}, fmt.Errorf("%w: %s", tenant.ErrUnknownTenant, name)
	}
	if err != nil {
		return tenant.Tenant{}, fmt.Errorf("load tenant %q: %w", name, err)
	}
	t.Status = tenant.Status(status)
	return t, nil
}

// Register creates or replaces a tenant row.
func (d *Directory) Register(ctx context.Context, t tenant.Tenant) error {
	if t.Name == "" {
		return fmt.Errorf("tenant without name")
	}
	if t.Status == "" {
		t.Status = tenant.StatusActive
	}
	query := `INSERT INTO tenants (tenant_name, organization_name, subdomain, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_name) DO UPDATE SET
			organization_name = EXCLUDED.organization_name,
			subdomain = EXCLUDED.subdomain,
			status = EXCLUDED.status`

	if _, err := d.pool.Exec(ctx, query, t.Name, t.Organization, t.Subdomain, string(t.Status)); err != nil {
		return fmt.Errorf("register tenant %q: %w", t.Name, err)
	}
	return nil
}
