package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS %[1]s (
	id                UUID PRIMARY KEY,
	group_id          TEXT NOT NULL DEFAULT '',
	certificate_type  TEXT NOT NULL,
	certificate_data  JSONB NOT NULL,
	certificate_index INTEGER NOT NULL DEFAULT -1,
	child_address     TEXT NOT NULL DEFAULT '',
	tx_hash           TEXT NOT NULL,
	block_id          TEXT DEFAULT 'pending',
	version           INTEGER NOT NULL DEFAULT 1,
	previous_id       UUID REFERENCES %[1]s (id),
	fingerprint       TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
)`

const createIndexSQL = `CREATE INDEX IF NOT EXISTS certificates_tx_hash_idx ON %s (tx_hash)`

// Migrate creates schema and its certificates table if missing.
func Migrate(ctx context.Context, pool Pool, schema string) error {
	ident := pgx.Identifier{schema}.Sanitize()
	table := pgx.Identifier{schema, "certificates"}.Sanitize()

	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, ident),
		fmt.Sprintf(createTableSQL, table),
		fmt.Sprintf(createIndexSQL, table),
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", schema, err)
		}
	}
	return nil
}

const createTenantsSQL = `CREATE TABLE IF NOT EXISTS tenants (
	tenant_name       TEXT PRIMARY KEY,
	organization_name TEXT NOT NULL DEFAULT '',
	subdomain         TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'active'
)`

// MigrateDirectory creates the shared tenants table if missing.
func MigrateDirectory(ctx context.Context, pool Pool) error {
	if _, err := pool.Exec(ctx, createTenantsSQL); err != nil {
		return fmt.Errorf("migrate tenants: %w", err)
	}
	return nil
}
