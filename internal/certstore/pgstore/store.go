package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/certledger/certanchor/internal/certstore"
	"github.com/certledger/certanchor/internal/metadata"
)

const columns = `id, group_id, certificate_type, certificate_data, certificate_index, child_address,
	tx_hash, block_id, version, previous_id, fingerprint, created_at, updated_at`

// pendingClause matches rows still awaiting a block reference.
const pendingClause = `(block_id IS NULL OR block_id IN ('pending', ''))`

type execFunc func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

// Store implements certstore.Store on one tenant schema.
type Store struct {
	pool  Pool
	table string
	clock clock.Clock
}

var _ certstore.Store = (*Store)(nil)

// NewStore creates a store over the certificates table in schema.
func NewStore(pool Pool, schema string, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Store{
		pool:  pool,
		table: pgx.Identifier{schema, "certificates"}.Sanitize(),
		clock: clk,
	}
}

// Create inserts a new record.
func (s *Store) Create(ctx context.Context, r *certstore.Record) error {
	return s.insert(ctx, s.pool.Exec, r)
}

// CreateBatch inserts all records in a single database transaction.
func (s *Store) CreateBatch(ctx context.Context, rs []*certstore.Record) error {
	if len(rs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, r := range rs {
		if err := s.insert(ctx, tx.Exec, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, exec execFunc, r *certstore.Record) error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("record without id")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock.Now().UTC()
	}
	r.UpdatedAt = r.CreatedAt
	if r.BlockID == "" {
		r.BlockID = certstore.PendingBlock
	}
	data, err := json.Marshal(r.CertificateData)
	if err != nil {
		return fmt.Errorf("encode certificate data %s: %w", r.ID, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`, s.table, columns)

	tag, err := exec(ctx, query,
		r.ID, r.GroupID, r.CertificateType, data, r.CertificateIndex, r.ChildAddress,
		r.TxHash, r.BlockID, r.Version, r.PreviousID, r.Fingerprint, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert certificate %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", certstore.ErrDuplicate, r.ID)
	}
	return nil
}

// Get returns the record with id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*certstore.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columns, s.table)

	r, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, certstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get certificate %s: %w", id, err)
	}
	return r, nil
}

// FindByTx returns the records anchored by txHash ordered by index.
func (s *Store) FindByTx(ctx context.Context, txHash string) ([]*certstore.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tx_hash = $1 ORDER BY certificate_index`, columns, s.table)
	return s.list(ctx, query, txHash)
}

// ListPending returns pending records, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]*certstore.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY created_at`, columns, s.table, pendingClause)
	return s.list(ctx, query)
}

// ConfirmBlock sets the block reference of a pending record. The pending
// check and the update are a single statement.
func (s *Store) ConfirmBlock(ctx context.Context, id uuid.UUID, blockRef string) error {
	if certstore.IsPending(blockRef) {
		return fmt.Errorf("invalid block reference %q", blockRef)
	}

	query := fmt.Sprintf(`UPDATE %s SET block_id = $1, updated_at = $2 WHERE id = $3 AND %s`, s.table, pendingClause)
	tag, err := s.pool.Exec(ctx, query, blockRef, s.clock.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("confirm certificate %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	existsQuery := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, s.table)
	if err := s.pool.QueryRow(ctx, existsQuery, id).Scan(&exists); err != nil {
		return fmt.Errorf("check certificate %s: %w", id, err)
	}
	if !exists {
		return certstore.ErrNotFound
	}
	return fmt.Errorf("%w: %s", certstore.ErrAlreadyConfirmed, id)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*certstore.Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var out []*certstore.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificate rows: %w", err)
	}
	return out, nil
}

// scanRecord scans one row selected with columns.
func scanRecord(row pgx.Row) (*certstore.Record, error) {
	var (
		r       certstore.Record
		data    []byte
		blockID *string
	)
	err := row.Scan(
		&r.ID, &r.GroupID, &r.CertificateType, &data, &r.CertificateIndex, &r.ChildAddress,
		&r.TxHash, &blockID, &r.Version, &r.PreviousID, &r.Fingerprint, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if blockID != nil {
		r.BlockID = *blockID
	}
	if certstore.IsPending(r.BlockID) {
		r.BlockID = certstore.PendingBlock
	}
	var fields []metadata.Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode certificate data: %w", err)
	}
	r.CertificateData = fields
	return &r, nil
}
