// Package certstore persists anchored certificate records per tenant.
package certstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/certledger/certanchor/internal/metadata"
	"github.com/certledger/certanchor/pkg/crypto"
)

// PendingBlock is the block marker of a record whose transaction has not
// been seen in a block yet.
const PendingBlock = "pending"

// Store errors.
var (
	ErrNotFound         = errors.New("certificate record not found")
	ErrAlreadyConfirmed = errors.New("certificate record already confirmed")
	ErrDuplicate        = errors.New("certificate record already exists")
)

// IsPending reports whether blockID is the pending marker. Empty values
// count as pending.
func IsPending(blockID string) bool {
	return blockID == "" || blockID == PendingBlock
}

// Record is one anchored certificate. CertificateData and TxHash never
// change after creation; BlockID moves from pending to a block reference once.
type Record struct {
	ID               uuid.UUID        `json:"id"`
	GroupID          string           `json:"group_id,omitempty"`
	CertificateType  string           `json:"certificate_type"`
	CertificateData  []metadata.Field `json:"certificate_data"`
	CertificateIndex int              `json:"certificate_index"`
	ChildAddress     string           `json:"child_address,omitempty"`
	TxHash           string           `json:"tx_hash"`
	BlockID          string           `json:"block_id"`
	Version          int              `json:"version"`
	PreviousID       *uuid.UUID       `json:"previous_id,omitempty"`
	Fingerprint      string           `json:"fingerprint"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Pending reports whether the record is awaiting block confirmation.
func (r *Record) Pending() bool {
	return IsPending(r.BlockID)
}

// Label returns the metadata label the record was anchored under.
func (r *Record) Label() uint64 {
	if r.CertificateIndex < 0 {
		return metadata.LabelCertificate
	}
	return metadata.BulkLabel(r.CertificateIndex)
}

// Certificate returns the anchored payload.
func (r *Record) Certificate() metadata.Certificate {
	return metadata.Certificate{Type: r.CertificateType, Index: r.CertificateIndex, Data: r.CertificateData}
}

// Fingerprint returns the hex blake3 digest of a certificate's type and data.
// Field order is significant.
func Fingerprint(certType string, data []metadata.Field) string {
	raw, _ := json.Marshal(struct {
		Type string           `json:"t"`
		Data []metadata.Field `json:"d"`
	}{certType, data})
	sum := crypto.Fingerprint(raw)
	return hex.EncodeToString(sum[:])
}

// Store is a tenant's certificate record store.
type Store interface {
	// Create inserts a new record. ErrDuplicate if the ID exists.
	Create(ctx context.Context, r *Record) error
	// CreateBatch inserts all records or none.
	CreateBatch(ctx context.Context, rs []*Record) error
	// Get returns the record with id or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	// FindByTx returns the records anchored by txHash ordered by index.
	FindByTx(ctx context.Context, txHash string) ([]*Record, error)
	// ListPending returns records awaiting confirmation, oldest first.
	ListPending(ctx context.Context) ([]*Record, error)
	// ConfirmBlock sets the block reference of a pending record.
	// ErrAlreadyConfirmed if it already has one.
	ConfirmBlock(ctx context.Context, id uuid.UUID, blockRef string) error
}
