// Package anchor turns certificate requests into signed, submitted ledger
// transactions and records them in the tenant's store.
package anchor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/rs/zerolog"

	"github.com/certledger/certanchor/internal/certstore"
	"github.com/certledger/certanchor/internal/chain"
	"github.com/certledger/certanchor/internal/keys"
	klog "github.com/certledger/certanchor/internal/log"
	"github.com/certledger/certanchor/internal/metadata"
	"github.com/certledger/certanchor/internal/metrics"
	"github.com/certledger/certanchor/internal/tenant"
	"github.com/certledger/certanchor/internal/walletlock"
	"github.com/certledger/certanchor/pkg/tx"
	"github.com/certledger/certanchor/pkg/types"
)

// DefaultMaxRebuilds is how many times a transaction is rebuilt after the
// provider reports its input as already spent.
const DefaultMaxRebuilds = 2

// Config configures the anchoring service.
type Config struct {
	Network types.Network
	// Mnemonic is the funding wallet phrase. It is never logged.
	Mnemonic        string
	Params          tx.ProtocolParams
	TTLWindow       uint64
	MaxRebuilds     int
	MaxMetadataSize int
	// LockTimeout bounds the wait for the wallet lock. Zero waits for ctx.
	LockTimeout time.Duration
	// RebuildDelay is the pause before rebuilding after a spent-input
	// rejection. Zero rebuilds at once.
	RebuildDelay time.Duration
}

// CertificateRequest is one certificate to anchor.
type CertificateRequest struct {
	GroupID         string
	CertificateType string
	CertificateData []metadata.Field
}

// Result is the outcome of a single anchor.
type Result struct {
	TxHash types.Hash
	Fee    uint64
	Record *certstore.Record
}

// BulkResult is the outcome of a bulk anchor. Records are in request order.
type BulkResult struct {
	TxHash  types.Hash
	Fee     uint64
	Records []*certstore.Record
}

// Service anchors certificates from one funding wallet.
type Service struct {
	cfg     Config
	chain   chain.Client
	locker  walletlock.Locker
	journal *Journal
	encoder *metadata.Encoder
	address types.Address
	metrics *metrics.Metrics
	clock   clock.Clock
	logger  zerolog.Logger
}

// New creates the service. The wallet is opened once to learn the funding
// address; its keys are wiped before New returns.
func New(cfg Config, client chain.Client, locker walletlock.Locker, journal *Journal) (*Service, error) {
	if cfg.Mnemonic == "" {
		return nil, ErrNoMnemonic
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("protocol params: %w", err)
	}
	if cfg.MaxRebuilds < 0 {
		cfg.MaxRebuilds = 0
	}
	if cfg.MaxMetadataSize <= 0 {
		cfg.MaxMetadataSize = metadata.DefaultMaxSize
	}
	if locker == nil {
		locker = walletlock.NewLocal()
	}

	w, err := keys.OpenWallet(cfg.Mnemonic, cfg.Network)
	if err != nil {
		return nil, err
	}
	addr := w.Address()
	w.Zero()

	return &Service{
		cfg:     cfg,
		chain:   client,
		locker:  locker,
		journal: journal,
		encoder: metadata.NewEncoder(cfg.MaxMetadataSize),
		address: addr,
		clock:   clock.NewDefaultClock(),
		logger:  klog.Anchor,
	}, nil
}

// SetMetrics attaches collectors.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// SetClock replaces the clock used for record timestamps.
func (s *Service) SetClock(c clock.Clock) { s.clock = c }

// Address returns the funding wallet address.
func (s *Service) Address() types.Address { return s.address }

// Anchor anchors one certificate under label 674 and records it as pending.
func (s *Service) Anchor(ctx context.Context, tc tenant.Context, req CertificateRequest) (*Result, error) {
	res, err := s.anchor(ctx, tc, req, 1, nil)
	if err != nil {
		s.metrics.Failed(failureReason(err))
		return nil, err
	}
	return res, nil
}

// Reissue anchors new data for the certificate prevID. The new record
// links back with PreviousID and bumps Version; the old record is untouched.
func (s *Service) Reissue(ctx context.Context, tc tenant.Context, prevID uuid.UUID, data []metadata.Field) (*Result, error) {
	prev, err := tc.Store.Get(ctx, prevID)
	if err != nil {
		return nil, fmt.Errorf("load certificate %s: %w", prevID, err)
	}
	req := CertificateRequest{
		GroupID:         prev.GroupID,
		CertificateType: prev.CertificateType,
		CertificateData: data,
	}
	res, err := s.anchor(ctx, tc, req, prev.Version+1, &prev.ID)
	if err != nil {
		s.metrics.Failed(failureReason(err))
		return nil, err
	}
	return res, nil
}

func (s *Service) anchor(ctx context.Context, tc tenant.Context, req CertificateRequest, version int, previous *uuid.UUID) (*Result, error) {
	md, err := s.encoder.EncodeSingle(req.CertificateType, req.CertificateData)
	if err != nil {
		return nil, err
	}

	sub, err := s.submit(ctx, tc.Tenant, md, 0)
	if err != nil && sub == nil {
		return nil, err
	}

	rec := s.newRecord(req, sub.txHash, -1, "")
	rec.Version = version
	rec.PreviousID = previous

	if err != nil {
		return nil, s.ambiguous(tc.Tenant, sub, []*certstore.Record{rec}, err)
	}
	if err := tc.Store.Create(ctx, rec); err != nil {
		return nil, s.unrecorded(tc.Tenant, sub.txHash, []*certstore.Record{rec}, err)
	}
	s.metrics.Submitted(metrics.KindSingle, 1, sub.fee)
	return &Result{TxHash: sub.txHash, Fee: sub.fee, Record: rec}, nil
}

// AnchorBulk anchors all requests in one transaction. Item i is stored under
// BulkLabel(i) and receives MinUTxO at the wallet's child address i. Any
// invalid item fails the whole request before anything is submitted.
func (s *Service) AnchorBulk(ctx context.Context, tc tenant.Context, reqs []CertificateRequest) (*BulkResult, error) {
	res, err := s.anchorBulk(ctx, tc, reqs)
	if err != nil {
		s.metrics.Failed(failureReason(err))
		return nil, err
	}
	return res, nil
}

func (s *Service) anchorBulk(ctx context.Context, tc tenant.Context, reqs []CertificateRequest) (*BulkResult, error) {
	items := make([]metadata.Certificate, len(reqs))
	for i, r := range reqs {
		items[i] = metadata.Certificate{Type: r.CertificateType, Index: i, Data: r.CertificateData}
	}
	md, err := s.encoder.EncodeBulk(items)
	if err != nil {
		return nil, err
	}

	sub, err := s.submit(ctx, tc.Tenant, md, len(reqs))
	if err != nil && sub == nil {
		return nil, err
	}

	records := make([]*certstore.Record, len(reqs))
	for i, r := range reqs {
		records[i] = s.newRecord(r, sub.txHash, i, sub.children[i].String())
	}
	if err != nil {
		return nil, s.ambiguous(tc.Tenant, sub, records, err)
	}
	if err := tc.Store.CreateBatch(ctx, records); err != nil {
		return nil, s.unrecorded(tc.Tenant, sub.txHash, records, err)
	}
	s.metrics.Submitted(metrics.KindBulk, len(records), sub.fee)
	return &BulkResult{TxHash: sub.txHash, Fee: sub.fee, Records: records}, nil
}

func (s *Service) newRecord(req CertificateRequest, txHash types.Hash, index int, child string) *certstore.Record {
	now := s.clock.Now().UTC()
	return &certstore.Record{
		ID:               uuid.New(),
		GroupID:          req.GroupID,
		CertificateType:  req.CertificateType,
		CertificateData:  req.CertificateData,
		CertificateIndex: index,
		ChildAddress:     child,
		TxHash:           txHash.String(),
		BlockID:          certstore.PendingBlock,
		Version:          1,
		Fingerprint:      certstore.Fingerprint(req.CertificateType, req.CertificateData),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// unrecorded journals an accepted transaction whose records failed to persist.
func (s *Service) unrecorded(t tenant.Tenant, txHash types.Hash, records []*certstore.Record, cause error) error {
	logger := klog.WithTenant(s.logger, t.Name)
	logger.Error().Err(cause).Str("tx", txHash.String()).Msg("Submitted transaction not recorded")

	cause = s.park(t, &JournalEntry{TxHash: txHash, Records: records}, cause)
	return &UnrecordedSubmissionError{TxHash: txHash, Tenant: t.Name, Err: cause}
}

// ambiguous journals the records of a submission with an unknown outcome.
// Replay stores them once the ledger shows the transaction and drops them
// once the tip passes its TTL.
func (s *Service) ambiguous(t tenant.Tenant, sub *submission, records []*certstore.Record, cause error) error {
	entry := &JournalEntry{TxHash: sub.txHash, Records: records, Ambiguous: true, TTL: sub.ttl}
	cause = s.park(t, entry, cause)
	return &AmbiguousSubmissionError{TxHash: sub.txHash, Tenant: t.Name, TTL: sub.ttl, Err: cause}
}

// park writes e to the recovery journal and returns cause, joined with the
// journal error if the write fails.
func (s *Service) park(t tenant.Tenant, e *JournalEntry, cause error) error {
	if s.journal == nil {
		return cause
	}
	e.Tenant = t
	e.Reason = cause.Error()
	e.LoggedAt = s.clock.Now().UTC()
	if err := s.journal.Add(e); err != nil {
		logger := klog.WithTenant(s.logger, t.Name)
		logger.Error().Err(err).
			Str("tx", e.TxHash.String()).
			Msg("Recovery journal write failed")
		return errors.Join(cause, err)
	}
	return cause
}
