package anchor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/certledger/certanchor/internal/certstore"
	"github.com/certledger/certanchor/internal/chain"
	"github.com/certledger/certanchor/internal/metadata"
	"github.com/certledger/certanchor/internal/tenant"
	"github.com/certledger/certanchor/pkg/types"
)

// Verification outcomes.
const (
	StatusValid    = "valid"
	StatusMismatch = "mismatch"
	StatusPending  = "pending"
	StatusMissing  = "missing"
)

// Verification compares a stored certificate with what its transaction
// carries on chain.
type Verification struct {
	Record *certstore.Record
	// OnChain is nil when the transaction or its label is not on chain.
	OnChain   *metadata.Certificate
	Confirmed bool
	BlockID   string
	Status    string
}

// Valid reports whether the chain carries exactly the stored certificate.
func (v *Verification) Valid() bool {
	return v.Status == StatusValid
}

// Verify loads the record id and checks it against the ledger.
func (s *Service) Verify(ctx context.Context, tc tenant.Context, id uuid.UUID) (*Verification, error) {
	rec, err := tc.Store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load certificate %s: %w", id, err)
	}
	txHash, err := types.HexToHash(rec.TxHash)
	if err != nil {
		return nil, fmt.Errorf("certificate %s: %w", id, err)
	}

	v := &Verification{Record: rec, Status: StatusPending}
	info, err := s.chain.Transaction(ctx, txHash)
	switch {
	case errors.Is(err, chain.ErrTxNotFound):
		return v, nil
	case err != nil:
		return nil, err
	}
	v.Confirmed = info.Confirmed()
	v.BlockID = info.Block

	onChain, err := chain.CertificateAt(ctx, s.chain, txHash, rec.Label())
	if err != nil {
		return nil, err
	}
	v.OnChain = onChain
	stored := rec.Certificate()
	switch {
	case onChain == nil:
		v.Status = StatusMissing
	case metadata.Equal(onChain, &stored):
		v.Status = StatusValid
	default:
		v.Status = StatusMismatch
	}
	return v, nil
}

// LookupByTx returns the certificate carried by txHash. A nil index reads
// the single-certificate label, otherwise the bulk label of *index.
func (s *Service) LookupByTx(ctx context.Context, txHash types.Hash, index *int) (*metadata.Certificate, error) {
	i := -1
	if index != nil {
		if *index < 0 {
			return nil, fmt.Errorf("invalid certificate index %d", *index)
		}
		i = *index
	}
	cert, err := chain.CertificateAt(ctx, s.chain, txHash, chain.LabelFor(i))
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, fmt.Errorf("%w: tx %s label %d", ErrNotOnChain, txHash, chain.LabelFor(i))
	}
	return cert, nil
}
