package chain

import (
	"context"
	"fmt"

	"github.com/certledger/certanchor/internal/metadata"
	"github.com/certledger/certanchor/pkg/types"
)

// CertificateAt fetches the metadata of id and decodes the certificate stored
// under label. It returns (nil, nil) when the label is absent.
func CertificateAt(ctx context.Context, c Client, id types.Hash, label uint64) (*metadata.Certificate, error) {
	entries, err := c.TransactionMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Label != label {
			continue
		}
		cert, err := metadata.DecodeJSON(e.JSON)
		if err != nil {
			return nil, fmt.Errorf("tx %s label %d: %w", id, label, err)
		}
		return cert, nil
	}
	return nil, nil
}

// LabelFor returns the metadata label of a certificate: the bulk label for
// index >= 0, the single-certificate label otherwise.
func LabelFor(index int) uint64 {
	if index < 0 {
		return metadata.LabelCertificate
	}
	return metadata.BulkLabel(index)
}
