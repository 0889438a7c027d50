package chain_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/certledger/certanchor/internal/chain"
	"github.com/certledger/certanchor/internal/chain/mocks"
	"github.com/certledger/certanchor/pkg/types"
)

const certJSON = `{"certificateType":"badge","certificateIndex":"1","certificateData":{"name":[{"label":"Full name","value":"Jane Doe","type":"string","isUnique":"false"}]}}`

func TestCertificateAt(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	ctx := context.Background()
	id := types.Hash{0x42}

	client.EXPECT().TransactionMetadata(ctx, id).Return([]chain.MetadataEntry{
		{Label: 6741, JSON: json.RawMessage(`{"certificateType":"other","certificateIndex":"0","certificateData":{}}`)},
		{Label: 6742, JSON: json.RawMessage(certJSON)},
	}, nil).Times(2)

	cert, err := chain.CertificateAt(ctx, client, id, chain.LabelFor(1))
	if err != nil {
		t.Fatalf("CertificateAt() error: %v", err)
	}
	if cert == nil || cert.Type != "badge" || cert.Index != 1 {
		t.Fatalf("CertificateAt() = %+v", cert)
	}

	missing, err := chain.CertificateAt(ctx, client, id, 674)
	if err != nil || missing != nil {
		t.Errorf("CertificateAt(absent label) = %+v, %v", missing, err)
	}
}

func TestCertificateAt_ProviderError(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	perr := &chain.ProviderError{Op: "metadata", Status: 500, Message: "boom"}
	client.EXPECT().TransactionMetadata(gomock.Any(), gomock.Any()).Return(nil, perr)

	_, err := chain.CertificateAt(context.Background(), client, types.Hash{1}, 674)
	var got *chain.ProviderError
	if !errors.As(err, &got) || got.Status != 500 {
		t.Errorf("error = %v, want ProviderError", err)
	}
}

func TestLabelFor(t *testing.T) {
	if chain.LabelFor(-1) != 674 {
		t.Errorf("LabelFor(-1) = %d", chain.LabelFor(-1))
	}
	if chain.LabelFor(0) != 6741 || chain.LabelFor(9) != 67410 {
		t.Error("LabelFor should follow the bulk label rule")
	}
}

func TestProviderError(t *testing.T) {
	tests := []struct {
		err       *chain.ProviderError
		retryable bool
		msg       string
	}{
		{&chain.ProviderError{Op: "utxos", Status: 429, Message: "slow down"}, true, "provider utxos: status 429: slow down"},
		{&chain.ProviderError{Op: "tip", Status: 503, Message: "down"}, true, "provider tip: status 503: down"},
		{&chain.ProviderError{Op: "tx", Status: 403, Message: "bad project"}, false, "provider tx: status 403: bad project"},
		{&chain.ProviderError{Op: "tx", Message: "dial tcp"}, true, "provider tx: dial tcp"},
	}
	for _, tt := range tests {
		if tt.err.Retryable() != tt.retryable {
			t.Errorf("%v Retryable() = %v", tt.err, !tt.retryable)
		}
		if tt.err.Error() != tt.msg {
			t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.msg)
		}
	}
}

func TestTxInfo_Confirmed(t *testing.T) {
	var nilInfo *chain.TxInfo
	if nilInfo.Confirmed() {
		t.Error("nil info should not be confirmed")
	}
	if (&chain.TxInfo{}).Confirmed() {
		t.Error("info without block should not be confirmed")
	}
	if !(&chain.TxInfo{Block: "abc"}).Confirmed() {
		t.Error("info with block should be confirmed")
	}
}
