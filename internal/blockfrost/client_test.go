package blockfrost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certledger/certanchor/internal/chain"
	klog "github.com/certledger/certanchor/internal/log"
	"github.com/certledger/certanchor/pkg/types"
)

const testProjectID = "preprodTESTKEY"

var testTxID = types.Hash{0xab, 0xcd}

func testAddress() types.Address {
	return types.NewEnterpriseAddress(types.Testnet, types.KeyHash{0x01})
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(projectIDHeader) != testProjectID {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"status_code":403,"error":"Forbidden","message":"Invalid project token."}`)
			return
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:       srv.URL,
		ProjectID:     testProjectID,
		ReadTimeout:   time.Second,
		SubmitTimeout: 200 * time.Millisecond,
		RateLimit:     1000,
		Burst:         1000,
	})
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{ProjectID: "x"})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "http://localhost"})
	assert.Error(t, err)

	c, err := New(Config{BaseURL: "http://localhost/", ProjectID: "x"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost", c.base)
	assert.Equal(t, DefaultReadTimeout, c.readTimeout)
	assert.Equal(t, DefaultSubmitTimeout, c.submitTimeout)
}

func TestUTXOs(t *testing.T) {
	addr := testAddress()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/addresses/"+addr.String()+"/utxos", r.URL.Path)
		fmt.Fprintf(w, `[
			{"tx_hash":"%s","output_index":1,"amount":[{"unit":"lovelace","quantity":"5000000"}]},
			{"tx_hash":"%s","output_index":0,"amount":[{"unit":"abc123","quantity":"7"},{"unit":"lovelace","quantity":"2000000"}]}
		]`, testTxID, testTxID)
	}))

	utxos, err := c.UTXOs(context.Background(), addr)
	require.NoError(t, err)
	require.Len(t, utxos, 2)
	assert.Equal(t, types.Outpoint{TxID: testTxID, Index: 1}, utxos[0].Outpoint)
	assert.Equal(t, uint64(5_000_000), utxos[0].Amount)
	assert.Equal(t, uint64(2_000_000), utxos[1].Amount)
	assert.False(t, utxos[0].HasAssets)
	assert.True(t, utxos[1].HasAssets, "token-bearing output must be flagged")
}

func TestUTXOs_Paginates(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		n := pageSize
		if r.URL.Query().Get("page") == "2" {
			n = 3
		}
		items := make([]utxoJSON, n)
		for i := range items {
			items[i] = utxoJSON{TxHash: testTxID.String(), OutputIndex: uint32(i), Amount: []amountJSON{{Unit: "lovelace", Quantity: "1"}}}
		}
		_ = json.NewEncoder(w).Encode(items)
	}))

	utxos, err := c.UTXOs(context.Background(), testAddress())
	require.NoError(t, err)
	assert.Len(t, utxos, pageSize+3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestUTXOs_PageCap(t *testing.T) {
	var logs bytes.Buffer
	klog.SetOutput(&logs, "warn")
	defer klog.SetOutput(os.Stdout, "info")

	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		items := make([]utxoJSON, pageSize)
		for i := range items {
			items[i] = utxoJSON{TxHash: testTxID.String(), OutputIndex: uint32(i), Amount: []amountJSON{{Unit: "lovelace", Quantity: "1"}}}
		}
		_ = json.NewEncoder(w).Encode(items)
	}))
	c.maxPages = 2

	utxos, err := c.UTXOs(context.Background(), testAddress())
	require.NoError(t, err)
	assert.Len(t, utxos, 2*pageSize)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Contains(t, logs.String(), "UTXO listing truncated")
}

func TestUTXOs_UnknownAddress(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"status_code":404,"error":"Not Found","message":"The requested component has not been found."}`)
	}))

	utxos, err := c.UTXOs(context.Background(), testAddress())
	require.NoError(t, err)
	assert.Empty(t, utxos)
}

func TestUTXOs_ProviderError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"status_code":429,"error":"Project Over Limit","message":"Usage is over limit."}`)
	}))

	_, err := c.UTXOs(context.Background(), testAddress())
	var perr *chain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusTooManyRequests, perr.Status)
	assert.Equal(t, "Usage is over limit.", perr.Message)
	assert.True(t, perr.Retryable())
}

func TestProjectIDHeader(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	c.projectID = "wrong"

	_, err := c.Tip(context.Background())
	var perr *chain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusForbidden, perr.Status)
}

func TestTip(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/blocks/latest", r.URL.Path)
		_, _ = io.WriteString(w, `{"slot":4242,"epoch":71,"height":99,"hash":"ff00","time":1700000000}`)
	}))

	tip, err := c.Tip(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4242), tip.Slot)
	assert.Equal(t, uint64(71), tip.Epoch)
	assert.Equal(t, uint64(99), tip.Height)
}

func TestSubmit(t *testing.T) {
	payload := []byte{0x84, 0xa0}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tx/submit", r.URL.Path)
		assert.Equal(t, "application/cbor", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, payload, body)
		fmt.Fprintf(w, `"%s"`, testTxID)
	}))

	id, err := c.Submit(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, testTxID, id)
}

func TestSubmit_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		ambiguous bool
		spent     bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			ambiguous: true,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			ambiguous: true,
		},
		{
			name: "inputs spent",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"status_code":400,"error":"Bad Request","message":"{\"contents\":{\"contents\":{\"contents\":{\"era\":\"ShelleyBasedEraConway\",\"error\":[\"ConwayUtxowFailure (UtxoFailure (BadInputsUTxO (fromList [TxIn ...])))\"]}}}}"}`)
			},
			spent: true,
		},
		{
			name: "rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"status_code":400,"error":"Bad Request","message":"FeeTooSmallUTxO"}`)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.Submit(context.Background(), []byte{0x80})
			require.Error(t, err)
			assert.Equal(t, tt.ambiguous, errors.Is(err, chain.ErrSubmissionAmbiguous), "ambiguous: %v", err)
			assert.Equal(t, tt.spent, errors.Is(err, chain.ErrInputsSpent), "spent: %v", err)
			var perr *chain.ProviderError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestSubmit_SingleAttempt(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.Submit(context.Background(), []byte{0x80})
	assert.ErrorIs(t, err, chain.ErrSubmissionAmbiguous)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a submission is never re-sent")
}

func TestSubmit_CanceledBeforeSend(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Submit(ctx, []byte{0x80})
	require.Error(t, err)
	assert.False(t, errors.Is(err, chain.ErrSubmissionAmbiguous))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestTransaction(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, testTxID.String()) {
			_, _ = io.WriteString(w, `{"hash":"x","block":"blk1","block_height":10,"block_time":1700000000,"slot":500,"fees":"187000"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	info, err := c.Transaction(context.Background(), testTxID)
	require.NoError(t, err)
	assert.True(t, info.Confirmed())
	assert.Equal(t, "blk1", info.Block)
	assert.Equal(t, uint64(187000), info.Fees)

	_, err = c.Transaction(context.Background(), types.Hash{0x99})
	assert.ErrorIs(t, err, chain.ErrTxNotFound)
}

func TestTransactionMetadata(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/txs/"+testTxID.String()+"/metadata" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `[
			{"label":"6741","json_metadata":{"certificateType":"badge","certificateIndex":"0","certificateData":{"name":[{"label":"Full name","value":"Jane Doe","type":"string","isUnique":"true"}]}}},
			{"label":"6742","json_metadata":{"certificateType":"badge","certificateIndex":"1","certificateData":{"name":[{"label":"Full name","value":"John Roe","type":"string","isUnique":"true"}]}}}
		]`)
	}))

	entries, err := c.TransactionMetadata(context.Background(), testTxID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(6741), entries[0].Label)

	cert, err := chain.CertificateAt(context.Background(), c, testTxID, chain.LabelFor(1))
	require.NoError(t, err)
	require.NotNil(t, cert)
	f, ok := cert.Field("name")
	require.True(t, ok)
	assert.Equal(t, "John Roe", f.Values[0].Value)

	none, err := c.TransactionMetadata(context.Background(), types.Hash{0x01})
	require.NoError(t, err)
	assert.Empty(t, none)
}
