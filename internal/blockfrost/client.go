// Package blockfrost implements chain.Client against a Blockfrost-compatible
// HTTP API.
package blockfrost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/certledger/certanchor/internal/chain"
	klog "github.com/certledger/certanchor/internal/log"
	"github.com/certledger/certanchor/pkg/types"
)

// Defaults for Config fields left zero.
const (
	DefaultReadTimeout   = 10 * time.Second
	DefaultSubmitTimeout = 30 * time.Second
	DefaultRateLimit     = 10
	DefaultBurst         = 50

	pageSize = 100
	maxPages = 100
)

// projectIDHeader carries the API credential on every request.
const projectIDHeader = "project_id"

// Config configures the client.
type Config struct {
	BaseURL       string
	ProjectID     string
	ReadTimeout   time.Duration
	SubmitTimeout time.Duration
	// RateLimit is the sustained requests per second; Burst the bucket size.
	RateLimit  float64
	Burst      int
	HTTPClient *http.Client
}

// Client is a Blockfrost HTTP client.
type Client struct {
	base          string
	projectID     string
	readTimeout   time.Duration
	submitTimeout time.Duration
	limiter       *rate.Limiter
	http          *http.Client
	maxPages      int
}

var _ chain.Client = (*Client)(nil)

// New creates a client. BaseURL and ProjectID are required.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("blockfrost: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("blockfrost: invalid base URL: %w", err)
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("blockfrost: project id is required")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		base:          strings.TrimRight(cfg.BaseURL, "/"),
		projectID:     cfg.ProjectID,
		readTimeout:   cfg.ReadTimeout,
		submitTimeout: cfg.SubmitTimeout,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		http:          hc,
		maxPages:      maxPages,
	}, nil
}

// errNotSent marks failures that happened before the request left the process.
var errNotSent = errors.New("request not sent")

// apiError is the provider error body.
type apiError struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// do performs one request. It returns the response status and body; transport
// failures come back as *chain.ProviderError with Status 0.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, contentType string, timeout time.Duration) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", errNotSent, &chain.ProviderError{Op: op, Message: "rate limiter: " + err.Error()})
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: build request: %w", errNotSent, err)
	}
	req.Header.Set(projectIDHeader, c.projectID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &chain.ProviderError{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &chain.ProviderError{Op: op, Status: resp.StatusCode, Message: "read body: " + err.Error()}
	}
	klog.Chain.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("provider call")
	return resp.StatusCode, data, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) (int, error) {
	status, data, err := c.do(ctx, op, http.MethodGet, path, nil, "", c.readTimeout)
	if err != nil {
		return status, err
	}
	if status == http.StatusNotFound {
		return status, nil
	}
	if status != http.StatusOK {
		return status, providerError(op, status, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return status, &chain.ProviderError{Op: op, Status: status, Message: "decode response: " + err.Error()}
	}
	return status, nil
}

func providerError(op string, status int, data []byte) *chain.ProviderError {
	var ae apiError
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &ae) == nil && ae.Message != "" {
		msg = ae.Message
	}
	return &chain.ProviderError{Op: op, Status: status, Message: msg}
}

type amountJSON struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

type utxoJSON struct {
	TxHash      string       `json:"tx_hash"`
	OutputIndex uint32       `json:"output_index"`
	Amount      []amountJSON `json:"amount"`
}

// UTXOs lists all pages of unspent outputs at addr. An unknown address (404)
// has no UTXOs. Listing stops after maxPages full pages; the partial list is
// returned and the cut is logged.
func (c *Client) UTXOs(ctx context.Context, addr types.Address) ([]types.UTXO, error) {
	var out []types.UTXO
	for page := 1; ; page++ {
		if page > c.maxPages {
			klog.Chain.Warn().
				Str("address", addr.String()).
				Int("pages", c.maxPages).
				Int("utxos", len(out)).
				Msg("UTXO listing truncated, consolidate the funding wallet")
			break
		}
		var items []utxoJSON
		path := fmt.Sprintf("/addresses/%s/utxos?count=%d&page=%d", url.PathEscape(addr.String()), pageSize, page)
		status, err := c.getJSON(ctx, "utxos", path, &items)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNotFound {
			return out, nil
		}
		for _, it := range items {
			u, err := it.utxo()
			if err != nil {
				return nil, &chain.ProviderError{Op: "utxos", Status: status, Message: err.Error()}
			}
			out = append(out, u)
		}
		if len(items) < pageSize {
			break
		}
	}
	return out, nil
}

func (u utxoJSON) utxo() (types.UTXO, error) {
	id, err := types.HexToHash(u.TxHash)
	if err != nil {
		return types.UTXO{}, fmt.Errorf("utxo tx hash: %w", err)
	}
	out := types.UTXO{Outpoint: types.Outpoint{TxID: id, Index: u.OutputIndex}}
	for _, a := range u.Amount {
		if a.Unit != "lovelace" {
			out.HasAssets = true
			continue
		}
		out.Amount, err = strconv.ParseUint(a.Quantity, 10, 64)
		if err != nil {
			return types.UTXO{}, fmt.Errorf("utxo amount %q: %w", a.Quantity, err)
		}
	}
	return out, nil
}

// Tip returns the latest block.
func (c *Client) Tip(ctx context.Context) (*chain.Tip, error) {
	var tip chain.Tip
	status, err := c.getJSON(ctx, "tip", "/blocks/latest", &tip)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, &chain.ProviderError{Op: "tip", Status: status, Message: "latest block not found"}
	}
	return &tip, nil
}

// Submit posts the CBOR transaction. A timeout, transport failure or 5xx
// answer is reported as chain.ErrSubmissionAmbiguous.
func (c *Client) Submit(ctx context.Context, tx []byte) (types.Hash, error) {
	status, data, err := c.do(ctx, "submit", http.MethodPost, "/tx/submit", tx, "application/cbor", c.submitTimeout)
	if errors.Is(err, errNotSent) {
		return types.Hash{}, err
	}
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: %w", chain.ErrSubmissionAmbiguous, err)
	}
	switch {
	case status == http.StatusOK:
	case status >= 500:
		return types.Hash{}, fmt.Errorf("%w: %w", chain.ErrSubmissionAmbiguous, providerError("submit", status, data))
	case isInputsSpent(data):
		return types.Hash{}, fmt.Errorf("%w: %w", chain.ErrInputsSpent, providerError("submit", status, data))
	default:
		return types.Hash{}, providerError("submit", status, data)
	}

	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return types.Hash{}, fmt.Errorf("%w: decode tx id: %v", chain.ErrSubmissionAmbiguous, err)
	}
	h, err := types.HexToHash(id)
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: decode tx id: %v", chain.ErrSubmissionAmbiguous, err)
	}
	return h, nil
}

// The node reports spent or unknown inputs as BadInputsUTxO.
func isInputsSpent(body []byte) bool {
	return bytes.Contains(body, []byte("BadInputsUTxO"))
}

type txJSON struct {
	Hash        string `json:"hash"`
	Block       string `json:"block"`
	BlockHeight uint64 `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
	Slot        uint64 `json:"slot"`
	Fees        string `json:"fees"`
}

// Transaction returns the ledger view of id, or chain.ErrTxNotFound.
func (c *Client) Transaction(ctx context.Context, id types.Hash) (*chain.TxInfo, error) {
	var tj txJSON
	status, err := c.getJSON(ctx, "tx", "/txs/"+id.String(), &tj)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, chain.ErrTxNotFound
	}
	info := &chain.TxInfo{
		Hash:        id,
		Block:       tj.Block,
		BlockHeight: tj.BlockHeight,
		BlockTime:   tj.BlockTime,
		Slot:        tj.Slot,
	}
	if tj.Fees != "" {
		fees, err := strconv.ParseUint(tj.Fees, 10, 64)
		if err != nil {
			return nil, &chain.ProviderError{Op: "tx", Status: status, Message: "invalid fees " + tj.Fees}
		}
		info.Fees = fees
	}
	return info, nil
}

type metadataJSON struct {
	Label        string          `json:"label"`
	JSONMetadata json.RawMessage `json:"json_metadata"`
}

// TransactionMetadata returns the metadata entries of id. Unknown
// transactions (404) have none.
func (c *Client) TransactionMetadata(ctx context.Context, id types.Hash) ([]chain.MetadataEntry, error) {
	var items []metadataJSON
	status, err := c.getJSON(ctx, "metadata", "/txs/"+id.String()+"/metadata", &items)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	entries := make([]chain.MetadataEntry, 0, len(items))
	for _, it := range items {
		label, err := strconv.ParseUint(it.Label, 10, 64)
		if err != nil {
			return nil, &chain.ProviderError{Op: "metadata", Status: status, Message: "invalid label " + it.Label}
		}
		entries = append(entries, chain.MetadataEntry{Label: label, JSON: it.JSONMetadata})
	}
	return entries, nil
}
