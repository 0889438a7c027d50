package tx

import (
	"errors"
	"testing"

	"github.com/certledger/certanchor/pkg/types"
)

func utxo(b byte, amount uint64) types.UTXO {
	return types.UTXO{Outpoint: types.Outpoint{TxID: types.Hash{b}, Index: uint32(b)}, Amount: amount}
}

func anchorRequest(utxos ...types.UTXO) AnchorRequest {
	return AnchorRequest{
		UTXOs:         utxos,
		TipSlot:       50_000,
		ChangeAddress: testAddress(0xcc),
		Metadata:      sampleAux,
		Params:        DefaultProtocolParams(),
	}
}

func TestSelectLargestUTXO(t *testing.T) {
	if _, err := SelectLargestUTXO(nil); !errors.Is(err, ErrNoUTXOs) {
		t.Errorf("SelectLargestUTXO(nil) error = %v, want ErrNoUTXOs", err)
	}
	got, err := SelectLargestUTXO([]types.UTXO{utxo(1, 5), utxo(2, 9), utxo(3, 9), utxo(4, 1)})
	if err != nil {
		t.Fatalf("SelectLargestUTXO() error: %v", err)
	}
	if got.TxID != (types.Hash{2}) {
		t.Errorf("selected %s, want the first 9-lovelace UTXO", got.Outpoint)
	}
}

func TestSelectLargestUTXO_SkipsAssets(t *testing.T) {
	tokens := utxo(1, 50_000_000)
	tokens.HasAssets = true
	got, err := SelectLargestUTXO([]types.UTXO{tokens, utxo(2, 3_000_000), utxo(3, 4_000_000)})
	if err != nil {
		t.Fatalf("SelectLargestUTXO() error: %v", err)
	}
	if got.TxID != (types.Hash{3}) {
		t.Errorf("selected %s, want the largest lovelace-only UTXO", got.Outpoint)
	}

	if _, err := SelectLargestUTXO([]types.UTXO{tokens}); !errors.Is(err, ErrNoUTXOs) {
		t.Errorf("only asset UTXOs: error = %v, want ErrNoUTXOs", err)
	}
}

func TestBuildAnchor_NeverSpendsAssets(t *testing.T) {
	tokens := utxo(1, 90_000_000)
	tokens.HasAssets = true
	plan, err := BuildAnchor(anchorRequest(tokens, utxo(2, 5_000_000)))
	if err != nil {
		t.Fatalf("BuildAnchor() error: %v", err)
	}
	if len(plan.Body.Inputs) != 1 || plan.Body.Inputs[0] != utxo(2, 0).Outpoint {
		t.Errorf("inputs = %v, want the lovelace-only UTXO", plan.Body.Inputs)
	}
}

func TestBuildAnchor_Single(t *testing.T) {
	req := anchorRequest(utxo(1, 3_000_000), utxo(2, 10_000_000), utxo(3, 4_000_000))
	plan, err := BuildAnchor(req)
	if err != nil {
		t.Fatalf("BuildAnchor() error: %v", err)
	}
	body := plan.Body

	if len(body.Inputs) != 1 || body.Inputs[0] != utxo(2, 0).Outpoint {
		t.Errorf("inputs = %v, want only the largest UTXO", body.Inputs)
	}
	if body.TTL != 50_000+DefaultTTLWindow {
		t.Errorf("TTL = %d, want %d", body.TTL, 50_000+DefaultTTLWindow)
	}
	if body.AuxDataHash == nil || *body.AuxDataHash != sampleAux.Hash() {
		t.Error("body should commit to the metadata hash")
	}
	if body.Fee != ApplyFeeBuffer(plan.MinFee) {
		t.Errorf("fee = %d, want buffered %d", body.Fee, ApplyFeeBuffer(plan.MinFee))
	}
	if len(body.Outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(body.Outputs))
	}
	if body.Outputs[0].Address != req.ChangeAddress {
		t.Error("first output should pay the change address")
	}
	if body.Outputs[0].Amount+body.Fee != 10_000_000 {
		t.Errorf("change %d + fee %d != input", body.Outputs[0].Amount, body.Fee)
	}
	if err := body.Validate(); err != nil {
		t.Errorf("built body invalid: %v", err)
	}
}

func TestBuildAnchor_Bulk(t *testing.T) {
	req := anchorRequest(utxo(1, 20_000_000))
	req.ChildAddresses = []types.Address{testAddress(1), testAddress(2), testAddress(3)}

	plan, err := BuildAnchor(req)
	if err != nil {
		t.Fatalf("BuildAnchor() error: %v", err)
	}
	outs := plan.Body.Outputs
	if len(outs) != 4 {
		t.Fatalf("outputs = %d, want 4", len(outs))
	}
	if outs[0].Address != req.ChangeAddress {
		t.Error("change output must come first")
	}
	for i, addr := range req.ChildAddresses {
		if outs[i+1].Address != addr || outs[i+1].Amount != req.Params.MinUTxO {
			t.Errorf("output %d = %+v, want %s with %d", i+1, outs[i+1], addr, req.Params.MinUTxO)
		}
	}
	total, _ := plan.Body.TotalOutputValue()
	if total+plan.Body.Fee != 20_000_000 {
		t.Errorf("outputs %d + fee %d != input", total, plan.Body.Fee)
	}
}

func TestBuildAnchor_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  func() AnchorRequest
		want error
	}{
		{"no utxos", func() AnchorRequest { return anchorRequest() }, ErrNoUTXOs},
		{"missing metadata", func() AnchorRequest {
			r := anchorRequest(utxo(1, 10_000_000))
			r.Metadata = nil
			return r
		}, ErrMissingMetadata},
		{"fee exceeds input", func() AnchorRequest { return anchorRequest(utxo(1, 100_000)) }, ErrInsufficientFunds},
		{"change below minimum", func() AnchorRequest { return anchorRequest(utxo(1, 1_100_000)) }, ErrInsufficientFunds},
		{"bulk underfunded", func() AnchorRequest {
			r := anchorRequest(utxo(1, 3_000_000))
			r.ChildAddresses = []types.Address{testAddress(1), testAddress(2)}
			return r
		}, ErrInsufficientFundsForBulk},
		{"too large", func() AnchorRequest {
			r := anchorRequest(utxo(1, 10_000_000))
			r.Params.MaxTxSize = 100
			return r
		}, ErrTxTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := BuildAnchor(tt.req())
			if plan != nil {
				t.Error("expected no plan on failure")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("BuildAnchor() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuildAnchor_SignsAndFits(t *testing.T) {
	req := anchorRequest(utxo(1, 10_000_000))
	plan, err := BuildAnchor(req)
	if err != nil {
		t.Fatalf("BuildAnchor() error: %v", err)
	}
	signed, err := Sign(plan.Body, req.Metadata, mustKey(t))
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	raw, _ := signed.Bytes()
	if len(raw) > plan.Size {
		t.Errorf("signed size %d exceeds planned %d", len(raw), plan.Size)
	}
	if req.Params.LinearFee(len(raw)) > signed.Body.Fee {
		t.Errorf("fee %d below ledger minimum %d", signed.Body.Fee, req.Params.LinearFee(len(raw)))
	}
}
