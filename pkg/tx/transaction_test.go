package tx

import (
	"errors"
	"testing"

	"github.com/blinklabs-io/gouroboros/cbor"
	fxcbor "github.com/fxamacker/cbor/v2"

	"github.com/certledger/certanchor/pkg/crypto"
	"github.com/certledger/certanchor/pkg/types"
)

type testAux []byte

func (a testAux) CBOR() []byte     { return []byte(a) }
func (a testAux) Hash() types.Hash { return crypto.Hash(a) }

// {674: "x"}
var sampleAux = testAux{0xa1, 0x19, 0x02, 0xa2, 0x61, 0x78}

func testAddress(b byte) types.Address {
	return types.NewEnterpriseAddress(types.Testnet, types.KeyHash{b})
}

func testBody() *Body {
	return NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddOutput(testAddress(0xaa), 5_000_000).
		SetFee(180_000).
		SetTTL(1000).
		SetAuxData(sampleAux).
		Build()
}

func TestBody_Hash_Deterministic(t *testing.T) {
	b := testBody()
	h1, err := b.Hash()
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	h2, _ := b.Hash()
	if h1 != h2 {
		t.Error("Hash() should be deterministic")
	}
	if h1.IsZero() {
		t.Error("Hash() should not be zero")
	}
}

func TestBody_Hash_ChangesWithContent(t *testing.T) {
	b1 := testBody()
	b2 := testBody()
	b2.Outputs[0].Amount++

	h1, _ := b1.Hash()
	h2, _ := b2.Hash()
	if h1 == h2 {
		t.Error("different bodies should have different hashes")
	}
}

func TestBody_CBOR_Shape(t *testing.T) {
	raw, err := testBody().CBOR()
	if err != nil {
		t.Fatalf("CBOR() error: %v", err)
	}
	var decoded map[uint64]fxcbor.RawMessage
	if _, err := cbor.Decode(raw, &decoded); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	for _, k := range []uint64{0, 1, 2, 3, 7} {
		if _, ok := decoded[k]; !ok {
			t.Errorf("body missing key %d", k)
		}
	}

	var fee uint64
	if _, err := cbor.Decode(decoded[2], &fee); err != nil || fee != 180_000 {
		t.Errorf("fee = %d, %v", fee, err)
	}
}

func TestBody_TotalOutputValue(t *testing.T) {
	b := &Body{Outputs: []Output{{Amount: 100}, {Amount: 200}}}
	total, err := b.TotalOutputValue()
	if err != nil {
		t.Fatalf("TotalOutputValue() error: %v", err)
	}
	if total != 300 {
		t.Errorf("TotalOutputValue() = %d, want 300", total)
	}

	b.Outputs = append(b.Outputs, Output{Amount: ^uint64(0)})
	if _, err := b.TotalOutputValue(); err == nil {
		t.Error("expected overflow error")
	}
}

func TestSign(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	body := testBody()

	signed, err := Sign(body, sampleAux, key)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	want, _ := body.Hash()
	if signed.ID() != want {
		t.Errorf("ID() = %s, want body hash %s", signed.ID(), want)
	}
	if err := signed.VerifyWitnesses(); err != nil {
		t.Errorf("VerifyWitnesses() error: %v", err)
	}
	if !signed.SignedBy(crypto.KeyHash(key.PublicKey())) {
		t.Error("SignedBy() should report the signing key")
	}

	raw, err := signed.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error: %v", err)
	}
	var parts []fxcbor.RawMessage
	if _, err := cbor.Decode(raw, &parts); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(parts) != 4 {
		t.Fatalf("tx has %d parts, want 4", len(parts))
	}
	if string(parts[3]) != string(sampleAux) {
		t.Errorf("aux data = %x, want %x", []byte(parts[3]), []byte(sampleAux))
	}
	if h := crypto.Hash(parts[0]); h != signed.ID() {
		t.Error("ID() should be the hash of the encoded body")
	}
}

func TestSign_TamperedWitness(t *testing.T) {
	key, _ := crypto.GenerateKey()
	signed, err := Sign(testBody(), sampleAux, key)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	signed.Witnesses[0].Signature[0] ^= 0xff
	if err := signed.VerifyWitnesses(); !errors.Is(err, ErrInvalidSig) {
		t.Errorf("VerifyWitnesses() error = %v, want ErrInvalidSig", err)
	}
}

func TestSign_MissingMetadata(t *testing.T) {
	key, _ := crypto.GenerateKey()

	// Body commits to aux data but none supplied.
	if _, err := Sign(testBody(), nil, key); !errors.Is(err, ErrMissingMetadata) {
		t.Errorf("Sign(nil aux) error = %v, want ErrMissingMetadata", err)
	}

	// Aux data supplied but body has no hash.
	body := testBody()
	body.AuxDataHash = nil
	if _, err := Sign(body, sampleAux, key); !errors.Is(err, ErrMissingMetadata) {
		t.Errorf("Sign(no hash) error = %v, want ErrMissingMetadata", err)
	}

	// Hash does not match.
	if _, err := Sign(testBody(), testAux{0xa0}, key); !errors.Is(err, ErrMissingMetadata) {
		t.Errorf("Sign(wrong aux) error = %v, want ErrMissingMetadata", err)
	}
}

func TestSign_NoAux(t *testing.T) {
	key, _ := crypto.GenerateKey()
	body := testBody()
	body.AuxDataHash = nil

	signed, err := Sign(body, nil, key)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	raw, err := signed.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error: %v", err)
	}
	if raw[len(raw)-1] != 0xf6 {
		t.Errorf("absent aux data should encode as null, got %#x", raw[len(raw)-1])
	}
}
