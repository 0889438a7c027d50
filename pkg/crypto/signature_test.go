package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/hex"
	"testing"
)

// expandSeed turns an RFC 8032 seed into the extended form the wallet keys
// use, so results can be compared with crypto/ed25519.
func expandSeed(seed []byte) []byte {
	h := sha512.Sum512(seed)
	h[0] &= 0xf8
	h[31] &= 0x7f
	h[31] |= 0x40
	return h[:]
}

func TestSign_MatchesStdlib(t *testing.T) {
	seed := bytes.Repeat([]byte{0x5a}, ed25519.SeedSize)
	std := ed25519.NewKeyFromSeed(seed)

	key, err := PrivateKeyFromBytes(expandSeed(seed))
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}
	if !bytes.Equal(key.PublicKey(), std.Public().(ed25519.PublicKey)) {
		t.Fatal("public key differs from crypto/ed25519")
	}

	for _, msg := range [][]byte{nil, []byte("tx body"), bytes.Repeat([]byte{1}, 1024)} {
		sig, err := key.Sign(msg)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		if want := ed25519.Sign(std, msg); !bytes.Equal(sig, want) {
			t.Errorf("signature over %d bytes differs from crypto/ed25519", len(msg))
		}
	}
}

// RFC 8032 section 7.1, test 1.
func TestSign_RFC8032(t *testing.T) {
	seed := mustHex(t, "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60")
	wantPub := mustHex(t, "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a")
	wantSig := mustHex(t, "e5564300c360ac729086e2cc806e828a84877f1eb8e5d974d873e065"+
		"224901555fb8821590a33bacc61e39701cf9b46bd25bf5f0595bbe24655141438e7a100b")

	key, err := PrivateKeyFromBytes(expandSeed(seed))
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}
	if !bytes.Equal(key.PublicKey(), wantPub) {
		t.Errorf("public key = %x, want %x", key.PublicKey(), wantPub)
	}
	sig, err := key.Sign(nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !bytes.Equal(sig, wantSig) {
		t.Errorf("signature = %x, want %x", sig, wantSig)
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestSign_TxID(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	id := Hash([]byte("body cbor"))
	sig, err := key.Sign(id[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != ed25519.SignatureSize {
		t.Fatalf("signature is %d bytes", len(sig))
	}

	var v Verifier = Ed25519Verifier{}
	if !v.Verify(id[:], sig, key.PublicKey()) {
		t.Error("valid witness rejected")
	}
	other := Hash([]byte("other body"))
	if v.Verify(other[:], sig, key.PublicKey()) {
		t.Error("witness accepted for another tx id")
	}
	again, _ := key.Sign(id[:])
	if !bytes.Equal(sig, again) {
		t.Error("signing is not deterministic")
	}
}

func TestPrivateKeyFromBytes(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Serialize())
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}
	if !bytes.Equal(key.PublicKey(), restored.PublicKey()) {
		t.Error("restored key has another public key")
	}

	for _, n := range []int{0, ed25519.SeedSize, ExtendedKeySize - 1, ExtendedKeySize + 1} {
		if _, err := PrivateKeyFromBytes(make([]byte, n)); err == nil {
			t.Errorf("%d-byte secret accepted", n)
		}
	}
}

func TestVerifySignature_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		sig, pub []byte
	}{
		{"short signature", []byte{1, 2, 3}, make([]byte, ed25519.PublicKeySize)},
		{"short key", make([]byte, ed25519.SignatureSize), []byte{1}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		if VerifySignature([]byte("m"), tt.sig, tt.pub) {
			t.Errorf("%s: verified", tt.name)
		}
	}
}

func TestZero(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pub := key.PublicKey()
	key.Zero()
	if !bytes.Equal(key.Serialize(), make([]byte, ExtendedKeySize)) {
		t.Error("secret survives Zero")
	}
	if !bytes.Equal(key.PublicKey(), pub) {
		t.Error("Zero changed the public key")
	}
}
