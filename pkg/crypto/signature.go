package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
)

// ExtendedKeySize is the length of an extended Ed25519 secret (kL || kR).
const ExtendedKeySize = 64

// Signer signs messages with a private key.
type Signer interface {
	// Sign produces an Ed25519 signature over msg.
	Sign(msg []byte) ([]byte, error)
	// PublicKey returns the 32-byte verification key.
	PublicKey() []byte
}

// Verifier verifies Ed25519 signatures.
type Verifier interface {
	Verify(msg, signature, publicKey []byte) bool
}

// PrivateKey is an extended Ed25519 private key as produced by BIP32-Ed25519
// derivation. kL is used as the signing scalar and kR as the nonce seed.
type PrivateKey struct {
	secret [ExtendedKeySize]byte
	pub    [ed25519.PublicKeySize]byte
}

// GenerateKey creates a random, correctly clamped extended key.
func GenerateKey() (*PrivateKey, error) {
	var b [ExtendedKeySize]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	b[0] &= 0xf8
	b[31] &= 0x1f
	b[31] |= 0x40
	return PrivateKeyFromBytes(b[:])
}

// PrivateKeyFromBytes creates a PrivateKey from a 64-byte extended secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != ExtendedKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ExtendedKeySize, len(b))
	}
	pk := &PrivateKey{}
	copy(pk.secret[:], b)
	pub, err := PublicKeyFromScalar(pk.secret[:32])
	if err != nil {
		return nil, err
	}
	copy(pk.pub[:], pub)
	return pk, nil
}

// PublicKeyFromScalar returns kL*B for a 32-byte little-endian scalar.
// kL is not required to be reduced mod l.
func PublicKeyFromScalar(kL []byte) ([]byte, error) {
	s, err := scalarFromBytes(kL)
	if err != nil {
		return nil, err
	}
	return new(edwards25519.Point).ScalarBaseMult(s).Bytes(), nil
}

// Sign produces a 64-byte Ed25519 signature over msg using the extended key.
// Signatures verify with the standard ed25519.Verify.
func (pk *PrivateKey) Sign(msg []byte) ([]byte, error) {
	a, err := scalarFromBytes(pk.secret[:32])
	if err != nil {
		return nil, err
	}

	h := sha512.New()
	h.Write(pk.secret[32:])
	h.Write(msg)
	r, err := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("nonce scalar: %w", err)
	}
	R := new(edwards25519.Point).ScalarBaseMult(r).Bytes()

	h.Reset()
	h.Write(R)
	h.Write(pk.pub[:])
	h.Write(msg)
	k, err := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("challenge scalar: %w", err)
	}
	S := edwards25519.NewScalar().MultiplyAdd(k, a, r)

	sig := make([]byte, 0, ed25519.SignatureSize)
	sig = append(sig, R...)
	return append(sig, S.Bytes()...), nil
}

// PublicKey returns the 32-byte verification key.
func (pk *PrivateKey) PublicKey() []byte {
	out := make([]byte, len(pk.pub))
	copy(out, pk.pub[:])
	return out
}

// Serialize returns the 64-byte extended secret.
func (pk *PrivateKey) Serialize() []byte {
	out := make([]byte, ExtendedKeySize)
	copy(out, pk.secret[:])
	return out
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	for i := range pk.secret {
		pk.secret[i] = 0
	}
}

// VerifySignature checks an Ed25519 signature. Returns false on any error.
func VerifySignature(msg, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), msg, signature)
}

// Ed25519Verifier implements the Verifier interface.
type Ed25519Verifier struct{}

// Verify checks an Ed25519 signature against a message and public key.
func (v Ed25519Verifier) Verify(msg, signature, publicKey []byte) bool {
	return VerifySignature(msg, signature, publicKey)
}

// scalarFromBytes reduces a 32-byte little-endian integer mod l.
func scalarFromBytes(b []byte) (*edwards25519.Scalar, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("scalar must be 32 bytes, got %d", len(b))
	}
	var wide [64]byte
	copy(wide[:], b)
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		return nil, fmt.Errorf("reduce scalar: %w", err)
	}
	return s, nil
}
