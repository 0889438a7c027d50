// Package types defines the ledger primitives the anchoring engine works
// with: hashes, outpoints and addresses.
package types

import (
	"encoding/hex"
	"fmt"
)

const (
	// HashSize is the size of a blake2b-256 transaction or block hash.
	HashSize = 32
	// KeyHashSize is the size of a blake2b-224 verification key hash.
	KeyHashSize = 28
)

// Hash is a transaction or block hash. It encodes as lowercase hex in JSON
// and text.
type Hash [HashSize]byte

// KeyHash is a payment or stake credential.
type KeyHash [KeyHashSize]byte

func (h Hash) IsZero() bool   { return h == Hash{} }
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns a copy of h.
func (h Hash) Bytes() []byte { return append([]byte(nil), h[:]...) }

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText accepts 64 hex characters, or nothing for the zero hash.
func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = Hash{}
		return nil
	}
	parsed, err := HexToHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HexToHash parses the hex form of a hash.
func HexToHash(s string) (Hash, error) {
	var h Hash
	if err := decodeFixed(h[:], s); err != nil {
		return Hash{}, fmt.Errorf("hash: %w", err)
	}
	return h, nil
}

func (k KeyHash) IsZero() bool   { return k == KeyHash{} }
func (k KeyHash) String() string { return hex.EncodeToString(k[:]) }

// decodeFixed decodes s into dst, which it must fill exactly.
func decodeFixed(dst []byte, s string) error {
	if len(s) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("want %d hex characters, got %d", hex.EncodedLen(len(dst)), len(s))
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	return nil
}
