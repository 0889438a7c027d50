package keys

import (
	"crypto/sha512"
	"fmt"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
)

// Icarus root key parameters.
const (
	rootIterations = 4096
	rootKeySize    = 96 // kL(32) || kR(32) || chain code(32)
)

// RootKeyFromMnemonic validates the phrase and derives the Icarus root key
// from its BIP-39 entropy. The passphrase is normally empty.
func RootKeyFromMnemonic(mnemonic, passphrase string) (*HDKey, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	defer wipe(entropy)
	return NewRootKey(entropy, passphrase)
}

// NewRootKey derives a root key as PBKDF2-HMAC-SHA512(passphrase, entropy)
// with the Icarus bit clamping applied to kL.
func NewRootKey(entropy []byte, passphrase string) (*HDKey, error) {
	if len(entropy) < 16 || len(entropy) > 32 || len(entropy)%4 != 0 {
		return nil, fmt.Errorf("entropy must be 16-32 bytes in steps of 4, got %d", len(entropy))
	}
	xprv := pbkdf2.Key([]byte(passphrase), entropy, rootIterations, rootKeySize, sha512.New)
	defer wipe(xprv)

	xprv[0] &= 0xf8
	xprv[31] &= 0x1f
	xprv[31] |= 0x40

	return newHDKey(xprv[:64], xprv[64:], 0)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
