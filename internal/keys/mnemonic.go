// Package keys derives the anchoring wallet's signing keys and addresses
// from a BIP-39 recovery phrase (CIP-1852 / BIP32-Ed25519).
package keys

import (
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// walletEntropyBits yields the 24-word phrases Cardano wallets issue.
const walletEntropyBits = 256

// ErrInvalidMnemonic means the phrase failed the BIP-39 word list or
// checksum; nothing is derived from it.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// GenerateMnemonic returns a fresh 24-word recovery phrase. The entropy is
// wiped once the phrase is built.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(walletEntropyBits)
	if err != nil {
		return "", fmt.Errorf("wallet entropy: %w", err)
	}
	defer wipe(entropy)
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("encode phrase: %w", err)
	}
	return phrase, nil
}

// ValidateMnemonic reports whether phrase is a well-formed BIP-39 phrase.
func ValidateMnemonic(phrase string) bool {
	return bip39.IsMnemonicValid(phrase)
}
