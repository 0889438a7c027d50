// Package crypto provides the hashing and signing primitives of the ledger.
package crypto

import (
	"github.com/certledger/certanchor/pkg/types"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Hash computes the blake2b-256 hash used for transaction ids and
// auxiliary data hashes.
func Hash(data []byte) types.Hash {
	return blake2b.Sum256(data)
}

// KeyHash computes the blake2b-224 hash of a verification key.
func KeyHash(pubKey []byte) types.KeyHash {
	h, err := blake2b.New(types.KeyHashSize, nil)
	if err != nil {
		// Only fails for sizes outside [1, 64] or oversized keys.
		panic(err)
	}
	h.Write(pubKey)
	var kh types.KeyHash
	copy(kh[:], h.Sum(nil))
	return kh
}

// Fingerprint computes a BLAKE3-256 content digest. It is local to this
// engine (record dedupe, journal keys) and never goes on chain.
func Fingerprint(data []byte) types.Hash {
	return blake3.Sum256(data)
}
