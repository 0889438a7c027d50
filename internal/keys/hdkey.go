package keys

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/certledger/certanchor/pkg/crypto"
	"github.com/certledger/certanchor/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// CIP-1852 derivation path constants.
// Full path: m/1852'/1815'/account'/role/index
const (
	// PurposeCIP1852 is the Shelley-era purpose field (hardened).
	PurposeCIP1852 = bip32.FirstHardenedChild + 1852

	// CoinTypeADA is the registered coin type (hardened).
	CoinTypeADA = bip32.FirstHardenedChild + 1815

	// RoleExternal is the payment (receiving) chain.
	RoleExternal = 0

	// RoleInternal is the change chain.
	RoleInternal = 1

	// RoleStaking is the staking key chain.
	RoleStaking = 2
)

// HDKey represents a BIP32-Ed25519 extended private key with its chain code.
type HDKey struct {
	secret    [crypto.ExtendedKeySize]byte
	chainCode [32]byte
	pub       [32]byte
	depth     uint8
}

func newHDKey(secret, chainCode []byte, depth uint8) (*HDKey, error) {
	if len(secret) != crypto.ExtendedKeySize || len(chainCode) != 32 {
		return nil, fmt.Errorf("invalid extended key material")
	}
	k := &HDKey{depth: depth}
	copy(k.secret[:], secret)
	copy(k.chainCode[:], chainCode)
	pub, err := crypto.PublicKeyFromScalar(k.secret[:32])
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	copy(k.pub[:], pub)
	return k, nil
}

// DeriveChild derives a child key at the given index (V2 scheme).
// For hardened derivation, add bip32.FirstHardenedChild to the index.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)

	zMac := hmac.New(sha512.New, k.chainCode[:])
	ccMac := hmac.New(sha512.New, k.chainCode[:])
	if index >= bip32.FirstHardenedChild {
		zMac.Write([]byte{0x00})
		zMac.Write(k.secret[:])
		ccMac.Write([]byte{0x01})
		ccMac.Write(k.secret[:])
	} else {
		zMac.Write([]byte{0x02})
		zMac.Write(k.pub[:])
		ccMac.Write([]byte{0x03})
		ccMac.Write(k.pub[:])
	}
	zMac.Write(idx[:])
	ccMac.Write(idx[:])
	z := zMac.Sum(nil)
	cc := ccMac.Sum(nil)
	defer wipe(z)

	var secret [crypto.ExtendedKeySize]byte
	defer wipe(secret[:])
	add28Mul8(secret[:32], k.secret[:32], z[:28])
	add256(secret[32:], k.secret[32:], z[32:])

	child, err := newHDKey(secret[:], cc[32:], k.depth+1)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return child, nil
}

// DerivePath derives a key along a sequence of indices.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if current != k {
			current.Zero()
		}
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// PublicKeyBytes returns the 32-byte Ed25519 verification key.
func (k *HDKey) PublicKeyBytes() []byte {
	out := make([]byte, len(k.pub))
	copy(out, k.pub[:])
	return out
}

// KeyHash returns the blake2b-224 hash of the verification key.
func (k *HDKey) KeyHash() types.KeyHash {
	return crypto.KeyHash(k.pub[:])
}

// Signer returns a crypto.PrivateKey over this key's extended secret.
// The caller owns the returned key and should Zero it when done.
func (k *HDKey) Signer() (*crypto.PrivateKey, error) {
	return crypto.PrivateKeyFromBytes(k.secret[:])
}

// Depth returns the derivation depth (0 for the root).
func (k *HDKey) Depth() uint8 {
	return k.depth
}

// Zero wipes the secret and chain code.
func (k *HDKey) Zero() {
	wipe(k.secret[:])
	wipe(k.chainCode[:])
}

// add28Mul8 computes x + 8*y where y is 28 bytes, little endian.
func add28Mul8(out, x, y []byte) {
	var carry uint16
	for i := 0; i < 28; i++ {
		r := uint16(x[i]) + uint16(y[i])<<3 + carry
		out[i] = byte(r)
		carry = r >> 8
	}
	for i := 28; i < 32; i++ {
		r := uint16(x[i]) + carry
		out[i] = byte(r)
		carry = r >> 8
	}
}

// add256 computes x + y mod 2^256, little endian.
func add256(out, x, y []byte) {
	var carry uint16
	for i := 0; i < 32; i++ {
		r := uint16(x[i]) + uint16(y[i]) + carry
		out[i] = byte(r)
		carry = r >> 8
	}
}
