package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Network identifies the ledger network an address belongs to.
type Network uint8

const (
	Testnet Network = 0
	Mainnet Network = 1
)

// Address HRP (human-readable part) constants for bech32 encoding.
const (
	MainnetHRP = "addr"
	TestnetHRP = "addr_test"
)

// Address header kinds (high nibble of the header byte).
const (
	kindBase       = 0x0
	kindEnterprise = 0x6
)

// ParseNetwork maps a configured network name to its network id.
// Preprod and preview are test networks.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet":
		return Mainnet, nil
	case "testnet", "preprod", "preview":
		return Testnet, nil
	default:
		return 0, fmt.Errorf("unknown network %q", s)
	}
}

// HRP returns the bech32 human-readable part for the network.
func (n Network) HRP() string {
	if n == Mainnet {
		return MainnetHRP
	}
	return TestnetHRP
}

func (n Network) String() string {
	if n == Mainnet {
		return "mainnet"
	}
	return "testnet"
}

// Address is a key-hash payment address: either a base address (payment +
// stake credential) or an enterprise address (payment credential only).
type Address struct {
	network  Network
	payment  KeyHash
	stake    KeyHash
	hasStake bool
}

// NewBaseAddress builds a base address from payment and stake key hashes.
func NewBaseAddress(network Network, payment, stake KeyHash) Address {
	return Address{network: network, payment: payment, stake: stake, hasStake: true}
}

// NewEnterpriseAddress builds an address with no stake credential.
func NewEnterpriseAddress(network Network, payment KeyHash) Address {
	return Address{network: network, payment: payment}
}

// IsZero returns true for the zero-value address.
func (a Address) IsZero() bool {
	return a.payment.IsZero() && !a.hasStake
}

// Network returns the network id encoded in the address header.
func (a Address) Network() Network { return a.network }

// PaymentKeyHash returns the payment credential.
func (a Address) PaymentKeyHash() KeyHash { return a.payment }

// StakeKeyHash returns the stake credential and whether one is present.
func (a Address) StakeKeyHash() (KeyHash, bool) { return a.stake, a.hasStake }

// Bytes returns the raw header-prefixed address bytes as carried in outputs.
func (a Address) Bytes() []byte {
	if a.hasStake {
		b := make([]byte, 0, 1+2*KeyHashSize)
		b = append(b, kindBase<<4|byte(a.network))
		b = append(b, a.payment[:]...)
		return append(b, a.stake[:]...)
	}
	b := make([]byte, 0, 1+KeyHashSize)
	b = append(b, kindEnterprise<<4|byte(a.network))
	return append(b, a.payment[:]...)
}

// String returns the bech32-encoded address (e.g. "addr_test1...").
func (a Address) String() string {
	s, err := bech32.EncodeFromBase256(a.network.HRP(), a.Bytes())
	if err != nil {
		// Only fails on invalid HRP characters, which are constants here.
		return ""
	}
	return s
}

// MarshalJSON encodes the address as a bech32 string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a bech32 string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a bech32 base or enterprise key-hash address.
// Script and pointer addresses are rejected.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	hrp, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 address: %w", err)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 payload: %w", err)
	}
	return AddressFromBytes(hrp, raw)
}

// AddressFromBytes decodes header-prefixed address bytes and checks the HRP
// matches the header network.
func AddressFromBytes(hrp string, raw []byte) (Address, error) {
	if len(raw) == 0 {
		return Address{}, fmt.Errorf("empty address payload")
	}
	network := Network(raw[0] & 0x0f)
	if network > Mainnet {
		return Address{}, fmt.Errorf("unknown network id %d", network)
	}
	if hrp != network.HRP() {
		return Address{}, fmt.Errorf("address prefix %q does not match network %s", hrp, network)
	}

	var a Address
	a.network = network
	switch raw[0] >> 4 {
	case kindBase:
		if len(raw) != 1+2*KeyHashSize {
			return Address{}, fmt.Errorf("base address must be %d bytes, got %d", 1+2*KeyHashSize, len(raw))
		}
		copy(a.payment[:], raw[1:1+KeyHashSize])
		copy(a.stake[:], raw[1+KeyHashSize:])
		a.hasStake = true
	case kindEnterprise:
		if len(raw) != 1+KeyHashSize {
			return Address{}, fmt.Errorf("enterprise address must be %d bytes, got %d", 1+KeyHashSize, len(raw))
		}
		copy(a.payment[:], raw[1:])
	default:
		return Address{}, fmt.Errorf("unsupported address type %#x", raw[0]>>4)
	}
	return a, nil
}
