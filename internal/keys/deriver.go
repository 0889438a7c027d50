package keys

import (
	"fmt"

	"github.com/certledger/certanchor/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// MaxChildIndex bounds bulk child derivation so that index+1 stays a soft index.
const MaxChildIndex = bip32.FirstHardenedChild - 2

// DeriveAccountKey derives the hardened account key m/1852'/1815'/0' from
// a recovery phrase. Fails with ErrInvalidMnemonic on a bad checksum.
func DeriveAccountKey(mnemonic string) (*HDKey, error) {
	root, err := RootKeyFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	defer root.Zero()
	return root.DerivePath(PurposeCIP1852, CoinTypeADA, bip32.FirstHardenedChild+0)
}

// Deriver derives payment keys and addresses below an account key.
// All methods are pure functions of their inputs.
type Deriver struct {
	network types.Network
}

// NewDeriver creates a deriver for the given network.
func NewDeriver(network types.Network) *Deriver {
	return &Deriver{network: network}
}

// Network returns the network addresses are encoded for.
func (d *Deriver) Network() types.Network {
	return d.network
}

// PaymentKey derives account/0/0, the key that funds and signs anchors.
func (d *Deriver) PaymentKey(account *HDKey) (*HDKey, error) {
	return account.DerivePath(RoleExternal, 0)
}

// StakingKey derives account/2/0. It only contributes the address stake credential.
func (d *Deriver) StakingKey(account *HDKey) (*HDKey, error) {
	return account.DerivePath(RoleStaking, 0)
}

// BaseAddress derives the funding base address (payment + stake credential).
func (d *Deriver) BaseAddress(account *HDKey) (types.Address, error) {
	payment, err := d.PaymentKey(account)
	if err != nil {
		return types.Address{}, fmt.Errorf("payment key: %w", err)
	}
	defer payment.Zero()
	staking, err := d.StakingKey(account)
	if err != nil {
		return types.Address{}, fmt.Errorf("staking key: %w", err)
	}
	defer staking.Zero()
	return types.NewBaseAddress(d.network, payment.KeyHash(), staking.KeyHash()), nil
}

// EnterpriseAddress returns the payment-only address of key.
func (d *Deriver) EnterpriseAddress(key *HDKey) types.Address {
	return types.NewEnterpriseAddress(d.network, key.KeyHash())
}

// ChildPaymentKey derives the bulk child key for index at account/0/(index+1).
// The same account and index always yield the same key.
func (d *Deriver) ChildPaymentKey(account *HDKey, index uint32) (*HDKey, error) {
	if index > MaxChildIndex {
		return nil, fmt.Errorf("child index %d out of range", index)
	}
	return account.DerivePath(RoleExternal, index+1)
}

// ChildAddresses derives n enterprise addresses, one per bulk item, in order.
func (d *Deriver) ChildAddresses(account *HDKey, n int) ([]types.Address, error) {
	if n < 0 || uint64(n) > uint64(MaxChildIndex)+1 {
		return nil, fmt.Errorf("child address count %d out of range", n)
	}
	addrs := make([]types.Address, 0, n)
	for i := 0; i < n; i++ {
		child, err := d.ChildPaymentKey(account, uint32(i))
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, d.EnterpriseAddress(child))
		child.Zero()
	}
	return addrs, nil
}
