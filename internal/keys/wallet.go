package keys

import (
	"fmt"

	"github.com/certledger/certanchor/pkg/crypto"
	"github.com/certledger/certanchor/pkg/types"
)

// Wallet holds the key material for one build/sign operation. It must be
// zeroed by the caller as soon as the transaction is signed.
type Wallet struct {
	deriver *Deriver
	account *HDKey
	signer  *crypto.PrivateKey
	address types.Address
}

// OpenWallet derives the account, payment signer and funding base address.
func OpenWallet(mnemonic string, network types.Network) (*Wallet, error) {
	account, err := DeriveAccountKey(mnemonic)
	if err != nil {
		return nil, err
	}
	d := NewDeriver(network)

	payment, err := d.PaymentKey(account)
	if err != nil {
		account.Zero()
		return nil, fmt.Errorf("payment key: %w", err)
	}
	defer payment.Zero()

	signer, err := payment.Signer()
	if err != nil {
		account.Zero()
		return nil, fmt.Errorf("payment signer: %w", err)
	}

	addr, err := d.BaseAddress(account)
	if err != nil {
		account.Zero()
		signer.Zero()
		return nil, err
	}

	return &Wallet{deriver: d, account: account, signer: signer, address: addr}, nil
}

// Address returns the funding base address.
func (w *Wallet) Address() types.Address {
	return w.address
}

// Signer returns the payment key signer.
func (w *Wallet) Signer() crypto.Signer {
	return w.signer
}

// ChildAddresses derives one child address per bulk item.
func (w *Wallet) ChildAddresses(n int) ([]types.Address, error) {
	return w.deriver.ChildAddresses(w.account, n)
}

// Zero wipes all secrets held by the wallet.
func (w *Wallet) Zero() {
	if w.account != nil {
		w.account.Zero()
	}
	if w.signer != nil {
		w.signer.Zero()
	}
}

// VerifyWalletAddress reports whether the phrase derives the given funding
// address on the network.
func VerifyWalletAddress(mnemonic string, network types.Network, address string) (bool, error) {
	want, err := types.ParseAddress(address)
	if err != nil {
		return false, fmt.Errorf("parse wallet address: %w", err)
	}
	w, err := OpenWallet(mnemonic, network)
	if err != nil {
		return false, err
	}
	defer w.Zero()
	return w.Address() == want, nil
}
