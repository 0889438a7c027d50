package types

import "fmt"

// Outpoint names an output by its transaction hash and position.
type Outpoint struct {
	TxID  Hash   `json:"tx_hash"`
	Index uint32 `json:"output_index"`
}

func (o Outpoint) IsZero() bool { return o == Outpoint{} }

// String renders the outpoint as "<txhash>#<index>".
func (o Outpoint) String() string {
	return fmt.Sprintf("%s#%d", o.TxID, o.Index)
}

// UTXO is an unspent output at the wallet address. Amount is in lovelace.
// HasAssets marks outputs that also hold native tokens; a lovelace-only
// transaction cannot spend them.
type UTXO struct {
	Outpoint
	Amount    uint64 `json:"amount"`
	HasAssets bool   `json:"has_assets,omitempty"`
}
