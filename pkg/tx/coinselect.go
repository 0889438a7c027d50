package tx

import (
	"fmt"

	"github.com/certledger/certanchor/pkg/types"
)

// SelectLargestUTXO returns the single largest lovelace-only UTXO. Outputs
// carrying native assets are skipped: anchor transactions pay out lovelace
// only, so spending one would not balance. Ties keep the first one seen so
// selection is stable for a given provider ordering.
func SelectLargestUTXO(utxos []types.UTXO) (types.UTXO, error) {
	var (
		best  types.UTXO
		found bool
	)
	for _, u := range utxos {
		if u.HasAssets {
			continue
		}
		if !found || u.Amount > best.Amount {
			best, found = u, true
		}
	}
	if !found {
		if len(utxos) > 0 {
			return types.UTXO{}, fmt.Errorf("%w: all %d carry native assets", ErrNoUTXOs, len(utxos))
		}
		return types.UTXO{}, ErrNoUTXOs
	}
	return best, nil
}
