package tx

import (
	"fmt"
	"math"
)

// DefaultTTLWindow is the number of slots past the tip a transaction stays valid.
const DefaultTTLWindow = 7200

// FeeBufferPercent is the safety margin added on top of the minimum fee.
const FeeBufferPercent = 10

// ProtocolParams are the ledger parameters the builder depends on.
type ProtocolParams struct {
	MinFeeA          uint64 `json:"min_fee_a"`
	MinFeeB          uint64 `json:"min_fee_b"`
	MinUTxO          uint64 `json:"min_utxo"`
	MaxTxSize        int    `json:"max_tx_size"`
	MaxValueSize     int    `json:"max_value_size"`
	CoinsPerUTxOByte uint64 `json:"coins_per_utxo_byte"`
	PoolDeposit      uint64 `json:"pool_deposit"`
	KeyDeposit       uint64 `json:"key_deposit"`
}

// DefaultProtocolParams returns the parameters in force on mainnet and the
// public test networks.
func DefaultProtocolParams() ProtocolParams {
	return ProtocolParams{
		MinFeeA:          44,
		MinFeeB:          155381,
		MinUTxO:          1_000_000,
		MaxTxSize:        16384,
		MaxValueSize:     5000,
		CoinsPerUTxOByte: 4310,
		PoolDeposit:      500_000_000,
		KeyDeposit:       2_000_000,
	}
}

// Validate checks the parameters are usable for building.
func (p ProtocolParams) Validate() error {
	if p.MinFeeA == 0 && p.MinFeeB == 0 {
		return fmt.Errorf("fee parameters must not both be zero")
	}
	if p.MinUTxO == 0 {
		return fmt.Errorf("min UTxO must be positive")
	}
	if p.MaxTxSize <= 0 {
		return fmt.Errorf("max tx size must be positive")
	}
	return nil
}

// LinearFee returns MinFeeA*size + MinFeeB.
func (p ProtocolParams) LinearFee(size int) uint64 {
	return p.MinFeeA*uint64(size) + p.MinFeeB
}

// ApplyFeeBuffer adds FeeBufferPercent to base, rounded down:
// 170000 -> 187000.
func ApplyFeeBuffer(base uint64) uint64 {
	buffer := base / 100 * FeeBufferPercent
	buffer += base % 100 * FeeBufferPercent / 100
	if base > math.MaxUint64-buffer {
		return math.MaxUint64
	}
	return base + buffer
}
