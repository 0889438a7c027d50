package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/certledger/certanchor/pkg/tx"
)

// Protocol holds the ledger parameters the builder relies on for a network.
// These are not runtime settings; a network upgrade that changes them needs
// a new protocol file.
type Protocol struct {
	Network NetworkType       `json:"network"`
	Params  tx.ProtocolParams `json:"params"`
}

// ProtocolFor returns the built-in protocol parameters of network.
func ProtocolFor(network NetworkType) *Protocol {
	return &Protocol{Network: network, Params: tx.DefaultProtocolParams()}
}

// LoadProtocol reads a protocol file and checks it belongs to network.
func LoadProtocol(path string, network NetworkType) (*Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protocol file: %w", err)
	}
	var p Protocol
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse protocol file: %w", err)
	}
	if p.Network != network {
		return nil, fmt.Errorf("protocol file is for %q, not %q", p.Network, network)
	}
	if err := p.Params.Validate(); err != nil {
		return nil, fmt.Errorf("protocol file: %w", err)
	}
	return &p, nil
}

// Save writes p as indented JSON.
func (p *Protocol) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode protocol: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ProtocolParams resolves the parameters for cfg: the protocol file when
// configured, the built-in set otherwise.
func (c *Config) ProtocolParams() (tx.ProtocolParams, error) {
	if c.Anchor.ProtocolFile == "" {
		return ProtocolFor(c.Network).Params, nil
	}
	p, err := LoadProtocol(c.Anchor.ProtocolFile, c.Network)
	if err != nil {
		return tx.ProtocolParams{}, err
	}
	return p.Params, nil
}
