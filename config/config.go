// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol parameters: ledger rules per network, see protocol.go
//   - Engine settings: runtime configuration, can vary per deployment
//
// Settings come from defaults, the certanchor.conf TOML file in the
// data directory, CERTANCHOR_* environment variables and command-line flags,
// in increasing precedence. Secrets are read from the environment only.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/certledger/certanchor/pkg/types"
)

// NetworkType identifies the ledger network.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Preprod NetworkType = "preprod"
	Preview NetworkType = "preview"
)

// Ledger returns the address network of n.
func (n NetworkType) Ledger() types.Network {
	if n == Mainnet {
		return types.Mainnet
	}
	return types.Testnet
}

// Config holds engine runtime configuration.
type Config struct {
	Network NetworkType `mapstructure:"network"`
	DataDir string      `mapstructure:"datadir"`

	Provider  ProviderConfig  `mapstructure:"provider"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Store     StoreConfig     `mapstructure:"store"`
	Lock      LockConfig      `mapstructure:"lock"`
	Anchor    AnchorConfig    `mapstructure:"anchor"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// ProviderConfig holds chain provider settings.
type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// ProjectID is the provider credential (env only).
	ProjectID     string        `mapstructure:"project_id"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	Burst         int           `mapstructure:"burst"`
}

// WalletConfig holds the funding wallet.
type WalletConfig struct {
	// Mnemonic is the funding phrase (env only, never logged).
	Mnemonic string `mapstructure:"mnemonic"`
	// Address, if set, must be the base address derived from Mnemonic.
	Address string `mapstructure:"address"`
}

// Store backends.
const (
	StoreBadger   = "badger"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// StoreConfig selects where tenant records live.
type StoreConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// LockConfig selects the wallet lock.
type LockConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// AnchorConfig tunes transaction building.
type AnchorConfig struct {
	TTLWindow       uint64 `mapstructure:"ttl_window"`
	MaxRebuilds     int    `mapstructure:"max_rebuilds"`
	MaxMetadataSize int    `mapstructure:"max_metadata_size"`
	// RebuildDelay is the pause before rebuilding a transaction whose
	// input the ledger reported as spent.
	RebuildDelay time.Duration `mapstructure:"rebuild_delay"`
	// ProtocolFile overrides the built-in protocol parameters.
	ProtocolFile string `mapstructure:"protocol_file"`
}

// ReconcileConfig schedules confirmation reconciliation.
type ReconcileConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Interval          time.Duration `mapstructure:"interval"`
	RunOnStart        bool          `mapstructure:"run_on_start"`
	TenantConcurrency int           `mapstructure:"tenant_concurrency"`
	MaxInFlight       int64         `mapstructure:"max_in_flight"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.certanchor
//	macOS:   ~/Library/Application Support/CertAnchor
//	Windows: %APPDATA%\CertAnchor
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".certanchor"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "CertAnchor")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "CertAnchor")
		}
		return filepath.Join(home, "AppData", "Roaming", "CertAnchor")
	default:
		return filepath.Join(home, ".certanchor")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StoreDir returns the tenant record database directory.
func (c *Config) StoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "store")
}

// JournalDir returns the recovery journal database directory.
func (c *Config) JournalDir() string {
	return filepath.Join(c.NetworkDataDir(), "journal")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, ConfigFileName)
}
