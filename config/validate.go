package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/certledger/certanchor/internal/keys"
	"github.com/certledger/certanchor/internal/log"
)

// ErrMissingSecret is returned by RequireSecrets.
var ErrMissingSecret = errors.New("missing secret")

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Network {
	case Mainnet, Preprod, Preview:
	default:
		return fmt.Errorf("network must be %q, %q or %q", Mainnet, Preprod, Preview)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir is required")
	}

	u, err := url.Parse(cfg.Provider.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("provider.base_url %q is not an http(s) URL", cfg.Provider.BaseURL)
	}
	if cfg.Provider.ReadTimeout < 0 || cfg.Provider.SubmitTimeout < 0 {
		return fmt.Errorf("provider timeouts must not be negative")
	}
	if cfg.Provider.RateLimit < 0 || cfg.Provider.Burst < 0 {
		return fmt.Errorf("provider rate limit must not be negative")
	}

	switch cfg.Store.Backend {
	case StoreBadger, StoreMemory:
	case StorePostgres:
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the %s backend", StorePostgres)
		}
		if cfg.Store.MinConns > cfg.Store.MaxConns {
			return fmt.Errorf("store.min_conns exceeds store.max_conns")
		}
	default:
		return fmt.Errorf("store.backend must be %s, %s or %s", StoreBadger, StoreMemory, StorePostgres)
	}

	switch cfg.Lock.Backend {
	case LockLocal:
	case LockRedis:
		if _, _, err := net.SplitHostPort(cfg.Lock.RedisAddr); err != nil {
			return fmt.Errorf("lock.redis_addr: %w", err)
		}
		if cfg.Lock.TTL <= 0 {
			return fmt.Errorf("lock.ttl must be positive")
		}
	default:
		return fmt.Errorf("lock.backend must be %s or %s", LockLocal, LockRedis)
	}
	if cfg.Lock.Timeout < 0 {
		return fmt.Errorf("lock.timeout must not be negative")
	}

	if cfg.Anchor.TTLWindow == 0 {
		return fmt.Errorf("anchor.ttl_window must be positive")
	}
	if cfg.Anchor.MaxRebuilds < 0 {
		return fmt.Errorf("anchor.max_rebuilds must not be negative")
	}
	if cfg.Anchor.MaxMetadataSize <= 0 {
		return fmt.Errorf("anchor.max_metadata_size must be positive")
	}
	if cfg.Anchor.RebuildDelay < 0 {
		return fmt.Errorf("anchor.rebuild_delay must not be negative")
	}

	if cfg.Reconcile.Enabled && cfg.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile.interval must be positive")
	}
	if cfg.Reconcile.TenantConcurrency < 0 || cfg.Reconcile.MaxInFlight < 0 {
		return fmt.Errorf("reconcile concurrency must not be negative")
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen: %w", err)
		}
	}
	if !log.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not a valid level", cfg.Log.Level)
	}
	return nil
}

// RequireSecrets checks the secrets needed to anchor and that the configured
// address, if any, belongs to the mnemonic.
func RequireSecrets(cfg *Config) error {
	if cfg.Wallet.Mnemonic == "" {
		return fmt.Errorf("%w: set %s", ErrMissingSecret, EnvName("wallet.mnemonic"))
	}
	if cfg.Provider.ProjectID == "" {
		return fmt.Errorf("%w: set %s", ErrMissingSecret, EnvName("provider.project_id"))
	}
	if !keys.ValidateMnemonic(cfg.Wallet.Mnemonic) {
		return fmt.Errorf("wallet mnemonic is invalid")
	}
	if cfg.Wallet.Address != "" {
		ok, err := keys.VerifyWalletAddress(cfg.Wallet.Mnemonic, cfg.Network.Ledger(), cfg.Wallet.Address)
		if err != nil {
			return fmt.Errorf("verify wallet address: %w", err)
		}
		if !ok {
			return fmt.Errorf("wallet.address does not match the mnemonic")
		}
	}
	return nil
}
