package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CERTANCHOR_LOG_LEVEL.
const EnvPrefix = "CERTANCHOR"

// ErrSecretInFile is returned when a secret is set in the config file.
var ErrSecretInFile = errors.New("secret must be supplied via environment")

// secretKeys may only come from the environment.
var secretKeys = []string{"wallet.mnemonic", "provider.project_id"}

// Options controls Load.
type Options struct {
	// ConfigFile overrides <datadir>/certanchor.conf.
	ConfigFile string
	// Flags, if set, are bound with BindFlags.
	Flags *pflag.FlagSet
	// Overrides take precedence over every other source.
	Overrides map[string]any
}

// Load builds the configuration: defaults, then the config file, then the
// environment, then changed flags, then overrides.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultMainnet())
	// Provider URL defaults per network after unmarshal.
	v.SetDefault("provider.base_url", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		if err := BindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	path := opts.ConfigFile
	if path == "" {
		path = v.GetString("config")
	}
	explicit := path != ""
	if path == "" {
		path = filepath.Join(v.GetString("datadir"), ConfigFileName)
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case !explicit && errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	for _, key := range secretKeys {
		if v.InConfig(key) {
			return nil, fmt.Errorf("%w: %s (use %s)", ErrSecretInFile, key, EnvName(key))
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Network = NetworkType(strings.ToLower(string(cfg.Network)))
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = DefaultProviderURL(cfg.Network)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("network", string(d.Network))
	v.SetDefault("datadir", d.DataDir)

	v.SetDefault("provider.base_url", d.Provider.BaseURL)
	v.SetDefault("provider.project_id", "")
	v.SetDefault("provider.read_timeout", d.Provider.ReadTimeout)
	v.SetDefault("provider.submit_timeout", d.Provider.SubmitTimeout)
	v.SetDefault("provider.rate_limit", d.Provider.RateLimit)
	v.SetDefault("provider.burst", d.Provider.Burst)

	v.SetDefault("wallet.mnemonic", "")
	v.SetDefault("wallet.address", "")

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", d.Store.MaxConns)
	v.SetDefault("store.min_conns", d.Store.MinConns)
	v.SetDefault("store.conn_max_lifetime", d.Store.ConnMaxLifetime)

	v.SetDefault("lock.backend", d.Lock.Backend)
	v.SetDefault("lock.redis_addr", d.Lock.RedisAddr)
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", d.Lock.RedisDB)
	v.SetDefault("lock.ttl", d.Lock.TTL)
	v.SetDefault("lock.timeout", d.Lock.Timeout)

	v.SetDefault("anchor.ttl_window", d.Anchor.TTLWindow)
	v.SetDefault("anchor.max_rebuilds", d.Anchor.MaxRebuilds)
	v.SetDefault("anchor.max_metadata_size", d.Anchor.MaxMetadataSize)
	v.SetDefault("anchor.rebuild_delay", d.Anchor.RebuildDelay)
	v.SetDefault("anchor.protocol_file", "")

	v.SetDefault("reconcile.enabled", d.Reconcile.Enabled)
	v.SetDefault("reconcile.interval", d.Reconcile.Interval)
	v.SetDefault("reconcile.run_on_start", d.Reconcile.RunOnStart)
	v.SetDefault("reconcile.tenant_concurrency", d.Reconcile.TenantConcurrency)
	v.SetDefault("reconcile.max_in_flight", d.Reconcile.MaxInFlight)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", "")
	v.SetDefault("log.json", d.Log.JSON)
}

// WriteDefaultConfig writes a commented default config file for network.
func WriteDefaultConfig(path string, network NetworkType) error {
	d := Default(network)
	content := fmt.Sprintf(`# CertAnchor configuration (%s)
#
# Precedence: defaults < this file < CERTANCHOR_* environment < flags.
# Secrets are never read from this file. Set them in the environment:
#   %s
#   %s

network = %q

# Chain provider
provider.base_url = %q
provider.read_timeout = %q
provider.submit_timeout = %q
provider.rate_limit = %g
provider.burst = %d

# Base address expected from the mnemonic (optional)
# wallet.address = "addr1..."

# Record store: badger, memory or postgres
store.backend = %q
# store.dsn = "postgres://certanchor@localhost:5432/certanchor"
store.max_conns = %d

# Wallet lock: local or redis
lock.backend = %q
lock.redis_addr = %q
lock.ttl = %q
lock.timeout = %q

# Transaction building
anchor.ttl_window = %d
anchor.max_rebuilds = %d
anchor.max_metadata_size = %d
anchor.rebuild_delay = %q

# Confirmation reconciliation
reconcile.enabled = %t
reconcile.interval = %q
reconcile.run_on_start = %t
reconcile.tenant_concurrency = %d
reconcile.max_in_flight = %d

# Prometheus metrics
metrics.enabled = %t
metrics.listen = %q

# Logging: debug, info, warn, error
log.level = %q
log.json = %t
`,
		network, EnvName("wallet.mnemonic"), EnvName("provider.project_id"),
		d.Network,
		d.Provider.BaseURL, d.Provider.ReadTimeout.String(), d.Provider.SubmitTimeout.String(), d.Provider.RateLimit, d.Provider.Burst,
		d.Store.Backend, d.Store.MaxConns,
		d.Lock.Backend, d.Lock.RedisAddr, d.Lock.TTL.String(), d.Lock.Timeout.String(),
		d.Anchor.TTLWindow, d.Anchor.MaxRebuilds, d.Anchor.MaxMetadataSize, d.Anchor.RebuildDelay.String(),
		d.Reconcile.Enabled, d.Reconcile.Interval.String(), d.Reconcile.RunOnStart, d.Reconcile.TenantConcurrency, d.Reconcile.MaxInFlight,
		d.Metrics.Enabled, d.Metrics.Listen,
		d.Log.Level, d.Log.JSON,
	)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(content), 0600)
}
