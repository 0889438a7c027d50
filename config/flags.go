package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"config":             "config",
	"network":            "network",
	"datadir":            "datadir",
	"provider-url":       "provider.base_url",
	"store":              "store.backend",
	"store-dsn":          "store.dsn",
	"lock":               "lock.backend",
	"redis-addr":         "lock.redis_addr",
	"reconcile-interval": "reconcile.interval",
	"reconcile-on-start": "reconcile.run_on_start",
	"metrics":            "metrics.enabled",
	"metrics-listen":     "metrics.listen",
	"log-level":          "log.level",
	"log-file":           "log.file",
	"log-json":           "log.json",
}

// RegisterFlags adds the config flags to fs. Only flags that are set on the
// command line override other sources.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultMainnet()
	fs.String("config", "", "Config file (default <datadir>/"+ConfigFileName+")")
	fs.String("network", string(d.Network), "Network: mainnet, preprod, preview")
	fs.String("datadir", d.DataDir, "Data directory")
	fs.String("provider-url", "", "Chain provider base URL (default per network)")
	fs.String("store", d.Store.Backend, "Record store: badger, memory, postgres")
	fs.String("store-dsn", "", "PostgreSQL connection string")
	fs.String("lock", d.Lock.Backend, "Wallet lock: local, redis")
	fs.String("redis-addr", d.Lock.RedisAddr, "Redis address for the wallet lock")
	fs.Duration("reconcile-interval", d.Reconcile.Interval, "Confirmation reconcile interval")
	fs.Bool("reconcile-on-start", d.Reconcile.RunOnStart, "Run a reconcile pass at startup")
	fs.Bool("metrics", d.Metrics.Enabled, "Serve Prometheus metrics")
	fs.String("metrics-listen", d.Metrics.Listen, "Metrics listen address")
	fs.String("log-level", d.Log.Level, "Log level: debug, info, warn, error")
	fs.String("log-file", "", "Log file path")
	fs.Bool("log-json", d.Log.JSON, "Log in JSON format")
}

// BindFlags binds the registered flags present in fs to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// EnsureDataDirs creates the data directories for cfg.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.JournalDir(),
		cfg.LogsDir(),
	}
	if cfg.Store.Backend == StoreBadger {
		dirs = append(dirs, cfg.StoreDir())
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
