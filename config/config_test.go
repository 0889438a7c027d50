package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certledger/certanchor/internal/keys"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func writeConf(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CERTANCHOR_DATADIR", dir)

	cfg, err := Load(Options{})
	require.NoError(t, err)

	want := DefaultMainnet()
	want.DataDir = dir
	assert.Equal(t, want, cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CERTANCHOR_DATADIR", dir)
	writeConf(t, dir, `
network = "preprod"
store.backend = "memory"
lock.timeout = "5s"
anchor.ttl_window = 600
reconcile.interval = "1h"
log.level = "debug"
`)

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, Preprod, cfg.Network)
	assert.Equal(t, PreprodProviderURL, cfg.Provider.BaseURL)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, 5*time.Second, cfg.Lock.Timeout)
	assert.Equal(t, uint64(600), cfg.Anchor.TTLWindow)
	assert.Equal(t, time.Hour, cfg.Reconcile.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CERTANCHOR_DATADIR", dir)
	writeConf(t, dir, "log.level = \"debug\"\nstore.backend = \"memory\"\n")
	t.Setenv("CERTANCHOR_LOG_LEVEL", "warn")
	t.Setenv("CERTANCHOR_STORE_BACKEND", "badger")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level=error"}))

	cfg, err := Load(Options{Flags: fs})
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level, "flag wins over env")
	assert.Equal(t, StoreBadger, cfg.Store.Backend, "env wins over file")
}

func TestLoad_UnchangedFlagsDoNotOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CERTANCHOR_DATADIR", dir)
	writeConf(t, dir, "network = \"preview\"\n")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(Options{Flags: fs})
	require.NoError(t, err)
	assert.Equal(t, Preview, cfg.Network)
	assert.Equal(t, PreviewProviderURL, cfg.Provider.BaseURL)
}

func TestLoad_SecretsFromEnvOnly(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CERTANCHOR_DATADIR", dir)

	t.Run("env", func(t *testing.T) {
		t.Setenv("CERTANCHOR_WALLET_MNEMONIC", testMnemonic)
		t.Setenv("CERTANCHOR_PROVIDER_PROJECT_ID", "mainnetabc")
		cfg, err := Load(Options{})
		require.NoError(t, err)
		assert.Equal(t, testMnemonic, cfg.Wallet.Mnemonic)
		assert.Equal(t, "mainnetabc", cfg.Provider.ProjectID)
	})

	for _, key := range secretKeys {
		t.Run(key, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "secret.conf")
			require.NoError(t, os.WriteFile(path, []byte(key+" = \"leaked\"\n"), 0600))
			_, err := Load(Options{ConfigFile: path})
			require.ErrorIs(t, err, ErrSecretInFile)
			assert.Contains(t, err.Error(), EnvName(key))
		})
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Setenv("CERTANCHOR_DATADIR", t.TempDir())
	_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "nope.conf")})
	require.Error(t, err)
}

func TestLoad_InvalidValue(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CERTANCHOR_DATADIR", dir)
	writeConf(t, dir, "store.backend = \"sqlite\"\n")

	_, err := Load(Options{})
	require.ErrorContains(t, err, "store.backend")
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	for _, network := range []NetworkType{Mainnet, Preprod, Preview} {
		t.Run(string(network), func(t *testing.T) {
			dir := t.TempDir()
			t.Setenv("CERTANCHOR_DATADIR", dir)
			require.NoError(t, WriteDefaultConfig(filepath.Join(dir, ConfigFileName), network))

			cfg, err := Load(Options{})
			require.NoError(t, err)
			want := Default(network)
			want.DataDir = dir
			assert.Equal(t, want, cfg)
		})
	}
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "CERTANCHOR_WALLET_MNEMONIC", EnvName("wallet.mnemonic"))
	assert.Equal(t, "CERTANCHOR_LOG_LEVEL", EnvName("log.level"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad network", func(c *Config) { c.Network = "testnet" }, "network"},
		{"no datadir", func(c *Config) { c.DataDir = "" }, "datadir"},
		{"bad provider url", func(c *Config) { c.Provider.BaseURL = "ftp://x" }, "provider.base_url"},
		{"negative timeout", func(c *Config) { c.Provider.ReadTimeout = -time.Second }, "timeouts"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = StorePostgres }, "store.dsn"},
		{"postgres conns", func(c *Config) {
			c.Store.Backend = StorePostgres
			c.Store.DSN = "postgres://localhost/certs"
			c.Store.MinConns = 20
		}, "min_conns"},
		{"unknown store", func(c *Config) { c.Store.Backend = "sqlite" }, "store.backend"},
		{"redis addr", func(c *Config) {
			c.Lock.Backend = LockRedis
			c.Lock.RedisAddr = "localhost"
		}, "lock.redis_addr"},
		{"redis ttl", func(c *Config) {
			c.Lock.Backend = LockRedis
			c.Lock.TTL = 0
		}, "lock.ttl"},
		{"unknown lock", func(c *Config) { c.Lock.Backend = "etcd" }, "lock.backend"},
		{"zero ttl window", func(c *Config) { c.Anchor.TTLWindow = 0 }, "ttl_window"},
		{"negative rebuilds", func(c *Config) { c.Anchor.MaxRebuilds = -1 }, "max_rebuilds"},
		{"negative rebuild delay", func(c *Config) { c.Anchor.RebuildDelay = -time.Second }, "rebuild_delay"},
		{"zero metadata size", func(c *Config) { c.Anchor.MaxMetadataSize = 0 }, "max_metadata_size"},
		{"zero interval", func(c *Config) { c.Reconcile.Interval = 0 }, "reconcile.interval"},
		{"interval ignored when disabled", func(c *Config) {
			c.Reconcile.Enabled = false
			c.Reconcile.Interval = 0
		}, ""},
		{"metrics listen", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Listen = "9464"
		}, "metrics.listen"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMainnet()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
	assert.Error(t, Validate(nil))
}

func TestRequireSecrets(t *testing.T) {
	cfg := DefaultPreprod()
	require.ErrorIs(t, RequireSecrets(cfg), ErrMissingSecret)

	cfg.Wallet.Mnemonic = testMnemonic
	require.ErrorIs(t, RequireSecrets(cfg), ErrMissingSecret)

	cfg.Provider.ProjectID = "preprodabc"
	require.NoError(t, RequireSecrets(cfg))

	w, err := keys.OpenWallet(testMnemonic, cfg.Network.Ledger())
	require.NoError(t, err)
	addr := w.Address().String()
	w.Zero()

	cfg.Wallet.Address = addr
	require.NoError(t, RequireSecrets(cfg))

	other, err := keys.OpenWallet(testMnemonic, Mainnet.Ledger())
	require.NoError(t, err)
	cfg.Wallet.Address = other.Address().String()
	other.Zero()
	require.ErrorContains(t, RequireSecrets(cfg), "does not match")

	cfg.Wallet.Address = ""
	cfg.Wallet.Mnemonic = "abandon abandon"
	require.ErrorContains(t, RequireSecrets(cfg), "invalid")
}

func TestDirs(t *testing.T) {
	cfg := DefaultPreprod()
	cfg.DataDir = t.TempDir()
	require.NoError(t, EnsureDataDirs(cfg))

	for _, dir := range []string{cfg.NetworkDataDir(), cfg.StoreDir(), cfg.JournalDir(), cfg.LogsDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(cfg.DataDir, "preprod", "store"), cfg.StoreDir())
	assert.Equal(t, filepath.Join(cfg.DataDir, ConfigFileName), cfg.ConfigFile())
}

func TestProtocol(t *testing.T) {
	cfg := DefaultPreview()
	params, err := cfg.ProtocolParams()
	require.NoError(t, err)
	assert.Equal(t, ProtocolFor(Preview).Params, params)

	p := ProtocolFor(Preview)
	p.Params.MinFeeA = 50
	path := filepath.Join(t.TempDir(), "protocol.json")
	require.NoError(t, p.Save(path))

	cfg.Anchor.ProtocolFile = path
	params, err = cfg.ProtocolParams()
	require.NoError(t, err)
	assert.Equal(t, uint64(50), params.MinFeeA)

	_, err = LoadProtocol(path, Mainnet)
	require.ErrorContains(t, err, "not \"mainnet\"")

	p.Params.MinUTxO = 0
	require.NoError(t, p.Save(path))
	_, err = LoadProtocol(path, Preview)
	require.ErrorContains(t, err, "min UTxO")
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CERTANCHOR_NETWORK", "preprod")

	cfg, err := Load(Options{Overrides: map[string]any{
		"datadir":       dir,
		"network":       "preview",
		"store.backend": StoreMemory,
	}})
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, Preview, cfg.Network)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
}
