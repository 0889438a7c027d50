package config

import "time"

// ConfigFileName is the config file inside the data directory.
const ConfigFileName = "certanchor.conf"

// Provider endpoints per network.
const (
	MainnetProviderURL = "https://cardano-mainnet.blockfrost.io/api/v0"
	PreprodProviderURL = "https://cardano-preprod.blockfrost.io/api/v0"
	PreviewProviderURL = "https://cardano-preview.blockfrost.io/api/v0"
)

// DefaultProviderURL returns the provider endpoint of network.
func DefaultProviderURL(network NetworkType) string {
	switch network {
	case Preprod:
		return PreprodProviderURL
	case Preview:
		return PreviewProviderURL
	default:
		return MainnetProviderURL
	}
}

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Provider: ProviderConfig{
			BaseURL:       MainnetProviderURL,
			ReadTimeout:   10 * time.Second,
			SubmitTimeout: 30 * time.Second,
			RateLimit:     10,
			Burst:         50,
		},
		Store: StoreConfig{
			Backend:         StoreBadger,
			MaxConns:        10,
			MinConns:        1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Lock: LockConfig{
			Backend:   LockLocal,
			RedisAddr: "localhost:6379",
			TTL:       2 * time.Minute,
			Timeout:   time.Minute,
		},
		Anchor: AnchorConfig{
			TTLWindow:       7200,
			MaxRebuilds:     2,
			MaxMetadataSize: 16384,
			RebuildDelay:    5 * time.Second,
		},
		Reconcile: ReconcileConfig{
			Enabled:           true,
			Interval:          24 * time.Hour,
			TenantConcurrency: 1,
			MaxInFlight:       4,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultPreprod returns the default configuration for the preprod testnet.
func DefaultPreprod() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Preprod
	cfg.Provider.BaseURL = PreprodProviderURL
	cfg.Metrics.Listen = "127.0.0.1:9465"
	return cfg
}

// DefaultPreview returns the default configuration for the preview testnet.
func DefaultPreview() *Config {
	cfg := DefaultPreprod()
	cfg.Network = Preview
	cfg.Provider.BaseURL = PreviewProviderURL
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Preprod:
		return DefaultPreprod()
	case Preview:
		return DefaultPreview()
	default:
		return DefaultMainnet()
	}
}
