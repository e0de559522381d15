package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Engine defaults
	DefaultConsecutiveFailureLimit = 5

	// Provider defaults
	DefaultProviderTimeout = 60 * time.Second

	// Model cache defaults
	DefaultSnapshotPath    = "data/model_cache.json"
	DefaultRefreshInterval = 30 * time.Minute

	// Store defaults
	DefaultStoreBackend = "memory"
	DefaultStorePath    = "data/chats.db"

	// Telemetry defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultMetricsNamespace = "meridian"
)

// ApplyDefaults fills zero-valued configuration fields with defaults.
// It is called by LoadConfig before validation.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Engine.ConsecutiveFailureLimit == 0 {
		cfg.Engine.ConsecutiveFailureLimit = DefaultConsecutiveFailureLimit
	}

	if cfg.ModelCache.SnapshotPath == "" {
		cfg.ModelCache.SnapshotPath = DefaultSnapshotPath
	}
	if cfg.ModelCache.RefreshInterval == 0 {
		cfg.ModelCache.RefreshInterval = DefaultRefreshInterval
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
}
