package config

import "time"

// Config is the root configuration structure for the Meridian gateway.
type Config struct {
	// Server contains HTTP serving-layer configuration.
	Server ServerConfig `yaml:"server"`

	// Engine contains rotation and failover engine settings.
	Engine EngineConfig `yaml:"engine"`

	// Providers maps provider names to their upstream configuration.
	Providers map[string]ProviderConfig `yaml:"providers"`

	// ModelCache contains model discovery cache settings.
	ModelCache ModelCacheConfig `yaml:"model_cache"`

	// Store contains chat transcript store settings.
	Store StoreConfig `yaml:"store"`

	// Telemetry contains logging and metrics settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP serving layer.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out a response.
	// Default: 120s (upstream calls can be slow)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EngineConfig contains the rotation and failover engine settings.
type EngineConfig struct {
	// KeyRotationEnabled controls credential rotation on key-level errors.
	// Default: true
	KeyRotationEnabled *bool `yaml:"key_rotation_enabled"`

	// ProviderRotationEnabled controls failover to lower-priority providers.
	// Default: true
	ProviderRotationEnabled *bool `yaml:"provider_rotation_enabled"`

	// ConsecutiveFailureLimit is the number of consecutive failures after
	// which a provider is flagged for 30 minutes regardless of error kind.
	// Default: 5
	ConsecutiveFailureLimit int `yaml:"consecutive_failure_limit"`
}

// KeyRotation reports the effective key-rotation setting.
func (e EngineConfig) KeyRotation() bool {
	return e.KeyRotationEnabled == nil || *e.KeyRotationEnabled
}

// ProviderRotation reports the effective provider-rotation setting.
func (e EngineConfig) ProviderRotation() bool {
	return e.ProviderRotationEnabled == nil || *e.ProviderRotationEnabled
}

// ProviderConfig contains configuration for a single upstream provider.
type ProviderConfig struct {
	// Enabled controls whether the provider participates in rotation.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Priority orders candidate selection; lower is tried first.
	Priority int `yaml:"priority"`

	// Format selects the wire-format adapter
	// (openai, gemini, cohere, query_get, cloudflare).
	Format string `yaml:"format"`

	// Endpoint is the chat-completion URL. For the cloudflare format it
	// contains an "{account_id}" placeholder.
	Endpoint string `yaml:"endpoint"`

	// ModelsEndpoint is the optional model-discovery URL.
	ModelsEndpoint string `yaml:"models_endpoint"`

	// Model is the default model identifier.
	Model string `yaml:"model"`

	// AccountID is the account identifier for templated endpoints.
	AccountID string `yaml:"account_id"`

	// AuthType declares how the credential is sent ("bearer", "key_url",
	// or "" for providers that need no authentication).
	AuthType string `yaml:"auth_type"`

	// APIKeys holds up to MaxAPIKeys credentials, each independently
	// rate-tracked by the engine. Empty entries are dropped at load time.
	APIKeys []string `yaml:"api_keys"`

	// TimeoutSeconds bounds each upstream call.
	// Default: 60
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MaxTokens caps the completion length when non-zero.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the sampling temperature. Nil means provider default.
	Temperature *float64 `yaml:"temperature"`
}

// MaxAPIKeys is the per-provider credential slot limit.
const MaxAPIKeys = 3

// IsEnabled reports the effective enabled setting.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Timeout returns the per-request timeout as a duration.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds > 0 {
		return time.Duration(p.TimeoutSeconds) * time.Second
	}
	return DefaultProviderTimeout
}

// ValidKeys returns the configured credentials with empty slots dropped,
// capped at MaxAPIKeys.
func (p ProviderConfig) ValidKeys() []string {
	keys := make([]string, 0, len(p.APIKeys))
	for _, key := range p.APIKeys {
		if key != "" {
			keys = append(keys, key)
		}
		if len(keys) == MaxAPIKeys {
			break
		}
	}
	return keys
}

// ModelCacheConfig contains model discovery cache settings.
type ModelCacheConfig struct {
	// SnapshotPath is where the cache snapshot is persisted across
	// restarts. Empty disables persistence.
	// Default: "data/model_cache.json"
	SnapshotPath string `yaml:"snapshot_path"`

	// RefreshInterval is the background refresh period.
	// Default: 30m
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// StoreConfig contains chat transcript store settings.
type StoreConfig struct {
	// Backend selects the storage implementation ("memory" or "sqlite").
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Path is the SQLite database file path.
	// Default: "data/chats.db"
	Path string `yaml:"path"`
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format ("json" or "text").
	// Default: "text"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled controls whether /metrics is exposed.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Namespace is the metric name prefix.
	// Default: "meridian"
	Namespace string `yaml:"namespace"`
}

// IsEnabled reports the effective metrics setting.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}
