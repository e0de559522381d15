package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It expands ${VAR} references in API keys, applies default values, prunes
// providers that require auth but hold no valid credentials, and validates
// the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	expandKeyReferences(&cfg)
	ApplyDefaults(&cfg)
	pruneProviders(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the naming
// convention MERIDIAN_SECTION_FIELD (e.g. MERIDIAN_SERVER_LISTEN_ADDRESS)
// and always take precedence over file-based configuration.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// expandKeyReferences resolves ${VAR} references inside api_keys values so
// credentials can live in the environment instead of the config file.
func expandKeyReferences(cfg *Config) {
	for name, p := range cfg.Providers {
		for i, key := range p.APIKeys {
			p.APIKeys[i] = os.ExpandEnv(key)
		}
		cfg.Providers[name] = p
	}
}

// pruneProviders drops providers that declare an auth requirement but hold
// zero valid credentials. The engine then never has to re-check credential
// presence at request time.
func pruneProviders(cfg *Config) {
	for name, p := range cfg.Providers {
		if p.AuthType == "" {
			continue
		}
		if len(p.ValidKeys()) == 0 {
			slog.Warn("provider disabled: no valid API keys configured", "provider", name)
			delete(cfg.Providers, name)
		}
	}
}

// applyEnvOverrides applies MERIDIAN_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("MERIDIAN_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("MERIDIAN_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("MERIDIAN_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("MERIDIAN_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	if val := os.Getenv("MERIDIAN_ENGINE_KEY_ROTATION_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Engine.KeyRotationEnabled = &b
		}
	}
	if val := os.Getenv("MERIDIAN_ENGINE_PROVIDER_ROTATION_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Engine.ProviderRotationEnabled = &b
		}
	}
	if val := os.Getenv("MERIDIAN_ENGINE_CONSECUTIVE_FAILURE_LIMIT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Engine.ConsecutiveFailureLimit = n
		}
	}

	if val := os.Getenv("MERIDIAN_MODEL_CACHE_SNAPSHOT_PATH"); val != "" {
		cfg.ModelCache.SnapshotPath = val
	}
	if val := os.Getenv("MERIDIAN_MODEL_CACHE_REFRESH_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.ModelCache.RefreshInterval = d
		}
	}

	if val := os.Getenv("MERIDIAN_STORE_BACKEND"); val != "" {
		cfg.Store.Backend = val
	}
	if val := os.Getenv("MERIDIAN_STORE_PATH"); val != "" {
		cfg.Store.Path = val
	}

	if val := os.Getenv("MERIDIAN_LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("MERIDIAN_LOG_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
}
