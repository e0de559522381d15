package config

import (
	"fmt"
	"strings"
)

// knownFormats is the set of wire-format tags the adapter layer accepts.
var knownFormats = map[string]bool{
	"openai":     true,
	"gemini":     true,
	"cohere":     true,
	"query_get":  true,
	"cloudflare": true,
}

// knownStoreBackends is the set of transcript store implementations.
var knownStoreBackends = map[string]bool{
	"memory": true,
	"sqlite": true,
}

// Validate checks a configuration for structural errors. It is called
// after defaults are applied, so zero values for defaulted fields never
// reach it.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Engine.ConsecutiveFailureLimit < 1 {
		errs = append(errs, "engine.consecutive_failure_limit must be at least 1")
	}

	for name, p := range cfg.Providers {
		if p.Format == "" {
			errs = append(errs, fmt.Sprintf("providers.%s: format is required", name))
		} else if !knownFormats[p.Format] {
			errs = append(errs, fmt.Sprintf("providers.%s: unknown format %q", name, p.Format))
		}

		if p.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("providers.%s: endpoint is required", name))
		}

		if p.Format == "cloudflare" && !strings.Contains(p.Endpoint, "{account_id}") {
			errs = append(errs, fmt.Sprintf("providers.%s: cloudflare endpoint must contain {account_id}", name))
		}

		if len(p.APIKeys) > MaxAPIKeys {
			errs = append(errs, fmt.Sprintf("providers.%s: at most %d api_keys are supported", name, MaxAPIKeys))
		}

		if p.TimeoutSeconds < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s: timeout_seconds must not be negative", name))
		}

		if p.Priority < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s: priority must not be negative", name))
		}
	}

	if !knownStoreBackends[cfg.Store.Backend] {
		errs = append(errs, fmt.Sprintf("store.backend: unknown backend %q", cfg.Store.Backend))
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.Path == "" {
		errs = append(errs, "store.path is required for the sqlite backend")
	}

	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("telemetry.logging.level: unknown level %q", cfg.Telemetry.Logging.Level))
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("telemetry.logging.format: unknown format %q", cfg.Telemetry.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
