// Package config defines the YAML configuration model for the Meridian
// gateway and the machinery around it: loading with defaults and
// validation, environment variable overrides (MERIDIAN_*), and a debounced
// file watcher for hot-reloading provider tuning at runtime.
//
// Providers that require authentication but hold no valid API keys are
// excluded while loading, so the engine never has to re-check credential
// presence per request.
package config
