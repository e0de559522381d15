// Package telemetry groups the observability surface of the Meridian
// gateway.
//
// # Components
//
//   - logging: structured slog setup with credential redaction
//   - metrics: Prometheus metrics for requests, errors, failovers, and
//     provider health
//
// Both components are configured from the telemetry section of the
// gateway configuration and are cheap enough to leave on in production.
package telemetry
