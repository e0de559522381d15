// Package providers contains the provider-facing building blocks of the
// gateway: the normalized request/outcome types shared by every component,
// the wire-format adapters that translate a normalized request into a
// provider-specific HTTP call, and the error classifier that maps
// heterogeneous upstream failure signals into a uniform taxonomy.
//
// Adapters are selected by the "format" field of a provider's configuration
// at load time. Each adapter implements the Adapter interface and is
// responsible for building the wire request, enforcing the configured
// timeout, extracting response content, and converting every failure path
// into a structured Outcome. Adapters never panic outward and never return
// a Go error for upstream failures; the only way an attempt fails is a
// well-formed unsuccessful Outcome.
package providers
