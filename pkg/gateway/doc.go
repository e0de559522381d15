// Package gateway implements the provider rotation and failover engine.
//
// The engine owns a Registry of provider runtime state: per-provider
// priority, enablement, and quarantine flags, and per-credential usage
// counters, reputation weights, and rate-limit cooldowns. Each completion
// call walks the eligible providers in priority order, selects the
// least-loaded credential, dispatches through the provider's wire-format
// adapter, and applies kind-specific remediation on failure. The first
// success wins; a caller only ever receives a structured Outcome, never
// an adapter error.
//
// All shared state lives behind one registry mutex. The lock is never
// held across a network call: credential selection and usage recording
// happen in one critical section before dispatch, and outcome recording
// in another after it. Flag and cooldown expiry is lazy, evaluated
// against an injected clock at read time, so there is no background
// un-flagging goroutine and tests can drive time explicitly.
package gateway
