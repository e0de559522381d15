// Meridian is a multi-provider LLM request gateway with key rotation
// and automatic failover.
//
// It exposes an OpenAI-compatible completion endpoint and routes each
// request across a prioritized pool of upstream providers, rotating
// API keys on rate limits, flagging failing providers, and falling
// back to the next candidate:
//   - Weighted key load balancing across up to three keys per provider
//   - Error classification and per-kind remediation (rotate, flag, cool down)
//   - Five upstream wire formats (openai, gemini, cohere, query_get, cloudflare)
//   - Periodic model discovery with a persisted cache
//   - Chat transcript persistence (memory or SQLite)
//
// Usage:
//
//	# Start the gateway with default configuration
//	meridian run
//
//	# Start with a custom configuration file
//	meridian run --config /path/to/config.yaml
//
//	# Send a test message through the rotation engine
//	meridian test
//
//	# Test one provider directly
//	meridian test openrouter
//
//	# Inspect a running gateway
//	meridian status
//	meridian keys openrouter
package main

func main() {
	Execute()
}
