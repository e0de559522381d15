package providers

import "time"

// Message represents a single message in a conversation.
// It is provider-agnostic and is transformed to provider-specific formats
// by the adapters.
type Message struct {
	// Role identifies the message sender (system, user, assistant)
	Role string `json:"role"`

	// Content is the message text content
	Content string `json:"content"`
}

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrorKind is one value from the fixed failure taxonomy. It drives the
// engine's remediation policy: key-level kinds trigger credential rotation,
// provider-level kinds trigger provider flagging.
type ErrorKind string

// Upstream and transport error kinds produced by adapters and the classifier.
const (
	// KindRateLimit indicates the upstream throttled the request (429 or
	// rate-limit phrasing in the error body).
	KindRateLimit ErrorKind = "rate_limit"

	// KindAuthError indicates the upstream rejected the credential (401/403
	// or auth phrasing).
	KindAuthError ErrorKind = "auth_error"

	// KindQuotaExceeded indicates a usage/billing quota was exhausted.
	KindQuotaExceeded ErrorKind = "quota_exceeded"

	// KindDailyLimit is the distinguished quota flavor for daily caps; it
	// flags the provider until local midnight rather than a fixed cooldown.
	KindDailyLimit ErrorKind = "daily_limit"

	// KindServiceUnavailable indicates the model or service is unavailable
	// or overloaded (503 or matching phrasing).
	KindServiceUnavailable ErrorKind = "service_unavailable"

	// KindServerError indicates a 5xx upstream failure.
	KindServerError ErrorKind = "server_error"

	// KindNetworkError indicates a transport-level failure (connection
	// refused, read timeout phrasing, etc.).
	KindNetworkError ErrorKind = "network_error"

	// KindBadRequest indicates the upstream rejected the request shape (400).
	KindBadRequest ErrorKind = "bad_request"

	// KindTimeout indicates the configured per-request timeout elapsed.
	KindTimeout ErrorKind = "timeout"

	// KindRequestException indicates an unexpected transport exception.
	KindRequestException ErrorKind = "request_exception"

	// KindEmptyResponse indicates a 2xx response with no usable content.
	// Silent empty completions must not appear as success.
	KindEmptyResponse ErrorKind = "empty_response"

	// KindHTTPError indicates a non-2xx status not yet classified further.
	KindHTTPError ErrorKind = "http_error"

	// KindUnknown is the classifier fallback.
	KindUnknown ErrorKind = "unknown"
)

// Engine-level control error kinds. These never originate from an adapter.
const (
	// KindNoProviders indicates the candidate list was empty.
	KindNoProviders ErrorKind = "no_providers"

	// KindAllFailed indicates every candidate provider failed.
	KindAllFailed ErrorKind = "all_failed"

	// KindProviderNotFound indicates a named provider does not exist.
	KindProviderNotFound ErrorKind = "provider_not_found"

	// KindProviderFlagged indicates a directly targeted provider is
	// currently quarantined.
	KindProviderFlagged ErrorKind = "provider_flagged"

	// KindConfigError indicates invalid provider configuration discovered
	// at dispatch time (e.g. a templated endpoint without an account ID).
	KindConfigError ErrorKind = "config_error"

	// KindUnsupportedFormat indicates an unrecognized adapter format tag.
	KindUnsupportedFormat ErrorKind = "unsupported_format"
)

// Outcome is the normalized result of one provider attempt, or of a whole
// engine call. It is the only value the gateway ever hands back to callers:
// adapter failures are converted into unsuccessful Outcomes, never raised.
type Outcome struct {
	// Success reports whether the attempt produced usable content.
	Success bool `json:"success"`

	// Content is the completion text. Non-empty when Success is true.
	Content string `json:"content,omitempty"`

	// StatusCode is the upstream HTTP status, 0 if no response was received.
	StatusCode int `json:"status_code,omitempty"`

	// ResponseTime is the end-to-end latency of the winning (or last) attempt.
	ResponseTime time.Duration `json:"response_time"`

	// ErrorMessage is the raw upstream or transport error text.
	ErrorMessage string `json:"error_message,omitempty"`

	// ErrorKind is the classified taxonomy value for the failure.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// ProviderUsed is the provider that served (or last attempted) the request.
	ProviderUsed string `json:"provider_used,omitempty"`

	// ModelUsed is the model identifier the adapter actually sent upstream.
	ModelUsed string `json:"model_used,omitempty"`

	// RawResponse is the structured upstream body, when one was parseable.
	// On failures it feeds the classifier.
	RawResponse map[string]any `json:"raw_response,omitempty"`
}

// Failure builds an unsuccessful Outcome with the given kind and message.
func Failure(kind ErrorKind, message string) Outcome {
	return Outcome{
		Success:      false,
		ErrorKind:    kind,
		ErrorMessage: message,
	}
}
