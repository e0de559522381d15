package providers

import (
	"fmt"
	"strings"
)

// Phrase sets scanned by Classify, in precedence order. The corpus is the
// lower-cased error message concatenated with the stringified structured
// body, so phrases match whether the upstream reported them in free text or
// inside a JSON error envelope.
var (
	rateLimitPhrases = []string{
		"rate limit", "too many requests", "quota exceeded", "requests per minute",
		"rpm exceeded", "rate limited", "throttled", "429", "rate_limit_exceeded",
		"requests_per_minute_limit_exceeded", "rate_limit_reached",
	}

	authErrorPhrases = []string{
		"invalid key", "unauthorized", "forbidden", "api key", "invalid_api_key",
		"authentication failed", "invalid token", "access denied", "invalid_request_error",
		"incorrect api key", "api_key_invalid", "authentication_error",
	}

	dailyLimitPhrases = []string{
		"daily limit", "requests per day", "daily quota", "rpd exceeded",
	}

	quotaPhrases = []string{
		"monthly quota", "usage limit", "quota_exceeded", "insufficient_quota",
		"billing_hard_limit_reached", "usage_limit_exceeded", "credit limit",
		"balance insufficient",
	}

	serviceUnavailablePhrases = []string{
		"model not found", "service unavailable", "model_not_found", "invalid_model",
		"model temporarily unavailable", "service_unavailable", "model_overloaded",
		"engine_overloaded", "server_overloaded", "overloaded",
	}

	networkErrorPhrases = []string{
		"timeout", "connection error", "network error", "connection timeout",
		"read timeout", "connect timeout", "connection refused", "network_error",
	}
)

// Classify maps an upstream failure signal to an ErrorKind. It is a pure
// function over the error message text, the HTTP status, and the structured
// error body (if one was parseable).
//
// Precedence is load-bearing and must not be reordered: a 503 whose body
// mentions "timeout" classifies as service_unavailable, not network_error,
// because the 5xx checks run before the network phrase scan. Downstream
// remediation differs by kind.
func Classify(message string, statusCode int, body map[string]any) ErrorKind {
	corpus := strings.ToLower(message)
	if len(body) > 0 {
		corpus += " " + strings.ToLower(fmt.Sprintf("%v", body))
	}

	if containsAny(corpus, rateLimitPhrases) || statusCode == 429 {
		return KindRateLimit
	}

	if containsAny(corpus, authErrorPhrases) || statusCode == 401 || statusCode == 403 {
		return KindAuthError
	}

	if containsAny(corpus, dailyLimitPhrases) {
		return KindDailyLimit
	}
	if containsAny(corpus, quotaPhrases) {
		return KindQuotaExceeded
	}

	if containsAny(corpus, serviceUnavailablePhrases) || statusCode == 503 {
		return KindServiceUnavailable
	}

	if statusCode >= 500 && statusCode < 600 {
		return KindServerError
	}

	if containsAny(corpus, networkErrorPhrases) {
		return KindNetworkError
	}

	if statusCode == 400 {
		return KindBadRequest
	}

	return KindUnknown
}

func containsAny(corpus string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(corpus, phrase) {
			return true
		}
	}
	return false
}
