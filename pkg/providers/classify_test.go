package providers

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		message string
		status  int
		body    map[string]any
		want    ErrorKind
	}{
		{"429 status alone", "", 429, nil, KindRateLimit},
		{"rate limit phrase", "Rate limit exceeded, retry later", 200, nil, KindRateLimit},
		{"throttled phrase", "request throttled", 0, nil, KindRateLimit},
		{"401 status", "", 401, nil, KindAuthError},
		{"403 status", "", 403, nil, KindAuthError},
		{"invalid key phrase", "Invalid API key provided", 0, nil, KindAuthError},
		{"daily limit phrase", "You hit your daily limit", 0, nil, KindDailyLimit},
		{"insufficient quota", "insufficient_quota for this org", 0, nil, KindQuotaExceeded},
		{"billing hard limit", "billing_hard_limit_reached", 0, nil, KindQuotaExceeded},
		{"503 status", "", 503, nil, KindServiceUnavailable},
		{"model not found phrase", "model not found", 200, nil, KindServiceUnavailable},
		{"500 status", "internal failure", 500, nil, KindServerError},
		{"502 status", "", 502, nil, KindServerError},
		{"timeout phrase", "read timeout after 30s", 0, nil, KindNetworkError},
		{"connection refused phrase", "connection refused", 0, nil, KindNetworkError},
		{"400 status", "", 400, nil, KindBadRequest},
		{"fallback", "something odd happened", 0, nil, KindUnknown},

		// Precedence: status-derived 5xx classification beats the network
		// phrase scan, so a 503 mentioning "timeout" is an availability
		// failure, not a transport one.
		{"503 with timeout body", "upstream timeout", 503, nil, KindServiceUnavailable},
		{"500 with timeout body", "gateway timeout", 500, nil, KindServerError},

		// Rate limit beats auth when both appear.
		{"rate limit beats auth", "rate limit hit for this api key", 0, nil, KindRateLimit},

		// Daily limit is checked before the generic quota set.
		{"daily beats quota", "daily limit reached, usage limit", 0, nil, KindDailyLimit},

		// Structured bodies feed the corpus too.
		{
			"phrase inside body", "",
			200, map[string]any{"error": map[string]any{"message": "Too many requests"}},
			KindRateLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.message, tt.status, tt.body); got != tt.want {
				t.Errorf("Classify(%q, %d) = %q, want %q", tt.message, tt.status, got, tt.want)
			}
		})
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	if got := Classify("RATE LIMIT EXCEEDED", 0, nil); got != KindRateLimit {
		t.Errorf("Classify upper-case = %q, want rate_limit", got)
	}
}
