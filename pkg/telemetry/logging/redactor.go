package logging

import "regexp"

// Credential-shaped patterns that must never appear verbatim in a log
// line. The list is intentionally short: only secret material is
// redacted, not general request content.
var redactPatterns = []struct {
	regex       *regexp.Regexp
	replacement string
}{
	// Vendor-style API keys (sk-..., AIza..., and key/token assignments).
	{regexp.MustCompile(`sk-[A-Za-z0-9_-]{8,}`), "sk-***"},
	{regexp.MustCompile(`AIza[A-Za-z0-9_-]{20,}`), "AIza***"},
	{regexp.MustCompile(`(?i)(api[-_]?key|token)[=:]\s*[A-Za-z0-9_-]{8,}`), "$1=***"},

	// Authorization header values.
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]{8,}=*`), "bearer ***"},

	// Key-in-URL query parameters.
	{regexp.MustCompile(`(?i)([?&]key=)[A-Za-z0-9_-]{8,}`), "$1***"},
}

// Redact replaces credential-shaped substrings with fixed placeholders.
// Strings without a match are returned unchanged.
func Redact(s string) string {
	for _, p := range redactPatterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}
