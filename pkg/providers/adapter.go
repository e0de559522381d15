package providers

import (
	"context"
	"fmt"
	"time"
)

// Wire format tags selectable in provider configuration. Each tag maps to
// one Adapter implementation.
const (
	// FormatOpenAI is a bearer-token JSON chat-completions endpoint.
	FormatOpenAI = "openai"

	// FormatGemini is a key-in-URL single-turn endpoint.
	FormatGemini = "gemini"

	// FormatCohere is a message-array endpoint with lowercase auth header.
	FormatCohere = "cohere"

	// FormatQueryGet is a query-parameter GET endpoint that may answer with
	// raw text or an embedded OpenAI-shaped JSON envelope.
	FormatQueryGet = "query_get"

	// FormatCloudflare is a templated-path endpoint requiring an account
	// identifier substituted into the URL.
	FormatCloudflare = "cloudflare"
)

// Config is the static provider configuration an adapter needs to perform
// a call. It is a subset of the gateway configuration: no credentials and
// no health state, those are owned by the engine's registry.
type Config struct {
	// Name is the provider identifier, used in error messages and logs.
	Name string

	// Format selects the adapter variant (see Format* constants).
	Format string

	// Endpoint is the request URL. For FormatCloudflare it contains an
	// "{account_id}" placeholder.
	Endpoint string

	// ModelsEndpoint is the optional model-discovery URL.
	ModelsEndpoint string

	// Model is the default model identifier sent when the caller does not
	// request one explicitly.
	Model string

	// AccountID is the account identifier substituted into templated
	// endpoints. Only meaningful for FormatCloudflare.
	AccountID string

	// Timeout bounds each upstream call. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxTokens caps the completion length when non-zero.
	MaxTokens int

	// Temperature is the sampling temperature. Nil means provider default.
	Temperature *float64
}

// DefaultTimeout bounds upstream calls when a provider does not configure
// its own timeout.
const DefaultTimeout = 60 * time.Second

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Adapter translates a normalized request into one provider-specific wire
// call and the provider's answer into a normalized Outcome.
//
// Send must honor the configured timeout (translating it into KindTimeout),
// surface structured upstream error bodies in Outcome.RawResponse, and
// convert every failure path into an unsuccessful Outcome instead of
// returning an error or panicking.
type Adapter interface {
	Send(ctx context.Context, cfg Config, apiKey string, messages []Message, model string) Outcome
}

// New returns the adapter for a wire format tag. Unknown tags are a
// configuration-shape error and the only failure this constructor reports.
func New(format string) (Adapter, error) {
	switch format {
	case FormatOpenAI:
		return &openAIAdapter{}, nil
	case FormatGemini:
		return &geminiAdapter{}, nil
	case FormatCohere:
		return &cohereAdapter{}, nil
	case FormatQueryGet:
		return &queryGetAdapter{}, nil
	case FormatCloudflare:
		return &cloudflareAdapter{}, nil
	default:
		return nil, fmt.Errorf("unsupported provider format %q", format)
	}
}
