package providers

import (
	"context"
	"strings"
	"time"
)

// accountIDPlaceholder is substituted into templated endpoints.
const accountIDPlaceholder = "{account_id}"

// cloudflareAdapter speaks the templated-path dialect: the endpoint
// carries an account-identifier placeholder filled from configuration, the
// call itself is bearer-JSON with an OpenAI-shaped answer. A missing
// account ID fails fast without touching the network.
type cloudflareAdapter struct{}

func (a *cloudflareAdapter) Send(ctx context.Context, cfg Config, apiKey string, messages []Message, model string) Outcome {
	if model == "" {
		model = cfg.Model
	}

	if cfg.AccountID == "" {
		out := Failure(KindConfigError, "account_id not configured for provider "+cfg.Name)
		out.ProviderUsed = cfg.Name
		out.ModelUsed = model
		return out
	}

	url := strings.ReplaceAll(cfg.Endpoint, accountIDPlaceholder, cfg.AccountID)

	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}

	headers := map[string]string{}
	if apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}

	start := time.Now()
	wire, failure := postJSON(ctx, cfg, url, payload, headers)
	if failure != nil {
		failure.ProviderUsed = cfg.Name
		failure.ModelUsed = model
		failure.ResponseTime = time.Since(start)
		return *failure
	}

	out := extractChatChoice(cfg, wire)
	out.ProviderUsed = cfg.Name
	out.ModelUsed = model
	out.ResponseTime = time.Since(start)
	return out
}
