package providers

import (
	"context"
	"time"
)

// geminiAdapter speaks the key-in-URL single-shot dialect: the credential
// rides as a query parameter, the prompt is built from user-role turns only
// (no system-role translation), and the answer sits at
// candidates[0].content.parts[0].text.
type geminiAdapter struct{}

func (a *geminiAdapter) Send(ctx context.Context, cfg Config, apiKey string, messages []Message, model string) Outcome {
	if model == "" {
		model = cfg.Model
	}

	url := cfg.Endpoint
	if apiKey != "" {
		url += "?key=" + apiKey
	}

	var parts []map[string]string
	for _, msg := range messages {
		if msg.Role == RoleUser {
			parts = append(parts, map[string]string{"text": msg.Content})
		}
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": parts},
		},
	}

	start := time.Now()
	wire, failure := postJSON(ctx, cfg, url, payload, nil)
	if failure != nil {
		failure.ProviderUsed = cfg.Name
		failure.ModelUsed = model
		failure.ResponseTime = time.Since(start)
		return *failure
	}

	out := Outcome{ProviderUsed: cfg.Name, ModelUsed: model, ResponseTime: time.Since(start)}
	if wire.status < 200 || wire.status >= 300 {
		httpOut := httpFailure(wire)
		httpOut.ProviderUsed = cfg.Name
		httpOut.ModelUsed = model
		httpOut.ResponseTime = out.ResponseTime
		return httpOut
	}

	out.Success = true
	out.Content = digString(any(wire.parsed), "candidates", 0, "content", "parts", 0, "text")
	out.StatusCode = wire.status
	out.RawResponse = wire.parsed
	return out
}
