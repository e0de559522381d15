package providers

import (
	"context"
	"strings"
	"time"
)

// openAIAdapter speaks the bearer-token JSON chat-completions dialect:
// POST {model, messages, max_tokens?, temperature?} with an
// "Authorization: Bearer" header, answer in choices[0].message.content.
type openAIAdapter struct{}

func (a *openAIAdapter) Send(ctx context.Context, cfg Config, apiKey string, messages []Message, model string) Outcome {
	if model == "" {
		model = cfg.Model
	}

	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if cfg.MaxTokens > 0 {
		payload["max_tokens"] = cfg.MaxTokens
	}
	if cfg.Temperature != nil {
		payload["temperature"] = *cfg.Temperature
	}

	headers := map[string]string{}
	if apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}

	start := time.Now()
	wire, failure := postJSON(ctx, cfg, cfg.Endpoint, payload, headers)
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

// extractChatChoice normalizes an OpenAI-shaped envelope. Shared by the
// bearer and templated-path adapters, which answer in the same shape.
func extractChatChoice(cfg Config, wire *wireResponse) Outcome {
	if wire.status < 200 || wire.status >= 300 {
		return httpFailure(wire)
	}

	content := digString(any(wire.parsed), "choices", 0, "message", "content")
	if strings.TrimSpace(content) == "" {
		out := Failure(KindEmptyResponse, "empty response from "+cfg.Name)
		out.StatusCode = wire.status
		out.RawResponse = wire.parsed
		return out
	}

	return Outcome{
		Success:     true,
		Content:     content,
		StatusCode:  wire.status,
		RawResponse: wire.parsed,
	}
}
