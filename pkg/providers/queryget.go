package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// queryGetAdapter speaks the query-parameter GET dialect: the last
// message's content and the model ride as query values, and the answer is
// either raw text or an OpenAI-shaped JSON envelope. The structured parse
// is attempted first with raw text as the fallback; the empty-content
// failure rule still applies to both shapes.
type queryGetAdapter struct{}

func (a *queryGetAdapter) Send(ctx context.Context, cfg Config, apiKey string, messages []Message, model string) Outcome {
	if model == "" {
		model = cfg.Model
	}

	var userMessage string
	if len(messages) > 0 {
		userMessage = messages[len(messages)-1].Content
	}

	params := url.Values{}
	params.Set("user", userMessage)
	params.Set("model", model)

	start := time.Now()
	req, err := http.NewRequest(http.MethodGet, cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		out := Failure(KindRequestException, "failed to build request: "+err.Error())
		out.ProviderUsed = cfg.Name
		out.ModelUsed = model
		return out
	}

	wire, failure := perform(ctx, cfg, req)
	if failure != nil {
		failure.ProviderUsed = cfg.Name
		failure.ModelUsed = model
		failure.ResponseTime = time.Since(start)
		return *failure
	}

	out := a.extract(cfg, wire)
	out.ProviderUsed = cfg.Name
	out.ModelUsed = model
	out.ResponseTime = time.Since(start)
	return out
}

func (a *queryGetAdapter) extract(cfg Config, wire *wireResponse) Outcome {
	if wire.status < 200 || wire.status >= 300 {
		return httpFailure(wire)
	}

	content := digString(any(wire.parsed), "choices", 0, "message", "content")
	if content == "" {
		content = string(wire.body)
	}

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
