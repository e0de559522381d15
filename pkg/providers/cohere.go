package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// cohereAdapter speaks the message-array dialect with alternate
// auth-header casing: the messages list is sent as-is, the credential in a
// literal lowercase "authorization: bearer" header, and the answer at
// message.content[0].text.
type cohereAdapter struct{}

func (a *cohereAdapter) Send(ctx context.Context, cfg Config, apiKey string, messages []Message, model string) Outcome {
	if model == "" {
		model = cfg.Model
	}

	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}

	start := time.Now()
	out := a.send(ctx, cfg, apiKey, payload)
	out.ProviderUsed = cfg.Name
	out.ModelUsed = model
	out.ResponseTime = time.Since(start)
	return out
}

func (a *cohereAdapter) send(ctx context.Context, cfg Config, apiKey string, payload any) Outcome {
	data, err := json.Marshal(payload)
	if err != nil {
		return Failure(KindRequestException, "failed to encode request: "+err.Error())
	}

	req, err := http.NewRequest(http.MethodPost, cfg.Endpoint, bytes.NewReader(data))
	if err != nil {
		return Failure(KindRequestException, "failed to build request: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		// Direct map assignment: Header.Set would canonicalize the name to
		// "Authorization", and this dialect wants it lowercase on the wire.
		req.Header["authorization"] = []string{"bearer " + apiKey}
	}

	wire, failure := perform(ctx, cfg, req)
	if failure != nil {
		return *failure
	}

	if wire.status < 200 || wire.status >= 300 {
		return httpFailure(wire)
	}

	content := digString(any(wire.parsed), "message", "content", 0, "text")
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
