package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// httpClient is the shared pooled client used by all adapters. Per-request
// timeouts come from each provider's configuration via context deadlines,
// so the client itself carries none.
var httpClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	},
}

// wireResponse is the raw result of one upstream exchange before the
// adapter extracts content from it.
type wireResponse struct {
	status int
	body   []byte

	// parsed is the JSON-decoded body, nil when the body is not a JSON
	// object. Kept for the classifier on error paths.
	parsed map[string]any
}

// perform executes an HTTP request bounded by the provider timeout and
// translates transport failures into Outcomes. It returns exactly one of
// (response, nil) or (nil, failure outcome).
func perform(ctx context.Context, cfg Config, req *http.Request) (*wireResponse, *Outcome) {
	callCtx, cancel := context.WithTimeout(ctx, cfg.timeout())
	defer cancel()

	resp, err := httpClient.Do(req.WithContext(callCtx))
	if err != nil {
		var failure Outcome
		switch {
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			failure = Failure(KindTimeout, "request timeout")
		case ctx.Err() != nil:
			// Caller cancelled; report the caller's error, not ours.
			failure = Failure(KindRequestException, ctx.Err().Error())
		default:
			failure = Failure(KindRequestException, err.Error())
		}
		return nil, &failure
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		failure := Failure(KindRequestException, "failed to read response body: "+err.Error())
		failure.StatusCode = resp.StatusCode
		return nil, &failure
	}

	wire := &wireResponse{status: resp.StatusCode, body: body}
	var parsed map[string]any
	if json.Unmarshal(body, &parsed) == nil {
		wire.parsed = parsed
	}
	return wire, nil
}

// postJSON marshals body and performs a POST with the given headers.
func postJSON(ctx context.Context, cfg Config, url string, payload any, headers map[string]string) (*wireResponse, *Outcome) {
	data, err := json.Marshal(payload)
	if err != nil {
		failure := Failure(KindRequestException, "failed to encode request: "+err.Error())
		return nil, &failure
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		failure := Failure(KindRequestException, "failed to build request: "+err.Error())
		return nil, &failure
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return perform(ctx, cfg, req)
}

// httpFailure converts a non-2xx wire response into a failure Outcome,
// keeping the parsed body for the classifier.
func httpFailure(wire *wireResponse) Outcome {
	out := Failure(KindHTTPError, string(wire.body))
	out.StatusCode = wire.status
	out.RawResponse = wire.parsed
	return out
}

// digString walks a decoded JSON structure along the given path of map keys
// and list indices and returns the string at the end, or "" when any hop is
// missing or of the wrong shape.
func digString(value any, path ...any) string {
	current := value
	for _, hop := range path {
		switch key := hop.(type) {
		case string:
			obj, ok := current.(map[string]any)
			if !ok {
				return ""
			}
			current = obj[key]
		case int:
			list, ok := current.([]any)
			if !ok || key < 0 || key >= len(list) {
				return ""
			}
			current = list[key]
		}
	}
	text, _ := current.(string)
	return text
}
