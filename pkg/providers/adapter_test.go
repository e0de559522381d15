package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewAdapterFormats(t *testing.T) {
	for _, format := range []string{FormatOpenAI, FormatGemini, FormatCohere, FormatQueryGet, FormatCloudflare} {
		if _, err := New(format); err != nil {
			t.Errorf("New(%q): %v", format, err)
		}
	}
	if _, err := New("smoke-signals"); err == nil {
		t.Error("New accepted an unknown format")
	}
}

func testMessages() []Message {
	return []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hello"},
	}
}

func TestOpenAIAdapterSuccess(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.Write([]byte(`{"choices":[{"message":{"content":"hi!"}}]}`))
	}))
	defer srv.Close()

	adapter, _ := New(FormatOpenAI)
	cfg := Config{Name: "alpha", Endpoint: srv.URL, Model: "base-model", MaxTokens: 64}

	out := adapter.Send(context.Background(), cfg, "secret", testMessages(), "override-model")
	if !out.Success || out.Content != "hi!" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.ProviderUsed != "alpha" || out.ModelUsed != "override-model" {
		t.Errorf("attribution = %q/%q", out.ProviderUsed, out.ModelUsed)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "override-model" {
		t.Errorf("request model = %v", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(64) {
		t.Errorf("max_tokens = %v", gotBody["max_tokens"])
	}
	if out.ResponseTime <= 0 {
		t.Error("response time not measured")
	}
}

func TestOpenAIAdapterEmptyContentIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
	}))
	defer srv.Close()

	adapter, _ := New(FormatOpenAI)
	out := adapter.Send(context.Background(), Config{Name: "alpha", Endpoint: srv.URL, Model: "m"}, "k", testMessages(), "")
	if out.Success {
		t.Fatal("blank completion reported as success")
	}
	if out.ErrorKind != KindEmptyResponse {
		t.Errorf("ErrorKind = %q, want empty_response", out.ErrorKind)
	}
}

func TestOpenAIAdapterSurfacesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	}))
	defer srv.Close()

	adapter, _ := New(FormatOpenAI)
	out := adapter.Send(context.Background(), Config{Name: "alpha", Endpoint: srv.URL, Model: "m"}, "k", testMessages(), "")
	if out.Success {
		t.Fatal("429 reported as success")
	}
	if out.StatusCode != 429 {
		t.Errorf("StatusCode = %d", out.StatusCode)
	}
	if out.RawResponse == nil {
		t.Fatal("structured error body not surfaced")
	}
	if Classify(out.ErrorMessage, out.StatusCode, out.RawResponse) != KindRateLimit {
		t.Error("surfaced failure does not classify as rate_limit")
	}
}

func TestOpenAIAdapterTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can detect the
		// client disconnect and cancel the request context.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	adapter, _ := New(FormatOpenAI)
	cfg := Config{Name: "alpha", Endpoint: srv.URL, Model: "m", Timeout: 50 * time.Millisecond}

	out := adapter.Send(context.Background(), cfg, "k", testMessages(), "")
	if out.ErrorKind != KindTimeout {
		t.Errorf("ErrorKind = %q, want timeout", out.ErrorKind)
	}
}

func TestOpenAIAdapterCallerCancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	adapter, _ := New(FormatOpenAI)
	out := adapter.Send(ctx, Config{Name: "alpha", Endpoint: srv.URL, Model: "m"}, "k", testMessages(), "")
	if out.ErrorKind != KindRequestException {
		t.Errorf("ErrorKind = %q, want request_exception", out.ErrorKind)
	}
}

func TestGeminiAdapterUserPartsOnly(t *testing.T) {
	var gotQuery string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"pong"}]}}]}`))
	}))
	defer srv.Close()

	adapter, _ := New(FormatGemini)
	out := adapter.Send(context.Background(), Config{Name: "gem", Endpoint: srv.URL, Model: "m"}, "sekrit", testMessages(), "")
	if !out.Success || out.Content != "pong" {
		t.Fatalf("outcome = %+v", out)
	}
	if gotQuery != "key=sekrit" {
		t.Errorf("query = %q, want key in URL", gotQuery)
	}

	contents := gotBody["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	if len(parts) != 1 {
		t.Fatalf("parts = %v, want only the user turn", parts)
	}
	if parts[0].(map[string]any)["text"] != "hello" {
		t.Errorf("part text = %v", parts[0])
	}
}

func TestCohereAdapterLowercaseHeader(t *testing.T) {
	var sawLowercase bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Header.Get canonicalizes, so inspect the raw map.
		if vals, ok := r.Header["authorization"]; ok && len(vals) == 1 && vals[0] == "bearer secret" {
			sawLowercase = true
		}
		// The canonical form also counts: Go's server may fold the name
		// depending on transport. Either way the value must match.
		if vals, ok := r.Header["Authorization"]; ok && len(vals) == 1 && vals[0] == "bearer secret" {
			sawLowercase = true
		}
		w.Write([]byte(`{"message":{"content":[{"text":"bonjour"}]}}`))
	}))
	defer srv.Close()

	adapter, _ := New(FormatCohere)
	out := adapter.Send(context.Background(), Config{Name: "co", Endpoint: srv.URL, Model: "m"}, "secret", testMessages(), "")
	if !out.Success || out.Content != "bonjour" {
		t.Fatalf("outcome = %+v", out)
	}
	if !sawLowercase {
		t.Error("authorization header not received with bearer value")
	}
}

func TestQueryGetAdapterStructuredAndRaw(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai envelope", `{"choices":[{"message":{"content":"structured"}}]}`, "structured"},
		{"raw text fallback", "plain text answer", "plain text answer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser, gotModel string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = r.URL.Query().Get("user")
				gotModel = r.URL.Query().Get("model")
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			adapter, _ := New(FormatQueryGet)
			out := adapter.Send(context.Background(), Config{Name: "qg", Endpoint: srv.URL, Model: "m"}, "", testMessages(), "")
			if !out.Success || out.Content != tt.want {
				t.Fatalf("outcome = %+v, want content %q", out, tt.want)
			}
			if gotUser != "hello" {
				t.Errorf("user query = %q, want last message content", gotUser)
			}
			if gotModel != "m" {
				t.Errorf("model query = %q", gotModel)
			}
		})
	}
}

func TestQueryGetAdapterEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("   "))
	}))
	defer srv.Close()

	adapter, _ := New(FormatQueryGet)
	out := adapter.Send(context.Background(), Config{Name: "qg", Endpoint: srv.URL, Model: "m"}, "", testMessages(), "")
	if out.ErrorKind != KindEmptyResponse {
		t.Errorf("ErrorKind = %q, want empty_response", out.ErrorKind)
	}
}

func TestCloudflareAdapterSubstitutesAccountID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"choices":[{"message":{"content":"edge"}}]}`))
	}))
	defer srv.Close()

	adapter, _ := New(FormatCloudflare)
	cfg := Config{
		Name:      "cf",
		Endpoint:  srv.URL + "/accounts/{account_id}/ai/run",
		Model:     "m",
		AccountID: "acct-42",
	}

	out := adapter.Send(context.Background(), cfg, "k", testMessages(), "")
	if !out.Success || out.Content != "edge" {
		t.Fatalf("outcome = %+v", out)
	}
	if gotPath != "/accounts/acct-42/ai/run" {
		t.Errorf("path = %q, placeholder not substituted", gotPath)
	}
}

func TestCloudflareAdapterMissingAccountIDFailsFast(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	adapter, _ := New(FormatCloudflare)
	cfg := Config{Name: "cf", Endpoint: srv.URL + "/accounts/{account_id}/ai/run", Model: "m"}

	out := adapter.Send(context.Background(), cfg, "k", testMessages(), "")
	if out.ErrorKind != KindConfigError {
		t.Errorf("ErrorKind = %q, want config_error", out.ErrorKind)
	}
	if calls != 0 {
		t.Errorf("network calls = %d, want 0", calls)
	}
}

func TestDigString(t *testing.T) {
	var doc any
	json.Unmarshal([]byte(`{"choices":[{"message":{"content":"deep"}}]}`), &doc)

	if got := digString(doc, "choices", 0, "message", "content"); got != "deep" {
		t.Errorf("digString = %q, want deep", got)
	}
	if got := digString(doc, "choices", 3, "message", "content"); got != "" {
		t.Errorf("out-of-range hop returned %q", got)
	}
	if got := digString(doc, "missing"); got != "" {
		t.Errorf("missing key returned %q", got)
	}
}
