package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/modelcache"
	"meridian-hq/meridian/pkg/providers"
	"meridian-hq/meridian/pkg/telemetry/metrics"
)

func chatServer(t *testing.T, status int, body string, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestEngine(t *testing.T, provs map[string]config.ProviderConfig) *Engine {
	t.Helper()
	r := newTestRegistry(t, provs)
	return NewEngine(r, modelcache.New(), nil)
}

func userMessage(text string) []providers.Message {
	return []providers.Message{{Role: providers.RoleUser, Content: text}}
}

const okCompletion = `{"choices":[{"message":{"content":"hello there"}}]}`

func TestCompleteFailsOverOnRateLimit(t *testing.T) {
	var xCalls, yCalls atomic.Int64
	x := chatServer(t, http.StatusTooManyRequests, `{"error":{"message":"rate limit exceeded"}}`, &xCalls)
	y := chatServer(t, http.StatusOK, okCompletion, &yCalls)

	xCfg := testProviderConfig("kx")
	xCfg.Priority = 1
	xCfg.Endpoint = x.URL
	yCfg := testProviderConfig("ky")
	yCfg.Priority = 2
	yCfg.Endpoint = y.URL

	e := newTestEngine(t, map[string]config.ProviderConfig{"X": xCfg, "Y": yCfg})

	out := e.Complete(context.Background(), userMessage("hi"), CompleteOptions{})
	if !out.Success {
		t.Fatalf("Complete failed: %+v", out)
	}
	if out.ProviderUsed != "Y" {
		t.Errorf("ProviderUsed = %q, want Y", out.ProviderUsed)
	}
	if out.Content != "hello there" {
		t.Errorf("Content = %q", out.Content)
	}
	if xCalls.Load() != 1 || yCalls.Load() != 1 {
		t.Errorf("call counts X=%d Y=%d, want 1 and 1", xCalls.Load(), yCalls.Load())
	}

	st := e.GetStatus()
	if st.FlaggedProviders != 1 || st.Flagged[0].Name != "X" {
		t.Fatalf("flagged list = %+v, want X", st.Flagged)
	}
	if st.Flagged[0].Reason != "rate_limit" {
		t.Errorf("flag reason = %q, want rate_limit", st.Flagged[0].Reason)
	}
	if remaining := time.Until(st.Flagged[0].Until); remaining < 55*time.Minute {
		t.Errorf("flag remaining = %v, want at least 55m", remaining)
	}
}

func TestCompleteNoProvidersWithoutNetworkCall(t *testing.T) {
	var calls atomic.Int64
	srv := chatServer(t, http.StatusOK, okCompletion, &calls)

	pc := testProviderConfig("k")
	pc.Endpoint = srv.URL
	e := newTestEngine(t, map[string]config.ProviderConfig{"alpha": pc})

	e.Registry().RecordFailure("alpha", 0, providers.KindRateLimit)

	out := e.Complete(context.Background(), userMessage("hi"), CompleteOptions{})
	if out.Success {
		t.Fatal("Complete succeeded with every provider flagged")
	}
	if out.ErrorKind != providers.KindNoProviders {
		t.Errorf("ErrorKind = %q, want no_providers", out.ErrorKind)
	}
	if calls.Load() != 0 {
		t.Errorf("network calls made = %d, want 0", calls.Load())
	}
}

func TestCompleteAllFailedAggregates(t *testing.T) {
	a := chatServer(t, http.StatusBadRequest, `{"error":{"message":"malformed"}}`, nil)
	b := chatServer(t, http.StatusBadRequest, `{"error":{"message":"malformed"}}`, nil)

	aCfg := testProviderConfig("ka")
	aCfg.Priority = 1
	aCfg.Endpoint = a.URL
	bCfg := testProviderConfig("kb")
	bCfg.Priority = 2
	bCfg.Endpoint = b.URL

	e := newTestEngine(t, map[string]config.ProviderConfig{"alpha": aCfg, "beta": bCfg})

	out := e.Complete(context.Background(), userMessage("hi"), CompleteOptions{})
	if out.Success {
		t.Fatal("Complete succeeded against failing providers")
	}
	if out.ErrorKind != providers.KindAllFailed {
		t.Fatalf("ErrorKind = %q, want all_failed", out.ErrorKind)
	}
	for _, name := range []string{"alpha", "beta"} {
		if !strings.Contains(out.ErrorMessage, name) {
			t.Errorf("aggregate error missing %q: %s", name, out.ErrorMessage)
		}
	}
}

func TestCompleteEmptyMessages(t *testing.T) {
	e := newTestEngine(t, map[string]config.ProviderConfig{})
	out := e.Complete(context.Background(), nil, CompleteOptions{})
	if out.ErrorKind != providers.KindBadRequest {
		t.Errorf("ErrorKind = %q, want bad_request", out.ErrorKind)
	}
}

func TestCompletePreferredProviderTriedFirst(t *testing.T) {
	var aCalls, bCalls atomic.Int64
	a := chatServer(t, http.StatusOK, okCompletion, &aCalls)
	b := chatServer(t, http.StatusOK, okCompletion, &bCalls)

	aCfg := testProviderConfig("ka")
	aCfg.Priority = 1
	aCfg.Endpoint = a.URL
	bCfg := testProviderConfig("kb")
	bCfg.Priority = 2
	bCfg.Endpoint = b.URL

	e := newTestEngine(t, map[string]config.ProviderConfig{"alpha": aCfg, "beta": bCfg})

	out := e.Complete(context.Background(), userMessage("hi"), CompleteOptions{
		PreferredProvider: "beta",
	})
	if !out.Success || out.ProviderUsed != "beta" {
		t.Fatalf("outcome = %+v, want success via beta", out)
	}
	if aCalls.Load() != 0 {
		t.Errorf("higher priority provider was called despite preference")
	}
}

func TestCompleteForceProviderNoFallback(t *testing.T) {
	var aCalls atomic.Int64
	a := chatServer(t, http.StatusOK, okCompletion, &aCalls)
	b := chatServer(t, http.StatusServiceUnavailable, `{"error":{"message":"overloaded"}}`, nil)

	aCfg := testProviderConfig("ka")
	aCfg.Priority = 1
	aCfg.Endpoint = a.URL
	bCfg := testProviderConfig("kb")
	bCfg.Priority = 2
	bCfg.Endpoint = b.URL

	e := newTestEngine(t, map[string]config.ProviderConfig{"alpha": aCfg, "beta": bCfg})

	out := e.Complete(context.Background(), userMessage("hi"), CompleteOptions{
		PreferredProvider: "beta",
		ForceProvider:     true,
	})
	if out.Success {
		t.Fatal("forced provider failure fell back to another provider")
	}
	if out.ErrorKind != providers.KindServiceUnavailable {
		t.Errorf("ErrorKind = %q, want service_unavailable", out.ErrorKind)
	}
	if aCalls.Load() != 0 {
		t.Error("fallback provider was called under force_provider")
	}
}

func TestCompleteForceProviderFlagged(t *testing.T) {
	pc := testProviderConfig("k")
	e := newTestEngine(t, map[string]config.ProviderConfig{"alpha": pc})
	e.Registry().RecordFailure("alpha", 0, providers.KindAuthError)

	out := e.Complete(context.Background(), userMessage("hi"), CompleteOptions{
		PreferredProvider: "alpha",
		ForceProvider:     true,
	})
	if out.ErrorKind != providers.KindProviderFlagged {
		t.Errorf("ErrorKind = %q, want provider_flagged", out.ErrorKind)
	}
}

func TestCompleteForceProviderNotFound(t *testing.T) {
	e := newTestEngine(t, map[string]config.ProviderConfig{})
	out := e.Complete(context.Background(), userMessage("hi"), CompleteOptions{
		PreferredProvider: "ghost",
		ForceProvider:     true,
	})
	if out.ErrorKind != providers.KindProviderNotFound {
		t.Errorf("ErrorKind = %q, want provider_not_found", out.ErrorKind)
	}
}

func TestCompleteCancelledAttemptNotRecorded(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		// Drain the body so the server's background read can detect the
		// client disconnect and cancel the request context.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	pc := testProviderConfig("k")
	pc.Endpoint = srv.URL
	e := newTestEngine(t, map[string]config.ProviderConfig{"alpha": pc})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	out := e.Complete(ctx, userMessage("hi"), CompleteOptions{})
	if out.Success {
		t.Fatal("cancelled completion reported success")
	}
	if out.ErrorKind != providers.KindRequestException {
		t.Errorf("ErrorKind = %q, want request_exception", out.ErrorKind)
	}

	// The abandoned attempt is recorded neither as success nor failure.
	report, _ := e.GetKeyReport("alpha")
	if report.Credentials[0].Successes != 0 || report.Credentials[0].Failures != 0 {
		t.Errorf("cancelled attempt recorded an outcome: %+v", report.Credentials[0])
	}
	if flagOf(t, e.Registry(), "alpha") != nil {
		t.Error("cancelled attempt flagged the provider")
	}
}

func TestTestProviderDirect(t *testing.T) {
	srv := chatServer(t, http.StatusOK, okCompletion, nil)
	pc := testProviderConfig("k")
	pc.Endpoint = srv.URL
	e := newTestEngine(t, map[string]config.ProviderConfig{"alpha": pc})

	out := e.TestProvider(context.Background(), "alpha", "")
	if !out.Success || out.ProviderUsed != "alpha" {
		t.Fatalf("TestProvider outcome = %+v", out)
	}

	if out := e.TestProvider(context.Background(), "ghost", ""); out.ErrorKind != providers.KindProviderNotFound {
		t.Errorf("ErrorKind = %q, want provider_not_found", out.ErrorKind)
	}

	e.Registry().RecordFailure("alpha", 0, providers.KindRateLimit)
	if out := e.TestProvider(context.Background(), "alpha", ""); out.ErrorKind != providers.KindProviderFlagged {
		t.Errorf("ErrorKind = %q, want provider_flagged", out.ErrorKind)
	}
}

func TestFindModelProvidersDelegatesToCache(t *testing.T) {
	cache := modelcache.New()
	cache.Replace([]modelcache.Entry{
		{Provider: "alpha", Model: "gpt-4"},
		{Provider: "beta", Model: "gpt-4-turbo"},
	})
	r := newTestRegistry(t, map[string]config.ProviderConfig{})
	e := NewEngine(r, cache, nil)

	for _, q := range []string{"gpt-4", "GPT-4", "gpt4"} {
		got := e.FindModelProviders(q)
		if len(got) != 1 || got[0].Provider != "alpha" {
			t.Errorf("FindModelProviders(%q) = %+v, want alpha only", q, got)
		}
	}
}

func TestCompleteUpdatesCredentialWeightGauge(t *testing.T) {
	a := chatServer(t, http.StatusOK, okCompletion, nil)
	b := chatServer(t, http.StatusServiceUnavailable, `{"error":{"message":"upstream down"}}`, nil)

	aCfg := testProviderConfig("ka")
	aCfg.Priority = 1
	aCfg.Endpoint = a.URL
	bCfg := testProviderConfig("kb")
	bCfg.Priority = 2
	bCfg.Endpoint = b.URL

	r := newTestRegistry(t, map[string]config.ProviderConfig{"A": aCfg, "B": bCfg})
	collector := metrics.NewCollector(config.MetricsConfig{}, nil)
	e := NewEngine(r, modelcache.New(), collector)

	if out := e.Complete(context.Background(), userMessage("hi"), CompleteOptions{}); !out.Success {
		t.Fatalf("Complete failed: %+v", out)
	}
	e.Complete(context.Background(), userMessage("hi"), CompleteOptions{
		PreferredProvider: "B",
		ForceProvider:     true,
	})

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	// A's slot decayed on success, B's slot grew on failure.
	for _, want := range []string{
		`meridian_gateway_credential_weight{key="0",provider="A"} 0.95`,
		`meridian_gateway_credential_weight{key="0",provider="B"} 1.1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}
