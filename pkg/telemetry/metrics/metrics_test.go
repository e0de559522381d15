package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"meridian-hq/meridian/pkg/config"
)

func TestCollectorRecordsAndExposes(t *testing.T) {
	c := NewCollector(config.MetricsConfig{Namespace: "meridian"}, nil)

	c.RecordAttempt("alpha", true, 250*time.Millisecond)
	c.RecordAttempt("alpha", false, 2*time.Second)
	c.RecordError("alpha", "rate_limit")
	c.RecordFailover()
	c.SetProviderFlagged("alpha", true)
	c.SetCredentialWeight("alpha", 0, 1.21)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`meridian_gateway_requests_total{outcome="failure",provider="alpha"} 1`,
		`meridian_gateway_requests_total{outcome="success",provider="alpha"} 1`,
		`meridian_gateway_errors_total{error_kind="rate_limit",provider="alpha"} 1`,
		`meridian_gateway_failovers_total 1`,
		`meridian_gateway_provider_flagged{provider="alpha"} 1`,
		`meridian_gateway_credential_weight{key="0",provider="alpha"} 1.21`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestCollectorDefaultNamespace(t *testing.T) {
	c := NewCollector(config.MetricsConfig{}, nil)
	c.RecordFailover()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "meridian_gateway_failovers_total") {
		t.Error("default namespace not applied")
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	NewCollector(config.MetricsConfig{}, nil)
	// A second collector with its own registry must not panic on
	// duplicate registration.
	NewCollector(config.MetricsConfig{}, nil)
}
