// Package metrics provides Prometheus metrics for the Meridian gateway.
//
// All metrics share one namespace (default "meridian") and live in a
// collector-owned registry so multiple gateway instances in one process
// (tests, embedded use) never collide.
//
// Metrics:
//   - meridian_gateway_requests_total{provider, outcome}
//   - meridian_gateway_latency_seconds{provider}
//   - meridian_gateway_errors_total{provider, error_kind}
//   - meridian_gateway_failovers_total
//   - meridian_gateway_provider_flagged{provider}
//   - meridian_gateway_credential_weight{provider, key}
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"meridian-hq/meridian/pkg/config"
)

// Collector owns the gateway metric instruments and their registry.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	latencySeconds   *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
	failoversTotal   prometheus.Counter
	providerFlagged  *prometheus.GaugeVec
	credentialWeight *prometheus.GaugeVec
}

// NewCollector creates and registers the gateway metrics. A nil registry
// gets a fresh private one.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = config.DefaultMetricsNamespace
	}

	c := &Collector{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Completion attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		latencySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "latency_seconds",
				Help:      "Upstream attempt latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"provider"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Classified attempt failures by provider and error kind",
			},
			[]string{"provider", "error_kind"},
		),

		failoversTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "failovers_total",
				Help:      "Times a completion moved on to a lower-priority provider",
			},
		),

		providerFlagged: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "provider_flagged",
				Help:      "1 while the provider is quarantined, 0 otherwise",
			},
			[]string{"provider"},
		),

		credentialWeight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "credential_weight",
				Help:      "Current reputation weight per credential slot",
			},
			[]string{"provider", "key"},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.latencySeconds,
		c.errorsTotal,
		c.failoversTotal,
		c.providerFlagged,
		c.credentialWeight,
	)
	return c
}

// Registry exposes the underlying registry for the scrape handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordAttempt counts one provider attempt and its latency.
func (c *Collector) RecordAttempt(provider string, success bool, latency time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.requestsTotal.WithLabelValues(provider, outcome).Inc()
	c.latencySeconds.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordError counts one classified failure.
func (c *Collector) RecordError(provider, errorKind string) {
	c.errorsTotal.WithLabelValues(provider, errorKind).Inc()
}

// RecordFailover counts one move to the next candidate provider.
func (c *Collector) RecordFailover() {
	c.failoversTotal.Inc()
}

// SetProviderFlagged updates the quarantine gauge for a provider.
func (c *Collector) SetProviderFlagged(provider string, flagged bool) {
	v := 0.0
	if flagged {
		v = 1.0
	}
	c.providerFlagged.WithLabelValues(provider).Set(v)
}

// SetCredentialWeight updates the reputation gauge for one credential
// slot, identified by ordinal to keep key material out of label values.
func (c *Collector) SetCredentialWeight(provider string, slot int, weight float64) {
	c.credentialWeight.WithLabelValues(provider, strconv.Itoa(slot)).Set(weight)
}
