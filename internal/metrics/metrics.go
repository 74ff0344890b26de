// Package metrics exposes Prometheus instrumentation for the monitoring
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors. One instance per
// process, registered on its own registry so tests can create as many as
// they need.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal       *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	ItemsFetched      prometheus.Counter
	ItemsSkipped      prometheus.Counter
	ConnectorFailures *prometheus.CounterVec
	EventsByState     *prometheus.CounterVec
	EnrichmentTotal   *prometheus.CounterVec
	ClaimsDropped     prometheus.Counter
	GateFailures      *prometheus.CounterVec
}

// New creates and registers the pipeline collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliefwatch",
			Name:      "cycles_total",
			Help:      "Monitoring cycles by final status.",
		}, []string{"status"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reliefwatch",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of a full monitoring cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ItemsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reliefwatch",
			Name:      "items_fetched_total",
			Help:      "Evidence items that passed normalization.",
		}),
		ItemsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reliefwatch",
			Name:      "items_skipped_total",
			Help:      "Evidence items skipped for missing country or parse errors.",
		}),
		ConnectorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliefwatch",
			Name:      "connector_failures_total",
			Help:      "Connector fetch failures.",
		}, []string{"connector"}),
		EventsByState: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliefwatch",
			Name:      "events_total",
			Help:      "Events produced per cycle by change state.",
		}, []string{"state"}),
		EnrichmentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliefwatch",
			Name:      "enrichment_total",
			Help:      "Enrichment outcomes by mode.",
		}, []string{"mode"}),
		ClaimsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reliefwatch",
			Name:      "claims_dropped_total",
			Help:      "LLM claims rejected by the citation quote lock.",
		}),
		GateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliefwatch",
			Name:      "gate_failures_total",
			Help:      "Quality gate failures by check.",
		}, []string{"check"}),
	}

	registry.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.ItemsFetched,
		m.ItemsSkipped,
		m.ConnectorFailures,
		m.EventsByState,
		m.EnrichmentTotal,
		m.ClaimsDropped,
		m.GateFailures,
	)
	return m
}

// Handler returns an HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
