package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "receipt_genie"

// Label values for IngestTotal
const (
	OutcomeProcessed   = "processed"
	OutcomeCached      = "cached"
	OutcomeDuplicate   = "duplicate"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
)

// Metrics holds the ingestion pipeline collectors. A nil *Metrics is valid
// and records nothing, so callers never need to check.
type Metrics struct {
	registry           *prometheus.Registry
	IngestTotal        *prometheus.CounterVec
	ExtractionDuration prometheus.Histogram
	TokensTotal        *prometheus.CounterVec
	CostTotal          prometheus.Counter
	ParseFailuresTotal prometheus.Counter
	LedgerWarnings     prometheus.Counter
}

// NewMetrics registers every collector on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		IngestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_total",
				Help:      "Receipt uploads by outcome",
			},
			[]string{"outcome"},
		),
		ExtractionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "extraction_duration_seconds",
				Help:      "Time spent waiting on the extraction service",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Tokens reported by the extraction service",
			},
			[]string{"direction"},
		),
		CostTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cost_total",
				Help:      "Accumulated extraction cost in currency units",
			},
		),
		ParseFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_failures_total",
				Help:      "Extraction responses that could not be parsed",
			},
		),
		LedgerWarnings: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_warnings_total",
				Help:      "Usage ledger reads or writes that failed",
			},
		),
	}
}

// Ingest counts one upload outcome
func (m *Metrics) Ingest(outcome string) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(outcome).Inc()
}

// Extraction records one completed extraction call
func (m *Metrics) Extraction(d time.Duration, inputTokens, outputTokens int, cost float64) {
	if m == nil {
		return
	}
	m.ExtractionDuration.Observe(d.Seconds())
	m.TokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	m.TokensTotal.WithLabelValues("output").Add(float64(outputTokens))
	m.CostTotal.Add(cost)
}

// ParseFailure counts one unparseable response
func (m *Metrics) ParseFailure() {
	if m == nil {
		return
	}
	m.ParseFailuresTotal.Inc()
}

// LedgerWarning counts one ledger read or write failure
func (m *Metrics) LedgerWarning() {
	if m == nil {
		return
	}
	m.LedgerWarnings.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
