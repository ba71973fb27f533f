package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. Each
// instance owns its registry so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	RecordsProcessed *prometheus.CounterVec
	Findings         *prometheus.CounterVec
	ParseFailures    prometheus.Counter
	SinkFailures     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	ClassifyLatency  prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RecordsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Records redacted, by PII verdict.",
		}, []string{"is_pii"}),
		Findings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_findings_total",
			Help:      "Masked fields by category and kind.",
		}, []string{"category", "kind"}),
		ParseFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_parse_failures_total",
			Help:      "Payloads replaced by an empty object because they were not valid JSON objects.",
		}),
		SinkFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Result batches a sink failed to accept after retries.",
		}, []string{"sink"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		ClassifyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_latency_us",
			Help:      "Time to classify a single record in microseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}
}

// ObserveRecord counts one redacted record
func (m *Metrics) ObserveRecord(isPII, parsed bool, d time.Duration) {
	if m == nil {
		return
	}
	m.RecordsProcessed.WithLabelValues(strconv.FormatBool(isPII)).Inc()
	if !parsed {
		m.ParseFailures.Inc()
	}
	m.ClassifyLatency.Observe(float64(d.Microseconds()))
}

// ObserveFinding counts one masked field
func (m *Metrics) ObserveFinding(category, kind string) {
	if m == nil {
		return
	}
	m.Findings.WithLabelValues(category, kind).Inc()
}

// ObserveSinkFailure counts a batch a sink gave up on
func (m *Metrics) ObserveSinkFailure(sink string) {
	if m == nil {
		return
	}
	m.SinkFailures.WithLabelValues(sink).Inc()
}

// ObserveHTTP counts one served request
func (m *Metrics) ObserveHTTP(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
