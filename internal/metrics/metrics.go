// Package metrics holds the Prometheus collectors shared by the pipelines.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for marketgraph. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	VolatilityResults *prometheus.CounterVec
	HistoryRequests   *prometheus.CounterVec
	RateLimitWait     prometheus.Histogram

	RelationsCreated prometheus.Counter
	RelationsSkipped prometheus.Counter
	RelationsFailed  prometheus.Counter

	MarketsScraped prometheus.Counter
	BatchDuration  *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates and registers all collectors on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VolatilityResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketgraph_volatility_results_total",
			Help: "Volatility results by calculation method",
		}, []string{"method"}),

		HistoryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketgraph_price_history_requests_total",
			Help: "Price-history fetches by outcome",
		}, []string{"outcome"}),

		RateLimitWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketgraph_rate_limit_wait_seconds",
			Help:    "Time callers spent suspended in the request limiter",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),

		RelationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "marketgraph_relations_created_total",
			Help: "Relations persisted by discovery runs",
		}),
		RelationsSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "marketgraph_relations_skipped_total",
			Help: "Candidates skipped as existing or below the correlation threshold",
		}),
		RelationsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "marketgraph_relations_failed_total",
			Help: "Relations that failed to persist",
		}),

		MarketsScraped: f.NewCounter(prometheus.CounterOpts{
			Name: "marketgraph_markets_scraped_total",
			Help: "Markets fetched from the Gamma API",
		}),

		BatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketgraph_batch_duration_seconds",
			Help:    "Wall time per pipeline batch",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"pipeline"}),

		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordVolatility counts one volatility result.
func (m *Metrics) RecordVolatility(method string) {
	if m == nil {
		return
	}
	m.VolatilityResults.WithLabelValues(method).Inc()
}

// RecordHistoryRequest counts one price-history fetch outcome.
func (m *Metrics) RecordHistoryRequest(outcome string) {
	if m == nil {
		return
	}
	m.HistoryRequests.WithLabelValues(outcome).Inc()
}

// RecordRateLimitWait observes one limiter suspension.
func (m *Metrics) RecordRateLimitWait(d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.Observe(d.Seconds())
}

// RecordDiscovery adds one market's discovery totals.
func (m *Metrics) RecordDiscovery(created, skipped, failed int) {
	if m == nil {
		return
	}
	m.RelationsCreated.Add(float64(created))
	m.RelationsSkipped.Add(float64(skipped))
	m.RelationsFailed.Add(float64(failed))
}

// RecordScraped counts markets fetched from upstream.
func (m *Metrics) RecordScraped(n int) {
	if m == nil {
		return
	}
	m.MarketsScraped.Add(float64(n))
}

// RecordBatch observes the duration of one pipeline batch.
func (m *Metrics) RecordBatch(pipeline string, d time.Duration) {
	if m == nil {
		return
	}
	m.BatchDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}
