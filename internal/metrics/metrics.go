// Package metrics exposes Prometheus instrumentation for ChainGuard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chainguard"

// Metrics holds all the Prometheus metrics for the dashboard.
type Metrics struct {
	RecordsSynthesized *prometheus.CounterVec
	BlockHeight        prometheus.Gauge
	AnalysisRequests   *prometheus.CounterVec
	AnalysisDuration   prometheus.Histogram
	AnalysisStale      prometheus.Counter
	RuleToggles        prometheus.Counter
	FeedPublished      prometheus.Counter
	FeedDropped        prometheus.Counter
	FeedErrors         prometheus.Counter
}

// New registers all metrics with reg. A nil reg uses a private registry,
// which keeps tests and repeated construction from colliding.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		RecordsSynthesized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_synthesized_total",
			Help:      "Total number of simulated records by status",
		}, []string{"status"}),
		BlockHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "block_height",
			Help:      "Current simulated block height",
		}),
		AnalysisRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_requests_total",
			Help:      "Total number of analysis requests by outcome",
		}, []string{"outcome"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Latency of analysis requests",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		AnalysisStale: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_stale_total",
			Help:      "Analysis results discarded because the selection changed",
		}),
		RuleToggles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_toggles_total",
			Help:      "Total number of rule toggles",
		}),
		FeedPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_published_total",
			Help:      "Records published to the feed",
		}),
		FeedDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_dropped_total",
			Help:      "Records dropped because the feed buffer was full",
		}),
		FeedErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_errors_total",
			Help:      "Feed publish errors",
		}),
	}
}

// ObserveRecord counts one synthesized record.
func (m *Metrics) ObserveRecord(status string) {
	m.RecordsSynthesized.WithLabelValues(status).Inc()
}

// SetBlockHeight records the current block height.
func (m *Metrics) SetBlockHeight(h uint64) {
	m.BlockHeight.Set(float64(h))
}

// ObserveAnalysis counts one analysis request and its latency.
func (m *Metrics) ObserveAnalysis(outcome string, elapsed time.Duration) {
	m.AnalysisRequests.WithLabelValues(outcome).Inc()
	m.AnalysisDuration.Observe(elapsed.Seconds())
}

// IncrementStale counts a discarded analysis result.
func (m *Metrics) IncrementStale() {
	m.AnalysisStale.Inc()
}

// IncrementRuleToggles counts a rule toggle.
func (m *Metrics) IncrementRuleToggles() {
	m.RuleToggles.Inc()
}

func (m *Metrics) IncPublished() { m.FeedPublished.Inc() }
func (m *Metrics) IncDropped()   { m.FeedDropped.Inc() }
func (m *Metrics) IncErrors()    { m.FeedErrors.Inc() }
