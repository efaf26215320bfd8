// Package middleware provides cross-cutting concerns for the
// verification engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements ports.MetricsCollector using Prometheus.
// It covers oracle request telemetry, verification run outcomes, and
// manual review activity.
type PrometheusMetrics struct {
	oracleRequestSeconds *prometheus.HistogramVec
	oracleRequestsTotal  *prometheus.CounterVec
	oracleTokensTotal    *prometheus.CounterVec

	verificationRuns  *prometheus.CounterVec
	verificationScore *prometheus.HistogramVec
	manualReviews     *prometheus.CounterVec

	operationLatency *prometheus.HistogramVec
	genericCounter   *prometheus.CounterVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and
// registers all metrics in the default Prometheus registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		oracleRequestSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_request_seconds",
				Help:    "Latency of scoring oracle requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "status"},
		),
		oracleRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_requests_total",
				Help: "Total scoring oracle requests by outcome.",
			},
			[]string{"model", "status"},
		),
		oracleTokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_tokens_total",
				Help: "Total tokens exchanged with the scoring oracle.",
			},
			[]string{"model", "status"},
		),
		verificationRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_runs_total",
				Help: "Total verification runs by kind, resulting status, and fallback use.",
			},
			[]string{"kind", "status", "fallback"},
		),
		verificationScore: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verification_score",
				Help:    "Distribution of AI verification scores.",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
			[]string{"kind", "status", "fallback"},
		),
		manualReviews: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manual_reviews_total",
				Help: "Total manual review decisions by kind and verdict.",
			},
			[]string{"kind", "decision"},
		),
		operationLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "veriflow_operation_duration_seconds",
				Help:    "Execution time of verification engine operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		genericCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veriflow_events_total",
				Help: "Counters that have no dedicated metric.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency records the execution time of an operation.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, _ map[string]string) {
	pm.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter increments the counter matching the metric name.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "oracle_requests_total":
		pm.oracleRequestsTotal.WithLabelValues(labels["model"], labels["status"]).Add(value)
	case "oracle_tokens_total":
		pm.oracleTokensTotal.WithLabelValues(labels["model"], labels["status"]).Add(value)
	case "verification_runs_total":
		pm.verificationRuns.WithLabelValues(labels["kind"], labels["status"], labels["fallback"]).Add(value)
	case "manual_reviews_total":
		pm.manualReviews.WithLabelValues(labels["kind"], labels["decision"]).Add(value)
	default:
		pm.genericCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordHistogram records a value in the distribution matching the
// metric name.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "oracle_request_seconds":
		pm.oracleRequestSeconds.WithLabelValues(labels["model"], labels["status"]).Observe(value)
	case "verification_score":
		pm.verificationScore.WithLabelValues(labels["kind"], labels["status"], labels["fallback"]).Observe(value)
	}
}
