// Package middleware provides cross-cutting concerns for the consensus
// engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-consensus/internal/ports"
)

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It provides real-time monitoring of event throughput,
// duplicate suppression, handler latency, score distributions, and the
// repair queue.
type PrometheusMetrics struct {
	eventsTotal     *prometheus.CounterVec
	duplicatesTotal *prometheus.CounterVec
	repairedTotal   prometheus.Counter
	handlerLatency  *prometheus.HistogramVec
	consensusScores *prometheus.HistogramVec
	systemGauges    *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance and
// registers all required metrics in the global Prometheus registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		eventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregation_events_total",
				Help: "Total number of evaluation change events processed, by operation and status.",
			},
			[]string{"operation", "status"},
		),
		duplicatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregation_duplicate_events_total",
				Help: "Total number of redelivered events short-circuited by the idempotency guard.",
			},
			[]string{"operation"},
		),
		repairedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "aggregates_repaired_total",
				Help: "Total number of legacy aggregates backfilled by the repair pass.",
			},
		),
		handlerLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aggregation_duration_seconds",
				Help:    "Execution time of trigger handler dispatch.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "status"},
		),
		consensusScores: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consensus_score",
				Help:    "Distribution of consensus scores written by the aggregate updater.",
				Buckets: prometheus.LinearBuckets(-1, 0.1, 21),
			},
			[]string{"operation"},
		),
		systemGauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "consensus_engine_system_state",
				Help: "Current system state values for the consensus engine.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// handler latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	status, ok := labels["status"]
	if !ok {
		status = "success"
	}
	pm.handlerLatency.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by
// incrementing Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "aggregation_events_total":
		status, ok := labels["status"]
		if !ok {
			status = "success"
		}
		pm.eventsTotal.WithLabelValues(labels["operation"], status).Add(value)
	case "aggregation_duplicate_events_total":
		pm.duplicatesTotal.WithLabelValues(labels["operation"]).Add(value)
	case "aggregates_repaired_total":
		pm.repairedTotal.Add(value)
	default:
		pm.eventsTotal.WithLabelValues(metric, "success").Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, _ map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by
// recording values in the metric-appropriate histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "consensus_score":
		pm.consensusScores.WithLabelValues(labels["operation"]).Observe(value)
	default:
		status, ok := labels["status"]
		if !ok {
			status = "success"
		}
		pm.handlerLatency.WithLabelValues(metric, status).Observe(value)
	}
}
