package ports

import (
	"context"
	"time"
)

// DemographicSink receives evaluation results for demographic and
// polarization analytics. Calls are fire-and-forget: failures are
// logged by the caller and never fail the aggregation pipeline.
type DemographicSink interface {
	// Record forwards one evaluation result to the analytics
	// collaborator.
	Record(ctx context.Context, statementID, evaluatorID string, value float64) error
}

// CorroborationSource supplies the independent corroboration signal
// combined with the raw consensus score into the validated consensus.
// The signal's meaning is owned by a collaborating subsystem; this
// engine consumes it as an opaque factor in [0, 1].
type CorroborationSource interface {
	// Factor returns the corroboration factor for a statement.
	// Implementations should return 1 when no corroboration data
	// exists, leaving the validated consensus equal to the raw score.
	Factor(ctx context.Context, statementID string) (float64, error)
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus, OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like dedup hits, errors, etc.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like queue depth.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
