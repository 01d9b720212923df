package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during aggregation operations.
var (
	// ErrStatementNotFound indicates the target statement does not exist.
	// A deleted statement cannot be aggregated into.
	ErrStatementNotFound = errors.New("statement not found")

	// ErrMissingStatementID indicates an evaluation payload arrived
	// without a statement id and is logically unrecoverable.
	ErrMissingStatementID = errors.New("evaluation missing statement id")

	// ErrMissingEvaluation indicates a change event arrived without the
	// evaluation record its kind requires.
	ErrMissingEvaluation = errors.New("change event missing evaluation record")

	// ErrUnknownMetric indicates a ranking policy references a metric
	// this engine does not implement.
	ErrUnknownMetric = errors.New("unknown ranking metric")

	// ErrUnknownSelectionMode indicates a ranking policy references a
	// selection mode this engine does not implement.
	ErrUnknownSelectionMode = errors.New("unknown selection mode")

	// ErrInvalidPolicy indicates a ranking policy is internally
	// inconsistent (for example topN without a positive n).
	ErrInvalidPolicy = errors.New("invalid ranking policy")
)

// AggregationError carries the context a caught handler failure is
// logged with: the operation that failed and the statement and
// evaluator it was working on.
type AggregationError struct {
	// Operation names the handler step that failed.
	Operation string

	// StatementID is the statement being aggregated into.
	StatementID string

	// EvaluatorID is the voter whose event was being processed,
	// when known.
	EvaluatorID string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface for AggregationError.
func (e *AggregationError) Error() string {
	if e.EvaluatorID != "" {
		return fmt.Sprintf("aggregation error: operation=%s, statement=%s, evaluator=%s, err=%v",
			e.Operation, e.StatementID, e.EvaluatorID, e.Err)
	}
	return fmt.Sprintf("aggregation error: operation=%s, statement=%s, err=%v",
		e.Operation, e.StatementID, e.Err)
}

// Unwrap returns the underlying error, supporting errors.Is and errors.As.
func (e *AggregationError) Unwrap() error { return e.Err }

// NewAggregationError creates an AggregationError with the given context.
func NewAggregationError(operation, statementID, evaluatorID string, err error) *AggregationError {
	return &AggregationError{
		Operation:   operation,
		StatementID: statementID,
		EvaluatorID: evaluatorID,
		Err:         err,
	}
}
