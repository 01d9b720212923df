// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-consensus/internal/domain"
)

// RecomputeFunc derives the aggregate's derived fields from its
// post-increment counters. The storage layer invokes it inside the same
// atomic unit of work that applied the counter increments, so the
// derived values always reflect the counters' state as observed at
// commit time.
type RecomputeFunc func(agg domain.EvaluationAggregate) domain.DerivedScores

// StatementStore is the storage contract for statements and their
// aggregates. Implementations sit on a document database that supplies
// durable storage, single-statement transactions, and atomic counter
// increments; no cross-statement isolation is required or assumed.
type StatementStore interface {
	// GetStatement returns the statement with the given id, or
	// domain.ErrStatementNotFound.
	GetStatement(ctx context.Context, id string) (*domain.Statement, error)

	// ApplyAggregateDelta applies a signed delta to the statement's
	// aggregate counters via commutative atomic increments, then calls
	// recompute with the post-increment counters and overwrites the
	// derived fields — all inside one atomically-isolated unit of work
	// scoped to the statement. The aggregate is created lazily at zero
	// when the statement has none yet.
	//
	// The returned boolean reports whether the stored aggregate was a
	// legacy record (missing derived fields expected by all current
	// aggregates) that was backfilled inline by this call.
	//
	// Returns domain.ErrStatementNotFound when the statement does not
	// exist; a deleted statement cannot be aggregated into.
	ApplyAggregateDelta(
		ctx context.Context,
		statementID string,
		delta domain.AggregateDelta,
		recompute RecomputeFunc,
	) (*domain.EvaluationAggregate, bool, error)

	// RepairAggregate recomputes and overwrites the derived fields of a
	// single statement's aggregate from its current counters, stamping
	// the current schema version. Used by the background repair pass;
	// statements without an aggregate are left untouched.
	RepairAggregate(ctx context.Context, statementID string, recompute RecomputeFunc) error

	// ListChildren returns every statement whose ParentID is parentID.
	// The result order is the store's stable fetch order; callers must
	// not treat tie order among equal metric values as specified.
	ListChildren(ctx context.Context, parentID string) ([]*domain.Statement, error)

	// SetChosen clears the chosen flag on all of the parent's children
	// and sets it on exactly the given ids, as one batch update.
	SetChosen(ctx context.Context, parentID string, chosenIDs []string) error

	// WriteResults overwrites the parent's denormalized snapshot of its
	// chosen children.
	WriteResults(ctx context.Context, parentID string, results domain.ResultsSnapshot) error

	// SetEvaluatorCount overwrites the parent's cached count of
	// distinct evaluators with a non-zero vote under it.
	SetEvaluatorCount(ctx context.Context, statementID string, count int) error
}

// EvaluationStore provides read access to the evaluations under a
// parent statement, used for distinct-evaluator counting.
type EvaluationStore interface {
	// ListByParent returns every evaluation whose ParentID is parentID.
	ListByParent(ctx context.Context, parentID string) ([]*domain.Evaluation, error)
}
