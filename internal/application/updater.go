package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ahrav/go-consensus/infrastructure/scoring"
	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// AggregateUpdater applies one evaluation's diff to one statement's
// aggregate, durably and correctly under concurrent, possibly
// simultaneous triggers for the same statement.
//
// All counting fields move through the storage layer's commutative
// atomic increments, never read-then-write, so concurrent deltas
// compose regardless of application order. The derived fields are
// recomputed from the post-increment counters inside the same atomic
// unit of work and written as plain overwrites.
type AggregateUpdater struct {
	store         ports.StatementStore
	scorer        *scoring.ConsensusScorer
	corroboration ports.CorroborationSource
	repairs       *RepairQueue
	logger        *zap.Logger
}

// NewAggregateUpdater creates an updater. The corroboration source and
// repair queue are optional; without a source the corroboration factor
// is 1 and the validated consensus equals the raw score, and without a
// queue legacy sibling repair is skipped.
func NewAggregateUpdater(
	store ports.StatementStore,
	scorer *scoring.ConsensusScorer,
	corroboration ports.CorroborationSource,
	repairs *RepairQueue,
	logger *zap.Logger,
) *AggregateUpdater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregateUpdater{
		store:         store,
		scorer:        scorer,
		corroboration: corroboration,
		repairs:       repairs,
		logger:        logger,
	}
}

// Apply commits one aggregate delta against the statement and returns
// the post-commit aggregate. The parent id is only used to schedule a
// best-effort sibling repair when the touched aggregate turns out to be
// a legacy record; the repair never blocks or fails the update.
//
// A missing statement fails the update with domain.ErrStatementNotFound
// and is not retried: a deleted statement cannot be aggregated into.
func (u *AggregateUpdater) Apply(
	ctx context.Context,
	statementID, parentID string,
	delta domain.AggregateDelta,
) (*domain.EvaluationAggregate, error) {
	if statementID == "" {
		return nil, domain.ErrMissingStatementID
	}

	factor := u.corroborationFactor(ctx, statementID)

	recompute := func(agg domain.EvaluationAggregate) domain.DerivedScores {
		return u.scorer.Derive(agg, factor)
	}

	agg, legacyRepaired, err := u.store.ApplyAggregateDelta(ctx, statementID, delta, recompute)
	if err != nil {
		return nil, fmt.Errorf("apply delta to %s: %w", statementID, err)
	}

	if legacyRepaired {
		u.logger.Info("backfilled legacy aggregate",
			zap.String("statementId", statementID),
			zap.Int("schemaVersion", agg.SchemaVersion))
		if u.repairs != nil && parentID != "" {
			u.repairs.Enqueue(parentID)
		}
	}

	return agg, nil
}

// Recompute derives fresh scores for a statement's aggregate without
// applying a delta, used by the repair pass.
func (u *AggregateUpdater) Recompute(ctx context.Context, statementID string) ports.RecomputeFunc {
	factor := u.corroborationFactor(ctx, statementID)
	return func(agg domain.EvaluationAggregate) domain.DerivedScores {
		return u.scorer.Derive(agg, factor)
	}
}

// corroborationFactor fetches the opaque corroboration signal, falling
// back to 1 (validated equals raw) when the source is absent or fails.
// A failing corroboration collaborator must not fail the update.
func (u *AggregateUpdater) corroborationFactor(ctx context.Context, statementID string) float64 {
	if u.corroboration == nil {
		return 1
	}
	factor, err := u.corroboration.Factor(ctx, statementID)
	if err != nil {
		u.logger.Warn("corroboration source failed, using neutral factor",
			zap.String("statementId", statementID),
			zap.Error(err))
		return 1
	}
	return factor
}
