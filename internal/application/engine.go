package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ahrav/go-consensus/infrastructure/scoring"
	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// Operation names used in logs, metrics, and traces.
const (
	OpNewEvaluation    = "newEvaluation"
	OpUpdateEvaluation = "updateEvaluation"
	OpDeleteEvaluation = "deleteEvaluation"
)

// demographicForwardTimeout bounds the fire-and-forget analytics call
// so a stuck collaborator cannot leak goroutines indefinitely.
const demographicForwardTimeout = 5 * time.Second

// EngineParams carries the collaborators an Engine is wired with.
// Store and Evaluations are required; everything else is optional and
// degrades gracefully when absent.
type EngineParams struct {
	// Store is the statement/aggregate storage port.
	Store ports.StatementStore

	// Evaluations provides read access for evaluator counting.
	Evaluations ports.EvaluationStore

	// Demographics receives fire-and-forget evaluation forwards.
	Demographics ports.DemographicSink

	// Corroboration supplies the validated-consensus signal.
	Corroboration ports.CorroborationSource

	// Metrics receives operational metrics.
	Metrics ports.MetricsCollector

	// Logger receives structured failure logs. Defaults to a no-op.
	Logger *zap.Logger

	// Clock overrides time.Now for the idempotency guard, enabling
	// deterministic tests.
	Clock func() time.Time
}

// Engine is the event-dispatch entry point of the consensus core. It
// owns the idempotency guard and routes each evaluation change event
// through the diff calculator, the aggregate updater, and the
// chosen-options selector.
//
// Handlers are stateless with respect to each other: events for
// different statements, and even for the same statement, may be
// delivered concurrently or out of order. Correctness comes from the
// commutative atomic increments in the updater, not from delivery
// order.
type Engine struct {
	dedup    *Deduper
	updater  *AggregateUpdater
	selector *ChosenSelector
	repairs  *RepairQueue

	demographics ports.DemographicSink
	metrics      ports.MetricsCollector
	logger       *zap.Logger

	bypassSources map[string]struct{}
}

// NewEngine wires a complete engine from configuration and
// collaborators. The returned engine is inert until Start is called;
// Dispatch works without Start, but legacy repair passes only run while
// the engine is started.
func NewEngine(cfg Config, params EngineParams) (*Engine, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("engine requires a statement store")
	}
	if params.Evaluations == nil {
		return nil, fmt.Errorf("engine requires an evaluation store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	scorer, err := scoring.NewConsensusScorer(cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("scorer: %w", err)
	}

	dedup := NewDeduper(cfg.Dedup.Window(), cfg.Dedup.CompactThreshold, params.Clock)

	// The repair queue and updater reference each other's work: the
	// updater detects legacy aggregates and enqueues, the queue uses
	// the updater's recompute to backfill.
	updater := NewAggregateUpdater(params.Store, scorer, params.Corroboration, nil, logger)
	repairs := NewRepairQueue(params.Store, updater.Recompute, cfg.Repair, logger, params.Metrics)
	updater.repairs = repairs

	selector := NewChosenSelector(params.Store, params.Evaluations, cfg.DefaultPolicy, logger)

	bypass := make(map[string]struct{}, len(cfg.BypassSources))
	for _, source := range cfg.BypassSources {
		bypass[source] = struct{}{}
	}

	return &Engine{
		dedup:         dedup,
		updater:       updater,
		selector:      selector,
		repairs:       repairs,
		demographics:  params.Demographics,
		metrics:       params.Metrics,
		logger:        logger,
		bypassSources: bypass,
	}, nil
}

// Start launches the engine's background repair worker.
func (e *Engine) Start(ctx context.Context) { e.repairs.Start(ctx) }

// Stop terminates the background worker and waits for in-flight repair
// work to finish.
func (e *Engine) Stop() { e.repairs.Stop() }

// Dispatch routes one change event through the matching trigger
// handler. It is the absorbing error boundary of the engine: every
// failure is caught, logged with operation context, and swallowed, so
// a failed aggregation can never crash the event-processing worker or
// block subsequent events.
func (e *Engine) Dispatch(ctx context.Context, event domain.ChangeEvent) {
	operation := operationFor(event.Kind)

	tracer := otel.Tracer("consensus-engine")
	ctx, span := tracer.Start(ctx, "Engine.Dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", event.EventID),
		attribute.String("event.kind", string(event.Kind)),
	)

	start := time.Now()
	err := e.dispatch(ctx, event)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logFailure(operation, event, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if e.metrics != nil {
		labels := map[string]string{"operation": operation, "status": status}
		e.metrics.RecordLatency(operation, elapsed, labels)
		e.metrics.RecordCounter("aggregation_events_total", 1, labels)
	}
}

// dispatch performs the shared gating (source bypass, payload sanity,
// idempotency) and routes to the per-lifecycle handler.
func (e *Engine) dispatch(ctx context.Context, event domain.ChangeEvent) error {
	evaluation := event.Current()
	if evaluation == nil {
		return domain.ErrMissingEvaluation
	}

	// A designated source tag opts an evaluation out of this pipeline
	// entirely: a second writer path applies its own consensus update
	// and this engine must not double-apply it.
	if _, bypassed := e.bypassSources[evaluation.Source]; bypassed {
		return nil
	}

	if evaluation.StatementID == "" {
		return domain.NewAggregationError(operationFor(event.Kind), "", evaluation.EvaluatorID,
			domain.ErrMissingStatementID)
	}

	if e.dedup.Seen(event.EventID) {
		if e.metrics != nil {
			e.metrics.RecordCounter("aggregation_duplicate_events_total", 1,
				map[string]string{"operation": operationFor(event.Kind)})
		}
		return nil
	}

	switch event.Kind {
	case domain.ChangeCreated:
		return e.HandleCreated(ctx, event)
	case domain.ChangeUpdated:
		return e.HandleUpdated(ctx, event)
	case domain.ChangeDeleted:
		return e.HandleDeleted(ctx, event)
	default:
		return fmt.Errorf("unknown change kind %q", event.Kind)
	}
}

// HandleCreated processes the first vote of an evaluator on a
// statement. The prior value is zero by definition; the evaluator joins
// the opinion-holder count only when the new value is non-zero.
func (e *Engine) HandleCreated(ctx context.Context, event domain.ChangeEvent) error {
	after := event.After
	if after == nil {
		return domain.ErrMissingEvaluation
	}

	diff := scoring.Diff(scoring.ActionNew, 0, after.Value)
	evaluators := scoring.OpinionDelta(0, after.Value)

	return e.apply(ctx, OpNewEvaluation, after, diff.Delta(evaluators))
}

// HandleUpdated processes a re-vote. The opinion-holder count only
// moves on a transition through zero — gaining or losing an opinion —
// never on a magnitude-only change.
func (e *Engine) HandleUpdated(ctx context.Context, event domain.ChangeEvent) error {
	before, after := event.Before, event.After
	if before == nil || after == nil {
		return domain.ErrMissingEvaluation
	}

	diff := scoring.Diff(scoring.ActionUpdate, before.Value, after.Value)
	evaluators := scoring.OpinionDelta(before.Value, after.Value)

	return e.apply(ctx, OpUpdateEvaluation, after, diff.Delta(evaluators))
}

// HandleDeleted processes a vote withdrawal. The new value is zero by
// definition; the opinion-holder count drops only when the withdrawn
// vote was non-zero.
func (e *Engine) HandleDeleted(ctx context.Context, event domain.ChangeEvent) error {
	before := event.Before
	if before == nil {
		return domain.ErrMissingEvaluation
	}

	diff := scoring.Diff(scoring.ActionDelete, before.Value, 0)
	evaluators := scoring.OpinionDelta(before.Value, 0)

	return e.apply(ctx, OpDeleteEvaluation, before, diff.Delta(evaluators))
}

// apply runs the shared tail of every handler: aggregate update,
// chosen-options refresh on the parent, and the fire-and-forget
// demographic forward.
func (e *Engine) apply(
	ctx context.Context,
	operation string,
	evaluation *domain.Evaluation,
	delta domain.AggregateDelta,
) error {
	agg, err := e.updater.Apply(ctx, evaluation.StatementID, evaluation.ParentID, delta)
	if err != nil {
		return domain.NewAggregationError(operation, evaluation.StatementID, evaluation.EvaluatorID, err)
	}

	if e.metrics != nil {
		e.metrics.RecordHistogram("consensus_score", agg.ConsensusScore,
			map[string]string{"operation": operation})
	}

	if err := e.selector.Refresh(ctx, evaluation.ParentID); err != nil {
		return domain.NewAggregationError(operation, evaluation.StatementID, evaluation.EvaluatorID, err)
	}

	e.forwardDemographics(ctx, evaluation)

	return nil
}

// forwardDemographics sends the evaluation result to the analytics
// collaborator without joining its fate to the handler: the call runs
// on its own goroutine, detached from the handler's cancellation, and
// a failure is logged and ignored.
func (e *Engine) forwardDemographics(ctx context.Context, evaluation *domain.Evaluation) {
	if e.demographics == nil {
		return
	}

	detached := context.WithoutCancel(ctx)
	statementID := evaluation.StatementID
	evaluatorID := evaluation.EvaluatorID
	value := evaluation.Value

	go func() {
		ctx, cancel := context.WithTimeout(detached, demographicForwardTimeout)
		defer cancel()

		if err := e.demographics.Record(ctx, statementID, evaluatorID, value); err != nil {
			e.logger.Warn("demographic forwarding failed",
				zap.String("statementId", statementID),
				zap.String("evaluatorId", evaluatorID),
				zap.Error(err))
		}
	}()
}

// logFailure emits the structured log entry required for every caught
// failure: operation, statement id, evaluator id when known, and the
// message. Retryability is logged for the delivery channel's benefit;
// the engine itself never retries.
func (e *Engine) logFailure(operation string, event domain.ChangeEvent, err error) {
	statementID, evaluatorID := "", ""
	if evaluation := event.Current(); evaluation != nil {
		statementID = evaluation.StatementID
		evaluatorID = evaluation.EvaluatorID
	}

	var aggErr *domain.AggregationError
	if errors.As(err, &aggErr) {
		operation = aggErr.Operation
		statementID = aggErr.StatementID
		if aggErr.EvaluatorID != "" {
			evaluatorID = aggErr.EvaluatorID
		}
	}

	retryable := false
	var storeErr *ports.StoreError
	if errors.As(err, &storeErr) {
		retryable = storeErr.IsRetryable()
	}

	e.logger.Error("aggregation failed",
		zap.String("operation", operation),
		zap.String("statementId", statementID),
		zap.String("evaluatorId", evaluatorID),
		zap.String("eventId", event.EventID),
		zap.Bool("retryable", retryable),
		zap.String("message", err.Error()))
}

func operationFor(kind domain.ChangeKind) string {
	switch kind {
	case domain.ChangeCreated:
		return OpNewEvaluation
	case domain.ChangeUpdated:
		return OpUpdateEvaluation
	case domain.ChangeDeleted:
		return OpDeleteEvaluation
	default:
		return string(kind)
	}
}
