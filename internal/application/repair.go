package application

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-consensus/internal/ports"
)

// Default repair-queue parameters.
const (
	DefaultRepairQueueSize     = 64
	DefaultRepairRatePerSecond = 2.0
	DefaultRepairConcurrency   = 4
)

// RepairQueue runs the best-effort repair pass over legacy aggregates.
// When the updater touches an aggregate missing current derived fields,
// it enqueues the statement's parent here; a background worker then
// walks the parent's children and backfills every legacy sibling.
//
// The queue is deliberately lossy: enqueueing never blocks, a full
// queue drops the request, and a parent already pending is not queued
// twice. Repair must never block or fail the critical aggregation path.
type RepairQueue struct {
	store     ports.StatementStore
	recompute func(ctx context.Context, statementID string) ports.RecomputeFunc
	logger    *zap.Logger
	metrics   ports.MetricsCollector

	limiter     *rate.Limiter
	concurrency int

	mu      sync.Mutex
	pending map[string]struct{}

	queue chan string
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewRepairQueue creates a repair queue. The recompute factory supplies
// the derived-field computation for each repaired statement (typically
// AggregateUpdater.Recompute). The queue is inert until Start is called.
func NewRepairQueue(
	store ports.StatementStore,
	recompute func(ctx context.Context, statementID string) ports.RecomputeFunc,
	cfg RepairConfig,
	logger *zap.Logger,
	metrics ports.MetricsCollector,
) *RepairQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultRepairQueueSize
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = DefaultRepairRatePerSecond
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultRepairConcurrency
	}

	return &RepairQueue{
		store:       store,
		recompute:   recompute,
		logger:      logger,
		metrics:     metrics,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), 1),
		concurrency: concurrency,
		pending:     make(map[string]struct{}),
		queue:       make(chan string, size),
		stop:        make(chan struct{}),
	}
}

// Start launches the background worker. The worker exits when the
// context is cancelled or Stop is called.
func (q *RepairQueue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.run(ctx)
	}()
}

// Stop terminates the worker and waits for the in-flight repair pass,
// if any, to finish.
func (q *RepairQueue) Stop() {
	close(q.stop)
	q.wg.Wait()
}

// Enqueue schedules a repair pass over the children of parentID.
// It never blocks: a parent already pending is skipped, and a full
// queue drops the request with a log line.
func (q *RepairQueue) Enqueue(parentID string) {
	if parentID == "" {
		return
	}

	q.mu.Lock()
	if _, dup := q.pending[parentID]; dup {
		q.mu.Unlock()
		return
	}
	q.pending[parentID] = struct{}{}
	q.mu.Unlock()

	select {
	case q.queue <- parentID:
		if q.metrics != nil {
			q.metrics.RecordGauge("repair_queue_depth", float64(len(q.queue)), nil)
		}
	default:
		q.clearPending(parentID)
		q.logger.Warn("repair queue full, dropping repair request",
			zap.String("parentId", parentID))
	}
}

func (q *RepairQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case parentID := <-q.queue:
			q.clearPending(parentID)
			if err := q.limiter.Wait(ctx); err != nil {
				return
			}
			q.repairSiblings(ctx, parentID)
		}
	}
}

// repairSiblings backfills derived fields on every legacy aggregate
// under the parent. Individual failures are logged and skipped; the
// pass is best-effort by contract.
func (q *RepairQueue) repairSiblings(ctx context.Context, parentID string) {
	children, err := q.store.ListChildren(ctx, parentID)
	if err != nil {
		q.logger.Warn("repair pass could not list children",
			zap.String("parentId", parentID),
			zap.Error(err))
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.concurrency)

	var repaired int
	var mu sync.Mutex

	for _, child := range children {
		agg := child.EvaluationAggregate
		if agg == nil || !agg.IsLegacy() {
			continue
		}

		g.Go(func() error {
			if err := q.store.RepairAggregate(gctx, child.ID, q.recompute(gctx, child.ID)); err != nil {
				q.logger.Warn("sibling repair failed",
					zap.String("operation", "repairAggregate"),
					zap.String("statementId", child.ID),
					zap.Error(err))
				return nil // best-effort: keep repairing the rest
			}
			mu.Lock()
			repaired++
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	if repaired > 0 {
		q.logger.Info("repaired legacy sibling aggregates",
			zap.String("parentId", parentID),
			zap.Int("repaired", repaired))
		if q.metrics != nil {
			q.metrics.RecordCounter("aggregates_repaired_total", float64(repaired), nil)
		}
	}
}

func (q *RepairQueue) clearPending(parentID string) {
	q.mu.Lock()
	delete(q.pending, parentID)
	q.mu.Unlock()
}
