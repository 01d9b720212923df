// Command simulate_consensus drives a synthetic evaluation workload
// through the full engine: concurrent evaluators voting, re-voting, and
// withdrawing votes over a set of sibling statements, followed by a dump
// of the final ranking. It exists to exercise the concurrency contract
// end to end and to give a quick feel for how the scoring behaves.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-consensus/infrastructure/memstore"
	"github.com/ahrav/go-consensus/internal/application"
	"github.com/ahrav/go-consensus/internal/domain"
)

func main() {
	var (
		statements = flag.Int("statements", 8, "Number of sibling statements under one parent")
		evaluators = flag.Int("evaluators", 50, "Number of evaluators voting concurrently")
		revotes    = flag.Int("revotes", 2, "Re-vote rounds after the initial pass")
		topN       = flag.Int("top", 3, "How many winners the parent's policy chooses")
		seed       = flag.Int64("seed", 42, "Random seed for reproducible runs")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	store := memstore.New()

	parent := domain.Statement{
		ID: "parent",
		RankingPolicy: &domain.RankingPolicy{
			Metric: domain.MetricConsensus,
			Mode:   domain.SelectTopN,
			N:      *topN,
		},
	}
	store.PutStatement(parent)

	ids := make([]string, *statements)
	for i := range ids {
		ids[i] = fmt.Sprintf("statement-%02d", i+1)
		store.PutStatement(domain.Statement{ID: ids[i], ParentID: "parent", TopParentID: "parent"})
	}

	engine, err := application.NewEngine(application.DefaultConfig(), application.EngineParams{
		Store:       store,
		Evaluations: store,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	ctx := context.Background()
	engine.Start(ctx)
	defer engine.Stop()

	// Each statement gets a hidden "true quality" so the final ranking
	// has something real to converge on; votes are quality plus noise.
	rng := rand.New(rand.NewSource(*seed))
	quality := make([]float64, *statements)
	for i := range quality {
		quality[i] = rng.Float64()*2 - 1
	}

	vote := func(rng *rand.Rand, statement int) float64 {
		v := quality[statement] + rng.NormFloat64()*0.4
		return max(-1, min(1, v))
	}

	for round := 0; round <= *revotes; round++ {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(16)

		for e := 0; e < *evaluators; e++ {
			g.Go(func() error {
				// Per-goroutine source keeps the run reproducible-ish
				// without serializing on one shared rand.
				local := rand.New(rand.NewSource(*seed + int64(round*1000+e)))
				evaluatorID := fmt.Sprintf("evaluator-%03d", e)

				for s := 0; s < *statements; s++ {
					if local.Float64() < 0.3 {
						continue // not every evaluator votes on everything
					}

					after := domain.Evaluation{
						EvaluatorID: evaluatorID,
						StatementID: ids[s],
						ParentID:    "parent",
						Value:       vote(local, s),
					}
					before := store.UpsertEvaluation(after)

					event := domain.ChangeEvent{EventID: uuid.NewString()}
					switch {
					case before == nil:
						event.Kind = domain.ChangeCreated
						event.After = &after
					case local.Float64() < 0.1:
						// Occasionally withdraw instead of re-voting.
						store.RemoveEvaluation("parent", evaluatorID, ids[s])
						event.Kind = domain.ChangeDeleted
						event.Before = before
					default:
						event.Kind = domain.ChangeUpdated
						event.Before = before
						event.After = &after
					}

					engine.Dispatch(gctx, event)
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			log.Fatalf("Simulation round %d failed: %v", round, err)
		}
	}

	printRanking(ctx, store, quality, ids)
}

func printRanking(ctx context.Context, store *memstore.Store, quality []float64, ids []string) {
	parent, err := store.GetStatement(ctx, "parent")
	if err != nil {
		log.Fatalf("Failed to load parent: %v", err)
	}

	children, err := store.ListChildren(ctx, "parent")
	if err != nil {
		log.Fatalf("Failed to list children: %v", err)
	}

	trueQuality := make(map[string]float64, len(ids))
	for i, id := range ids {
		trueQuality[id] = quality[i]
	}

	chosenCount := 0
	if parent.Results != nil {
		chosenCount = parent.Results.Count
	}
	fmt.Printf("\nFinal ranking: %d distinct evaluators, %d chosen\n", parent.EvaluatorCount, chosenCount)
	fmt.Printf("%-14s %8s %8s %8s %6s %7s\n", "statement", "score", "mean", "true", "votes", "chosen")

	for _, child := range children {
		agg := child.EvaluationAggregate
		if agg == nil {
			continue
		}
		chosen := ""
		if child.IsChosen {
			chosen = "*"
		}
		fmt.Printf("%-14s %8.3f %8.3f %8.3f %6d %7s\n",
			child.ID, agg.ConsensusScore, agg.Mean, trueQuality[child.ID], agg.Evaluators, chosen)
	}
}
