package application

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// maxPolicyDepth bounds the ancestor walk when resolving an inherited
// ranking policy, guarding against parent-pointer cycles in the data.
const maxPolicyDepth = 16

// ChosenSelector re-derives a parent statement's ranked set of winning
// children after any child's aggregate changes, and refreshes the
// parent's cached unique-evaluator count.
//
// Concurrent refreshes of the same parent are collapsed into one pass
// via singleflight; every child change still observes a refresh that
// started at or after its own commit, so the final ranking reflects the
// final aggregates.
type ChosenSelector struct {
	statements  ports.StatementStore
	evaluations ports.EvaluationStore
	logger      *zap.Logger

	defaultPolicy domain.RankingPolicy

	group singleflight.Group
	// locks serializes the refresh body per parent. The singleflight
	// key is forgotten as soon as a pass begins, so a change committed
	// mid-pass starts its own pass; the lock keeps those passes from
	// interleaving their writes.
	locks sync.Map // parentID -> *sync.Mutex
}

// NewChosenSelector creates a selector. The default policy applies when
// neither the parent nor any ancestor configures one; a zero-value
// policy falls back to domain.DefaultRankingPolicy.
func NewChosenSelector(
	statements ports.StatementStore,
	evaluations ports.EvaluationStore,
	defaultPolicy domain.RankingPolicy,
	logger *zap.Logger,
) *ChosenSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultPolicy.Validate() != nil {
		defaultPolicy = domain.DefaultRankingPolicy()
	}
	return &ChosenSelector{
		statements:    statements,
		evaluations:   evaluations,
		logger:        logger,
		defaultPolicy: defaultPolicy,
	}
}

// Refresh recomputes the chosen children and evaluator count of the
// parent. A statement with no parent (a top-level statement) is a
// no-op. Safe for concurrent use.
func (s *ChosenSelector) Refresh(ctx context.Context, parentID string) error {
	if parentID == "" {
		return nil
	}
	_, err, _ := s.group.Do(parentID, func() (any, error) {
		// Forget before reading so a commit landing after this pass
		// began triggers a fresh pass instead of sharing stale reads.
		s.group.Forget(parentID)

		mu := s.lockFor(parentID)
		mu.Lock()
		defer mu.Unlock()
		return nil, s.refresh(ctx, parentID)
	})
	return err
}

func (s *ChosenSelector) lockFor(parentID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(parentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *ChosenSelector) refresh(ctx context.Context, parentID string) error {
	parent, err := s.statements.GetStatement(ctx, parentID)
	if err != nil {
		return fmt.Errorf("load parent %s: %w", parentID, err)
	}

	policy := s.resolvePolicy(ctx, parent)

	children, err := s.statements.ListChildren(ctx, parentID)
	if err != nil {
		return fmt.Errorf("list children of %s: %w", parentID, err)
	}

	chosen, err := selectChosen(policy, children)
	if err != nil {
		return fmt.Errorf("select chosen of %s: %w", parentID, err)
	}

	ids := make([]string, len(chosen))
	options := make([]domain.ResultOption, len(chosen))
	for i, c := range chosen {
		ids[i] = c.statement.ID
		options[i] = domain.ResultOption{StatementID: c.statement.ID, Score: c.value}
	}

	if err := s.statements.SetChosen(ctx, parentID, ids); err != nil {
		return fmt.Errorf("set chosen of %s: %w", parentID, err)
	}

	snapshot := domain.ResultsSnapshot{Count: len(options), Options: options}
	if err := s.statements.WriteResults(ctx, parentID, snapshot); err != nil {
		return fmt.Errorf("write results of %s: %w", parentID, err)
	}

	// The evaluator count is independent of which children are chosen
	// and is refreshed on every call.
	if err := s.refreshEvaluatorCount(ctx, parentID); err != nil {
		return fmt.Errorf("refresh evaluator count of %s: %w", parentID, err)
	}

	return nil
}

// resolvePolicy returns the parent's own policy, the nearest ancestor's,
// or the configured default. Storage errors during the walk degrade to
// the default rather than failing the refresh.
func (s *ChosenSelector) resolvePolicy(ctx context.Context, parent *domain.Statement) domain.RankingPolicy {
	current := parent
	for depth := 0; depth < maxPolicyDepth; depth++ {
		if current.RankingPolicy != nil {
			if err := current.RankingPolicy.Validate(); err != nil {
				s.logger.Warn("ignoring invalid ranking policy",
					zap.String("statementId", current.ID),
					zap.Error(err))
				break
			}
			return *current.RankingPolicy
		}
		if current.ParentID == "" {
			break
		}
		next, err := s.statements.GetStatement(ctx, current.ParentID)
		if err != nil {
			break
		}
		current = next
	}
	return s.defaultPolicy
}

// scoredStatement pairs a candidate with its extracted metric value.
type scoredStatement struct {
	statement *domain.Statement
	value     float64
}

// selectChosen applies the ranking policy to the candidate children.
// Hidden and merged-away children are never candidates. Candidates are
// ordered by metric descending with a stable sort, so the tie order
// among equal values is the store's fetch order — unspecified, and not
// a behavioral guarantee.
func selectChosen(policy domain.RankingPolicy, children []*domain.Statement) ([]scoredStatement, error) {
	candidates := make([]scoredStatement, 0, len(children))
	for _, child := range children {
		if child.Hidden || child.MergedInto != "" {
			continue
		}
		value, err := policy.MetricValue(child)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, scoredStatement{statement: child, value: value})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].value > candidates[j].value
	})

	switch policy.Mode {
	case domain.SelectTopN:
		// Top-n always returns up to n results regardless of their
		// absolute scores; no threshold filtering applies.
		if len(candidates) > policy.N {
			candidates = candidates[:policy.N]
		}
		return candidates, nil

	case domain.SelectAboveThreshold:
		// Keep everything strictly above the threshold, no count cap.
		kept := candidates[:0]
		for _, c := range candidates {
			if c.value > policy.Threshold {
				kept = append(kept, c)
			}
		}
		return kept, nil

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSelectionMode, policy.Mode)
	}
}

// refreshEvaluatorCount scans all evaluations under the parent and
// counts distinct evaluator ids holding a non-zero value.
func (s *ChosenSelector) refreshEvaluatorCount(ctx context.Context, parentID string) error {
	evaluations, err := s.evaluations.ListByParent(ctx, parentID)
	if err != nil {
		return err
	}

	distinct := make(map[string]struct{})
	for _, ev := range evaluations {
		if ev.HasOpinion() {
			distinct[ev.EvaluatorID] = struct{}{}
		}
	}

	return s.statements.SetEvaluatorCount(ctx, parentID, len(distinct))
}
