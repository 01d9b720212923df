// Package memstore provides an in-memory implementation of the storage
// ports. It honors the same isolation contract a document database
// supplies: counter increments and derived-field overwrites on one
// statement commit as a single isolated unit, with no cross-statement
// locking. It backs the package tests, the examples, and the simulator.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// Compile-time verification that Store implements the storage ports.
var (
	_ ports.StatementStore  = (*Store)(nil)
	_ ports.EvaluationStore = (*Store)(nil)
)

// Store is an in-memory statement and evaluation store.
// All methods are safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	statements map[string]*statementRecord
	// evaluations is keyed by parent id, then by (evaluator, statement).
	evaluations map[string]map[evaluationKey]*domain.Evaluation
}

// statementRecord pairs a statement with its own lock. The record lock
// is the store's unit of isolation: everything inside one
// ApplyAggregateDelta call happens under it, mirroring a
// single-document transaction.
type statementRecord struct {
	mu        sync.Mutex
	statement domain.Statement
}

type evaluationKey struct {
	evaluatorID string
	statementID string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		statements:  make(map[string]*statementRecord),
		evaluations: make(map[string]map[evaluationKey]*domain.Evaluation),
	}
}

// PutStatement inserts or replaces a statement.
func (s *Store) PutStatement(st domain.Statement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statements[st.ID] = &statementRecord{statement: copyStatement(st)}
}

// DeleteStatement removes a statement, if present.
func (s *Store) DeleteStatement(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.statements, id)
}

// GetStatement implements ports.StatementStore.
func (s *Store) GetStatement(_ context.Context, id string) (*domain.Statement, error) {
	rec, ok := s.lookup(id)
	if !ok {
		return nil, domain.ErrStatementNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	st := copyStatement(rec.statement)
	return &st, nil
}

// ApplyAggregateDelta implements ports.StatementStore. The increments,
// the derived recompute, and the overwrite all happen under the
// statement's record lock, so concurrent deltas serialize at the
// storage layer exactly as atomic increments in a document transaction
// would.
func (s *Store) ApplyAggregateDelta(
	_ context.Context,
	statementID string,
	delta domain.AggregateDelta,
	recompute ports.RecomputeFunc,
) (*domain.EvaluationAggregate, bool, error) {
	rec, ok := s.lookup(statementID)
	if !ok {
		return nil, false, domain.ErrStatementNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	agg := rec.statement.EvaluationAggregate
	if agg == nil {
		// Created lazily at zero on the first evaluation.
		agg = domain.NewEvaluationAggregate()
		rec.statement.EvaluationAggregate = agg
	}
	legacyRepaired := agg.IsLegacy()

	agg.Add(delta)
	derived := recompute(*agg)
	agg.SetDerived(derived)

	// Keep the legacy single-value field in step for readers that
	// predate the full aggregate.
	rec.statement.ConsensusScore = derived.ConsensusScore

	out := *agg
	return &out, legacyRepaired, nil
}

// RepairAggregate implements ports.StatementStore. Statements without
// an aggregate are left untouched.
func (s *Store) RepairAggregate(_ context.Context, statementID string, recompute ports.RecomputeFunc) error {
	rec, ok := s.lookup(statementID)
	if !ok {
		return domain.ErrStatementNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	agg := rec.statement.EvaluationAggregate
	if agg == nil {
		return nil
	}

	derived := recompute(*agg)
	agg.SetDerived(derived)
	rec.statement.ConsensusScore = derived.ConsensusScore
	return nil
}

// ListChildren implements ports.StatementStore. The fetch order is
// stable (sorted by statement id) but callers must not rely on tie
// order among equal metric values.
func (s *Store) ListChildren(_ context.Context, parentID string) ([]*domain.Statement, error) {
	s.mu.RLock()
	records := make([]*statementRecord, 0)
	for _, rec := range s.statements {
		if rec.statement.ParentID == parentID {
			records = append(records, rec)
		}
	}
	s.mu.RUnlock()

	children := make([]*domain.Statement, 0, len(records))
	for _, rec := range records {
		rec.mu.Lock()
		st := copyStatement(rec.statement)
		rec.mu.Unlock()
		children = append(children, &st)
	}

	sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })
	return children, nil
}

// SetChosen implements ports.StatementStore as one batch update:
// every child of the parent has its chosen flag cleared, then exactly
// the given ids are set.
func (s *Store) SetChosen(_ context.Context, parentID string, chosenIDs []string) error {
	chosen := make(map[string]struct{}, len(chosenIDs))
	for _, id := range chosenIDs {
		chosen[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.statements {
		if rec.statement.ParentID != parentID {
			continue
		}
		rec.mu.Lock()
		_, isChosen := chosen[rec.statement.ID]
		rec.statement.IsChosen = isChosen
		rec.mu.Unlock()
	}
	return nil
}

// WriteResults implements ports.StatementStore.
func (s *Store) WriteResults(_ context.Context, parentID string, results domain.ResultsSnapshot) error {
	rec, ok := s.lookup(parentID)
	if !ok {
		return domain.ErrStatementNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	snapshot := results
	snapshot.Options = append([]domain.ResultOption(nil), results.Options...)
	rec.statement.Results = &snapshot
	return nil
}

// SetEvaluatorCount implements ports.StatementStore.
func (s *Store) SetEvaluatorCount(_ context.Context, statementID string, count int) error {
	rec, ok := s.lookup(statementID)
	if !ok {
		return domain.ErrStatementNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.statement.EvaluatorCount = count
	return nil
}

// UpsertEvaluation writes an evaluation record and returns the prior
// record for the same (evaluator, statement) pair, if any. The return
// value lets callers build before/after change events the way the
// document database's trigger channel would.
func (s *Store) UpsertEvaluation(ev domain.Evaluation) *domain.Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()

	byParent, ok := s.evaluations[ev.ParentID]
	if !ok {
		byParent = make(map[evaluationKey]*domain.Evaluation)
		s.evaluations[ev.ParentID] = byParent
	}

	key := evaluationKey{evaluatorID: ev.EvaluatorID, statementID: ev.StatementID}
	var before *domain.Evaluation
	if prev, ok := byParent[key]; ok {
		prior := *prev
		before = &prior
	}

	stored := ev
	byParent[key] = &stored
	return before
}

// RemoveEvaluation deletes the evaluation for the pair and returns the
// removed record, or nil when none existed.
func (s *Store) RemoveEvaluation(parentID, evaluatorID, statementID string) *domain.Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()

	byParent, ok := s.evaluations[parentID]
	if !ok {
		return nil
	}

	key := evaluationKey{evaluatorID: evaluatorID, statementID: statementID}
	prev, ok := byParent[key]
	if !ok {
		return nil
	}
	delete(byParent, key)

	removed := *prev
	return &removed
}

// ListByParent implements ports.EvaluationStore.
func (s *Store) ListByParent(_ context.Context, parentID string) ([]*domain.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byParent := s.evaluations[parentID]
	out := make([]*domain.Evaluation, 0, len(byParent))
	for _, ev := range byParent {
		copied := *ev
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StatementID != out[j].StatementID {
			return out[i].StatementID < out[j].StatementID
		}
		return out[i].EvaluatorID < out[j].EvaluatorID
	})
	return out, nil
}

func (s *Store) lookup(id string) (*statementRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.statements[id]
	return rec, ok
}

// copyStatement returns a deep copy so callers can never mutate stored
// state through returned pointers.
func copyStatement(st domain.Statement) domain.Statement {
	out := st
	if st.EvaluationAggregate != nil {
		agg := *st.EvaluationAggregate
		out.EvaluationAggregate = &agg
	}
	if st.RankingPolicy != nil {
		policy := *st.RankingPolicy
		out.RankingPolicy = &policy
	}
	if st.Results != nil {
		results := *st.Results
		results.Options = append([]domain.ResultOption(nil), st.Results.Options...)
		out.Results = &results
	}
	return out
}
