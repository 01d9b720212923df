// Package domain contains pure, dependency-free domain models and types
// for the consensus scoring engine.
package domain

// AggregateSchemaVersion is the schema version written by the current
// engine. Aggregates persisted with a lower version are missing derived
// fields introduced since they were written and are repaired on contact.
const AggregateSchemaVersion = 2

// EvaluationAggregate holds the per-statement running totals from which
// the mean and consensus score are derived. The counting fields are only
// ever moved by signed deltas applied through the storage layer's atomic
// increment contract; the derived fields (Mean, ConsensusScore,
// ValidatedConsensus) are pure functions of the counters and are
// recomputed at every commit, never incrementally adjusted.
type EvaluationAggregate struct {
	// Sum is the sum of all evaluation values (Σxᵢ).
	Sum float64 `json:"sumEvaluations"`

	// SumSquared is the sum of squared evaluation values (Σxᵢ²),
	// maintained so variance can be derived without rescanning votes.
	SumSquared float64 `json:"sumSquaredEvaluations"`

	// Evaluators is the number of evaluators holding a non-zero opinion.
	Evaluators int `json:"evaluatorCount"`

	// SumPositive accumulates the positive evaluation values.
	SumPositive float64 `json:"sumPositive"`

	// SumNegative accumulates the magnitude of negative evaluation values.
	SumNegative float64 `json:"sumNegative"`

	// PositiveEvaluators counts evaluators whose current value is positive.
	PositiveEvaluators int `json:"positiveEvaluatorCount"`

	// NegativeEvaluators counts evaluators whose current value is negative.
	NegativeEvaluators int `json:"negativeEvaluatorCount"`

	// Mean is Sum / Evaluators, derived at commit time.
	Mean float64 `json:"meanEvaluation"`

	// ConsensusScore is the confidence-adjusted agreement score,
	// derived at commit time. Range [-1, Mean].
	ConsensusScore float64 `json:"consensusScore"`

	// ValidatedConsensus combines ConsensusScore with an independent
	// corroboration signal supplied by a collaborating subsystem.
	ValidatedConsensus float64 `json:"validatedConsensus"`

	// SchemaVersion records which generation of the engine last wrote
	// this aggregate. See AggregateSchemaVersion.
	SchemaVersion int `json:"schemaVersion"`
}

// NewEvaluationAggregate returns a zero aggregate at the current schema
// version, used when a statement receives its first evaluation.
func NewEvaluationAggregate() *EvaluationAggregate {
	return &EvaluationAggregate{SchemaVersion: AggregateSchemaVersion}
}

// IsLegacy reports whether the aggregate predates the current schema and
// is missing derived fields expected by all current records.
func (a *EvaluationAggregate) IsLegacy() bool {
	return a.SchemaVersion < AggregateSchemaVersion
}

// Add applies a signed delta to the counting fields. Callers must hold
// whatever isolation the storage layer provides for the statement; Add
// itself is plain arithmetic. Derived fields are left untouched.
func (a *EvaluationAggregate) Add(d AggregateDelta) {
	a.Sum += d.Sum
	a.SumSquared += d.SumSquared
	a.Evaluators += d.Evaluators
	a.SumPositive += d.SumPositive
	a.SumNegative += d.SumNegative
	a.PositiveEvaluators += d.PositiveEvaluators
	a.NegativeEvaluators += d.NegativeEvaluators
}

// SetDerived overwrites the derived fields and stamps the current schema
// version. Called inside the same atomic unit of work that applied the
// counter increments.
func (a *EvaluationAggregate) SetDerived(d DerivedScores) {
	a.Mean = d.Mean
	a.ConsensusScore = d.ConsensusScore
	a.ValidatedConsensus = d.ValidatedConsensus
	a.SchemaVersion = AggregateSchemaVersion
}

// AggregateDelta is a signed increment for every counting field of an
// EvaluationAggregate. Deltas are commutative and associative, so
// concurrent deltas compose correctly regardless of application order.
type AggregateDelta struct {
	Sum                float64
	SumSquared         float64
	Evaluators         int
	SumPositive        float64
	SumNegative        float64
	PositiveEvaluators int
	NegativeEvaluators int
}

// IsZero reports whether applying the delta would leave an aggregate
// unchanged.
func (d AggregateDelta) IsZero() bool {
	return d == AggregateDelta{}
}

// DerivedScores carries the values recomputed from post-increment
// counters and written as plain overwrites.
type DerivedScores struct {
	Mean               float64
	ConsensusScore     float64
	ValidatedConsensus float64
}

// Statement is a votable entity: a proposal, solution, or paragraph
// suggestion evaluated under a parent statement.
type Statement struct {
	// ID uniquely identifies the statement.
	ID string `json:"id"`

	// ParentID is the statement this one is evaluated under.
	ParentID string `json:"parentId"`

	// TopParentID is the root of the statement tree.
	TopParentID string `json:"topParentId"`

	// Hidden excludes the statement from chosen-option candidacy.
	Hidden bool `json:"hidden,omitempty"`

	// MergedInto, when set, marks the statement as merged away into
	// another statement; merged statements are never candidates.
	MergedInto string `json:"mergedInto,omitempty"`

	// EvaluationAggregate is the mutable aggregate sub-record. Owned
	// exclusively by the aggregate updater; all other components treat
	// it as read-only. Nil until the first evaluation arrives.
	EvaluationAggregate *EvaluationAggregate `json:"evaluationAggregate,omitempty"`

	// ConsensusScore is the legacy single-value consensus field written
	// by earlier generations of the engine. Used as a fallback when the
	// full aggregate is absent.
	ConsensusScore float64 `json:"consensusScore"`

	// IsChosen flags the statement as part of its parent's current
	// winning set. Owned by the chosen-options selector.
	IsChosen bool `json:"isChosen"`

	// RankingPolicy configures how this statement ranks its children.
	// Nil means the policy is inherited from an ancestor.
	RankingPolicy *RankingPolicy `json:"rankingPolicy,omitempty"`

	// Results is the denormalized, ordered snapshot of this statement's
	// top children. Owned by the chosen-options selector.
	Results *ResultsSnapshot `json:"results,omitempty"`

	// EvaluatorCount caches the number of distinct evaluators with a
	// non-zero vote anywhere under this statement.
	EvaluatorCount int `json:"evaluatorCount"`
}

// ResultsSnapshot is the denormalized view of a parent's chosen children,
// ordered best first.
type ResultsSnapshot struct {
	// Count is the number of chosen options.
	Count int `json:"count"`

	// Options lists the chosen children in ranking order.
	Options []ResultOption `json:"options"`
}

// ResultOption is one entry of a ResultsSnapshot.
type ResultOption struct {
	// StatementID identifies the chosen child.
	StatementID string `json:"statementId"`

	// Score is the metric value the child was ranked by.
	Score float64 `json:"score"`
}
