package scoring

import (
	"math"

	"github.com/ahrav/go-consensus/internal/domain"
)

// EvaluationAction identifies which lifecycle transition of an
// evaluation a diff is computed for.
type EvaluationAction string

// Supported evaluation actions.
const (
	// ActionNew is the first vote of an evaluator on a statement.
	// The old value is forced to 0.
	ActionNew EvaluationAction = "new"

	// ActionUpdate is a re-vote replacing a prior value.
	ActionUpdate EvaluationAction = "update"

	// ActionDelete is a vote withdrawal. The new value is forced to 0.
	ActionDelete EvaluationAction = "delete"
)

// EvaluationDiff is the contribution of one evaluation lifecycle
// transition to a statement's aggregate counters. All fields are signed
// deltas; a transition from 0 to 0 yields the zero diff.
//
// The evaluator-count transition ("has cast any vote at all") is
// deliberately not part of the diff: it is distinct from "has an
// opinion" and is computed by the caller via OpinionDelta.
type EvaluationDiff struct {
	// Sum is the change to the evaluation sum (new − old).
	Sum float64

	// Squared is the change to the sum of squares (new² − old²).
	Squared float64

	// Positive is the change to the positive contribution,
	// max(new,0) − max(old,0).
	Positive float64

	// Negative is the change to the magnitude of the negative
	// contribution, max(−new,0) − max(−old,0).
	Negative float64

	// PositiveEvaluators captures a sign transition into or out of
	// positive territory: +1 entering, −1 leaving, 0 otherwise.
	PositiveEvaluators int

	// NegativeEvaluators is the symmetric transition for negative
	// territory.
	NegativeEvaluators int
}

// IsZero reports whether the diff would leave an aggregate unchanged.
func (d EvaluationDiff) IsZero() bool {
	return d == EvaluationDiff{}
}

// Delta converts the diff into a full aggregate delta, folding in the
// caller-computed evaluator-count transition.
func (d EvaluationDiff) Delta(evaluators int) domain.AggregateDelta {
	return domain.AggregateDelta{
		Sum:                d.Sum,
		SumSquared:         d.Squared,
		Evaluators:         evaluators,
		SumPositive:        d.Positive,
		SumNegative:        d.Negative,
		PositiveEvaluators: d.PositiveEvaluators,
		NegativeEvaluators: d.NegativeEvaluators,
	}
}

// Diff computes the aggregate contribution of a single evaluation
// lifecycle transition. ActionNew normalizes the old value to 0 and
// ActionDelete the new value to 0, so callers may pass whatever the
// event carried. Non-finite values are treated as 0, keeping the
// aggregation path resilient to malformed upstream data.
func Diff(action EvaluationAction, oldValue, newValue float64) EvaluationDiff {
	switch action {
	case ActionNew:
		oldValue = 0
	case ActionDelete:
		newValue = 0
	}

	oldValue = sanitize(oldValue)
	newValue = sanitize(newValue)

	return EvaluationDiff{
		Sum:                newValue - oldValue,
		Squared:            newValue*newValue - oldValue*oldValue,
		Positive:           math.Max(newValue, 0) - math.Max(oldValue, 0),
		Negative:           math.Max(-newValue, 0) - math.Max(-oldValue, 0),
		PositiveEvaluators: signCount(newValue > 0) - signCount(oldValue > 0),
		NegativeEvaluators: signCount(newValue < 0) - signCount(oldValue < 0),
	}
}

// OpinionDelta computes the change to the opinion-holder count for a
// value transition: +1 when an evaluator gains a non-zero opinion, −1
// when one is lost, 0 otherwise. Magnitude-only changes that do not
// cross zero never touch the counter; it tracks "has an opinion", not
// "has ever voted".
func OpinionDelta(oldValue, newValue float64) int {
	oldValue = sanitize(oldValue)
	newValue = sanitize(newValue)
	return signCount(newValue != 0) - signCount(oldValue != 0)
}

// sanitize maps NaN and infinite values to 0, the engine-wide safe
// default for malformed numeric input.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func signCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
