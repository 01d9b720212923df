package scoring

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-consensus/internal/domain"
)

// TestDiff verifies the per-transition delta computation, including the
// sign-transition counters and the all-zero 0→0 boundary condition.
func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		action   EvaluationAction
		oldValue float64
		newValue float64
		want     EvaluationDiff
	}{
		{
			name:     "new positive vote",
			action:   ActionNew,
			newValue: 0.8,
			want: EvaluationDiff{
				Sum:                0.8,
				Squared:            0.64,
				Positive:           0.8,
				PositiveEvaluators: 1,
			},
		},
		{
			name:     "new negative vote",
			action:   ActionNew,
			newValue: -0.6,
			want: EvaluationDiff{
				Sum:                -0.6,
				Squared:            0.36,
				Negative:           0.6,
				NegativeEvaluators: 1,
			},
		},
		{
			name:   "new neutral vote changes nothing",
			action: ActionNew,
		},
		{
			name:     "update crossing zero flips both sign counters",
			action:   ActionUpdate,
			oldValue: 0.5,
			newValue: -0.5,
			want: EvaluationDiff{
				Sum:                -1,
				Positive:           -0.5,
				Negative:           0.5,
				PositiveEvaluators: -1,
				NegativeEvaluators: 1,
			},
		},
		{
			name:     "magnitude-only update keeps sign counters",
			action:   ActionUpdate,
			oldValue: 0.3,
			newValue: 0.7,
			want: EvaluationDiff{
				Sum:      0.4,
				Squared:  0.7*0.7 - 0.3*0.3,
				Positive: 0.4,
			},
		},
		{
			name:     "update from neutral to neutral yields the zero diff",
			action:   ActionUpdate,
			oldValue: 0,
			newValue: 0,
		},
		{
			name:     "delete removes the vote's full contribution",
			action:   ActionDelete,
			oldValue: 0.9,
			want: EvaluationDiff{
				Sum:                -0.9,
				Squared:            -0.81,
				Positive:           -0.9,
				PositiveEvaluators: -1,
			},
		},
		{
			name:     "delete of a neutral vote changes nothing",
			action:   ActionDelete,
			oldValue: 0,
		},
		{
			name:     "new action ignores a stray old value",
			action:   ActionNew,
			oldValue: 0.7,
			newValue: 0.5,
			want: EvaluationDiff{
				Sum:                0.5,
				Squared:            0.25,
				Positive:           0.5,
				PositiveEvaluators: 1,
			},
		},
		{
			name:     "delete action ignores a stray new value",
			action:   ActionDelete,
			oldValue: -0.4,
			newValue: 0.8,
			want: EvaluationDiff{
				Sum:                0.4,
				Squared:            -0.16,
				Negative:           -0.4,
				NegativeEvaluators: -1,
			},
		},
		{
			name:     "NaN values are treated as neutral",
			action:   ActionUpdate,
			oldValue: math.NaN(),
			newValue: math.Inf(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.action, tt.oldValue, tt.newValue)
			assert.InDelta(t, tt.want.Sum, got.Sum, 1e-12)
			assert.InDelta(t, tt.want.Squared, got.Squared, 1e-12)
			assert.InDelta(t, tt.want.Positive, got.Positive, 1e-12)
			assert.InDelta(t, tt.want.Negative, got.Negative, 1e-12)
			assert.Equal(t, tt.want.PositiveEvaluators, got.PositiveEvaluators)
			assert.Equal(t, tt.want.NegativeEvaluators, got.NegativeEvaluators)
		})
	}
}

// TestOpinionDelta verifies the opinion-holder transition rule: only a
// crossing through zero moves the counter.
func TestOpinionDelta(t *testing.T) {
	tests := []struct {
		name     string
		oldValue float64
		newValue float64
		want     int
	}{
		{name: "gaining an opinion", oldValue: 0, newValue: 0.4, want: 1},
		{name: "gaining a negative opinion", oldValue: 0, newValue: -1, want: 1},
		{name: "losing an opinion", oldValue: 0.4, newValue: 0, want: -1},
		{name: "magnitude change keeps the count", oldValue: 0.3, newValue: 0.7},
		{name: "sign flip keeps the count", oldValue: 0.5, newValue: -0.5},
		{name: "neutral to neutral", oldValue: 0, newValue: 0},
		{name: "NaN counts as no opinion", oldValue: math.NaN(), newValue: 0.2, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OpinionDelta(tt.oldValue, tt.newValue))
		})
	}
}

// TestDiff_RoundTrip verifies that a create followed by a delete of the
// same value returns every aggregate counter to its starting state.
func TestDiff_RoundTrip(t *testing.T) {
	for _, v := range []float64{1, 0.8, 0.1, 0, -0.1, -0.73, -1} {
		agg := domain.EvaluationAggregate{
			Sum: 2.5, SumSquared: 3.1, Evaluators: 4,
			SumPositive: 3, SumNegative: 0.5,
			PositiveEvaluators: 3, NegativeEvaluators: 1,
		}
		start := agg

		create := Diff(ActionNew, 0, v).Delta(OpinionDelta(0, v))
		remove := Diff(ActionDelete, v, 0).Delta(OpinionDelta(v, 0))

		agg.Add(create)
		agg.Add(remove)

		assert.InDelta(t, start.Sum, agg.Sum, 1e-12, "v=%v", v)
		assert.InDelta(t, start.SumSquared, agg.SumSquared, 1e-12, "v=%v", v)
		assert.Equal(t, start.Evaluators, agg.Evaluators, "v=%v", v)
		assert.InDelta(t, start.SumPositive, agg.SumPositive, 1e-12, "v=%v", v)
		assert.InDelta(t, start.SumNegative, agg.SumNegative, 1e-12, "v=%v", v)
		assert.Equal(t, start.PositiveEvaluators, agg.PositiveEvaluators, "v=%v", v)
		assert.Equal(t, start.NegativeEvaluators, agg.NegativeEvaluators, "v=%v", v)
	}
}

// TestDiff_OrderIndependence verifies that applying a fixed set of
// deltas in any arrival order yields the same final counters: the
// commutativity the atomic-increment discipline relies on.
func TestDiff_OrderIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	deltas := make([]domain.AggregateDelta, 0, 20)
	value := make(map[int]float64) // evaluator -> current value
	for i := 0; i < 20; i++ {
		evaluator := rng.Intn(6)
		old := value[evaluator]
		next := math.Round(rng.Float64()*200-100) / 100
		value[evaluator] = next

		action := ActionUpdate
		if old == 0 {
			action = ActionNew
		}
		deltas = append(deltas, Diff(action, old, next).Delta(OpinionDelta(old, next)))
	}

	apply := func(order []int) domain.EvaluationAggregate {
		var agg domain.EvaluationAggregate
		for _, i := range order {
			agg.Add(deltas[i])
		}
		return agg
	}

	base := make([]int, len(deltas))
	for i := range base {
		base[i] = i
	}
	want := apply(base)

	for trial := 0; trial < 50; trial++ {
		order := append([]int(nil), base...)
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		got := apply(order)
		require.InDelta(t, want.Sum, got.Sum, 1e-9)
		require.InDelta(t, want.SumSquared, got.SumSquared, 1e-9)
		require.Equal(t, want.Evaluators, got.Evaluators)
		require.InDelta(t, want.SumPositive, got.SumPositive, 1e-9)
		require.InDelta(t, want.SumNegative, got.SumNegative, 1e-9)
		require.Equal(t, want.PositiveEvaluators, got.PositiveEvaluators)
		require.Equal(t, want.NegativeEvaluators, got.NegativeEvaluators)
	}
}
