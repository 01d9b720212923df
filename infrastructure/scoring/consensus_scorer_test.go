package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-consensus/internal/domain"
)

// TestConsensusScorer_Score verifies the core scoring formula against
// known inputs: the empty and single-evaluator cases, the uncertainty
// floor, and the penalty cap at the scale's lower bound.
func TestConsensusScorer_Score(t *testing.T) {
	tests := []struct {
		name       string
		sum        float64
		sumSquares float64
		n          int64
		expected   float64
	}{
		{
			name:     "zero evaluators scores zero",
			expected: 0,
		},
		{
			name:       "three unanimous maximum votes stay below the mean",
			sum:        3,
			sumSquares: 3,
			n:          3,
			// 1.0 − 0.5/√3
			expected: 1 - 0.5/math.Sqrt(3),
		},
		{
			name:       "single evaluator pays the full floor",
			sum:        0.8,
			sumSquares: 0.64,
			n:          1,
			expected:   0.3,
		},
		{
			name:       "hundred evaluators with sub-floor variance",
			sum:        94,
			sumSquares: 90.61, // mean 0.94, σ = 0.15, raised to the floor
			n:          100,
			expected:   0.94 - 0.5/10,
		},
		{
			name:       "hundred evaluators with variance above the floor",
			sum:        94,
			sumSquares: 124.36, // mean 0.94, σ = 0.6
			n:          100,
			expected:   0.94 - 0.6/10,
		},
		{
			name:       "single minimum vote is capped at the scale floor",
			sum:        -1,
			sumSquares: 1,
			n:          1,
			// availableRange = 0, so the penalty is fully capped.
			expected: -1,
		},
		{
			name:       "penalty cannot push below minus one",
			sum:        -0.9,
			sumSquares: 0.81,
			n:          1,
			// min(0.5, 0.1) = 0.1
			expected: -1,
		},
		{
			name:     "negative evaluator count scores zero",
			sum:      5,
			n:        -3,
			expected: 0,
		},
		{
			name:       "NaN sum scores zero",
			sum:        math.NaN(),
			sumSquares: 1,
			n:          2,
			expected:   0,
		},
		{
			name:       "infinite sum of squares scores zero",
			sum:        1,
			sumSquares: math.Inf(1),
			n:          2,
			expected:   0,
		},
	}

	scorer, err := NewConsensusScorer(DefaultScorerConfig())
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Score(tt.sum, tt.sumSquares, tt.n)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

// TestConsensusScorer_LargeSampleBeatsSmallUnanimous pins the design
// purpose of the floor: a hundred-evaluator sample with natural
// variance must outscore three unanimous perfect votes.
func TestConsensusScorer_LargeSampleBeatsSmallUnanimous(t *testing.T) {
	scorer, err := NewConsensusScorer(DefaultScorerConfig())
	require.NoError(t, err)

	smallUnanimous := scorer.Score(3, 3, 3)
	largeNatural := scorer.Score(94, 90.61, 100)

	assert.Less(t, smallUnanimous, 1.0)
	assert.Greater(t, largeNatural, smallUnanimous)
}

// TestConsensusScorer_MonotonicConfidence verifies that for a fixed
// mean and sub-floor variance, the score strictly increases with the
// evaluator count, converging toward but never reaching the mean.
func TestConsensusScorer_MonotonicConfidence(t *testing.T) {
	scorer, err := NewConsensusScorer(DefaultScorerConfig())
	require.NoError(t, err)

	const mean = 0.8
	previous := -1.0
	for _, n := range []int64{1, 2, 3, 5, 10, 50, 100, 1000, 10000} {
		nf := float64(n)
		// Unanimous votes of 0.8: observed variance is zero, below
		// the floor at every n.
		score := scorer.Score(mean*nf, mean*mean*nf, n)

		assert.Greater(t, score, previous, "score must strictly increase at n=%d", n)
		assert.Less(t, score, mean, "score must never reach the mean at n=%d", n)
		previous = score
	}
}

// TestConsensusScorer_FloorDominance verifies that any sample with
// observed standard deviation below the floor is scored exactly as if
// its deviation were the floor.
func TestConsensusScorer_FloorDominance(t *testing.T) {
	scorer, err := NewConsensusScorer(DefaultScorerConfig())
	require.NoError(t, err)

	const (
		mean = 0.5
		n    = int64(25)
	)
	nf := float64(n)

	// Sweep observed deviations strictly below the floor; every one
	// must score identically to the zero-variance sample.
	want := scorer.Score(mean*nf, mean*mean*nf, n)
	for _, sigma := range []float64{0.05, 0.1, 0.25, 0.4, 0.49} {
		sumSquares := nf * (sigma*sigma + mean*mean)
		got := scorer.Score(mean*nf, sumSquares, n)
		assert.InDelta(t, want, got, 1e-9, "σ=%v below floor must be scored at the floor", sigma)
	}
}

// TestConsensusScorer_ScoreBounds verifies -1 ≤ score ≤ mean across a
// grid of inputs.
func TestConsensusScorer_ScoreBounds(t *testing.T) {
	scorer, err := NewConsensusScorer(DefaultScorerConfig())
	require.NoError(t, err)

	for _, mean := range []float64{-1, -0.7, -0.2, 0, 0.3, 0.8, 1} {
		for _, sigma := range []float64{0, 0.1, 0.5, 0.9} {
			for _, n := range []int64{1, 2, 7, 40, 500} {
				nf := float64(n)
				sum := mean * nf
				sumSquares := nf * (sigma*sigma + mean*mean)

				score := scorer.Score(sum, sumSquares, n)
				assert.GreaterOrEqual(t, score, -1.0,
					"mean=%v σ=%v n=%d", mean, sigma, n)
				assert.LessOrEqual(t, score, mean+1e-12,
					"mean=%v σ=%v n=%d", mean, sigma, n)
			}
		}
	}
}

// TestConsensusScorer_Derive verifies derived-field recomputation and
// the corroboration clamp.
func TestConsensusScorer_Derive(t *testing.T) {
	scorer, err := NewConsensusScorer(DefaultScorerConfig())
	require.NoError(t, err)

	agg := domain.EvaluationAggregate{Sum: 3, SumSquared: 3, Evaluators: 3}
	raw := scorer.Score(3, 3, 3)

	tests := []struct {
		name          string
		corroboration float64
		wantValidated float64
	}{
		{name: "full corroboration keeps the raw score", corroboration: 1, wantValidated: raw},
		{name: "partial corroboration scales toward neutral", corroboration: 0.5, wantValidated: raw * 0.5},
		{name: "no corroboration neutralizes", corroboration: 0, wantValidated: 0},
		{name: "factor above one is clamped", corroboration: 3, wantValidated: raw},
		{name: "negative factor is clamped to zero", corroboration: -2, wantValidated: 0},
		{name: "NaN factor falls back to neutral one", corroboration: math.NaN(), wantValidated: raw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			derived := scorer.Derive(agg, tt.corroboration)
			assert.InDelta(t, 1.0, derived.Mean, 1e-9)
			assert.InDelta(t, raw, derived.ConsensusScore, 1e-9)
			assert.InDelta(t, tt.wantValidated, derived.ValidatedConsensus, 1e-9)
		})
	}
}

// TestConsensusScorer_DeriveEmptyAggregate verifies the zero aggregate
// derives all-zero scores.
func TestConsensusScorer_DeriveEmptyAggregate(t *testing.T) {
	scorer, err := NewConsensusScorer(DefaultScorerConfig())
	require.NoError(t, err)

	derived := scorer.Derive(domain.EvaluationAggregate{}, 1)
	assert.Zero(t, derived.Mean)
	assert.Zero(t, derived.ConsensusScore)
	assert.Zero(t, derived.ValidatedConsensus)
}

// TestNewConsensusScorer_Validation verifies configuration constraints.
func TestNewConsensusScorer_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  ScorerConfig
		wantErr bool
	}{
		{name: "default config is valid", config: DefaultScorerConfig()},
		{name: "custom positive floor is valid", config: ScorerConfig{Floor: 0.25}},
		{name: "zero floor is rejected", config: ScorerConfig{}, wantErr: true},
		{name: "negative floor is rejected", config: ScorerConfig{Floor: -0.5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer, err := NewConsensusScorer(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, scorer)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, scorer.Validate())
		})
	}
}

// TestConsensusScorer_UnmarshalParameters verifies YAML round-trips and
// rejection of invalid parameters.
func TestConsensusScorer_UnmarshalParameters(t *testing.T) {
	scorer, err := NewConsensusScorer(DefaultScorerConfig())
	require.NoError(t, err)

	var params yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("floor: 0.3"), &params))
	require.NoError(t, scorer.UnmarshalParameters(*params.Content[0]))
	assert.InDelta(t, 0.3, scorer.Floor(), 1e-9)

	var bad yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("floor: -1"), &bad))
	require.Error(t, scorer.UnmarshalParameters(*bad.Content[0]))
	assert.InDelta(t, 0.3, scorer.Floor(), 1e-9, "config must be unchanged on error")
}
