package scoring

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-consensus/internal/domain"
)

// ConsensusScorer computes the confidence-adjusted consensus score of a
// statement from its running totals: mean minus a penalty derived from
// the standard error of the mean, with a configurable uncertainty floor.
//
// Algorithm: mean = sum/n; observed variance = max(0, sumSquares/n −
// mean²); the observed standard deviation is raised to the floor when
// smaller; sem = adjusted stddev / √n (exactly the floor for n ≤ 1);
// the penalty is capped at mean+1 so the score never drops below the
// evaluation scale's lower bound.
//
// Guarantees: score ∈ [-1, mean]; score = 0 for n = 0; for fixed mean
// and fixed sub-floor variance the score strictly increases with n,
// converging toward the mean. Three unanimous 1.0 votes therefore score
// ≈ 0.711, below a hundred-evaluator sample averaging 0.94 with natural
// variance.
//
// Concurrency: stateless and safe for concurrent use after creation.
type ConsensusScorer struct {
	// config contains the validated scoring parameters.
	config ScorerConfig
}

// ScorerConfig controls the consensus score computation. Configuration
// is immutable after scorer creation and validated for mathematical
// consistency.
type ScorerConfig struct {
	// Floor is the assumed minimum population standard deviation,
	// applied when the observed deviation is implausibly low for the
	// sample size. Expressed on the evaluation scale; the reference
	// value is 0.5 on [-1, 1].
	Floor float64 `yaml:"floor" json:"floor" validate:"required,gt=0"`
}

// DefaultScorerConfig returns the reference configuration: an
// uncertainty floor of 0.5 on the [-1, 1] scale.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{Floor: DefaultUncertaintyFloor}
}

// NewConsensusScorer creates a ConsensusScorer with a validated
// configuration. Returns a validation error when the floor is absent
// or non-positive.
func NewConsensusScorer(config ScorerConfig) (*ConsensusScorer, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &ConsensusScorer{config: config}, nil
}

// Floor returns the configured uncertainty floor.
func (cs *ConsensusScorer) Floor() float64 { return cs.config.Floor }

// Score computes the consensus score from the raw totals.
//
// Malformed input (NaN or infinite sums, negative counts) yields the
// safe default 0 rather than propagating: the aggregation path must
// stay resilient to corrupt upstream data.
func (cs *ConsensusScorer) Score(sum, sumSquares float64, n int64) float64 {
	if n <= 0 {
		return 0
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) || math.IsNaN(sumSquares) || math.IsInf(sumSquares, 0) {
		return 0
	}

	nf := float64(n)
	mean := sum / nf

	var sem float64
	if n <= 1 {
		// A single observation carries no variance information; the
		// standard error is the floor exactly.
		sem = cs.config.Floor
	} else {
		variance := math.Max(0, sumSquares/nf-mean*mean)
		stddev := math.Max(math.Sqrt(variance), cs.config.Floor)
		sem = stddev / math.Sqrt(nf)
	}

	// The penalty cannot push the score below the scale floor of -1.
	availableRange := mean + 1
	penalty := math.Min(sem, availableRange)

	return mean - penalty
}

// Mean computes the arithmetic mean of the totals, 0 when no evaluator
// holds an opinion.
func (cs *ConsensusScorer) Mean(sum float64, n int64) float64 {
	if n <= 0 {
		return 0
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return 0
	}
	return sum / float64(n)
}

// Derive recomputes every derived field of an aggregate from its
// post-increment counters. The corroboration factor is an opaque signal
// from a collaborating subsystem, clamped to [0, 1]; it scales the raw
// score toward neutral when corroboration is weak, and a factor of 1
// leaves the validated consensus equal to the raw score.
func (cs *ConsensusScorer) Derive(agg domain.EvaluationAggregate, corroboration float64) domain.DerivedScores {
	if math.IsNaN(corroboration) || math.IsInf(corroboration, 0) {
		corroboration = 1
	}
	corroboration = math.Min(1, math.Max(0, corroboration))

	score := cs.Score(agg.Sum, agg.SumSquared, int64(agg.Evaluators))

	return domain.DerivedScores{
		Mean:               cs.Mean(agg.Sum, int64(agg.Evaluators)),
		ConsensusScore:     score,
		ValidatedConsensus: score * corroboration,
	}
}

// Validate verifies the scorer is properly configured.
func (cs *ConsensusScorer) Validate() error {
	if err := validate.Struct(cs.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters deserializes YAML configuration into the scorer's
// parameters with validation. The scorer's configuration is unchanged
// on error.
func (cs *ConsensusScorer) UnmarshalParameters(params yaml.Node) error {
	var config ScorerConfig

	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}

	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}

	cs.config = config
	return nil
}
