package domain

import "fmt"

// RankingMetric selects which value of a child statement a ranking
// policy orders by.
type RankingMetric string

// Supported ranking metrics. MetricValue switches exhaustively over
// these; an unknown metric is a configuration error, never a silent
// fallback.
const (
	// MetricConsensus ranks by the confidence-adjusted consensus score.
	MetricConsensus RankingMetric = "consensus"

	// MetricMostLiked ranks by the accumulated positive evaluation sum.
	MetricMostLiked RankingMetric = "mostLiked"

	// MetricAverageScore ranks by the plain mean evaluation.
	MetricAverageScore RankingMetric = "averageScore"
)

// SelectionMode determines how a ranking policy cuts the ordered
// candidate list down to the chosen set.
type SelectionMode string

// Supported selection modes.
const (
	// SelectTopN keeps the best n candidates regardless of their
	// absolute metric values.
	SelectTopN SelectionMode = "topN"

	// SelectAboveThreshold keeps every candidate whose metric value
	// strictly exceeds the threshold, with no count cap.
	SelectAboveThreshold SelectionMode = "aboveThreshold"
)

// RankingPolicy configures how a parent statement derives its chosen
// children. A statement without a policy inherits one from its nearest
// configured ancestor.
type RankingPolicy struct {
	// Metric is the child value candidates are ordered by.
	Metric RankingMetric `json:"metric" yaml:"metric" validate:"required,oneof=consensus mostLiked averageScore"`

	// Mode selects between top-n and above-threshold cutting.
	Mode SelectionMode `json:"mode" yaml:"mode" validate:"required,oneof=topN aboveThreshold"`

	// N is the number of winners kept in SelectTopN mode.
	N int `json:"n,omitempty" yaml:"n,omitempty" validate:"omitempty,min=1"`

	// Threshold is the exclusive lower bound in SelectAboveThreshold mode.
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// DefaultRankingPolicy is the policy applied when neither a parent nor
// any of its ancestors configures one.
func DefaultRankingPolicy() RankingPolicy {
	return RankingPolicy{Metric: MetricConsensus, Mode: SelectTopN, N: 1}
}

// Validate checks the policy for internal consistency.
func (p RankingPolicy) Validate() error {
	switch p.Metric {
	case MetricConsensus, MetricMostLiked, MetricAverageScore:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMetric, p.Metric)
	}

	switch p.Mode {
	case SelectTopN:
		if p.N < 1 {
			return fmt.Errorf("%w: topN requires n >= 1, got %d", ErrInvalidPolicy, p.N)
		}
	case SelectAboveThreshold:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSelectionMode, p.Mode)
	}

	return nil
}

// MetricValue extracts the policy's metric from a candidate statement.
// A statement without a full aggregate falls back to the legacy
// single-value consensus field for the consensus metric and to zero for
// the others.
func (p RankingPolicy) MetricValue(s *Statement) (float64, error) {
	agg := s.EvaluationAggregate

	switch p.Metric {
	case MetricConsensus:
		if agg == nil {
			return s.ConsensusScore, nil
		}
		return agg.ConsensusScore, nil

	case MetricMostLiked:
		if agg == nil {
			return 0, nil
		}
		return agg.SumPositive, nil

	case MetricAverageScore:
		if agg == nil {
			return 0, nil
		}
		return agg.Mean, nil

	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, p.Metric)
	}
}
