package application

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-consensus/infrastructure/scoring"
	"github.com/ahrav/go-consensus/internal/domain"
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// Config is the complete engine configuration and the primary
// configuration entry point for embedding processes.
type Config struct {
	// Scoring configures the consensus score computation.
	Scoring scoring.ScorerConfig `yaml:"scoring" validate:"required"`

	// Dedup configures the idempotency guard.
	Dedup DedupConfig `yaml:"dedup"`

	// Repair configures the background legacy-aggregate repair queue.
	Repair RepairConfig `yaml:"repair"`

	// DefaultPolicy is the ranking policy applied when neither a parent
	// nor any of its ancestors configures one.
	DefaultPolicy domain.RankingPolicy `yaml:"default_policy"`

	// BypassSources lists evaluation source tags whose events are
	// ignored entirely: those evaluations are owned by a second writer
	// path that applies its own consensus update directly.
	BypassSources []string `yaml:"bypass_sources" validate:"max=16,dive,min=1,max=64"`
}

// DedupConfig controls the idempotency guard's recognition window and
// memory bound.
type DedupConfig struct {
	// WindowSeconds is how long a redelivered event id is recognized.
	WindowSeconds int `yaml:"window_seconds" validate:"omitempty,min=1,max=3600"`

	// CompactThreshold is the tracked-set size above which entries
	// older than the window are dropped.
	CompactThreshold int `yaml:"compact_threshold" validate:"omitempty,min=1,max=1000000"`
}

// Window returns the recognition window as a duration, defaulting when
// unset.
func (c DedupConfig) Window() time.Duration {
	if c.WindowSeconds <= 0 {
		return DefaultDedupWindow
	}
	return time.Duration(c.WindowSeconds) * time.Second
}

// RepairConfig controls the background repair queue.
type RepairConfig struct {
	// QueueSize bounds the number of parents awaiting repair; requests
	// beyond the bound are dropped.
	QueueSize int `yaml:"queue_size" validate:"omitempty,min=1,max=100000"`

	// RatePerSecond throttles how many repair passes run per second.
	RatePerSecond float64 `yaml:"rate_per_second" validate:"omitempty,gt=0,max=1000"`

	// Concurrency bounds how many sibling statements are repaired in
	// parallel within one pass.
	Concurrency int `yaml:"concurrency" validate:"omitempty,min=1,max=64"`
}

// DefaultConfig returns the reference configuration: a 0.5 uncertainty
// floor, a 60-second dedup window compacting above 100 entries, a
// throttled repair queue, and a top-1 consensus default policy.
func DefaultConfig() Config {
	return Config{
		Scoring: scoring.DefaultScorerConfig(),
		Dedup: DedupConfig{
			WindowSeconds:    int(DefaultDedupWindow / time.Second),
			CompactThreshold: DefaultDedupCompactThreshold,
		},
		Repair: RepairConfig{
			QueueSize:     DefaultRepairQueueSize,
			RatePerSecond: DefaultRepairRatePerSecond,
			Concurrency:   DefaultRepairConcurrency,
		},
		DefaultPolicy: domain.DefaultRankingPolicy(),
		BypassSources: []string{domain.EvaluationSourceImported},
	}
}

// ParseConfig decodes YAML configuration over the defaults and
// validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := c.DefaultPolicy.Validate(); err != nil {
		return fmt.Errorf("default policy: %w", err)
	}
	return nil
}
