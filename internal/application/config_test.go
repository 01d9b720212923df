package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-consensus/internal/domain"
)

// TestDefaultConfig pins the reference configuration values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.InDelta(t, 0.5, cfg.Scoring.Floor, 1e-12)
	assert.Equal(t, 60*time.Second, cfg.Dedup.Window())
	assert.Equal(t, 100, cfg.Dedup.CompactThreshold)
	assert.Equal(t, domain.DefaultRankingPolicy(), cfg.DefaultPolicy)
	assert.Equal(t, []string{domain.EvaluationSourceImported}, cfg.BypassSources)
}

// TestParseConfig verifies YAML overlays on defaults and rejection of
// inconsistent settings.
func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, cfg Config)
		wantErr bool
	}{
		{
			name: "empty input keeps every default",
			yaml: "",
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, DefaultConfig(), cfg)
			},
		},
		{
			name: "partial overrides keep unrelated defaults",
			yaml: `
scoring:
  floor: 0.3
dedup:
  window_seconds: 120
`,
			check: func(t *testing.T, cfg Config) {
				assert.InDelta(t, 0.3, cfg.Scoring.Floor, 1e-12)
				assert.Equal(t, 2*time.Minute, cfg.Dedup.Window())
				assert.Equal(t, 100, cfg.Dedup.CompactThreshold)
				assert.Equal(t, DefaultRepairQueueSize, cfg.Repair.QueueSize)
			},
		},
		{
			name: "threshold default policy",
			yaml: `
default_policy:
  metric: averageScore
  mode: aboveThreshold
  threshold: 0.6
`,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, domain.MetricAverageScore, cfg.DefaultPolicy.Metric)
				assert.Equal(t, domain.SelectAboveThreshold, cfg.DefaultPolicy.Mode)
				assert.InDelta(t, 0.6, cfg.DefaultPolicy.Threshold, 1e-12)
			},
		},
		{
			name: "extra bypass sources",
			yaml: `
bypass_sources: ["imported-consensus", "batch-import"]
`,
			check: func(t *testing.T, cfg Config) {
				assert.Len(t, cfg.BypassSources, 2)
			},
		},
		{
			name:    "negative floor is rejected",
			yaml:    "scoring:\n  floor: -0.5\n",
			wantErr: true,
		},
		{
			name:    "invalid default policy is rejected",
			yaml:    "default_policy:\n  metric: plurality\n  mode: topN\n  n: 1\n",
			wantErr: true,
		},
		{
			name:    "out-of-range dedup window is rejected",
			yaml:    "dedup:\n  window_seconds: 100000\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml is rejected",
			yaml:    "scoring: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
