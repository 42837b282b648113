package intentconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/intent/internal/contracts"
)

func TestDefault(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "default", p.Meta.PolicyID)
	assert.Equal(t, 70.0, p.Tiers.High)
	assert.Equal(t, 50.0, p.Tiers.Medium)
	assert.Equal(t, 14*24*time.Hour, p.Categories[contracts.CategoryEngineeringActivity].HalfLife.Std())
	assert.Equal(t, contracts.AllSources(), p.EnabledSources())

	news, ok := p.Source(contracts.SourceNews)
	require.True(t, ok)
	assert.Equal(t, 3, news.Rate.Capacity)
	assert.Equal(t, 30*time.Minute, news.Breaker.Cooldown.Std())
	assert.Equal(t, time.Minute, p.Scheduler.StoreRetry.Std())
	assert.Empty(t, Warn(p))
}

func TestHashDeterministic(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)

	assert.Len(t, ha, 64)
	assert.Equal(t, ha, hb)

	b.Tiers.High = 80
	hc, _ := Hash(b)
	assert.NotEqual(t, ha, hc)
}

func TestClone(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	c := p.Clone()
	c.Categories[contracts.CategoryHiring] = CategoryPolicy{Weight: 0.9, HalfLife: Duration(time.Hour)}
	sp := c.Sources[contracts.SourceNews]
	sp.QueryTerms[0] = "changed"

	assert.Equal(t, 0.20, p.Categories[contracts.CategoryHiring].Weight)
	assert.Equal(t, "security", p.Sources[contracts.SourceNews].QueryTerms[0])
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalPolicy), 0o600))

	p, raw, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Len(t, p.Categories, 2)
	assert.Equal(t, 30*24*time.Hour, p.Categories[contracts.CategoryHiring].HalfLife.Std())
	assert.Equal(t, []contracts.Source{contracts.SourceNews}, p.EnabledSources())
}

func TestLoadOrDefault(t *testing.T) {
	p, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "default", p.Meta.PolicyID)

	_, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(minimalPolicy + "\nunexpected: true\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(string) string
		wantField string
	}{
		{
			name:      "negative weight",
			mutate:    func(s string) string { return strings.Replace(s, "weight: 0.5", "weight: -0.5", 1) },
			wantField: "categories.hiring.weight",
		},
		{
			name:      "zero half life",
			mutate:    func(s string) string { return strings.Replace(s, "half_life: 30d", "half_life: 0s", 1) },
			wantField: "categories.hiring.half_life",
		},
		{
			name:      "medium above high",
			mutate:    func(s string) string { return strings.Replace(s, "medium: 50", "medium: 90", 1) },
			wantField: "tiers",
		},
		{
			name:      "zero capacity",
			mutate:    func(s string) string { return strings.Replace(s, "capacity: 3", "capacity: 0", 1) },
			wantField: "sources.news.rate.capacity",
		},
		{
			name:      "jitter longer than interval",
			mutate:    func(s string) string { return strings.Replace(s, "jitter: 30m", "jitter: 13h", 1) },
			wantField: "sources.news.jitter",
		},
		{
			name:      "bad cron",
			mutate:    func(s string) string { return strings.Replace(s, `score_refresh: "0 */15 * * * *"`, `score_refresh: "nope"`, 1) },
			wantField: "scheduler.score_refresh",
		},
		{
			name:      "negative store retry",
			mutate:    func(s string) string { return strings.Replace(s, "tick: 1s", "tick: 1s\n  store_retry: -1m", 1) },
			wantField: "scheduler.store_retry",
		},
		{
			name:      "unknown category",
			mutate:    func(s string) string { return strings.Replace(s, "hiring:", "firmographic:", 1) },
			wantField: "categories.firmographic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mutate(minimalPolicy)))
			require.Error(t, err)

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"7d", 7 * 24 * time.Hour, true},
		{"0.5d", 12 * time.Hour, true},
		{"90s", 90 * time.Second, true},
		{"1h30m", 90 * time.Minute, true},
		{"xd", 0, false},
		{"soon", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Std())
		})
	}
}

func TestWarnUnnormalizedWeights(t *testing.T) {
	p, err := Parse([]byte(strings.Replace(minimalPolicy, "weight: 0.5", "weight: 0.7", 1)))
	require.NoError(t, err)

	warnings := Warn(p)
	require.Len(t, warnings, 1)
	assert.Equal(t, "WEIGHTS_NOT_NORMALIZED", warnings[0].Code)
}

const minimalPolicy = `meta:
  policy_id: test
  version: "1"
categories:
  hiring:
    weight: 0.5
    half_life: 30d
  news_mention:
    weight: 0.5
    half_life: 7d
tiers:
  high: 70
  medium: 50
sources:
  news:
    enabled: true
    rate: { capacity: 3, refill_per_second: 0.1, max_wait: 10s }
    breaker: { failure_threshold: 3, cooldown: 30m }
    retry: { max_attempts: 3, base_delay: 2s, max_delay: 1m }
    poll_interval: 12h
    jitter: 30m
    lookback: 30d
    timeout: 30s
    relevance_floor: 0.3
    query_terms: [security]
  community:
    enabled: false
scheduler:
  workers: 2
  tick: 1s
  score_refresh: "0 */15 * * * *"
  health_report: ""
`
