package intentconfig

import (
	"maps"
	"slices"

	"github.com/wonny/intent/internal/contracts"
)

// Policy is the full scoring and polling policy.
// ⭐ SSOT: weights, half-lives, tier thresholds, rate limits and breaker settings live only here.
// A loaded Policy is treated as immutable; consumers copy what they need at construction.
type Policy struct {
	Meta       Meta                                  `yaml:"meta" json:"meta"`
	Categories map[contracts.Category]CategoryPolicy `yaml:"categories" json:"categories"`
	Tiers      Tiers                                 `yaml:"tiers" json:"tiers"`
	Sources    map[contracts.Source]SourcePolicy     `yaml:"sources" json:"sources"`
	Scheduler  SchedulerPolicy                       `yaml:"scheduler" json:"scheduler"`
}

// Meta identifies a policy revision
type Meta struct {
	PolicyID string `yaml:"policy_id" json:"policy_id"`
	Version  string `yaml:"version" json:"version"`
}

// CategoryPolicy is the scoring treatment of one category
type CategoryPolicy struct {
	Weight   float64  `yaml:"weight" json:"weight"`
	HalfLife Duration `yaml:"half_life" json:"half_life"`
}

// Tiers are thresholds on the 0~100 aggregate: >= High → high, >= Medium → medium, else low
type Tiers struct {
	High   float64 `yaml:"high" json:"high"`
	Medium float64 `yaml:"medium" json:"medium"`
}

// SourcePolicy is the polling treatment of one source
type SourcePolicy struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	Rate           RatePolicy    `yaml:"rate" json:"rate"`
	Breaker        BreakerPolicy `yaml:"breaker" json:"breaker"`
	Retry          RetryPolicy   `yaml:"retry" json:"retry"`
	PollInterval   Duration      `yaml:"poll_interval" json:"poll_interval"`
	Jitter         Duration      `yaml:"jitter" json:"jitter"`
	Lookback       Duration      `yaml:"lookback" json:"lookback"`
	Timeout        Duration      `yaml:"timeout" json:"timeout"`
	QueryTerms     []string      `yaml:"query_terms" json:"query_terms"`
	RelevanceFloor float64       `yaml:"relevance_floor" json:"relevance_floor"`
}

// RatePolicy configures the token bucket
type RatePolicy struct {
	Capacity        int      `yaml:"capacity" json:"capacity"`
	RefillPerSecond float64  `yaml:"refill_per_second" json:"refill_per_second"`
	MaxWait         Duration `yaml:"max_wait" json:"max_wait"`
}

// BreakerPolicy configures the circuit breaker
type BreakerPolicy struct {
	FailureThreshold int      `yaml:"failure_threshold" json:"failure_threshold"`
	Cooldown         Duration `yaml:"cooldown" json:"cooldown"`
}

// RetryPolicy bounds in-cycle retries of transient failures
type RetryPolicy struct {
	MaxAttempts int      `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay" json:"max_delay"`
}

// SchedulerPolicy configures the poller and the periodic jobs.
// ScoreRefresh and HealthReport are cron specs with a seconds field.
type SchedulerPolicy struct {
	Workers      int      `yaml:"workers" json:"workers"`
	Tick         Duration `yaml:"tick" json:"tick"`
	ScoreRefresh string   `yaml:"score_refresh" json:"score_refresh"`
	HealthReport string   `yaml:"health_report" json:"health_report"`
	// StoreRetry is how long polling stays halted after a store outage
	StoreRetry   Duration `yaml:"store_retry" json:"store_retry"`
}

// EnabledSources returns enabled sources in contracts.AllSources order
func (p *Policy) EnabledSources() []contracts.Source {
	var out []contracts.Source
	for _, src := range contracts.AllSources() {
		if sp, ok := p.Sources[src]; ok && sp.Enabled {
			out = append(out, src)
		}
	}
	return out
}

// Source returns the policy of src
func (p *Policy) Source(src contracts.Source) (SourcePolicy, bool) {
	sp, ok := p.Sources[src]
	return sp, ok
}

// Clone returns a deep copy
func (p *Policy) Clone() *Policy {
	out := *p
	out.Categories = maps.Clone(p.Categories)
	out.Sources = make(map[contracts.Source]SourcePolicy, len(p.Sources))
	for k, v := range p.Sources {
		v.QueryTerms = slices.Clone(v.QueryTerms)
		out.Sources[k] = v
	}
	return &out
}
