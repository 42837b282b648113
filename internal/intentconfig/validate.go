package intentconfig

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/robfig/cron/v3"
	"github.com/wonny/intent/internal/contracts"
)

// ValidationError is a fatal policy problem
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning is a non-fatal policy smell
type Warning struct {
	Code    string
	Message string
}

// cronParser matches the scheduler's cron.WithSeconds() parser
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks all required constraints
func Validate(p *Policy) error {
	// === Categories ===
	if len(p.Categories) == 0 {
		return ValidationError{"categories", "at least one category is required"}
	}
	positive := false
	for _, cat := range slices.Sorted(maps.Keys(p.Categories)) {
		cp := p.Categories[cat]
		field := fmt.Sprintf("categories.%s", cat)
		if !contracts.IsValidCategory(string(cat)) {
			return ValidationError{field, "unknown category"}
		}
		if math.IsNaN(cp.Weight) || cp.Weight < 0 {
			return ValidationError{field + ".weight", "must be >= 0"}
		}
		if cp.HalfLife <= 0 {
			return ValidationError{field + ".half_life", "must be > 0"}
		}
		if cp.Weight > 0 {
			positive = true
		}
	}
	if !positive {
		return ValidationError{"categories", "at least one weight must be > 0"}
	}

	// === Tiers ===
	if p.Tiers.Medium < 0 || p.Tiers.High > 100 || p.Tiers.Medium > p.Tiers.High {
		return ValidationError{"tiers", "must satisfy 0 <= medium <= high <= 100"}
	}

	// === Sources ===
	for _, src := range slices.Sorted(maps.Keys(p.Sources)) {
		if !contracts.IsValidSource(string(src)) {
			return ValidationError{fmt.Sprintf("sources.%s", src), "unknown source"}
		}
		sp := p.Sources[src]
		if !sp.Enabled {
			continue
		}
		if err := validateSource(string(src), sp); err != nil {
			return err
		}
	}

	// === Scheduler ===
	if p.Scheduler.Workers < 1 {
		return ValidationError{"scheduler.workers", "must be >= 1"}
	}
	if p.Scheduler.Tick <= 0 {
		return ValidationError{"scheduler.tick", "must be > 0"}
	}
	if p.Scheduler.StoreRetry < 0 {
		return ValidationError{"scheduler.store_retry", "must be >= 0"}
	}
	for field, spec := range map[string]string{
		"scheduler.score_refresh": p.Scheduler.ScoreRefresh,
		"scheduler.health_report": p.Scheduler.HealthReport,
	} {
		if spec == "" {
			continue
		}
		if _, err := cronParser.Parse(spec); err != nil {
			return ValidationError{field, err.Error()}
		}
	}

	return nil
}

func validateSource(name string, sp SourcePolicy) error {
	prefix := "sources." + name
	switch {
	case sp.Rate.Capacity < 1:
		return ValidationError{prefix + ".rate.capacity", "must be >= 1"}
	case sp.Rate.RefillPerSecond <= 0:
		return ValidationError{prefix + ".rate.refill_per_second", "must be > 0"}
	case sp.Rate.MaxWait < 0:
		return ValidationError{prefix + ".rate.max_wait", "must be >= 0"}
	case sp.Breaker.FailureThreshold < 1:
		return ValidationError{prefix + ".breaker.failure_threshold", "must be >= 1"}
	case sp.Breaker.Cooldown <= 0:
		return ValidationError{prefix + ".breaker.cooldown", "must be > 0"}
	case sp.Retry.MaxAttempts < 1:
		return ValidationError{prefix + ".retry.max_attempts", "must be >= 1"}
	case sp.Retry.BaseDelay <= 0:
		return ValidationError{prefix + ".retry.base_delay", "must be > 0"}
	case sp.Retry.MaxDelay < sp.Retry.BaseDelay:
		return ValidationError{prefix + ".retry.max_delay", "must be >= base_delay"}
	case sp.PollInterval <= 0:
		return ValidationError{prefix + ".poll_interval", "must be > 0"}
	case sp.Jitter < 0 || sp.Jitter >= sp.PollInterval:
		return ValidationError{prefix + ".jitter", "must be in [0, poll_interval)"}
	case sp.Lookback <= 0:
		return ValidationError{prefix + ".lookback", "must be > 0"}
	case sp.Timeout <= 0:
		return ValidationError{prefix + ".timeout", "must be > 0"}
	case sp.RelevanceFloor < 0 || sp.RelevanceFloor > 1:
		return ValidationError{prefix + ".relevance_floor", "must be in [0, 1]"}
	}
	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(p *Policy) []Warning {
	var warnings []Warning

	sum := 0.0
	for _, cp := range p.Categories {
		sum += cp.Weight
	}
	if math.Abs(sum-1.0) > 1e-6 {
		warnings = append(warnings, Warning{
			Code:    "WEIGHTS_NOT_NORMALIZED",
			Message: fmt.Sprintf("category weights sum to %.4f; effective weights are renormalized per company", sum),
		})
	}

	if len(p.EnabledSources()) == 0 {
		warnings = append(warnings, Warning{
			Code:    "NO_SOURCES",
			Message: "no source is enabled; collect will be a no-op",
		})
	}

	for _, src := range p.EnabledSources() {
		sp := p.Sources[src]
		if sp.Retry.MaxAttempts > 1 && sp.Rate.MaxWait.Std() == 0 {
			warnings = append(warnings, Warning{
				Code:    "ZERO_TOKEN_WAIT",
				Message: fmt.Sprintf("%s: max_wait is 0, retries will fail fast on an empty bucket", src),
			})
		}
	}

	return warnings
}
