package contracts

import "time"

// CircuitState is the breaker state of one source
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// SourceHealth is a point-in-time snapshot of a source's breaker.
// ⭐ SSOT: owned by internal/limiter, mutated only by polling outcomes
type SourceHealth struct {
	Source              Source       `json:"source"`
	State               CircuitState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	NextRetryAt         time.Time    `json:"next_retry_at,omitzero"`
	Disabled            bool         `json:"disabled"`
	DisabledReason      string       `json:"disabled_reason,omitempty"`
	LastError           string       `json:"last_error,omitempty"`
	LastSuccessAt       time.Time    `json:"last_success_at,omitzero"`
}

// Available reports whether a poll may be attempted at now.
func (h SourceHealth) Available(now time.Time) bool {
	if h.Disabled {
		return false
	}
	return h.State != CircuitOpen || !now.Before(h.NextRetryAt)
}
