package contracts

import "time"

// Tier is the outreach priority bucket derived from the aggregate score
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// ScoreComponent is the decayed sub-score of one category, in [0, 1].
type ScoreComponent struct {
	Category         Category             `json:"category"`
	Value            float64              `json:"value"`
	Weight           float64              `json:"weight"`
	EffectiveWeight  float64              `json:"effective_weight"` // weight renormalized over present categories
	Contribution     float64              `json:"contribution"`     // points added to the aggregate
	SignalCount      int                  `json:"signal_count"`
	LatestObservedAt time.Time            `json:"latest_observed_at"`
	TopSignals       []SignalContribution `json:"top_signals,omitempty"`
}

// SignalContribution is one signal's decayed confidence inside a component.
type SignalContribution struct {
	SignalID   string    `json:"signal_id"`
	Source     Source    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
	Decayed    float64   `json:"decayed"`
}

// ScoreResult is derived from the signal store and configuration; it is never the source of truth.
type ScoreResult struct {
	CompanyID  string                      `json:"company_id"`
	Components map[Category]ScoreComponent `json:"components"`
	Aggregate  float64                     `json:"aggregate"` // 0 ~ 100
	Tier       Tier                        `json:"tier"`
	ComputedAt time.Time                   `json:"computed_at"`
	PolicyHash string                      `json:"policy_hash,omitempty"`
}

// IsHighIntent reports whether the company is in the top tier
func (r *ScoreResult) IsHighIntent() bool {
	return r.Tier == TierHigh
}
