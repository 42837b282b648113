package realtime

import (
	"time"

	"github.com/wonny/intent/internal/contracts"
)

// EventType names a live feed message
type EventType string

const (
	EventScore      EventType = "score"
	EventTierChange EventType = "tier_change"
	EventSource     EventType = "source_health"
)

// ScoreEvent is pushed to feed subscribers whenever a company is rescored
// ⭐ SSOT: 실시간 점수 이벤트 구조
type ScoreEvent struct {
	Type         EventType              `json:"type"`
	CompanyID    string                 `json:"company_id"`
	Aggregate    float64                `json:"aggregate"`
	Tier         contracts.Tier         `json:"tier"`
	PreviousTier contracts.Tier         `json:"previous_tier,omitempty"`
	ComputedAt   time.Time              `json:"computed_at"`
	Result       *contracts.ScoreResult `json:"result,omitempty"`
}

// NewScoreEvent builds the event for a fresh result. previous is the tier the
// company had before, "" when unknown; a differing tier yields EventTierChange.
func NewScoreEvent(result contracts.ScoreResult, previous contracts.Tier) ScoreEvent {
	ev := ScoreEvent{
		Type:       EventScore,
		CompanyID:  result.CompanyID,
		Aggregate:  result.Aggregate,
		Tier:       result.Tier,
		ComputedAt: result.ComputedAt,
		Result:     &result,
	}
	if previous != "" && previous != result.Tier {
		ev.Type = EventTierChange
		ev.PreviousTier = previous
	}
	return ev
}

// HealthEvent is pushed when a source's circuit changes state
type HealthEvent struct {
	Type   EventType              `json:"type"`
	Health contracts.SourceHealth `json:"health"`
}
