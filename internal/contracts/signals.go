package contracts

import (
	"encoding/json"
	"time"
)

// Company is the organization signals are collected for.
// ⭐ SSOT: ID is the canonical registrable domain and never changes
type Company struct {
	ID         string            `json:"id" validate:"required,fqdn"`
	Name       string            `json:"name" validate:"required,max=200"`
	Industry   string            `json:"industry,omitempty" validate:"max=100"`
	SizeBucket string            `json:"size_bucket,omitempty" validate:"omitempty,oneof=1-10 11-50 51-200 201-1000 1001-5000 5000+"`
	Handles    map[string]string `json:"handles,omitempty"`
}

// Handle keys understood by adapters
const (
	HandleGitHubOrg       = "github"
	HandleGreenhouseBoard = "greenhouse"
	HandleHomepage        = "homepage"
)

// Handle returns the per-source identifier for key, or "" when unset.
func (c Company) Handle(key string) string {
	if c.Handles == nil {
		return ""
	}
	return c.Handles[key]
}

// RawObservation is what an adapter emits for one external event.
// Confidence is derived from payload fields only.
type RawObservation struct {
	Category   Category        `json:"category"`
	DedupKey   string          `json:"dedup_key"`
	ObservedAt time.Time       `json:"observed_at"`
	Confidence float64         `json:"confidence"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// MarshalPayload encodes an adapter-specific payload struct
func MarshalPayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// Signal is a normalized, deduplicated observation about one company.
// ⭐ SSOT: ID = hash(source, category, company_id, dedup_key)
// Only CollectedAt, Confidence and SeenCount change after insertion.
type Signal struct {
	ID          string          `json:"id"`
	CompanyID   string          `json:"company_id"`
	Source      Source          `json:"source"`
	Category    Category        `json:"category"`
	DedupKey    string          `json:"dedup_key"`
	ObservedAt  time.Time       `json:"observed_at"`
	CollectedAt time.Time       `json:"collected_at"`
	Confidence  float64         `json:"confidence"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	SeenCount   int             `json:"seen_count"`
}

// Merge folds a re-observation of the same signal into s.
// collected_at and confidence converge to their maxima; observed_at and payload keep the first write.
func (s Signal) Merge(next Signal) Signal {
	merged := s
	if next.CollectedAt.After(merged.CollectedAt) {
		merged.CollectedAt = next.CollectedAt
	}
	if next.Confidence > merged.Confidence {
		merged.Confidence = next.Confidence
	}
	merged.SeenCount = s.SeenCount + max(next.SeenCount, 1)
	return merged
}

// SignalCursor marks a position in the (observed_at, id) ordering used for paging.
type SignalCursor struct {
	ObservedAt time.Time `json:"observed_at"`
	ID         string    `json:"id"`
}

// After reports whether s sorts strictly after the cursor.
func (c SignalCursor) After(s Signal) bool {
	if s.ObservedAt.Equal(c.ObservedAt) {
		return s.ID > c.ID
	}
	return s.ObservedAt.After(c.ObservedAt)
}

// UpsertOutcome reports what an upsert did
type UpsertOutcome int

const (
	UpsertInserted UpsertOutcome = iota + 1
	UpsertUpdated
)

// CollectResult summarizes one collect(company) call.
type CollectResult struct {
	CompanyID      string          `json:"company_id"`
	SignalsAdded   int             `json:"signals_added"`
	SignalsUpdated int             `json:"signals_updated"`
	Dropped        int             `json:"dropped"`
	BelowFloor     int             `json:"below_floor"`
	SourcesFailed  []SourceFailure `json:"sources_failed"`
	StartedAt      time.Time       `json:"started_at"`
	Duration       time.Duration   `json:"duration"`
}

// SourceFailure records why one source contributed nothing in a cycle.
type SourceFailure struct {
	Source Source    `json:"source"`
	Kind   ErrorKind `json:"kind"`
	Error  string    `json:"error"`
}

// Failed returns the failed sources only
func (r *CollectResult) Failed() []Source {
	out := make([]Source, 0, len(r.SourcesFailed))
	for _, f := range r.SourcesFailed {
		out = append(out, f.Source)
	}
	return out
}
