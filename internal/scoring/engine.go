package scoring

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/intentconfig"
)

// topSignalsPerComponent bounds the explanation attached to each component
const topSignalsPerComponent = 5

// Engine computes ScoreResults from a signal snapshot.
// ⭐ SSOT: the only place weights, half-lives and tier thresholds are applied.
// An Engine copies its configuration at construction and never changes it.
type Engine struct {
	weights    map[contracts.Category]float64
	halfLives  map[contracts.Category]time.Duration
	high       float64
	medium     float64
	policyHash string
}

// NewEngine builds an engine from a validated policy
func NewEngine(policy *intentconfig.Policy) (*Engine, error) {
	hash, err := intentconfig.Hash(policy)
	if err != nil {
		return nil, fmt.Errorf("hash policy: %w", err)
	}

	e := &Engine{
		weights:    make(map[contracts.Category]float64, len(policy.Categories)),
		halfLives:  make(map[contracts.Category]time.Duration, len(policy.Categories)),
		high:       policy.Tiers.High,
		medium:     policy.Tiers.Medium,
		policyHash: hash,
	}
	for cat, cp := range policy.Categories {
		if cp.HalfLife <= 0 {
			return nil, fmt.Errorf("category %s: half_life must be > 0", cat)
		}
		e.weights[cat] = cp.Weight
		e.halfLives[cat] = cp.HalfLife.Std()
	}
	return e, nil
}

// PolicyHash identifies the configuration this engine applies
func (e *Engine) PolicyHash() string {
	return e.policyHash
}

// Decay returns 0.5^(age/halfLife). Future-dated observations (age < 0) do not decay.
func Decay(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, age.Seconds()/halfLife.Seconds())
}

// Tier maps an aggregate onto the configured thresholds
func (e *Engine) Tier(aggregate float64) contracts.Tier {
	switch {
	case aggregate >= e.high:
		return contracts.TierHigh
	case aggregate >= e.medium:
		return contracts.TierMedium
	default:
		return contracts.TierLow
	}
}

type accumulator struct {
	sum     float64
	count   int
	latest  time.Time
	entries []contracts.SignalContribution
}

// Compute scores one company's signals as of now.
//
//	component(c) = min(1, Σ confidence · 0.5^(Δt / half_life_c))
//	aggregate    = 100 · Σ w_c · component(c) / Σ w_c   (sums over categories with signals)
//
// Categories without a configured weight are ignored. The result depends only on
// the inputs: signals are summed in (observed_at, id) order.
func (e *Engine) Compute(companyID string, signals []contracts.Signal, now time.Time) contracts.ScoreResult {
	ordered := slices.Clone(signals)
	slices.SortFunc(ordered, compareSignals)

	acc := make(map[contracts.Category]*accumulator)
	for _, sig := range ordered {
		halfLife, ok := e.halfLives[sig.Category]
		if !ok {
			continue
		}

		decayed := sig.Confidence * Decay(now.Sub(sig.ObservedAt), halfLife)

		a, ok := acc[sig.Category]
		if !ok {
			a = &accumulator{}
			acc[sig.Category] = a
		}
		a.sum += decayed
		a.count++
		if sig.ObservedAt.After(a.latest) {
			a.latest = sig.ObservedAt
		}
		a.entries = append(a.entries, contracts.SignalContribution{
			SignalID:   sig.ID,
			Source:     sig.Source,
			ObservedAt: sig.ObservedAt,
			Decayed:    decayed,
		})
	}

	categories := make([]contracts.Category, 0, len(acc))
	presentWeight := 0.0
	for cat := range acc {
		categories = append(categories, cat)
	}
	slices.Sort(categories)
	for _, cat := range categories {
		presentWeight += e.weights[cat]
	}

	result := contracts.ScoreResult{
		CompanyID:  companyID,
		Components: make(map[contracts.Category]contracts.ScoreComponent, len(categories)),
		ComputedAt: now,
		PolicyHash: e.policyHash,
	}

	weighted := 0.0
	for _, cat := range categories {
		a := acc[cat]
		value := math.Min(1, a.sum)
		weight := e.weights[cat]

		effective := 0.0
		if presentWeight > 0 {
			effective = weight / presentWeight
		}
		weighted += weight * value

		result.Components[cat] = contracts.ScoreComponent{
			Category:         cat,
			Value:            value,
			Weight:           weight,
			EffectiveWeight:  effective,
			Contribution:     100 * effective * value,
			SignalCount:      a.count,
			LatestObservedAt: a.latest,
			TopSignals:       topContributions(a.entries),
		}
	}

	if presentWeight > 0 {
		result.Aggregate = clamp(100*(weighted/presentWeight), 0, 100)
	}
	result.Tier = e.Tier(result.Aggregate)

	return result
}

func topContributions(entries []contracts.SignalContribution) []contracts.SignalContribution {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b contracts.SignalContribution) int {
		switch {
		case a.Decayed > b.Decayed:
			return -1
		case a.Decayed < b.Decayed:
			return 1
		}
		if a.SignalID < b.SignalID {
			return -1
		}
		if a.SignalID > b.SignalID {
			return 1
		}
		return 0
	})
	if len(sorted) > topSignalsPerComponent {
		sorted = sorted[:topSignalsPerComponent]
	}
	return sorted
}

func compareSignals(a, b contracts.Signal) int {
	if c := a.ObservedAt.Compare(b.ObservedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Scorer reads a consistent snapshot from the store and scores it.
type Scorer struct {
	store  contracts.SignalStore
	engine *Engine
	clock  clockwork.Clock
}

// NewScorer creates a Scorer
func NewScorer(store contracts.SignalStore, engine *Engine, clock clockwork.Clock) *Scorer {
	return &Scorer{store: store, engine: engine, clock: clock}
}

// Score computes the company's score as of the scorer's clock.
// The only I/O is the snapshot read; a store outage is returned as is.
func (s *Scorer) Score(ctx context.Context, companyID string) (contracts.ScoreResult, error) {
	snapshot, err := s.store.Snapshot(ctx, companyID)
	if err != nil {
		return contracts.ScoreResult{}, fmt.Errorf("score %s: %w", companyID, err)
	}
	return s.engine.Compute(companyID, snapshot, s.clock.Now().UTC()), nil
}

// Engine returns the underlying engine
func (s *Scorer) Engine() *Engine {
	return s.engine
}
