package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/data/memory"
	"github.com/wonny/intent/internal/intentconfig"
)

const day = 24 * time.Hour

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func twoCategoryPolicy() *intentconfig.Policy {
	return &intentconfig.Policy{
		Categories: map[contracts.Category]intentconfig.CategoryPolicy{
			contracts.CategoryCommunityDiscussion: {Weight: 0.5, HalfLife: intentconfig.Duration(7 * day)},
			contracts.CategoryHiring:              {Weight: 0.5, HalfLife: intentconfig.Duration(30 * day)},
		},
		Tiers: intentconfig.Tiers{High: 70, Medium: 50},
	}
}

func newEngine(t *testing.T, p *intentconfig.Policy) *Engine {
	t.Helper()
	e, err := NewEngine(p)
	require.NoError(t, err)
	return e
}

func signal(id string, cat contracts.Category, age time.Duration, conf float64) contracts.Signal {
	return contracts.Signal{
		ID:         id,
		CompanyID:  "acme.com",
		Source:     contracts.SourceCommunity,
		Category:   cat,
		ObservedAt: now.Add(-age),
		Confidence: conf,
	}
}

func TestCompute_WorkedExample(t *testing.T) {
	e := newEngine(t, twoCategoryPolicy())

	result := e.Compute("acme.com", []contracts.Signal{
		signal("a", contracts.CategoryCommunityDiscussion, 7*day, 0.8),
		signal("b", contracts.CategoryHiring, 0, 1.0),
	}, now)

	assert.InDelta(t, 0.4, result.Components[contracts.CategoryCommunityDiscussion].Value, 1e-12)
	assert.InDelta(t, 1.0, result.Components[contracts.CategoryHiring].Value, 1e-12)
	assert.InDelta(t, 70.0, result.Aggregate, 1e-9)
	assert.Equal(t, contracts.TierHigh, result.Tier)
	assert.Equal(t, now, result.ComputedAt)
	assert.NotEmpty(t, result.PolicyHash)
}

func TestCompute_MissingCategoryIsNeutral(t *testing.T) {
	e := newEngine(t, twoCategoryPolicy())

	result := e.Compute("acme.com", []contracts.Signal{
		signal("b", contracts.CategoryHiring, 0, 0.9),
	}, now)

	require.Len(t, result.Components, 1)
	assert.InDelta(t, 90.0, result.Aggregate, 1e-9, "absent community category must not pull the score down")
	assert.InDelta(t, 1.0, result.Components[contracts.CategoryHiring].EffectiveWeight, 1e-12)
}

func TestCompute_NoSignals(t *testing.T) {
	e := newEngine(t, twoCategoryPolicy())

	result := e.Compute("acme.com", nil, now)
	assert.Zero(t, result.Aggregate)
	assert.Equal(t, contracts.TierLow, result.Tier)
	assert.Empty(t, result.Components)
}

func TestCompute_ComponentSaturates(t *testing.T) {
	e := newEngine(t, twoCategoryPolicy())

	var signals []contracts.Signal
	for i := 0; i < 10; i++ {
		signals = append(signals, signal(fmt.Sprintf("s%d", i), contracts.CategoryHiring, 0, 0.9))
	}

	result := e.Compute("acme.com", signals, now)
	c := result.Components[contracts.CategoryHiring]
	assert.Equal(t, 1.0, c.Value)
	assert.Equal(t, 10, c.SignalCount)
	assert.Len(t, c.TopSignals, topSignalsPerComponent)
	assert.Equal(t, 100.0, result.Aggregate)
}

func TestCompute_UnconfiguredCategoryIgnored(t *testing.T) {
	e := newEngine(t, twoCategoryPolicy())

	result := e.Compute("acme.com", []contracts.Signal{
		signal("b", contracts.CategoryHiring, 0, 0.5),
		signal("x", contracts.CategoryTechnology, 0, 1.0),
	}, now)

	assert.NotContains(t, result.Components, contracts.CategoryTechnology)
	assert.InDelta(t, 50.0, result.Aggregate, 1e-9)
	assert.Equal(t, contracts.TierMedium, result.Tier)
}

func TestCompute_FutureDatedDoesNotExceedConfidence(t *testing.T) {
	e := newEngine(t, twoCategoryPolicy())

	result := e.Compute("acme.com", []contracts.Signal{
		signal("f", contracts.CategoryHiring, -3*day, 0.6),
	}, now)
	assert.InDelta(t, 0.6, result.Components[contracts.CategoryHiring].Value, 1e-12)
}

func TestDecay_Monotonic(t *testing.T) {
	halfLife := 7 * day
	prev := Decay(0, halfLife)
	assert.Equal(t, 1.0, prev)

	for age := time.Hour; age < 120*day; age += 13 * time.Hour {
		d := Decay(age, halfLife)
		assert.Less(t, d, prev, "decay must strictly decrease with age")
		assert.Greater(t, d, 0.0)
		prev = d
	}
	assert.InDelta(t, 0.5, Decay(halfLife, halfLife), 1e-12)
	assert.InDelta(t, 0.25, Decay(2*halfLife, halfLife), 1e-12)
}

func TestCompute_OlderSignalScoresLower(t *testing.T) {
	e := newEngine(t, twoCategoryPolicy())

	fresh := e.Compute("acme.com", []contracts.Signal{signal("a", contracts.CategoryCommunityDiscussion, day, 0.8)}, now)
	stale := e.Compute("acme.com", []contracts.Signal{signal("a", contracts.CategoryCommunityDiscussion, 10*day, 0.8)}, now)
	assert.Less(t, stale.Aggregate, fresh.Aggregate)
}

func TestCompute_BoundsAndDeterminism(t *testing.T) {
	policy, err := intentconfig.Default()
	require.NoError(t, err)
	e := newEngine(t, policy)

	rng := rand.New(rand.NewSource(42))
	categories := contracts.AllCategories()

	for round := 0; round < 50; round++ {
		var signals []contracts.Signal
		n := rng.Intn(40)
		for i := 0; i < n; i++ {
			signals = append(signals, signal(
				fmt.Sprintf("r%d-%d", round, i),
				categories[rng.Intn(len(categories))],
				time.Duration(rng.Int63n(int64(200*day)))-10*day,
				rng.Float64(),
			))
		}

		first := e.Compute("acme.com", signals, now)
		assert.GreaterOrEqual(t, first.Aggregate, 0.0)
		assert.LessOrEqual(t, first.Aggregate, 100.0)
		for _, c := range first.Components {
			assert.GreaterOrEqual(t, c.Value, 0.0)
			assert.LessOrEqual(t, c.Value, 1.0)
		}

		shuffled := append([]contracts.Signal(nil), signals...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		second := e.Compute("acme.com", shuffled, now)

		a, err := json.Marshal(first)
		require.NoError(t, err)
		b, err := json.Marshal(second)
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), "same snapshot and config must give identical results")
	}
}

func TestTier(t *testing.T) {
	e := newEngine(t, twoCategoryPolicy())

	tests := []struct {
		aggregate float64
		want      contracts.Tier
	}{
		{100, contracts.TierHigh},
		{70, contracts.TierHigh},
		{69.999, contracts.TierMedium},
		{50, contracts.TierMedium},
		{49.9, contracts.TierLow},
		{0, contracts.TierLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Tier(tt.aggregate), "aggregate %v", tt.aggregate)
	}
}

func TestEngine_ConfigIsCopied(t *testing.T) {
	p := twoCategoryPolicy()
	e := newEngine(t, p)
	p.Categories[contracts.CategoryHiring] = intentconfig.CategoryPolicy{Weight: 0, HalfLife: intentconfig.Duration(day)}

	result := e.Compute("acme.com", []contracts.Signal{signal("b", contracts.CategoryHiring, 0, 0.9)}, now)
	assert.InDelta(t, 90.0, result.Aggregate, 1e-9)
}

func TestScorer_ReadsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSignalStore()
	for _, s := range []contracts.Signal{
		signal("a", contracts.CategoryCommunityDiscussion, 7*day, 0.8),
		signal("b", contracts.CategoryHiring, 0, 1.0),
	} {
		_, err := store.Upsert(ctx, s)
		require.NoError(t, err)
	}

	// re-observing a signal must not inflate the score
	_, err := store.Upsert(ctx, signal("a", contracts.CategoryCommunityDiscussion, 7*day, 0.8))
	require.NoError(t, err)

	scorer := NewScorer(store, newEngine(t, twoCategoryPolicy()), clockwork.NewFakeClockAt(now))
	result, err := scorer.Score(ctx, "acme.com")
	require.NoError(t, err)
	assert.InDelta(t, 70.0, result.Aggregate, 1e-9)
}
