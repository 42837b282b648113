package normalize

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/pkg/logger"
)

var (
	t0      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	company = "acme.com"
)

func obs(key string, at time.Time, conf float64) contracts.RawObservation {
	return contracts.RawObservation{
		Category:   contracts.CategoryNewsMention,
		DedupKey:   key,
		ObservedAt: at,
		Confidence: conf,
		Payload:    json.RawMessage(`{ "title" : "Acme raises" }`),
	}
}

func TestSignalID_Deterministic(t *testing.T) {
	a := SignalID(contracts.SourceNews, contracts.CategoryNewsMention, company, "k1")
	b := SignalID(contracts.SourceNews, contracts.CategoryNewsMention, company, "k1")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, SignalID(contracts.SourceNews, contracts.CategoryFundingEvent, company, "k1"))
	assert.NotEqual(t, a, SignalID(contracts.SourceCommunity, contracts.CategoryNewsMention, company, "k1"))
	assert.NotEqual(t, a, SignalID(contracts.SourceNews, contracts.CategoryNewsMention, "other.com", "k1"))
	// field boundaries are not ambiguous
	assert.NotEqual(t,
		SignalID(contracts.SourceNews, contracts.CategoryNewsMention, "ab", "c"),
		SignalID(contracts.SourceNews, contracts.CategoryNewsMention, "a", "bc"))
}

func TestDedupKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Org/Repo#12 ", "org/repo#12"},
		{"https://www.Example.com/news/acme-raises/?utm_source=x#top", "example.com/news/acme-raises"},
		{"http://example.com/news/acme-raises", "example.com/news/acme-raises"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupKey(tt.in))
		})
	}
}

func TestToSignal_Rejects(t *testing.T) {
	tests := []struct {
		name string
		obs  contracts.RawObservation
		want error
	}{
		{"empty key", obs(" ", t0, 0.5), ErrEmptyDedupKey},
		{"zero time", obs("k", time.Time{}, 0.5), ErrZeroObservedAt},
		{"negative confidence", obs("k", t0, -0.1), ErrBadConfidence},
		{"confidence above one", obs("k", t0, 1.01), ErrBadConfidence},
		{"nan confidence", obs("k", t0, math.NaN()), ErrBadConfidence},
		{"unknown category", contracts.RawObservation{Category: "firmographic", DedupKey: "k", ObservedAt: t0, Confidence: 0.5}, ErrUnknownCategory},
		{"bad payload", contracts.RawObservation{Category: contracts.CategoryHiring, DedupKey: "k", ObservedAt: t0, Confidence: 0.5, Payload: json.RawMessage(`{`)}, ErrBadPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToSignal(company, contracts.SourceNews, tt.obs, t0)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestToSignal_Canonicalizes(t *testing.T) {
	local := time.FixedZone("KST", 9*3600)
	sig, err := ToSignal(company, contracts.SourceNews, obs("https://www.example.com/a/", t0.In(local).Add(123*time.Nanosecond), 0.7), t0)
	require.NoError(t, err)

	assert.Equal(t, "example.com/a", sig.DedupKey)
	assert.Equal(t, time.UTC, sig.ObservedAt.Location())
	assert.True(t, sig.ObservedAt.Equal(t0), "nanoseconds truncated to microseconds")
	assert.Equal(t, `{"title":"Acme raises"}`, string(sig.Payload))
	assert.Equal(t, 1, sig.SeenCount)
	assert.Equal(t, SignalID(contracts.SourceNews, contracts.CategoryNewsMention, company, "example.com/a"), sig.ID)
}

func TestNormalize_DropsAndMerges(t *testing.T) {
	n := New(logger.Nop())

	batch := n.Normalize(company, contracts.SourceNews, []contracts.RawObservation{
		obs("https://example.com/b", t0.Add(time.Hour), 0.4),
		obs("https://www.example.com/b/", t0.Add(time.Hour), 0.9), // same article
		obs("https://example.com/a", t0, 0.5),
		obs("", t0, 0.5),
		obs("https://example.com/c", t0, 2),
	}, t0.Add(2*time.Hour))

	assert.Equal(t, 2, batch.Dropped)
	require.Len(t, batch.Signals, 2)
	assert.Equal(t, "example.com/a", batch.Signals[0].DedupKey, "ordered by observed_at")
	assert.Equal(t, "example.com/b", batch.Signals[1].DedupKey)
	assert.Equal(t, 0.9, batch.Signals[1].Confidence)
	assert.Equal(t, 2, batch.Signals[1].SeenCount)
}

func TestNormalize_Empty(t *testing.T) {
	batch := New(logger.Nop()).Normalize(company, contracts.SourceNews, nil, t0)
	assert.Empty(t, batch.Signals)
	assert.Zero(t, batch.Dropped)
}
