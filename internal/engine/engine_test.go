package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/intent/internal/collector"
	"github.com/wonny/intent/internal/companies"
	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/data/memory"
	"github.com/wonny/intent/internal/intentconfig"
	"github.com/wonny/intent/internal/limiter"
	"github.com/wonny/intent/internal/realtime"
	"github.com/wonny/intent/internal/realtime/cache"
	"github.com/wonny/intent/internal/scoring"
	"github.com/wonny/intent/pkg/logger"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	scores []realtime.ScoreEvent
	health []contracts.SourceHealth
}

func (r *recorder) PublishScore(ev realtime.ScoreEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores = append(r.scores, ev)
}

func (r *recorder) PublishHealth(h contracts.SourceHealth) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health = append(r.health, h)
}

type fixture struct {
	engine    *Engine
	store     *memory.SignalStore
	cache     *cache.ScoreCache
	published *recorder
	clock     *clockwork.FakeClock
}

func newFixture(t *testing.T, news contracts.Adapter) *fixture {
	t.Helper()
	policy, err := intentconfig.Default()
	require.NoError(t, err)
	for src, sp := range policy.Sources {
		sp.Enabled = src == contracts.SourceNews
		sp.RelevanceFloor = 0
		sp.Retry = intentconfig.RetryPolicy{MaxAttempts: 1}
		policy.Sources[src] = sp
	}

	clock := clockwork.NewFakeClockAt(epoch)
	store := memory.NewSignalStore()
	guards := limiter.NewRegistry(policy, clock, logger.Nop(), nil)
	col := collector.NewCollector(collector.Config{Guards: guards, Store: store, Policy: policy, Clock: clock})
	col.Register(contracts.SourceNews, news)

	se, err := scoring.NewEngine(policy)
	require.NoError(t, err)

	registry := companies.NewRegistry(memory.NewCompanyStore(), logger.Nop())
	_, err = registry.Add(context.Background(), contracts.Company{ID: "acme.com", Name: "Acme"})
	require.NoError(t, err)

	sc := cache.NewScoreCache(time.Hour, clock, logger.Nop())
	rec := &recorder{}
	e := New(Config{
		Registry:  registry,
		Collector: col,
		Scorer:    scoring.NewScorer(store, se, clock),
		Store:     store,
		Guards:    guards,
		Cache:     sc,
		Publisher: rec,
	})
	return &fixture{engine: e, store: store, cache: sc, published: rec, clock: clock}
}

func newsAdapter(n int) contracts.AdapterFunc {
	return func(ctx context.Context, _ contracts.Company, _ []string, _ time.Time) ([]contracts.RawObservation, error) {
		out := make([]contracts.RawObservation, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, contracts.RawObservation{
				Category:   contracts.CategoryNewsMention,
				DedupKey:   fmt.Sprintf("https://news.example/%d", i),
				ObservedAt: epoch.Add(-time.Duration(i) * time.Hour),
				Confidence: 0.9,
				Payload:    json.RawMessage(`{}`),
			})
		}
		return out, nil
	}
}

func TestEngine_CollectRefreshesAndPublishes(t *testing.T) {
	f := newFixture(t, newsAdapter(3))
	ctx := context.Background()

	res, err := f.engine.Collect(ctx, "https://www.acme.com")
	require.NoError(t, err)
	assert.Equal(t, 3, res.SignalsAdded)

	require.Len(t, f.published.scores, 1)
	ev := f.published.scores[0]
	assert.Equal(t, "acme.com", ev.CompanyID)
	assert.Equal(t, contracts.TierHigh, ev.Tier)

	cached, ok, err := f.cache.Get(ctx, "acme.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ev.Aggregate, cached.Aggregate)
}

func TestEngine_ScoreUsesCache(t *testing.T) {
	f := newFixture(t, newsAdapter(1))
	ctx := context.Background()

	first, err := f.engine.Score(ctx, "acme.com")
	require.NoError(t, err)
	assert.Zero(t, first.Aggregate)
	assert.Equal(t, contracts.TierLow, first.Tier)

	// a signal written behind the engine's back is not seen until invalidation
	_, err = f.store.Upsert(ctx, contracts.Signal{
		ID: "x", CompanyID: "acme.com", Source: contracts.SourceNews, Category: contracts.CategoryNewsMention,
		DedupKey: "k", ObservedAt: epoch, CollectedAt: epoch, Confidence: 1, SeenCount: 1,
	})
	require.NoError(t, err)

	again, err := f.engine.Score(ctx, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, f.cache.Delete(ctx, "acme.com"))
	fresh, err := f.engine.Score(ctx, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, 100.0, fresh.Aggregate)

	last := f.published.scores[len(f.published.scores)-1]
	assert.Equal(t, realtime.EventTierChange, last.Type)
	assert.Equal(t, contracts.TierLow, last.PreviousTier)
}

func TestEngine_UnknownCompany(t *testing.T) {
	f := newFixture(t, newsAdapter(1))
	_, err := f.engine.Score(context.Background(), "globex.io")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
	_, err = f.engine.Collect(context.Background(), "globex.io")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestEngine_RecentSignalsPagesLazily(t *testing.T) {
	f := newFixture(t, newsAdapter(7))
	ctx := context.Background()
	_, err := f.engine.Collect(ctx, "acme.com")
	require.NoError(t, err)

	since := epoch.Add(-5 * time.Hour)
	seq := f.engine.RecentSignals(ctx, "acme.com", since, 2)

	var got []contracts.Signal
	for sig, err := range seq {
		require.NoError(t, err)
		got = append(got, sig)
	}
	require.Len(t, got, 6)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].ObservedAt.Before(got[i-1].ObservedAt))
	}
	assert.False(t, got[0].ObservedAt.Before(since))

	// restartable
	count := 0
	for range seq {
		count++
	}
	assert.Equal(t, 6, count)

	// early stop
	taken := 0
	for range seq {
		taken++
		if taken == 3 {
			break
		}
	}
	assert.Equal(t, 3, taken)
}

type failingStore struct{ *memory.SignalStore }

func (failingStore) Page(context.Context, string, time.Time, *contracts.SignalCursor, int) ([]contracts.Signal, error) {
	return nil, contracts.StoreError("page", errors.New("down"))
}

func TestEngine_RecentSignalsYieldsError(t *testing.T) {
	f := newFixture(t, newsAdapter(1))
	f.engine.store = failingStore{memory.NewSignalStore()}

	n := 0
	for _, err := range f.engine.RecentSignals(context.Background(), "acme.com", time.Time{}, 10) {
		n++
		assert.True(t, contracts.IsStoreUnavailable(err))
	}
	assert.Equal(t, 1, n)
}

func TestEngine_ResetSource(t *testing.T) {
	f := newFixture(t, contracts.AdapterFunc(func(context.Context, contracts.Company, []string, time.Time) ([]contracts.RawObservation, error) {
		return nil, contracts.NewSourceError(contracts.SourceNews, contracts.KindAuth, "x", nil)
	}))
	ctx := context.Background()

	_, err := f.engine.Collect(ctx, "acme.com")
	require.NoError(t, err)
	require.True(t, f.engine.Health()[0].Disabled)

	require.NoError(t, f.engine.ResetSource(contracts.SourceNews))
	assert.False(t, f.engine.Health()[0].Disabled)
	require.Len(t, f.published.health, 1)

	assert.ErrorIs(t, f.engine.ResetSource("bogus"), contracts.ErrInvalid)
	assert.ErrorIs(t, f.engine.ResetSource(contracts.SourceTechStack), contracts.ErrNotFound)
}

func TestEngine_RefreshAll(t *testing.T) {
	f := newFixture(t, newsAdapter(1))
	ctx := context.Background()
	_, err := f.engine.Companies().Add(ctx, contracts.Company{ID: "globex.io", Name: "Globex"})
	require.NoError(t, err)

	n, err := f.engine.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
