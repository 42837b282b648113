package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/wonny/intent/internal/collector"
	"github.com/wonny/intent/internal/companies"
	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/limiter"
	"github.com/wonny/intent/internal/realtime"
	"github.com/wonny/intent/internal/scoring"
	"github.com/wonny/intent/pkg/logger"
)

// DefaultPageSize is the store page size behind RecentSignals
const DefaultPageSize = 200

// ScoreCache caches ScoreResults per company
type ScoreCache interface {
	Get(ctx context.Context, companyID string) (contracts.ScoreResult, bool, error)
	Set(ctx context.Context, result contracts.ScoreResult) error
	Delete(ctx context.Context, companyID string) error
}

// Publisher receives live events
type Publisher interface {
	PublishScore(ev realtime.ScoreEvent)
	PublishHealth(health contracts.SourceHealth)
}

// Engine is the entry point used by the API, the CLI and the scheduled jobs:
// collect, score and read signals for registered companies.
// ⭐ SSOT: collect/score/recentSignals are exposed only through this type
type Engine struct {
	registry  *companies.Registry
	collector *collector.Collector
	scorer    *scoring.Scorer
	store     contracts.SignalStore
	guards    *limiter.Registry
	cache     ScoreCache
	publisher Publisher
	logger    *logger.Logger

	mu    sync.Mutex
	tiers map[string]contracts.Tier
}

// Config holds engine dependencies. Cache and Publisher are optional.
type Config struct {
	Registry  *companies.Registry
	Collector *collector.Collector
	Scorer    *scoring.Scorer
	Store     contracts.SignalStore
	Guards    *limiter.Registry
	Cache     ScoreCache
	Publisher Publisher
	Logger    *logger.Logger
}

// New wires an engine and subscribes it to collector changes
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		registry:  cfg.Registry,
		collector: cfg.Collector,
		scorer:    cfg.Scorer,
		store:     cfg.Store,
		guards:    cfg.Guards,
		cache:     cfg.Cache,
		publisher: cfg.Publisher,
		logger:    log.WithModule("engine"),
		tiers:     make(map[string]contracts.Tier),
	}
	e.collector.OnChange(func(ctx context.Context, result contracts.CollectResult) {
		e.signalsChanged(ctx, result.CompanyID)
	})
	return e
}

// Companies returns the company registry
func (e *Engine) Companies() *companies.Registry {
	return e.registry
}

// Collect polls every enabled source for a registered company
func (e *Engine) Collect(ctx context.Context, companyID string) (contracts.CollectResult, error) {
	company, err := e.registry.Get(ctx, companyID)
	if err != nil {
		return contracts.CollectResult{}, err
	}
	return e.collector.Collect(ctx, company)
}

// Score returns the company's score, from cache when a result computed under
// the current policy is cached.
func (e *Engine) Score(ctx context.Context, companyID string) (contracts.ScoreResult, error) {
	company, err := e.registry.Get(ctx, companyID)
	if err != nil {
		return contracts.ScoreResult{}, err
	}

	if e.cache != nil {
		cached, ok, err := e.cache.Get(ctx, company.ID)
		if err != nil {
			e.logger.WithError(err).Warn("Score cache read failed")
		} else if ok && cached.PolicyHash == e.scorer.Engine().PolicyHash() {
			return cached, nil
		}
	}
	return e.Refresh(ctx, company.ID)
}

// Refresh recomputes a score, stores it in the cache and publishes it
func (e *Engine) Refresh(ctx context.Context, companyID string) (contracts.ScoreResult, error) {
	result, err := e.scorer.Score(ctx, companyID)
	if err != nil {
		return contracts.ScoreResult{}, err
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, result); err != nil {
			e.logger.WithError(err).Warn("Score cache write failed")
		}
	}

	e.mu.Lock()
	previous := e.tiers[companyID]
	e.tiers[companyID] = result.Tier
	e.mu.Unlock()

	if e.publisher != nil {
		e.publisher.PublishScore(realtime.NewScoreEvent(result, previous))
	}
	if previous != "" && previous != result.Tier {
		e.logger.WithFields(map[string]any{
			"company_id": companyID,
			"from":       previous,
			"to":         result.Tier,
			"aggregate":  result.Aggregate,
		}).Info("Company changed tier")
	}
	return result, nil
}

// RefreshAll rescores every registered company. A store outage stops the pass.
func (e *Engine) RefreshAll(ctx context.Context) (int, error) {
	list, err := e.registry.List(ctx)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	var errs []error
	for _, c := range list {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, err := e.Refresh(ctx, c.ID); err != nil {
			if contracts.IsStoreUnavailable(err) {
				return refreshed, err
			}
			errs = append(errs, err)
			continue
		}
		refreshed++
	}
	return refreshed, errors.Join(errs...)
}

// HandleOutcome reacts to a scheduled poll of one pair
func (e *Engine) HandleOutcome(ctx context.Context, company contracts.Company, out collector.Outcome) {
	if out.Added+out.Updated > 0 {
		e.signalsChanged(ctx, company.ID)
	}
}

func (e *Engine) signalsChanged(ctx context.Context, companyID string) {
	if e.cache != nil {
		if err := e.cache.Delete(ctx, companyID); err != nil {
			e.logger.WithError(err).WithField("company_id", companyID).Warn("Score cache invalidation failed")
		}
	}
	if _, err := e.Refresh(ctx, companyID); err != nil {
		e.logger.WithError(err).WithField("company_id", companyID).Warn("Score refresh after collect failed")
	}
}

// RecentSignals returns the company's signals observed at or after since, in
// (observed_at, id) order. The sequence reads the store lazily one page at a
// time, is finite, and starts over from since each time it is ranged over.
// A read error is yielded once and ends the sequence.
func (e *Engine) RecentSignals(ctx context.Context, companyID string, since time.Time, pageSize int) iter.Seq2[contracts.Signal, error] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return func(yield func(contracts.Signal, error) bool) {
		var cursor *contracts.SignalCursor
		for {
			if err := ctx.Err(); err != nil {
				yield(contracts.Signal{}, err)
				return
			}

			page, err := e.store.Page(ctx, companyID, since, cursor, pageSize)
			if err != nil {
				yield(contracts.Signal{}, fmt.Errorf("read signals of %s: %w", companyID, err))
				return
			}

			for _, sig := range page {
				if !yield(sig, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			last := page[len(page)-1]
			cursor = &contracts.SignalCursor{ObservedAt: last.ObservedAt, ID: last.ID}
		}
	}
}

// Health returns every enabled source's breaker snapshot
func (e *Engine) Health() []contracts.SourceHealth {
	return e.guards.Health()
}

// ResetSource re-enables a source disabled after an auth failure and closes its circuit
func (e *Engine) ResetSource(source contracts.Source) error {
	if !contracts.IsValidSource(string(source)) {
		return fmt.Errorf("unknown source %q: %w", source, contracts.ErrInvalid)
	}
	if err := e.guards.Reset(source); err != nil {
		return err
	}

	guard, _ := e.guards.Guard(source)
	e.logger.WithField("source", source).Info("Source reset")
	if e.publisher != nil {
		e.publisher.PublishHealth(guard.Health())
	}
	return nil
}
