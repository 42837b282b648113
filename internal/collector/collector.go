package collector

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/intentconfig"
	"github.com/wonny/intent/internal/limiter"
	"github.com/wonny/intent/internal/normalize"
	"github.com/wonny/intent/pkg/logger"
)

// Collector polls the registered adapters of a company and persists what they return.
// ⭐ SSOT: every Signal written to the store passes through this package
type Collector struct {
	adapters   map[contracts.Source]contracts.Adapter
	guards     *limiter.Registry
	store      contracts.SignalStore
	normalizer *normalize.Normalizer
	policy     *intentconfig.Policy
	clock      clockwork.Clock
	logger     *logger.Logger

	pairs    sync.Map // "company\x1fsource" -> *sync.Mutex
	mu       sync.RWMutex
	onChange []func(ctx context.Context, result contracts.CollectResult)
}

// Config holds collector dependencies
type Config struct {
	Guards *limiter.Registry
	Store  contracts.SignalStore
	Policy *intentconfig.Policy
	Clock  clockwork.Clock
	Logger *logger.Logger
}

// NewCollector creates a Collector without adapters; see Register
func NewCollector(cfg Config) *Collector {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{
		adapters:   make(map[contracts.Source]contracts.Adapter),
		guards:     cfg.Guards,
		store:      cfg.Store,
		normalizer: normalize.New(log),
		policy:     cfg.Policy,
		clock:      clock,
		logger:     log.WithModule("collector"),
	}
}

// Register binds an adapter to a source. Sources without a guard (disabled in policy) are never polled.
func (c *Collector) Register(source contracts.Source, adapter contracts.Adapter) {
	c.adapters[source] = adapter
}

// OnChange registers a callback run after a collect that added or updated signals
func (c *Collector) OnChange(fn func(ctx context.Context, result contracts.CollectResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Sources returns the sources that are both enabled and backed by an adapter, in policy order
func (c *Collector) Sources() []contracts.Source {
	out := make([]contracts.Source, 0, len(c.adapters))
	for _, src := range c.guards.Sources() {
		if _, ok := c.adapters[src]; ok {
			out = append(out, src)
		}
	}
	return out
}

// Outcome is the result of polling one (company, source) pair
type Outcome struct {
	Source     contracts.Source
	Added      int
	Updated    int
	Dropped    int
	BelowFloor int
	Err        error // non-fatal failure of this source
}

// Collect polls every enabled source for the company concurrently.
// Source failures are reported in SourcesFailed and never fail the call; only a
// store outage does, in which case the partial result is returned with the error.
func (c *Collector) Collect(ctx context.Context, company contracts.Company) (contracts.CollectResult, error) {
	started := c.clock.Now()
	sources := c.Sources()
	result := contracts.CollectResult{CompanyID: company.ID, StartedAt: started.UTC()}

	outcomes := make([]Outcome, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(len(sources), 1))

	for i, src := range sources {
		g.Go(func() error {
			out, err := c.CollectSource(gctx, company, src)
			outcomes[i] = out
			return err
		})
	}
	fatal := g.Wait()

	for _, out := range outcomes {
		result.SignalsAdded += out.Added
		result.SignalsUpdated += out.Updated
		result.Dropped += out.Dropped
		result.BelowFloor += out.BelowFloor
		if out.Err != nil {
			result.SourcesFailed = append(result.SourcesFailed, contracts.SourceFailure{
				Source: out.Source,
				Kind:   contracts.KindOf(out.Err),
				Error:  out.Err.Error(),
			})
		}
	}
	result.Duration = c.clock.Since(started)

	if fatal != nil {
		c.logger.WithError(fatal).WithField("company_id", company.ID).Error("Collect aborted")
		return result, fatal
	}

	c.logger.WithFields(map[string]any{
		"company_id":     company.ID,
		"added":          result.SignalsAdded,
		"updated":        result.SignalsUpdated,
		"dropped":        result.Dropped,
		"sources_failed": len(result.SourcesFailed),
		"duration":       result.Duration.String(),
	}).Info("Collect completed")

	if result.SignalsAdded+result.SignalsUpdated > 0 {
		c.notify(ctx, result)
	}
	return result, nil
}

// CollectSource polls one (company, source) pair. Polls of the same pair are serialized.
// The returned error is non-nil only for a store outage.
func (c *Collector) CollectSource(ctx context.Context, company contracts.Company, source contracts.Source) (Outcome, error) {
	out := Outcome{Source: source}

	adapter, ok := c.adapters[source]
	guard, guarded := c.guards.Guard(source)
	if !ok || !guarded {
		out.Err = contracts.NewSourceError(source, contracts.KindSourceDisabled, "collect", errors.New("source not enabled"))
		return out, nil
	}

	lock := c.pairLock(company.ID, source)
	lock.Lock()
	defer lock.Unlock()

	log := c.logger.WithFields(map[string]any{"company_id": company.ID, "source": source})

	trial, err := guard.Admit()
	if err != nil {
		log.WithError(err).Debug("Poll skipped")
		out.Err = err
		return out, nil
	}

	sp, _ := c.policy.Source(source)
	collectedAt := c.clock.Now()
	since := collectedAt.Add(-sp.Lookback.Std())

	observations, err := c.poll(ctx, guard, adapter, company, sp, since, trial)
	guard.Complete(err)
	if err != nil {
		log.WithError(err).WithField("kind", contracts.KindOf(err)).Warn("Poll failed")
		out.Err = err
		return out, nil
	}

	kept := observations[:0]
	for _, obs := range observations {
		if obs.Confidence < sp.RelevanceFloor {
			out.BelowFloor++
			continue
		}
		kept = append(kept, obs)
	}

	batch := c.normalizer.Normalize(company.ID, source, kept, collectedAt)
	out.Dropped = batch.Dropped

	for _, sig := range batch.Signals {
		outcome, err := c.store.Upsert(ctx, sig)
		if err != nil {
			if contracts.IsStoreUnavailable(err) || errors.Is(err, context.Canceled) {
				return out, fmt.Errorf("upsert %s: %w", sig.ID, err)
			}
			out.Dropped++
			log.WithError(err).WithField("signal_id", sig.ID).Warn("Upsert rejected")
			continue
		}
		switch outcome {
		case contracts.UpsertInserted:
			out.Added++
		case contracts.UpsertUpdated:
			out.Updated++
		}
	}

	log.WithFields(map[string]any{
		"fetched":     len(observations),
		"added":       out.Added,
		"updated":     out.Updated,
		"dropped":     out.Dropped,
		"below_floor": out.BelowFloor,
		"trial":       trial,
	}).Debug("Poll completed")

	return out, nil
}

// poll runs the retry loop of one admitted poll. A HalfOpen trial makes a single attempt.
func (c *Collector) poll(
	ctx context.Context,
	guard *limiter.Guard,
	adapter contracts.Adapter,
	company contracts.Company,
	sp intentconfig.SourcePolicy,
	since time.Time,
	trial bool,
) ([]contracts.RawObservation, error) {
	attempts := max(sp.Retry.MaxAttempts, 1)
	if trial {
		attempts = 1
	}

	var lastErr, upstreamErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, Backoff(attempt, sp.Retry.BaseDelay.Std(), sp.Retry.MaxDelay.Std())); err != nil {
				return nil, err
			}
		}

		if err := guard.Acquire(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		observations, err := c.fetch(ctx, adapter, company, sp, since)
		if err == nil {
			return observations, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr, upstreamErr = err, err
		if !contracts.Retryable(err) {
			break
		}
		c.logger.WithError(err).WithFields(map[string]any{
			"company_id": company.ID,
			"source":     guard.Source(),
			"attempt":    attempt + 1,
		}).Debug("Retrying poll")
	}

	// the breaker judges the upstream, not the local bucket
	if errors.Is(lastErr, limiter.ErrBucketEmpty) && upstreamErr != nil {
		return nil, upstreamErr
	}
	return nil, lastErr
}

func (c *Collector) fetch(
	ctx context.Context,
	adapter contracts.Adapter,
	company contracts.Company,
	sp intentconfig.SourcePolicy,
	since time.Time,
) ([]contracts.RawObservation, error) {
	if timeout := sp.Timeout.Std(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return adapter.Fetch(ctx, company, sp.QueryTerms, since)
}

func (c *Collector) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}

func (c *Collector) pairLock(companyID string, source contracts.Source) *sync.Mutex {
	v, _ := c.pairs.LoadOrStore(companyID+"\x1f"+string(source), &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (c *Collector) notify(ctx context.Context, result contracts.CollectResult) {
	c.mu.RLock()
	hooks := c.onChange
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, result)
	}
}

// Backoff returns the delay before retry number attempt (1-based):
// min(base·2^(attempt-1), maxDelay), jittered into [d/2, d].
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << (attempt - 1)
	if d <= 0 || (maxDelay > 0 && d > maxDelay) {
		d = maxDelay
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half+1)
}
