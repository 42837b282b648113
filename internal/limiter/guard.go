package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/intentconfig"
	"github.com/wonny/intent/pkg/logger"
	"github.com/wonny/intent/pkg/redis"
)

// Guard routes every call to one source through its token bucket and breaker.
// ⭐ SSOT: SourceHealth is mutated only through a Guard
type Guard struct {
	source  contracts.Source
	bucket  Bucket
	breaker *Breaker
	maxWait time.Duration
	clock   clockwork.Clock
	logger  *logger.Logger
}

// Admit asks the breaker for permission to poll. trial marks the single HalfOpen probe.
func (g *Guard) Admit() (trial bool, err error) {
	return g.breaker.Allow()
}

// Acquire takes one token, waiting at most the configured bound.
// An empty bucket returns a KindRateLimited error wrapping ErrBucketEmpty; a failing
// bucket backend returns a KindSourceUnavailable error wrapping ErrBucketUnavailable.
func (g *Guard) Acquire(ctx context.Context) error {
	wait, ok, err := g.bucket.Reserve(ctx, g.maxWait)
	if err != nil {
		g.logger.WithError(err).WithField("source", g.source).Warn("Token bucket unavailable")
		return contracts.NewSourceError(g.source, contracts.KindSourceUnavailable, "acquire", fmt.Errorf("%w: %w", ErrBucketUnavailable, err))
	}
	if !ok {
		return contracts.NewSourceError(g.source, contracts.KindRateLimited, "acquire", ErrBucketEmpty)
	}
	if wait <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.clock.After(wait):
		return nil
	}
}

// Complete records the outcome of an admitted poll (after retries).
func (g *Guard) Complete(err error) {
	switch {
	case err == nil:
		g.breaker.Success()
	case errors.Is(err, ErrBucketEmpty), errors.Is(err, context.Canceled):
		// never reached the upstream
		g.breaker.Release()
	case contracts.KindOf(err) == contracts.KindAuth:
		g.breaker.Disable(err.Error())
		g.logger.WithError(err).WithField("source", g.source).Error("Source disabled after authentication failure")
	default:
		g.breaker.Failure(err)
	}
}

// Source returns the guarded source
func (g *Guard) Source() contracts.Source { return g.source }

// Health returns the breaker snapshot
func (g *Guard) Health() contracts.SourceHealth { return g.breaker.Health() }

// Reset re-enables the source and closes its circuit
func (g *Guard) Reset() { g.breaker.Reset() }

// BucketFactory builds the token bucket of one source
type BucketFactory func(source contracts.Source, rp intentconfig.RatePolicy) Bucket

// LocalBuckets builds in-process buckets
func LocalBuckets(clock clockwork.Clock) BucketFactory {
	return func(_ contracts.Source, rp intentconfig.RatePolicy) Bucket {
		return NewTokenBucket(rp.Capacity, rp.RefillPerSecond, clock)
	}
}

// RedisBuckets builds buckets shared through Redis
func RedisBuckets(tb *redis.TokenBucket) BucketFactory {
	return func(source contracts.Source, rp intentconfig.RatePolicy) Bucket {
		return NewRedisBucket(tb, string(source), rp.Capacity, rp.RefillPerSecond)
	}
}

// Registry holds one Guard per enabled source
type Registry struct {
	guards map[contracts.Source]*Guard
	order  []contracts.Source
}

// NewRegistry builds guards for every enabled source of the policy.
// A nil factory uses LocalBuckets.
func NewRegistry(policy *intentconfig.Policy, clock clockwork.Clock, log *logger.Logger, factory BucketFactory) *Registry {
	if factory == nil {
		factory = LocalBuckets(clock)
	}
	log = log.WithModule("limiter")

	r := &Registry{guards: make(map[contracts.Source]*Guard)}
	for _, src := range policy.EnabledSources() {
		sp := policy.Sources[src]

		breaker := NewBreaker(src, sp.Breaker.FailureThreshold, sp.Breaker.Cooldown.Std(), clock)
		breaker.OnTransition(func(source contracts.Source, from, to contracts.CircuitState) {
			log.WithFields(map[string]any{
				"source": source,
				"from":   from,
				"to":     to,
			}).Warn("Circuit state changed")
		})

		r.guards[src] = &Guard{
			source:  src,
			bucket:  factory(src, sp.Rate),
			breaker: breaker,
			maxWait: sp.Rate.MaxWait.Std(),
			clock:   clock,
			logger:  log,
		}
		r.order = append(r.order, src)
	}
	return r
}

// Guard returns the guard of a source
func (r *Registry) Guard(source contracts.Source) (*Guard, bool) {
	g, ok := r.guards[source]
	return g, ok
}

// Sources returns the guarded sources in policy order
func (r *Registry) Sources() []contracts.Source {
	return r.order
}

// Health returns every source's snapshot in policy order
func (r *Registry) Health() []contracts.SourceHealth {
	out := make([]contracts.SourceHealth, 0, len(r.order))
	for _, src := range r.order {
		out = append(out, r.guards[src].Health())
	}
	return out
}

// Reset re-enables one source
func (r *Registry) Reset(source contracts.Source) error {
	g, ok := r.guards[source]
	if !ok {
		return fmt.Errorf("source %s: %w", source, contracts.ErrNotFound)
	}
	g.Reset()
	return nil
}
