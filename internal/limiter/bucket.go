package limiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/wonny/intent/pkg/redis"
)

// ErrBucketEmpty marks a local token-bucket refusal: no token within the wait bound.
// It is reported as KindRateLimited but never counts against the breaker.
var ErrBucketEmpty = errors.New("no token within wait bound")

// ErrBucketUnavailable marks a bucket backend failure, such as a Redis outage.
// It is reported as KindSourceUnavailable and counts against the breaker.
var ErrBucketUnavailable = errors.New("token bucket unavailable")

// Bucket hands out tokens. Reserve takes one token and returns how long the caller
// must wait before using it, or ok=false (nothing consumed) when that wait would exceed maxWait.
type Bucket interface {
	Reserve(ctx context.Context, maxWait time.Duration) (wait time.Duration, ok bool, err error)
}

// TokenBucket is an in-process bucket on golang.org/x/time/rate.
type TokenBucket struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	clock   clockwork.Clock
}

// NewTokenBucket creates a bucket that starts full
func NewTokenBucket(capacity int, refillPerSecond float64, clock clockwork.Clock) *TokenBucket {
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(refillPerSecond), capacity),
		clock:   clock,
	}
}

// Reserve implements Bucket
func (b *TokenBucket) Reserve(ctx context.Context, maxWait time.Duration) (time.Duration, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return 0, false, nil
	}

	delay := r.DelayFrom(now)
	if delay > maxWait {
		r.CancelAt(now)
		return 0, false, nil
	}
	return delay, true, nil
}

// Tokens reports the tokens available now
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limiter.TokensAt(b.clock.Now())
}

// RedisBucket shares one bucket across processes through Redis.
type RedisBucket struct {
	bucket *redis.TokenBucket
	cfg    redis.TokenBucketConfig
}

// NewRedisBucket creates a Redis-backed bucket keyed by name
func NewRedisBucket(bucket *redis.TokenBucket, name string, capacity int, refillPerSecond float64) *RedisBucket {
	return &RedisBucket{
		bucket: bucket,
		cfg: redis.TokenBucketConfig{
			Key:             name,
			Capacity:        capacity,
			RefillPerSecond: refillPerSecond,
		},
	}
}

// Reserve implements Bucket
func (b *RedisBucket) Reserve(ctx context.Context, maxWait time.Duration) (time.Duration, bool, error) {
	cfg := b.cfg
	cfg.MaxWait = maxWait
	return b.bucket.Reserve(ctx, cfg)
}
