package engine

import (
	"context"
	"time"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/pkg/redis"
)

// RedisScoreCache keeps ScoreResults in Redis so every API replica shares them
type RedisScoreCache struct {
	cache *redis.Cache
	ttl   time.Duration
}

// NewRedisScoreCache creates a Redis-backed ScoreCache
func NewRedisScoreCache(cache *redis.Cache, ttl time.Duration) *RedisScoreCache {
	return &RedisScoreCache{cache: cache, ttl: ttl}
}

// Get implements ScoreCache
func (c *RedisScoreCache) Get(ctx context.Context, companyID string) (contracts.ScoreResult, bool, error) {
	var result contracts.ScoreResult
	ok, err := c.cache.Get(ctx, redis.ScoreKey(companyID), &result)
	if err != nil || !ok {
		return contracts.ScoreResult{}, false, err
	}
	return result, true, nil
}

// Set implements ScoreCache
func (c *RedisScoreCache) Set(ctx context.Context, result contracts.ScoreResult) error {
	return c.cache.Set(ctx, redis.ScoreKey(result.CompanyID), result, c.ttl)
}

// Delete implements ScoreCache
func (c *RedisScoreCache) Delete(ctx context.Context, companyID string) error {
	return c.cache.Delete(ctx, redis.ScoreKey(companyID))
}
