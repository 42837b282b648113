package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills a bucket from elapsed server time and takes one token.
// When the bucket is empty it reserves the next token (tokens go negative) if the
// wait fits in max_wait, otherwise it leaves the bucket untouched and returns -1.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local rate = tonumber(ARGV[2])
	local max_wait_ms = tonumber(ARGV[3])

	local t = redis.call('TIME')
	local now_ms = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

	local state = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(state[1])
	local ts = tonumber(state[2])
	if tokens == nil then
		tokens = capacity
		ts = now_ms
	end

	local elapsed = math.max(0, now_ms - ts)
	tokens = math.min(capacity, tokens + elapsed * rate / 1000)

	local wait_ms = 0
	if tokens < 1 then
		wait_ms = math.ceil((1 - tokens) * 1000 / rate)
		if wait_ms > max_wait_ms then
			return -1
		end
	end

	tokens = tokens - 1
	redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', now_ms)
	redis.call('PEXPIRE', key, math.ceil(capacity * 1000 / rate) + max_wait_ms + 1000)
	return wait_ms
`)

// TokenBucket is a token bucket shared by every process using the same Redis.
type TokenBucket struct {
	client *Client
	prefix string
}

// TokenBucketConfig defines bucket parameters
type TokenBucketConfig struct {
	Key             string        // bucket identity, e.g. the source name
	Capacity        int           // burst size
	RefillPerSecond float64       // steady-state rate
	MaxWait         time.Duration // longest acceptable wait for a token
}

// NewTokenBucket creates a Redis-backed token bucket
func NewTokenBucket(client *Client, prefix string) *TokenBucket {
	return &TokenBucket{client: client, prefix: prefix}
}

// Reserve takes a token, returning how long the caller must wait before using it.
// ok is false when no token is available within cfg.MaxWait; nothing is consumed then.
func (b *TokenBucket) Reserve(ctx context.Context, cfg TokenBucketConfig) (wait time.Duration, ok bool, err error) {
	if !b.client.Enabled() {
		return 0, true, nil
	}

	key := fmt.Sprintf("%s:bucket:%s", b.prefix, cfg.Key)
	ms, err := tokenBucketScript.Run(ctx, b.client.Redis(), []string{key},
		cfg.Capacity,
		cfg.RefillPerSecond,
		cfg.MaxWait.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, false, fmt.Errorf("token bucket script failed: %w", err)
	}
	if ms < 0 {
		return 0, false, nil
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}
