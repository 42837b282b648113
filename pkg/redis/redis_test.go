package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/intent/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(context.Background(), &config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestTokenBucket_Disabled(t *testing.T) {
	bucket := NewTokenBucket(disabledClient(t), "test")

	wait, ok, err := bucket.Reserve(context.Background(), TokenBucketConfig{Key: "github", Capacity: 1, RefillPerSecond: 1})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, wait)
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "key", "value", time.Minute))

	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Delete(ctx, "key"))
}

func TestScoreKey(t *testing.T) {
	assert.Equal(t, "score:acme.com", ScoreKey("acme.com"))
}

func liveClient(t *testing.T) *Client {
	t.Helper()
	host := os.Getenv("INTENT_TEST_REDIS_HOST")
	if host == "" {
		t.Skip("INTENT_TEST_REDIS_HOST not set, skipping integration test")
	}
	client, err := New(context.Background(), &config.Config{Redis: config.RedisConfig{
		Host: host, Port: "6379", Enabled: true,
	}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTokenBucket_Live(t *testing.T) {
	client := liveClient(t)
	bucket := NewTokenBucket(client, "test-"+time.Now().Format("150405.000000"))
	ctx := context.Background()
	cfg := TokenBucketConfig{Key: "news", Capacity: 2, RefillPerSecond: 0.01, MaxWait: 0}

	for i := 0; i < 2; i++ {
		_, ok, err := bucket.Reserve(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, ok, "token %d should be immediate", i)
	}

	_, ok, err := bucket.Reserve(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Live(t *testing.T) {
	client := liveClient(t)
	cache := NewCache(client, "test")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, ScoreKey("acme.com"), map[string]float64{"aggregate": 70}, time.Minute))

	var got map[string]float64
	found, err := cache.Get(ctx, ScoreKey("acme.com"), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 70.0, got["aggregate"])
	require.NoError(t, cache.Delete(ctx, ScoreKey("acme.com")))
}
