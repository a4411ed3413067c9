// internal/gateway/ratelimit_test.go
package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRateLimiter(client, "test:rate_limit"), mr
}

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	for i := 0; i < 5; i++ {
		allowed, _, err := limiter.Consume(context.Background(), "user:u1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.Consume(context.Background(), "user:u1", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, retryAfter, err := limiter.Consume(context.Background(), "user:u1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.GreaterOrEqual(t, retryAfter, 1)
}

func TestRateLimiterWindowExpiryResets(t *testing.T) {
	limiter, mr := newTestLimiter(t)

	for i := 0; i < 3; i++ {
		_, _, err := limiter.Consume(context.Background(), "user:u1", 3, time.Minute)
		require.NoError(t, err)
	}
	allowed, _, err := limiter.Consume(context.Background(), "user:u1", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)

	mr.FastForward(61 * time.Second)

	allowed, _, err = limiter.Consume(context.Background(), "user:u1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "a fresh window should reset the counter")
}

func TestRateLimiterSubjectsAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	allowed, _, err := limiter.Consume(context.Background(), "user:u1", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = limiter.Consume(context.Background(), "user:u1", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, _, err = limiter.Consume(context.Background(), "user:u2", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "another subject has its own window")
}
