package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLimiter(t *testing.T) RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRateLimiter(client, zap.NewNop())
}

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "user-1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "user-1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "sixth request should be rejected")
}

func TestRateLimiter_KeysIndependent(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "user-1", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "user-1", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = limiter.Allow(ctx, "user-2", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "another principal has its own window")
}

func TestRateLimiter_Reset(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "user-1", 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, limiter.Reset(ctx, "user-1"))

	allowed, err := limiter.Allow(ctx, "user-1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}
