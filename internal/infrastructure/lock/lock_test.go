package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisLocker(t *testing.T) (AuctionLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, time.Millisecond, zap.NewNop()), mr
}

func lockerVariants(t *testing.T) map[string]func(t *testing.T) AuctionLocker {
	return map[string]func(t *testing.T) AuctionLocker{
		"redis": func(t *testing.T) AuctionLocker {
			l, _ := newRedisLocker(t)
			return l
		},
		"local": func(t *testing.T) AuctionLocker {
			return NewLocalLocker(time.Millisecond)
		},
	}
}

func TestLocker_MutualExclusion(t *testing.T) {
	for name, build := range lockerVariants(t) {
		t.Run(name, func(t *testing.T) {
			locker := build(t)
			ctx := context.Background()
			auctionID := uuid.New()

			token, err := locker.Acquire(ctx, auctionID, time.Second, 10*time.Second)
			require.NoError(t, err)
			require.NotEmpty(t, token)

			// Second caller times out while the lock is held.
			_, err = locker.Acquire(ctx, auctionID, 20*time.Millisecond, 10*time.Second)
			assert.ErrorIs(t, err, ErrNotAcquired)

			// Released lock is acquirable again.
			require.NoError(t, locker.Release(ctx, auctionID, token))
			token2, err := locker.Acquire(ctx, auctionID, time.Second, 10*time.Second)
			require.NoError(t, err)
			assert.NotEqual(t, token, token2)
		})
	}
}

func TestLocker_PerAuctionIndependence(t *testing.T) {
	for name, build := range lockerVariants(t) {
		t.Run(name, func(t *testing.T) {
			locker := build(t)
			ctx := context.Background()

			_, err := locker.Acquire(ctx, uuid.New(), time.Second, 10*time.Second)
			require.NoError(t, err)

			// A different auction's lock is unaffected.
			_, err = locker.Acquire(ctx, uuid.New(), 50*time.Millisecond, 10*time.Second)
			require.NoError(t, err)
		})
	}
}

func TestLocker_OwnerFencedRelease(t *testing.T) {
	for name, build := range lockerVariants(t) {
		t.Run(name, func(t *testing.T) {
			locker := build(t)
			ctx := context.Background()
			auctionID := uuid.New()

			token, err := locker.Acquire(ctx, auctionID, time.Second, 10*time.Second)
			require.NoError(t, err)

			// A stale token must not release the current holder.
			require.NoError(t, locker.Release(ctx, auctionID, "stale-token"))
			_, err = locker.Acquire(ctx, auctionID, 20*time.Millisecond, 10*time.Second)
			assert.ErrorIs(t, err, ErrNotAcquired)

			require.NoError(t, locker.Release(ctx, auctionID, token))
		})
	}
}

func TestLocker_SingleWinnerUnderContention(t *testing.T) {
	for name, build := range lockerVariants(t) {
		t.Run(name, func(t *testing.T) {
			locker := build(t)
			ctx := context.Background()
			auctionID := uuid.New()

			const contenders = 20
			var wg sync.WaitGroup
			var mu sync.Mutex
			var winners []string

			for i := 0; i < contenders; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					token, err := locker.Acquire(ctx, auctionID, 10*time.Millisecond, 10*time.Second)
					if err != nil {
						return
					}
					mu.Lock()
					winners = append(winners, token)
					mu.Unlock()
				}()
			}
			wg.Wait()

			assert.Len(t, winners, 1, "exactly one contender should hold the lock")
		})
	}
}

func TestRedisLocker_TTLExpiryFreesLock(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()
	auctionID := uuid.New()

	_, err := locker.Acquire(ctx, auctionID, time.Second, 50*time.Millisecond)
	require.NoError(t, err)

	// Simulate the holder dying: fast-forward past the hold TTL.
	mr.FastForward(100 * time.Millisecond)

	_, err = locker.Acquire(ctx, auctionID, time.Second, 10*time.Second)
	require.NoError(t, err, "expired hold must not wedge the auction")
}

func TestLocalLocker_TTLExpiryFreesLock(t *testing.T) {
	locker := NewLocalLocker(time.Millisecond)
	ctx := context.Background()
	auctionID := uuid.New()

	_, err := locker.Acquire(ctx, auctionID, time.Second, 20*time.Millisecond)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, auctionID, 200*time.Millisecond, 10*time.Second)
	require.NoError(t, err)
}

func TestLocker_AcquireHonorsContext(t *testing.T) {
	locker := NewLocalLocker(time.Millisecond)
	auctionID := uuid.New()

	_, err := locker.Acquire(context.Background(), auctionID, time.Second, 10*time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, auctionID, time.Second, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
