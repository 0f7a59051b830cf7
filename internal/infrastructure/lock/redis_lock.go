package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock key only when the caller still owns it,
// so a holder whose TTL fired cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// redisLocker implements AuctionLocker on a shared Redis, giving mutual
// exclusion across all API instances.
type redisLocker struct {
	client        *redis.Client
	logger        *zap.Logger
	retryInterval time.Duration
}

// NewRedisLocker creates a Redis-backed auction locker.
func NewRedisLocker(client *redis.Client, retryInterval time.Duration, logger *zap.Logger) AuctionLocker {
	if retryInterval <= 0 {
		retryInterval = 10 * time.Millisecond
	}
	return &redisLocker{
		client:        client,
		logger:        logger,
		retryInterval: retryInterval,
	}
}

func lockKey(auctionID uuid.UUID) string {
	return "auction:lock:" + auctionID.String()
}

// Acquire attempts SET NX with the hold TTL, retrying on a short interval
// until the wait budget elapses or the context is cancelled.
func (l *redisLocker) Acquire(ctx context.Context, auctionID uuid.UUID, waitBudget, holdTTL time.Duration) (string, error) {
	token := uuid.New().String()
	key := lockKey(auctionID)
	deadline := time.Now().Add(waitBudget)

	for {
		ok, err := l.client.SetNX(ctx, key, token, holdTTL).Result()
		if err != nil {
			l.logger.Error("lock acquire failed",
				zap.String("auction_id", auctionID.String()),
				zap.Error(err))
			return "", fmt.Errorf("lock acquire: %w", err)
		}
		if ok {
			return token, nil
		}

		if time.Now().Add(l.retryInterval).After(deadline) {
			return "", ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
}

// Release runs the compare-and-delete script. A non-matching or absent
// holder is not an error.
func (l *redisLocker) Release(ctx context.Context, auctionID uuid.UUID, token string) error {
	released, err := releaseScript.Run(ctx, l.client, []string{lockKey(auctionID)}, token).Int()
	if err != nil {
		l.logger.Error("lock release failed",
			zap.String("auction_id", auctionID.String()),
			zap.Error(err))
		return fmt.Errorf("lock release: %w", err)
	}

	if released == 0 {
		// The TTL already expired; the critical section overran its hold.
		l.logger.Warn("lock release found no matching holder",
			zap.String("auction_id", auctionID.String()))
	}
	return nil
}
