package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// localLocker implements AuctionLocker with an in-process table. It is a
// development fallback: it exposes the identical contract and expiry
// semantics as the Redis locker, but mutual exclusion only holds within
// one process.
type localLocker struct {
	mu            sync.Mutex
	holders       map[uuid.UUID]localHold
	retryInterval time.Duration
}

type localHold struct {
	token     string
	expiresAt time.Time
}

// NewLocalLocker creates an in-process auction locker.
func NewLocalLocker(retryInterval time.Duration) AuctionLocker {
	if retryInterval <= 0 {
		retryInterval = 10 * time.Millisecond
	}
	return &localLocker{
		holders:       make(map[uuid.UUID]localHold),
		retryInterval: retryInterval,
	}
}

func (l *localLocker) tryAcquire(auctionID uuid.UUID, holdTTL time.Duration) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if hold, ok := l.holders[auctionID]; ok && now.Before(hold.expiresAt) {
		return "", false
	}

	token := uuid.New().String()
	l.holders[auctionID] = localHold{token: token, expiresAt: now.Add(holdTTL)}
	return token, true
}

func (l *localLocker) Acquire(ctx context.Context, auctionID uuid.UUID, waitBudget, holdTTL time.Duration) (string, error) {
	deadline := time.Now().Add(waitBudget)

	for {
		if token, ok := l.tryAcquire(auctionID, holdTTL); ok {
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

func (l *localLocker) Release(_ context.Context, auctionID uuid.UUID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if hold, ok := l.holders[auctionID]; ok && hold.token == token {
		delete(l.holders, auctionID)
	}
	return nil
}
