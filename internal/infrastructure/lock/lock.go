package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotAcquired is returned when the lock could not be obtained within
// the caller's wait budget. Callers translate it into a retryable
// "server busy" response.
var ErrNotAcquired = errors.New("lock not acquired within wait budget")

// AuctionLocker serializes bid evaluation per auction across the fleet.
//
// Acquire returns an opaque owner token once the caller is the sole
// holder, or ErrNotAcquired after waitBudget. The hold is bounded by
// holdTTL so a crashed holder cannot wedge the auction.
//
// Release is owner-fenced: it releases only when the token matches the
// current holder, and is a silent no-op otherwise (the prior holder's
// TTL already fired and someone else may hold the lock now).
type AuctionLocker interface {
	Acquire(ctx context.Context, auctionID uuid.UUID, waitBudget, holdTTL time.Duration) (string, error)
	Release(ctx context.Context, auctionID uuid.UUID, token string) error
}
