package bidding

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/liveexchange/auction-backend/internal/domain/auction"
	"github.com/liveexchange/auction-backend/internal/domain/bid"
	"github.com/liveexchange/auction-backend/internal/domain/errors"
	"github.com/liveexchange/auction-backend/internal/infrastructure/lock"
	"github.com/liveexchange/auction-backend/internal/infrastructure/repository"
	"github.com/liveexchange/auction-backend/internal/metrics"
)

// service implements the Service interface. All bid evaluation for one
// auction runs inside that auction's lock, so validation against the
// current price is race-free and the single-winner invariant holds
// without compensating writes.
type service struct {
	store     AuctionStore
	locker    lock.AuctionLocker
	publisher EventPublisher
	logger    *slog.Logger

	waitBudget time.Duration
	holdTTL    time.Duration
}

// NewService creates the bid coordinator.
func NewService(store AuctionStore, locker lock.AuctionLocker, publisher EventPublisher, logger *slog.Logger, waitBudget, holdTTL time.Duration) Service {
	if waitBudget <= 0 {
		waitBudget = 5 * time.Second
	}
	if holdTTL <= 0 {
		holdTTL = 10 * time.Second
	}
	return &service{
		store:      store,
		locker:     locker,
		publisher:  publisher,
		logger:     logger,
		waitBudget: waitBudget,
		holdTTL:    holdTTL,
	}
}

// PlaceBid validates, admits, and records a bid for an auction.
func (s *service) PlaceBid(ctx context.Context, req *PlaceBidRequest) (*BidResult, error) {
	if req.AuctionID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_AUCTION_ID", "auction ID is required")
	}
	if req.BidderID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_BIDDER_ID", "bidder ID is required")
	}
	if !req.Amount.IsPositive() {
		return nil, errors.NewValidationError("INVALID_AMOUNT", "bid amount must be positive")
	}

	acquireStart := time.Now()
	token, err := s.locker.Acquire(ctx, req.AuctionID, s.waitBudget, s.holdTTL)
	if err != nil {
		if stderrors.Is(err, lock.ErrNotAcquired) {
			metrics.LockTimeouts.Inc()
			return nil, errors.ErrServerBusy
		}
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errors.NewInternalError("lock service unavailable").WithCause(err)
	}
	metrics.LockAcquireDuration.Observe(time.Since(acquireStart).Seconds())

	sectionStart := time.Now()
	defer func() {
		// Release must run on every exit path; the TTL is only the
		// backstop for a crashed holder.
		if err := s.locker.Release(ctx, req.AuctionID, token); err != nil {
			s.logger.ErrorContext(ctx, "lock release failed",
				"auction_id", req.AuctionID, "error", err)
		}
		metrics.ObserveCriticalSection(sectionStart)
	}()

	a, top, total, err := s.store.GetWithTopBid(ctx, req.AuctionID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.ErrAuctionNotFound
		}
		return nil, errors.NewInternalError("failed to load auction").WithCause(err)
	}

	now := time.Now().UTC()

	// Validation order is fixed; the first failure is the reason.
	if a.Status != auction.StatusActive {
		metrics.BidsRejected.WithLabelValues("not_active").Inc()
		return nil, errors.ErrAuctionNotActive
	}
	if !now.Before(a.EndAt) {
		metrics.BidsRejected.WithLabelValues("ended").Inc()
		return nil, errors.ErrAuctionEnded
	}
	if req.BidderID == a.SellerID {
		metrics.BidsRejected.WithLabelValues("self_bid").Inc()
		return nil, errors.ErrSelfBid
	}

	minRequired := a.MinNextBid(top != nil)
	if req.Amount.LessThan(minRequired) {
		metrics.BidsRejected.WithLabelValues("too_low").Inc()
		return nil, errors.BidTooLow(minRequired.String())
	}

	newBid, err := bid.NewBid(req.AuctionID, req.BidderID, req.Amount, now, req.SourceAddress)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_BID", err.Error()).WithCause(err)
	}

	var priorTopID *uuid.UUID
	if top != nil {
		priorTopID = &top.ID
	}

	if err := s.store.InsertBidAndUpdateAuction(ctx, newBid, priorTopID, req.Amount, a.UpdatedAt); err != nil {
		if stderrors.Is(err, repository.ErrConflict) {
			metrics.BidsRejected.WithLabelValues("conflict").Inc()
			return nil, errors.NewConflictError("auction changed, retry your bid").WithCause(err)
		}
		return nil, errors.NewInternalError("failed to record bid").WithCause(err)
	}

	metrics.BidsAccepted.Inc()
	totalBids := total + 1

	// Emission stays inside the critical section so a single subscriber
	// observes NewBid events in acceptance order. Failures are logged,
	// never fatal: the bid is already durable.
	s.publisher.PublishNewBid(a.ID, NewBidEvent{
		AuctionID:       a.ID,
		Bid:             newBid,
		NewCurrentPrice: req.Amount,
		TotalBids:       totalBids,
		TimeRemaining:   a.TimeRemaining(now),
	})

	result := &BidResult{
		Bid:             newBid,
		NewCurrentPrice: req.Amount,
		TotalBids:       totalBids,
	}

	if top != nil && top.BidderID != req.BidderID {
		result.PreviousTopBidder = &top.BidderID
		s.publisher.PublishOutbid(top.BidderID, OutbidEvent{
			AuctionID:      a.ID,
			AuctionTitle:   a.Title,
			YourBid:        top.Amount,
			NewHighestBid:  req.Amount,
			MinimumNextBid: req.Amount.Add(a.MinIncrement),
		})
	}

	s.logger.InfoContext(ctx, "bid accepted",
		"auction_id", a.ID,
		"bid_id", newBid.ID,
		"bidder_id", newBid.BidderID,
		"amount", newBid.Amount.String(),
		"total_bids", totalBids)

	return result, nil
}
