package auction

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domain "github.com/liveexchange/auction-backend/internal/domain/auction"
	"github.com/liveexchange/auction-backend/internal/domain/errors"
	"github.com/liveexchange/auction-backend/internal/infrastructure/lock"
	"github.com/liveexchange/auction-backend/internal/infrastructure/repository"
	"github.com/liveexchange/auction-backend/internal/metrics"
)

// service implements Service. Activate and Cancel run under the same
// per-auction lock as bid admission so the no-bids-on-cancelled and
// status-at-acceptance invariants hold. Expiry also takes the lock,
// auction by auction.
type service struct {
	repo      Repository
	locker    lock.AuctionLocker
	publisher EventPublisher
	logger    *slog.Logger

	waitBudget time.Duration
	holdTTL    time.Duration
}

// NewService creates the auction lifecycle service.
func NewService(repo Repository, locker lock.AuctionLocker, publisher EventPublisher, logger *slog.Logger, waitBudget, holdTTL time.Duration) Service {
	if waitBudget <= 0 {
		waitBudget = 5 * time.Second
	}
	if holdTTL <= 0 {
		holdTTL = 10 * time.Second
	}
	return &service{
		repo:       repo,
		locker:     locker,
		publisher:  publisher,
		logger:     logger,
		waitBudget: waitBudget,
		holdTTL:    holdTTL,
	}
}

// Create stores a new listing; the initial state derives from StartAt.
func (s *service) Create(ctx context.Context, req *CreateAuctionRequest) (*domain.Auction, error) {
	a, err := domain.NewAuction(req.Title, req.Description, req.SellerID, req.CategoryID,
		req.StartingPrice, req.MinIncrement, req.StartAt, req.EndAt)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_AUCTION", err.Error()).WithCause(err)
	}
	a.ImageURL = req.ImageURL
	a.ReservePrice = req.ReservePrice

	if err := s.repo.Create(ctx, a); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.ErrCategoryNotFound
		}
		return nil, errors.NewInternalError("failed to create auction").WithCause(err)
	}

	s.logger.InfoContext(ctx, "auction created",
		"auction_id", a.ID,
		"seller_id", a.SellerID,
		"status", a.Status.String(),
		"end_at", a.EndAt)
	return a, nil
}

// Get returns the auction with its latest bid.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	a, top, total, err := s.repo.GetWithTopBid(ctx, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.ErrAuctionNotFound
		}
		return nil, errors.NewInternalError("failed to load auction").WithCause(err)
	}
	return &Detail{Auction: a, TopBid: top, TotalBids: total}, nil
}

// Activate transitions Pending -> Active under the auction lock.
func (s *service) Activate(ctx context.Context, id, callerID uuid.UUID) (*domain.Auction, error) {
	var activated *domain.Auction
	err := s.withLock(ctx, id, func() error {
		a, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				return errors.ErrAuctionNotFound
			}
			return errors.NewInternalError("failed to load auction").WithCause(err)
		}

		if err := a.Activate(callerID); err != nil {
			return errors.NewBusinessError("ACTIVATE_REJECTED", err.Error())
		}
		if err := s.repo.UpdateStatus(ctx, a); err != nil {
			return errors.NewInternalError("failed to persist activation").WithCause(err)
		}
		activated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishStatusChanged(activated.ID, StatusChangedEvent{
		AuctionID: activated.ID,
		Status:    activated.Status.String(),
		Message:   "auction is now live",
	})
	return activated, nil
}

// Cancel transitions to Cancelled under the auction lock; refused when
// any bid exists.
func (s *service) Cancel(ctx context.Context, id, callerID uuid.UUID) error {
	var cancelled *domain.Auction
	err := s.withLock(ctx, id, func() error {
		a, _, total, err := s.repo.GetWithTopBid(ctx, id)
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				return errors.ErrAuctionNotFound
			}
			return errors.NewInternalError("failed to load auction").WithCause(err)
		}

		if err := a.Cancel(callerID, total); err != nil {
			return errors.NewBusinessError("CANCEL_REJECTED", err.Error())
		}
		if err := s.repo.UpdateStatus(ctx, a); err != nil {
			return errors.NewInternalError("failed to persist cancellation").WithCause(err)
		}
		cancelled = a
		return nil
	})
	if err != nil {
		return err
	}

	metrics.AuctionsFinalized.WithLabelValues("cancelled").Inc()
	s.publisher.PublishStatusChanged(cancelled.ID, StatusChangedEvent{
		AuctionID: cancelled.ID,
		Status:    cancelled.Status.String(),
		Message:   "auction was cancelled by the seller",
	})
	return nil
}

func (s *service) ListActive(ctx context.Context, page, pageSize int) ([]*domain.Auction, int64, error) {
	return s.repo.ListActive(ctx, page, pageSize)
}

func (s *service) ListActiveByCategory(ctx context.Context, categoryID uuid.UUID, page, pageSize int) ([]*domain.Auction, int64, error) {
	return s.repo.ListActiveByCategory(ctx, categoryID, page, pageSize)
}

func (s *service) ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]*domain.Auction, int64, error) {
	return s.repo.ListBySeller(ctx, sellerID, page, pageSize)
}

func (s *service) CountActive(ctx context.Context) (int64, error) {
	return s.repo.CountActive(ctx)
}

// SweepExpired materializes Completed/Expired transitions for Active
// auctions past their end time. Each auction is finalized under its own
// lock; one failure does not stop the batch.
func (s *service) SweepExpired(ctx context.Context, batch int) (int, error) {
	expired, err := s.repo.ListExpiredActive(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("listing expired auctions: %w", err)
	}

	finalized := 0
	for _, candidate := range expired {
		if err := s.finalizeOne(ctx, candidate.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to finalize auction",
				"auction_id", candidate.ID, "error", err)
			continue
		}
		finalized++
	}
	return finalized, nil
}

func (s *service) finalizeOne(ctx context.Context, id uuid.UUID) error {
	var ended *domain.Auction
	var winner *StatusChangedEvent

	err := s.withLock(ctx, id, func() error {
		// Reload under the lock: a bid may have landed since the sweep
		// listed this auction.
		a, top, _, err := s.repo.GetWithTopBid(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != domain.StatusActive {
			return nil // someone else finalized it
		}

		var winnerID *uuid.UUID
		if top != nil {
			winnerID = &top.ID
		}
		if err := a.Finalize(winnerID); err != nil {
			return err
		}
		if err := s.repo.UpdateStatus(ctx, a); err != nil {
			return err
		}

		ended = a
		event := StatusChangedEvent{
			AuctionID: a.ID,
			Status:    a.Status.String(),
		}
		if top != nil {
			event.Message = fmt.Sprintf("auction ended, sold for %s", top.Amount.String())
			event.WinnerBid = top
		} else {
			event.Message = "auction ended with no bids"
		}
		winner = &event
		return nil
	})
	if err != nil || ended == nil {
		return err
	}

	metrics.AuctionsFinalized.WithLabelValues(ended.Status.String()).Inc()
	s.publisher.PublishAuctionEnded(ended.ID, *winner)

	s.logger.InfoContext(ctx, "auction finalized",
		"auction_id", ended.ID,
		"outcome", ended.Status.String())
	return nil
}

// withLock runs fn while holding the auction's lock, releasing on every
// exit path.
func (s *service) withLock(ctx context.Context, id uuid.UUID, fn func() error) error {
	token, err := s.locker.Acquire(ctx, id, s.waitBudget, s.holdTTL)
	if err != nil {
		if stderrors.Is(err, lock.ErrNotAcquired) {
			metrics.LockTimeouts.Inc()
			return errors.ErrServerBusy
		}
		return errors.NewInternalError("lock service unavailable").WithCause(err)
	}
	defer func() {
		if err := s.locker.Release(ctx, id, token); err != nil {
			s.logger.ErrorContext(ctx, "lock release failed", "auction_id", id, "error", err)
		}
	}()

	return fn()
}
