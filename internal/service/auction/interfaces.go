package auction

import (
	"context"
	"time"

	"github.com/google/uuid"

	domain "github.com/liveexchange/auction-backend/internal/domain/auction"
	"github.com/liveexchange/auction-backend/internal/domain/bid"
	"github.com/liveexchange/auction-backend/internal/domain/values"
)

// Repository is the store surface the lifecycle service needs.
type Repository interface {
	Create(ctx context.Context, a *domain.Auction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Auction, error)
	GetWithTopBid(ctx context.Context, id uuid.UUID) (*domain.Auction, *bid.Bid, int64, error)
	UpdateStatus(ctx context.Context, a *domain.Auction) error
	ListActive(ctx context.Context, page, pageSize int) ([]*domain.Auction, int64, error)
	ListActiveByCategory(ctx context.Context, categoryID uuid.UUID, page, pageSize int) ([]*domain.Auction, int64, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]*domain.Auction, int64, error)
	ListExpiredActive(ctx context.Context, limit int) ([]*domain.Auction, error)
	CountActive(ctx context.Context) (int64, error)
}

// EventPublisher pushes lifecycle transitions to live subscribers.
type EventPublisher interface {
	PublishStatusChanged(auctionID uuid.UUID, event StatusChangedEvent)
	PublishAuctionEnded(auctionID uuid.UUID, event StatusChangedEvent)
}

// StatusChangedEvent announces a lifecycle transition to an auction's
// room. WinnerBid is present only on terminal Completed transitions.
type StatusChangedEvent struct {
	AuctionID uuid.UUID `json:"auction_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	WinnerBid *bid.Bid  `json:"winner_bid,omitempty"`
}

// CreateAuctionRequest carries a seller's new listing.
type CreateAuctionRequest struct {
	Title         string
	Description   string
	ImageURL      *string
	StartingPrice values.Money
	ReservePrice  *values.Money
	MinIncrement  values.Money
	StartAt       time.Time
	EndAt         time.Time
	CategoryID    uuid.UUID
	SellerID      uuid.UUID
}

// Detail is an auction together with its latest bid and bid count.
type Detail struct {
	Auction   *domain.Auction `json:"auction"`
	TopBid    *bid.Bid        `json:"latest_bid,omitempty"`
	TotalBids int64           `json:"total_bids"`
}

// Service owns auction lifecycle transitions and read-side listings.
type Service interface {
	Create(ctx context.Context, req *CreateAuctionRequest) (*domain.Auction, error)
	Get(ctx context.Context, id uuid.UUID) (*Detail, error)
	Activate(ctx context.Context, id, callerID uuid.UUID) (*domain.Auction, error)
	Cancel(ctx context.Context, id, callerID uuid.UUID) error
	ListActive(ctx context.Context, page, pageSize int) ([]*domain.Auction, int64, error)
	ListActiveByCategory(ctx context.Context, categoryID uuid.UUID, page, pageSize int) ([]*domain.Auction, int64, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]*domain.Auction, int64, error)
	CountActive(ctx context.Context) (int64, error)
	SweepExpired(ctx context.Context, batch int) (int, error)
}
