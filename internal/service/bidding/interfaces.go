package bidding

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/liveexchange/auction-backend/internal/domain/auction"
	"github.com/liveexchange/auction-backend/internal/domain/bid"
	"github.com/liveexchange/auction-backend/internal/domain/values"
)

// AuctionStore is the slice of the bid store the coordinator needs: one
// consistent read and one atomic write.
type AuctionStore interface {
	// GetWithTopBid returns the auction, its current top bid (nil when
	// no bids exist), and the total bid count from a single snapshot.
	GetWithTopBid(ctx context.Context, id uuid.UUID) (*auction.Auction, *bid.Bid, int64, error)

	// InsertBidAndUpdateAuction atomically records the new winning bid,
	// demotes the prior winner, and moves the current price. It reports
	// a conflict when the auction changed since observedUpdatedAt.
	InsertBidAndUpdateAuction(ctx context.Context, newBid *bid.Bid, priorTopBidID *uuid.UUID, newPrice values.Money, observedUpdatedAt time.Time) error
}

// EventPublisher fans bid results out to live subscribers. Delivery is
// best-effort; implementations must never block the critical section.
type EventPublisher interface {
	PublishNewBid(auctionID uuid.UUID, event NewBidEvent)
	PublishOutbid(userID uuid.UUID, event OutbidEvent)
}

// Service is the bid coordinator: it admits bids under the per-auction
// lock and emits the resulting events.
type Service interface {
	PlaceBid(ctx context.Context, req *PlaceBidRequest) (*BidResult, error)
}

// PlaceBidRequest carries an authenticated caller's offer.
type PlaceBidRequest struct {
	AuctionID     uuid.UUID
	BidderID      uuid.UUID
	Amount        values.Money
	SourceAddress string
}

// BidResult is returned on acceptance.
type BidResult struct {
	Bid               *bid.Bid     `json:"bid"`
	NewCurrentPrice   values.Money `json:"new_current_price"`
	TotalBids         int64        `json:"total_bids"`
	PreviousTopBidder *uuid.UUID   `json:"previous_top_bidder,omitempty"`
}
