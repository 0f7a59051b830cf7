package bidding

import (
	"time"

	"github.com/google/uuid"

	"github.com/liveexchange/auction-backend/internal/domain/bid"
	"github.com/liveexchange/auction-backend/internal/domain/values"
)

// NewBidEvent is broadcast to the auction's room after every accepted bid.
// Subscribers see these in acceptance order.
type NewBidEvent struct {
	AuctionID       uuid.UUID     `json:"auction_id"`
	Bid             *bid.Bid      `json:"bid"`
	NewCurrentPrice values.Money  `json:"new_current_price"`
	TotalBids       int64         `json:"total_bids"`
	TimeRemaining   time.Duration `json:"time_remaining"`
}

// OutbidEvent is sent to the user whose bid was just displaced. YourBid
// is the displaced bid's actual amount, not a reconstruction from the
// price and increment.
type OutbidEvent struct {
	AuctionID      uuid.UUID    `json:"auction_id"`
	AuctionTitle   string       `json:"auction_title"`
	YourBid        values.Money `json:"your_bid"`
	NewHighestBid  values.Money `json:"new_highest_bid"`
	MinimumNextBid values.Money `json:"minimum_next_bid"`
}
