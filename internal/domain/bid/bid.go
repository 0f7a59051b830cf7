package bid

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/liveexchange/auction-backend/internal/domain/values"
)

// MaxSourceAddressLen bounds the recorded source address (fits IPv6).
const MaxSourceAddressLen = 45

// Bid is an immutable, timestamped offer of a monetary amount by a user
// against an auction. IsWinning is the only field ever toggled after
// creation, and only by the coordinator under the auction lock.
type Bid struct {
	ID        uuid.UUID    `json:"id"`
	AuctionID uuid.UUID    `json:"auction_id"`
	BidderID  uuid.UUID    `json:"bidder_id"`
	Amount    values.Money `json:"amount"`

	// Timestamp is assigned by the server at acceptance; under the
	// per-auction lock it reflects acceptance order, not arrival order.
	Timestamp time.Time `json:"timestamp"`

	IsWinning     bool    `json:"is_winning"`
	SourceAddress *string `json:"source_address,omitempty"`

	// IsAutoBid is reserved for proxy bidding; always false.
	IsAutoBid bool `json:"is_auto_bid"`
}

// NewBid constructs an accepted bid with a server-assigned timestamp.
func NewBid(auctionID, bidderID uuid.UUID, amount values.Money, timestamp time.Time, sourceAddr string) (*Bid, error) {
	if auctionID == uuid.Nil {
		return nil, fmt.Errorf("auction ID cannot be nil")
	}
	if bidderID == uuid.Nil {
		return nil, fmt.Errorf("bidder ID cannot be nil")
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("bid amount must be positive")
	}

	b := &Bid{
		ID:        uuid.New(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		Timestamp: timestamp.UTC(),
		IsWinning: true,
	}

	if sourceAddr != "" {
		if len(sourceAddr) > MaxSourceAddressLen {
			sourceAddr = sourceAddr[:MaxSourceAddressLen]
		}
		b.SourceAddress = &sourceAddr
	}

	return b, nil
}
