package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/liveexchange/auction-backend/internal/domain/values"
)

// ClockSkewTolerance is how far in the past start_at may lie at creation
// time before the auction is rejected.
const ClockSkewTolerance = 5 * time.Minute

// Auction is a time-bounded offering by a seller against which bidders
// place monotonically increasing bids until EndAt.
type Auction struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    *string   `json:"image_url,omitempty"`

	StartingPrice values.Money  `json:"starting_price"`
	CurrentPrice  values.Money  `json:"current_price"`
	ReservePrice  *values.Money `json:"-"` // never disclosed to clients
	MinIncrement  values.Money  `json:"min_increment"`

	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	Status  Status    `json:"status"`

	SellerID    uuid.UUID  `json:"seller_id"`
	CategoryID  uuid.UUID  `json:"category_id"`
	WinnerBidID *uuid.UUID `json:"winner_bid_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Status int

const (
	StatusPending Status = iota
	StatusActive
	StatusCompleted
	StatusCancelled
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ParseStatus converts a stored status string back to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "active":
		return StatusActive, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled":
		return StatusCancelled, nil
	case "expired":
		return StatusExpired, nil
	default:
		return StatusPending, fmt.Errorf("unknown auction status %q", s)
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// NewAuction creates an auction. The initial state derives from startAt:
// Pending when startAt is in the future, Active otherwise. startAt may lag
// the server clock by up to ClockSkewTolerance.
func NewAuction(title, description string, sellerID, categoryID uuid.UUID, startingPrice, minIncrement values.Money, startAt, endAt time.Time) (*Auction, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if sellerID == uuid.Nil {
		return nil, fmt.Errorf("seller ID cannot be nil")
	}
	if categoryID == uuid.Nil {
		return nil, fmt.Errorf("category ID cannot be nil")
	}
	if !startingPrice.IsPositive() {
		return nil, fmt.Errorf("starting price must be positive")
	}
	if !minIncrement.IsPositive() {
		return nil, fmt.Errorf("minimum increment must be positive")
	}
	if !endAt.After(startAt) {
		return nil, fmt.Errorf("end time must be after start time")
	}

	now := clock.Now()
	if startAt.Before(now.Add(-ClockSkewTolerance)) {
		return nil, fmt.Errorf("start time is too far in the past")
	}
	if !endAt.After(now) {
		return nil, fmt.Errorf("end time must be in the future")
	}

	status := StatusPending
	if !startAt.After(now) {
		status = StatusActive
	}

	return &Auction{
		ID:            uuid.New(),
		Title:         title,
		Description:   description,
		StartingPrice: startingPrice,
		CurrentPrice:  startingPrice,
		MinIncrement:  minIncrement,
		StartAt:       startAt.UTC(),
		EndAt:         endAt.UTC(),
		Status:        status,
		SellerID:      sellerID,
		CategoryID:    categoryID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Activate transitions Pending -> Active and moves StartAt to now. Only
// the seller may activate, and only while the end time has not passed.
func (a *Auction) Activate(callerID uuid.UUID) error {
	if callerID != a.SellerID {
		return fmt.Errorf("only the seller can activate an auction")
	}
	if a.Status != StatusPending {
		return fmt.Errorf("cannot activate auction in status %s", a.Status)
	}

	now := clock.Now()
	if !a.EndAt.After(now) {
		return fmt.Errorf("auction end time has already passed")
	}

	a.Status = StatusActive
	a.StartAt = now
	a.UpdatedAt = now
	return nil
}

// Cancel transitions Pending/Active -> Cancelled. Only the seller may
// cancel, and only while the auction has no bids; the caller supplies the
// observed bid count from the same consistent read.
func (a *Auction) Cancel(callerID uuid.UUID, bidCount int64) error {
	if callerID != a.SellerID {
		return fmt.Errorf("only the seller can cancel an auction")
	}
	if a.Status != StatusPending && a.Status != StatusActive {
		return fmt.Errorf("cannot cancel auction in status %s", a.Status)
	}
	if bidCount > 0 {
		return fmt.Errorf("cannot cancel an auction with bids")
	}

	a.Status = StatusCancelled
	a.UpdatedAt = clock.Now()
	return nil
}

// Finalize transitions an Active auction past its end time into a terminal
// state: Completed with the winning bid recorded when one exists, Expired
// otherwise.
func (a *Auction) Finalize(winnerBidID *uuid.UUID) error {
	if a.Status != StatusActive {
		return fmt.Errorf("cannot finalize auction in status %s", a.Status)
	}

	now := clock.Now()
	if now.Before(a.EndAt) {
		return fmt.Errorf("auction has not ended yet")
	}

	if winnerBidID != nil {
		a.Status = StatusCompleted
		a.WinnerBidID = winnerBidID
	} else {
		a.Status = StatusExpired
	}
	a.UpdatedAt = now
	return nil
}

// Biddable reports whether a bid may be admitted at the given instant.
func (a *Auction) Biddable(at time.Time) bool {
	return a.Status == StatusActive && at.Before(a.EndAt)
}

// TimeRemaining returns the time left until EndAt, clamped at zero.
func (a *Auction) TimeRemaining(at time.Time) time.Duration {
	remaining := a.EndAt.Sub(at)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MinNextBid is the smallest amount the next bid must reach: the starting
// price while no bids exist, the current price plus the increment after.
func (a *Auction) MinNextBid(hasBids bool) values.Money {
	if !hasBids {
		return a.StartingPrice
	}
	return a.CurrentPrice.Add(a.MinIncrement)
}
