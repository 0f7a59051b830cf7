package websocket

import (
	"github.com/google/uuid"

	auctionsvc "github.com/liveexchange/auction-backend/internal/service/auction"
	"github.com/liveexchange/auction-backend/internal/service/bidding"
)

// Publisher adapts the hub to the event interfaces the services consume.
// All delivery is best-effort live push; the durable record of truth is
// the persisted bid history.
type Publisher struct {
	hub *Hub
}

// NewPublisher creates the fan-out adapter.
func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

// PublishNewBid broadcasts an accepted bid to the auction's room.
func (p *Publisher) PublishNewBid(auctionID uuid.UUID, event bidding.NewBidEvent) {
	data := map[string]interface{}{
		"auction_id":        event.AuctionID,
		"bid":               event.Bid,
		"new_current_price": event.NewCurrentPrice,
		"total_bids":        event.TotalBids,
		"time_remaining":    event.TimeRemaining.Milliseconds(),
	}
	p.hub.BroadcastToRoom(RoomName(auctionID), "NewBid", data)
}

// PublishOutbid notifies the displaced top bidder on every connection.
func (p *Publisher) PublishOutbid(userID uuid.UUID, event bidding.OutbidEvent) {
	p.hub.SendToUser(userID, "Outbid", event)
}

// PublishStatusChanged broadcasts a lifecycle transition to the room.
func (p *Publisher) PublishStatusChanged(auctionID uuid.UUID, event auctionsvc.StatusChangedEvent) {
	p.hub.BroadcastToRoom(RoomName(auctionID), "AuctionStatusChanged", event)
}

// PublishAuctionEnded broadcasts a terminal transition to the room.
func (p *Publisher) PublishAuctionEnded(auctionID uuid.UUID, event auctionsvc.StatusChangedEvent) {
	p.hub.BroadcastToRoom(RoomName(auctionID), "AuctionEnded", event)
}
