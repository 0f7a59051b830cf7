package main

import (
	"github.com/google/uuid"

	"github.com/liveexchange/auction-backend/internal/api/websocket"
	auctionsvc "github.com/liveexchange/auction-backend/internal/service/auction"
	"github.com/liveexchange/auction-backend/internal/service/bidding"
)

// lazyPublisher breaks the construction cycle between the hub (which
// needs the services for client-invoked methods) and the services
// (which need the hub for fan-out). Events published before wiring
// completes are dropped, matching the best-effort delivery contract.
type lazyPublisher struct {
	delegate *websocket.Publisher
}

func (p *lazyPublisher) PublishNewBid(auctionID uuid.UUID, event bidding.NewBidEvent) {
	if p.delegate != nil {
		p.delegate.PublishNewBid(auctionID, event)
	}
}

func (p *lazyPublisher) PublishOutbid(userID uuid.UUID, event bidding.OutbidEvent) {
	if p.delegate != nil {
		p.delegate.PublishOutbid(userID, event)
	}
}

func (p *lazyPublisher) PublishStatusChanged(auctionID uuid.UUID, event auctionsvc.StatusChangedEvent) {
	if p.delegate != nil {
		p.delegate.PublishStatusChanged(auctionID, event)
	}
}

func (p *lazyPublisher) PublishAuctionEnded(auctionID uuid.UUID, event auctionsvc.StatusChangedEvent) {
	if p.delegate != nil {
		p.delegate.PublishAuctionEnded(auctionID, event)
	}
}
