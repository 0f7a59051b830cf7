package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/liveexchange/auction-backend/internal/domain/errors"
	"github.com/liveexchange/auction-backend/internal/domain/values"
	auctionsvc "github.com/liveexchange/auction-backend/internal/service/auction"
	"github.com/liveexchange/auction-backend/internal/service/auth"
	"github.com/liveexchange/auction-backend/internal/service/bidding"
	"github.com/liveexchange/auction-backend/internal/metrics"
)

// RoomName derives the stable room key for an auction.
func RoomName(auctionID uuid.UUID) string {
	return "auction_" + auctionID.String()
}

// Config holds WebSocket tuning parameters.
type Config struct {
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingPeriod      time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		PingPeriod:      54 * time.Second, // must be less than PongTimeout
		MaxMessageSize:  4 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
	}
}

// ConnectedCounter tracks the advisory connected-user gauge.
type ConnectedCounter interface {
	IncrConnected(ctx context.Context) int64
	DecrConnected(ctx context.Context) int64
	Connected(ctx context.Context) int64
}

// ServerMessage is the frame pushed to clients.
type ServerMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event,omitempty"`
	Room      string      `json:"room,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ClientMessage is a frame received from a client.
type ClientMessage struct {
	Type      string     `json:"type"`
	AuctionID uuid.UUID  `json:"auction_id"`
	Amount    *jsonMoney `json:"amount,omitempty"`
}

// jsonMoney tolerates string or numeric amounts on the wire.
type jsonMoney struct {
	values.Money
}

func (m *jsonMoney) UnmarshalJSON(data []byte) error {
	return m.Money.UnmarshalJSON(data)
}

// Hub manages all live connections: room-scoped subscriptions keyed by
// auction, per-user delivery to every connection of a user, and global
// broadcast. Anonymous clients may subscribe; actions require auth.
type Hub struct {
	bidding  bidding.Service
	auctions auctionsvc.Service
	auth     *auth.Service
	counter  ConnectedCounter
	logger   *slog.Logger
	config   Config

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	rooms   map[string]map[uuid.UUID]*Client
	users   map[uuid.UUID]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub creates the hub and starts its bookkeeping loop.
func NewHub(biddingSvc bidding.Service, auctionSvc auctionsvc.Service, authSvc *auth.Service, counter ConnectedCounter, logger *slog.Logger) *Hub {
	h := &Hub{
		bidding:    biddingSvc,
		auctions:   auctionSvc,
		auth:       authSvc,
		counter:    counter,
		logger:     logger,
		config:     DefaultConfig(),
		clients:    make(map[uuid.UUID]*Client),
		rooms:      make(map[string]map[uuid.UUID]*Client),
		users:      make(map[uuid.UUID]map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.done:
			return
		}
	}
}

// Close stops the bookkeeping loop.
func (h *Hub) Close() {
	close(h.done)
}

// ServeHTTP upgrades the subscription endpoint. Authentication comes
// from the Authorization header or, for clients that cannot set
// headers on the handshake, the access_token query parameter. Missing
// credentials downgrade to an anonymous, subscribe-only connection;
// invalid credentials are rejected with 401 before the upgrade.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var userID uuid.UUID
	if token := extractToken(r); token != "" {
		claims, err := h.auth.ValidateAccess(token)
		if err != nil {
			http.Error(w, "invalid access token", http.StatusUnauthorized)
			return
		}
		userID = claims.UserID
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  h.config.ReadBufferSize,
		WriteBufferSize: h.config.WriteBufferSize,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		ID:         uuid.New(),
		UserID:     userID,
		remoteAddr: remoteHost(r),
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.config.SendBufferSize),
		rooms:      make(map[string]bool),
	}

	conn.SetReadLimit(h.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
		return nil
	})

	h.register <- client
	go client.writePump()

	// Queue the welcome before the read pump starts so it cannot race
	// the unregister path closing the send channel.
	client.sendMessage(&ServerMessage{
		Type:      "system",
		Event:     "Connected",
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"client_id":     client.ID,
			"authenticated": userID != uuid.Nil,
		},
	})

	go client.readPump()
}

// remoteHost strips the port from the peer address, honoring
// X-Forwarded-For from a fronting proxy.
func remoteHost(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return fwd
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("access_token")
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	if c.UserID != uuid.Nil {
		if h.users[c.UserID] == nil {
			h.users[c.UserID] = make(map[uuid.UUID]*Client)
		}
		h.users[c.UserID][c.ID] = c
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(total))
	if h.counter != nil {
		h.counter.IncrConnected(context.Background())
	}
	h.logger.Info("websocket client connected",
		"client_id", c.ID, "user_id", c.UserID, "total_clients", total)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	if c.UserID != uuid.Nil {
		if conns, ok := h.users[c.UserID]; ok {
			delete(conns, c.ID)
			if len(conns) == 0 {
				delete(h.users, c.UserID)
			}
		}
	}
	// Closing under the lock keeps broadcasters from enqueueing into a
	// closed channel.
	close(c.send)
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(total))
	if h.counter != nil {
		h.counter.DecrConnected(context.Background())
	}
	h.logger.Info("websocket client disconnected",
		"client_id", c.ID, "user_id", c.UserID, "total_clients", total)
}

// JoinRoom subscribes a client to a room. Joining twice is a no-op.
func (h *Hub) JoinRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[uuid.UUID]*Client)
	}
	h.rooms[room][c.ID] = c
	c.rooms[room] = true
}

// LeaveRoom unsubscribes a client. Leaving a room never joined is a
// no-op.
func (h *Hub) LeaveRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// BroadcastToRoom pushes an event to every member of a room.
func (h *Hub) BroadcastToRoom(room, event string, data interface{}) {
	payload, err := json.Marshal(&ServerMessage{
		Type:      "event",
		Event:     event,
		Room:      room,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("failed to marshal event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(event).Inc()
	for _, client := range h.rooms[room] {
		client.enqueue(payload)
	}
}

// SendToUser pushes an event to every live connection of a user.
func (h *Hub) SendToUser(userID uuid.UUID, event string, data interface{}) {
	payload, err := json.Marshal(&ServerMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("failed to marshal event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(event).Inc()
	for _, client := range h.users[userID] {
		client.enqueue(payload)
	}
}

// BroadcastAll pushes an event to every connected client.
func (h *Hub) BroadcastAll(event string, data interface{}) {
	payload, err := json.Marshal(&ServerMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("failed to marshal event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(event).Inc()
	for _, client := range h.clients {
		client.enqueue(payload)
	}
}

// ConnectedClients returns the number of live connections on this
// instance.
func (h *Hub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of subscribers in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// RunLiveStats periodically broadcasts LiveStatsUpdated to everyone.
func (h *Hub) RunLiveStats(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active, err := h.auctions.CountActive(ctx)
			if err != nil {
				h.logger.Error("live stats count failed", "error", err)
				continue
			}
			connected := int64(h.ConnectedClients())
			if h.counter != nil {
				connected = h.counter.Connected(ctx)
			}
			h.BroadcastAll("LiveStatsUpdated", map[string]interface{}{
				"active_auctions": active,
				"connected_users": connected,
				"timestamp":       time.Now().UTC(),
			})
		}
	}
}

// handleMessage dispatches a client-invoked method.
func (h *Hub) handleMessage(c *Client, msg *ClientMessage) {
	switch msg.Type {
	case "JoinAuction":
		if msg.AuctionID == uuid.Nil {
			c.sendError("auction_id is required")
			return
		}
		h.JoinRoom(c, RoomName(msg.AuctionID))
		c.sendMessage(&ServerMessage{
			Type:      "system",
			Event:     "JoinedAuction",
			Room:      RoomName(msg.AuctionID),
			Timestamp: time.Now().UTC(),
		})

	case "LeaveAuction":
		if msg.AuctionID == uuid.Nil {
			c.sendError("auction_id is required")
			return
		}
		h.LeaveRoom(c, RoomName(msg.AuctionID))
		c.sendMessage(&ServerMessage{
			Type:      "system",
			Event:     "LeftAuction",
			Room:      RoomName(msg.AuctionID),
			Timestamp: time.Now().UTC(),
		})

	case "RequestTimerSync":
		h.handleTimerSync(c, msg.AuctionID)

	case "PlaceBid":
		h.handlePlaceBid(c, msg)

	default:
		c.sendError("unknown message type")
	}
}

func (h *Hub) handleTimerSync(c *Client, auctionID uuid.UUID) {
	if auctionID == uuid.Nil {
		c.sendError("auction_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	detail, err := h.auctions.Get(ctx, auctionID)
	if err != nil {
		c.sendError("auction not found")
		return
	}

	now := time.Now().UTC()
	c.sendMessage(&ServerMessage{
		Type:      "event",
		Event:     "TimerSync",
		Room:      RoomName(auctionID),
		Timestamp: now,
		Data: map[string]interface{}{
			"auction_id":     auctionID,
			"end_at":         detail.Auction.EndAt,
			"time_remaining": detail.Auction.TimeRemaining(now).Milliseconds(),
			"server_time":    now,
		},
	})
}

func (h *Hub) handlePlaceBid(c *Client, msg *ClientMessage) {
	if c.UserID == uuid.Nil {
		c.sendError("authentication required to place bids")
		return
	}
	if msg.Amount == nil {
		c.sendError("amount is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := h.bidding.PlaceBid(ctx, &bidding.PlaceBidRequest{
		AuctionID:     msg.AuctionID,
		BidderID:      c.UserID,
		Amount:        msg.Amount.Money,
		SourceAddress: c.remoteAddr,
	})
	if err != nil {
		var appErr *errors.AppError
		if e, ok := err.(*errors.AppError); ok {
			appErr = e
		}
		if appErr != nil {
			c.sendMessage(&ServerMessage{
				Type:      "error",
				Event:     "BidRejected",
				Timestamp: time.Now().UTC(),
				Data:      appErr,
			})
			return
		}
		c.sendError("bid failed")
		return
	}

	c.sendMessage(&ServerMessage{
		Type:      "system",
		Event:     "BidAccepted",
		Timestamp: time.Now().UTC(),
		Data:      result,
	})
}
