package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/liveexchange/auction-backend/internal/domain/auction"
	"github.com/liveexchange/auction-backend/internal/domain/values"
	auctionsvc "github.com/liveexchange/auction-backend/internal/service/auction"
	"github.com/liveexchange/auction-backend/internal/service/auth"
	"github.com/liveexchange/auction-backend/internal/service/bidding"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeBidding accepts every bid.
type fakeBidding struct {
	lastReq *bidding.PlaceBidRequest
}

func (f *fakeBidding) PlaceBid(_ context.Context, req *bidding.PlaceBidRequest) (*bidding.BidResult, error) {
	f.lastReq = req
	return &bidding.BidResult{NewCurrentPrice: req.Amount, TotalBids: 1}, nil
}

// fakeAuctions serves a single auction for timer sync.
type fakeAuctions struct {
	auction *domain.Auction
}

func (f *fakeAuctions) Create(context.Context, *auctionsvc.CreateAuctionRequest) (*domain.Auction, error) {
	return nil, nil
}

func (f *fakeAuctions) Get(_ context.Context, id uuid.UUID) (*auctionsvc.Detail, error) {
	return &auctionsvc.Detail{Auction: f.auction}, nil
}

func (f *fakeAuctions) Activate(context.Context, uuid.UUID, uuid.UUID) (*domain.Auction, error) {
	return nil, nil
}

func (f *fakeAuctions) Cancel(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (f *fakeAuctions) ListActive(context.Context, int, int) ([]*domain.Auction, int64, error) {
	return nil, 0, nil
}

func (f *fakeAuctions) ListActiveByCategory(context.Context, uuid.UUID, int, int) ([]*domain.Auction, int64, error) {
	return nil, 0, nil
}

func (f *fakeAuctions) ListBySeller(context.Context, uuid.UUID, int, int) ([]*domain.Auction, int64, error) {
	return nil, 0, nil
}

func (f *fakeAuctions) CountActive(context.Context) (int64, error) { return 1, nil }

func (f *fakeAuctions) SweepExpired(context.Context, int) (int, error) { return 0, nil }

func testAuthService() *auth.Service {
	return auth.NewService(nil, auth.Config{
		Secret:             []byte(testSecret),
		Issuer:             "auction-backend",
		Audience:           "auction-clients",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	}, slog.Default())
}

// signToken mints an access token the hub will accept.
func signToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	now := time.Now()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auction-backend",
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{"auction-clients"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: userID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

type hubFixture struct {
	hub     *Hub
	server  *httptest.Server
	bidding *fakeBidding
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	now := time.Now().UTC()
	auctions := &fakeAuctions{auction: &domain.Auction{
		ID:     uuid.New(),
		EndAt:  now.Add(time.Hour),
		Status: domain.StatusActive,
	}}
	biddingSvc := &fakeBidding{}

	hub := NewHub(biddingSvc, auctions, testAuthService(), nil, slog.Default())
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		server.Close()
		hub.Close()
	})

	return &hubFixture{hub: hub, server: server, bidding: biddingSvc}
}

func (f *hubFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	if token != "" {
		url += "?access_token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one frame with a deadline.
func readMessage(t *testing.T, conn *websocket.Conn) *ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

// waitForRoomSize polls until the hub has processed the join.
func waitForRoomSize(t *testing.T, hub *Hub, room string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.RoomSize(room) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s never reached size %d", room, want)
}

func TestHub_AnonymousSubscribe(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "")

	welcome := readMessage(t, conn)
	assert.Equal(t, "Connected", welcome.Event)

	auctionID := uuid.New()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":       "JoinAuction",
		"auction_id": auctionID,
	}))

	joined := readMessage(t, conn)
	assert.Equal(t, "JoinedAuction", joined.Event)
	assert.Equal(t, RoomName(auctionID), joined.Room)

	// Room broadcast reaches the subscriber.
	f.hub.BroadcastToRoom(RoomName(auctionID), "NewBid", map[string]string{"hello": "room"})
	event := readMessage(t, conn)
	assert.Equal(t, "NewBid", event.Event)
}

func TestHub_JoinLeaveIdempotent(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "")
	readMessage(t, conn) // welcome

	auctionID := uuid.New()
	room := RoomName(auctionID)

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"type":       "JoinAuction",
			"auction_id": auctionID,
		}))
		readMessage(t, conn)
	}
	waitForRoomSize(t, f.hub, room, 1)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":       "LeaveAuction",
		"auction_id": auctionID,
	}))
	readMessage(t, conn)
	waitForRoomSize(t, f.hub, room, 0)

	// Leaving again is harmless.
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":       "LeaveAuction",
		"auction_id": auctionID,
	}))
	readMessage(t, conn)
	assert.Equal(t, 0, f.hub.RoomSize(room))
}

func TestHub_PerUserDelivery(t *testing.T) {
	f := newHubFixture(t)
	userID := uuid.New()
	token := signToken(t, userID)

	// Two connections for one user, one for a stranger.
	conn1 := f.dial(t, token)
	conn2 := f.dial(t, token)
	stranger := f.dial(t, signToken(t, uuid.New()))

	for _, c := range []*websocket.Conn{conn1, conn2, stranger} {
		readMessage(t, c)
	}

	f.hub.SendToUser(userID, "Outbid", map[string]string{"auction": "x"})

	for _, c := range []*websocket.Conn{conn1, conn2} {
		msg := readMessage(t, c)
		assert.Equal(t, "Outbid", msg.Event)
	}

	stranger.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var unexpected ServerMessage
	assert.Error(t, stranger.ReadJSON(&unexpected), "stranger must not receive targeted events")
}

func TestHub_PlaceBidRequiresAuth(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "")
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":       "PlaceBid",
		"auction_id": uuid.New(),
		"amount":     "105.00",
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
}

func TestHub_PlaceBidAuthenticated(t *testing.T) {
	f := newHubFixture(t)
	userID := uuid.New()
	conn := f.dial(t, signToken(t, userID))
	readMessage(t, conn)

	auctionID := uuid.New()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":       "PlaceBid",
		"auction_id": auctionID,
		"amount":     "105.00",
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, "BidAccepted", msg.Event)

	require.NotNil(t, f.bidding.lastReq)
	assert.Equal(t, auctionID, f.bidding.lastReq.AuctionID)
	assert.Equal(t, userID, f.bidding.lastReq.BidderID)
	assert.True(t, f.bidding.lastReq.Amount.Equal(values.MustNewMoneyFromString("105.00")))
}

func TestHub_TimerSync(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "")
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":       "RequestTimerSync",
		"auction_id": uuid.New(),
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, "TimerSync", msg.Event)

	data, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var payload struct {
		TimeRemaining int64 `json:"time_remaining"`
	}
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Greater(t, payload.TimeRemaining, int64(0))
}

func TestHub_RejectsInvalidToken(t *testing.T) {
	f := newHubFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?access_token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}
