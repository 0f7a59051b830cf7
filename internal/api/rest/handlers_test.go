package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/liveexchange/auction-backend/internal/domain/auction"
	"github.com/liveexchange/auction-backend/internal/domain/bid"
	"github.com/liveexchange/auction-backend/internal/domain/category"
	"github.com/liveexchange/auction-backend/internal/domain/errors"
	"github.com/liveexchange/auction-backend/internal/domain/user"
	"github.com/liveexchange/auction-backend/internal/domain/values"
	"github.com/liveexchange/auction-backend/internal/infrastructure/repository"
	auctionsvc "github.com/liveexchange/auction-backend/internal/service/auction"
	"github.com/liveexchange/auction-backend/internal/service/auth"
	"github.com/liveexchange/auction-backend/internal/service/bidding"
	categorysvc "github.com/liveexchange/auction-backend/internal/service/category"
)

// memUserStore backs the auth service in handler tests.
type memUserStore struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*user.User
	emails map[string]uuid.UUID
	tokens map[string]*repository.RefreshToken
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		users:  make(map[uuid.UUID]*user.User),
		emails: make(map[string]uuid.UUID),
		tokens: make(map[string]*repository.RefreshToken),
	}
}

func (m *memUserStore) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.emails[u.Email]; exists {
		return repository.ErrDuplicate
	}
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	return nil
}

func (m *memUserStore) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (m *memUserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.emails[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m.users[id], nil
}

func (m *memUserStore) InsertRefreshToken(_ context.Context, t *repository.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *t
	m.tokens[t.TokenHash] = &copied
	return nil
}

func (m *memUserStore) GetRefreshTokenByHash(_ context.Context, hash string) (*repository.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (m *memUserStore) RevokeRefreshToken(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, t := range m.tokens {
		if t.ID == id && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (m *memUserStore) RevokeFamily(_ context.Context, familyID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, t := range m.tokens {
		if t.FamilyID == familyID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

// fakeAuctionService returns canned values.
type fakeAuctionService struct {
	detail    *auctionsvc.Detail
	created   *domain.Auction
	createErr error
	getErr    error
	cancelErr error
}

func (f *fakeAuctionService) Create(_ context.Context, req *auctionsvc.CreateAuctionRequest) (*domain.Auction, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

func (f *fakeAuctionService) Get(context.Context, uuid.UUID) (*auctionsvc.Detail, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.detail, nil
}

func (f *fakeAuctionService) Activate(context.Context, uuid.UUID, uuid.UUID) (*domain.Auction, error) {
	return f.created, nil
}

func (f *fakeAuctionService) Cancel(context.Context, uuid.UUID, uuid.UUID) error {
	return f.cancelErr
}

func (f *fakeAuctionService) ListActive(context.Context, int, int) ([]*domain.Auction, int64, error) {
	if f.created == nil {
		return nil, 0, nil
	}
	return []*domain.Auction{f.created}, 1, nil
}

func (f *fakeAuctionService) ListActiveByCategory(context.Context, uuid.UUID, int, int) ([]*domain.Auction, int64, error) {
	return nil, 0, nil
}

func (f *fakeAuctionService) ListBySeller(context.Context, uuid.UUID, int, int) ([]*domain.Auction, int64, error) {
	return nil, 0, nil
}

func (f *fakeAuctionService) CountActive(context.Context) (int64, error) { return 0, nil }

func (f *fakeAuctionService) SweepExpired(context.Context, int) (int, error) { return 0, nil }

// fakeBiddingService records the request and returns a canned result.
type fakeBiddingService struct {
	result  *bidding.BidResult
	err     error
	lastReq *bidding.PlaceBidRequest
}

func (f *fakeBiddingService) PlaceBid(_ context.Context, req *bidding.PlaceBidRequest) (*bidding.BidResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeCategoryStore backs the category service.
type fakeCategoryStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]*category.Category
	names map[string]bool
}

func newFakeCategoryStore() *fakeCategoryStore {
	return &fakeCategoryStore{
		items: make(map[uuid.UUID]*category.Category),
		names: make(map[string]bool),
	}
}

func (f *fakeCategoryStore) Create(_ context.Context, c *category.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.names[c.Name] {
		return repository.ErrDuplicate
	}
	f.items[c.ID] = c
	f.names[c.Name] = true
	return nil
}

func (f *fakeCategoryStore) GetByID(_ context.Context, id uuid.UUID) (*category.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeCategoryStore) List(context.Context) ([]*category.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*category.Category
	for _, c := range f.items {
		out = append(out, c)
	}
	return out, nil
}

// fakeBidReader serves canned bid pages.
type fakeBidReader struct {
	bids []*bid.Bid
}

func (f *fakeBidReader) ListByAuction(context.Context, uuid.UUID, int, int) ([]*bid.Bid, int64, error) {
	return f.bids, int64(len(f.bids)), nil
}

func (f *fakeBidReader) ListByBidder(context.Context, uuid.UUID, int, int) ([]*bid.Bid, int64, error) {
	return f.bids, int64(len(f.bids)), nil
}

type fixture struct {
	handler  *Handler
	auth     *auth.Service
	bidding  *fakeBiddingService
	auctions *fakeAuctionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	authSvc := auth.NewService(newMemUserStore(), auth.Config{
		Secret:             []byte("0123456789abcdef0123456789abcdef"),
		Issuer:             "auction-backend",
		Audience:           "auction-clients",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	}, slog.Default())

	auctions := &fakeAuctionService{}
	biddingSvc := &fakeBiddingService{}
	categorySvc := categorysvc.NewService(newFakeCategoryStore(), slog.Default())

	handler := NewHandler(authSvc, auctions, biddingSvc, categorySvc, &fakeBidReader{}, slog.Default())
	return &fixture{handler: handler, auth: authSvc, bidding: biddingSvc, auctions: auctions}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, *Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, &resp
}

func (f *fixture) registerAndLogin(t *testing.T) (uuid.UUID, string) {
	t.Helper()
	email := uuid.New().String() + "@example.com"
	u, err := f.auth.Register(context.Background(), email, "Handler Tester", "s3cretpass")
	require.NoError(t, err)
	_, pair, err := f.auth.Login(context.Background(), email, "s3cretpass")
	require.NoError(t, err)
	return u.ID, pair.AccessToken
}

func TestHandleRegister(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Email:       "alice@example.com",
		DisplayName: "Alice",
		Password:    "s3cretpass",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "account created", resp.Message)

	// Field validation failures produce 400 with field errors.
	rec, resp = f.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Email:       "not-an-email",
		DisplayName: "",
		Password:    "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.NotNil(t, resp.Errors)
}

func TestHandleLogin(t *testing.T) {
	f := newFixture(t)
	_, err := f.auth.Register(context.Background(), "bob@example.com", "Bob", "s3cretpass")
	require.NoError(t, err)

	rec, resp := f.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Email: "bob@example.com", Password: "s3cretpass",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, resp = f.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Email: "bob@example.com", Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/api/auctions"},
		{http.MethodGet, "/api/auctions/my-auctions"},
		{http.MethodGet, "/api/auctions/my-bids"},
		{http.MethodPost, "/api/auctions/" + uuid.NewString() + "/bids"},
		{http.MethodPost, "/api/categories"},
		{http.MethodPost, "/api/auth/logout"},
	} {
		rec, resp := f.do(t, tc.method, tc.path, "", map[string]string{})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
		assert.False(t, resp.Success)
	}
}

func TestHandlePlaceBid(t *testing.T) {
	f := newFixture(t)
	userID, token := f.registerAndLogin(t)
	auctionID := uuid.New()

	b, err := bid.NewBid(auctionID, userID, values.MustNewMoneyFromString("105.00"), time.Now().UTC(), "")
	require.NoError(t, err)
	f.bidding.result = &bidding.BidResult{
		Bid:             b,
		NewCurrentPrice: b.Amount,
		TotalBids:       1,
	}

	rec, resp := f.do(t, http.MethodPost, "/api/auctions/"+auctionID.String()+"/bids", token,
		map[string]string{"amount": "105.00"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)

	require.NotNil(t, f.bidding.lastReq)
	assert.Equal(t, auctionID, f.bidding.lastReq.AuctionID)
	assert.Equal(t, userID, f.bidding.lastReq.BidderID)
	assert.NotEmpty(t, f.bidding.lastReq.SourceAddress, "caller address must be captured")
}

func TestHandlePlaceBid_Insufficient(t *testing.T) {
	f := newFixture(t)
	_, token := f.registerAndLogin(t)

	f.bidding.err = errors.BidTooLow("110.00")

	rec, resp := f.do(t, http.MethodPost, "/api/auctions/"+uuid.NewString()+"/bids", token,
		map[string]string{"amount": "107.00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)

	fields, ok := resp.Errors.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "110.00", fields["minimum_bid"])
}

func TestHandlePlaceBid_ServerBusy(t *testing.T) {
	f := newFixture(t)
	_, token := f.registerAndLogin(t)

	f.bidding.err = errors.ErrServerBusy

	rec, resp := f.do(t, http.MethodPost, "/api/auctions/"+uuid.NewString()+"/bids", token,
		map[string]string{"amount": "100.00"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "busy")
}

func TestHandleGetAuction(t *testing.T) {
	f := newFixture(t)

	now := time.Now().UTC()
	f.auctions.detail = &auctionsvc.Detail{
		Auction: &domain.Auction{
			ID:     uuid.New(),
			Title:  "Detail fixture",
			EndAt:  now.Add(time.Hour),
			Status: domain.StatusActive,
		},
	}

	rec, resp := f.do(t, http.MethodGet, "/api/auctions/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, _ = f.do(t, http.MethodGet, "/api/auctions/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.auctions.getErr = errors.ErrAuctionNotFound
	rec, _ = f.do(t, http.MethodGet, "/api/auctions/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCancelAuction_WithBidsRefused(t *testing.T) {
	f := newFixture(t)
	_, token := f.registerAndLogin(t)

	f.auctions.cancelErr = errors.NewBusinessError("CANCEL_REJECTED", "cannot cancel an auction with bids")

	rec, resp := f.do(t, http.MethodDelete, "/api/auctions/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Message, "with bids")
}

func TestHandleCategories(t *testing.T) {
	f := newFixture(t)
	_, token := f.registerAndLogin(t)

	rec, resp := f.do(t, http.MethodPost, "/api/categories", token, CreateCategoryRequest{
		Name: "Watches",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)

	// Unique name enforced.
	rec, resp = f.do(t, http.MethodPost, "/api/categories", token, CreateCategoryRequest{
		Name: "Watches",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)

	rec, resp = f.do(t, http.MethodGet, "/api/categories", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestHandleListAuctionsByCategory(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/auctions/category/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, _ = f.do(t, http.MethodGet, "/api/auctions/category/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListAuctions_Pagination(t *testing.T) {
	f := newFixture(t)
	f.auctions.created = &domain.Auction{ID: uuid.New(), Status: domain.StatusActive}

	rec, resp := f.do(t, http.MethodGet, "/api/auctions?page=0&pageSize=9999", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var page Page
	require.NoError(t, json.Unmarshal(data, &page))
	assert.Equal(t, 1, page.Page, "page clamps to 1")
	assert.Equal(t, maxPageSize, page.PageSize, "page size clamps to the cap")
	assert.Equal(t, int64(1), page.Total)
}

func TestTokenRotationOverHTTP(t *testing.T) {
	f := newFixture(t)

	_, resp := f.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Email: "carol@example.com", DisplayName: "Carol", Password: "s3cretpass",
	})
	require.True(t, resp.Success)

	_, loginResp := f.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Email: "carol@example.com", Password: "s3cretpass",
	})
	require.True(t, loginResp.Success)

	data, err := json.Marshal(loginResp.Data)
	require.NoError(t, err)
	var payload struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(data, &payload))
	refresh := payload.Tokens.RefreshToken
	require.NotEmpty(t, refresh)

	// First redemption rotates.
	rec, rotateResp := f.do(t, http.MethodPost, "/api/auth/refresh-token", "", RefreshRequest{RefreshToken: refresh})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, rotateResp.Success)

	// Replaying the old token fails.
	rec, replayResp := f.do(t, http.MethodPost, "/api/auth/refresh-token", "", RefreshRequest{RefreshToken: refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, replayResp.Success)
}
