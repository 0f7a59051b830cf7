package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/liveexchange/auction-backend/internal/domain/bid"
	"github.com/liveexchange/auction-backend/internal/domain/errors"
	auctionsvc "github.com/liveexchange/auction-backend/internal/service/auction"
	"github.com/liveexchange/auction-backend/internal/service/auth"
	"github.com/liveexchange/auction-backend/internal/service/bidding"
	categorysvc "github.com/liveexchange/auction-backend/internal/service/category"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

// BidReader serves the read side of the bid history.
type BidReader interface {
	ListByAuction(ctx context.Context, auctionID uuid.UUID, page, pageSize int) ([]*bid.Bid, int64, error)
	ListByBidder(ctx context.Context, bidderID uuid.UUID, page, pageSize int) ([]*bid.Bid, int64, error)
}

// Handler is the HTTP surface of the service.
type Handler struct {
	auth       *auth.Service
	auctions   auctionsvc.Service
	bidding    bidding.Service
	categories *categorysvc.Service
	bids       BidReader
	logger     *slog.Logger
	mux        *http.ServeMux
}

// NewHandler wires all routes.
func NewHandler(authSvc *auth.Service, auctionSvc auctionsvc.Service, biddingSvc bidding.Service, categorySvc *categorysvc.Service, bids BidReader, logger *slog.Logger) *Handler {
	h := &Handler{
		auth:       authSvc,
		auctions:   auctionSvc,
		bidding:    biddingSvc,
		categories: categorySvc,
		bids:       bids,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler. The category listing is dispatched
// by hand: its pattern and "GET /api/auctions/{id}/bids" overlap with
// neither more specific, which ServeMux refuses to register.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		if id, ok := strings.CutPrefix(r.URL.Path, "/api/auctions/category/"); ok {
			h.handleListAuctionsByCategory(w, r, id)
			return
		}
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	authed := authMiddleware(h.auth)
	protect := func(fn http.HandlerFunc) http.Handler { return authed(fn) }

	// Auth
	h.mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	h.mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	h.mux.HandleFunc("POST /api/auth/refresh-token", h.handleRefreshToken)
	h.mux.Handle("POST /api/auth/logout", protect(h.handleLogout))

	// Auctions
	h.mux.HandleFunc("GET /api/auctions", h.handleListAuctions)
	h.mux.Handle("GET /api/auctions/my-auctions", protect(h.handleMyAuctions))
	h.mux.Handle("GET /api/auctions/my-bids", protect(h.handleMyBids))
	h.mux.HandleFunc("GET /api/auctions/{id}", h.handleGetAuction)
	h.mux.Handle("POST /api/auctions", protect(h.handleCreateAuction))
	h.mux.Handle("POST /api/auctions/{id}/activate", protect(h.handleActivateAuction))
	h.mux.Handle("DELETE /api/auctions/{id}", protect(h.handleCancelAuction))

	// Bids
	h.mux.HandleFunc("GET /api/auctions/{id}/bids", h.handleListBids)
	h.mux.Handle("POST /api/auctions/{id}/bids", protect(h.handlePlaceBid))

	// Categories
	h.mux.HandleFunc("GET /api/categories", h.handleListCategories)
	h.mux.HandleFunc("GET /api/categories/{id}", h.handleGetCategory)
	h.mux.Handle("POST /api/categories", protect(h.handleCreateCategory))
}

// decode parses and validates a JSON body.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.NewValidationError("INVALID_BODY", "invalid request body").WithCause(err)
	}
	if err := validate.Struct(dst); err != nil {
		return errors.NewValidationError("INVALID_FIELDS", "validation failed").WithFields(validationFields(err))
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, errors.NewValidationError("INVALID_ID", "malformed id in path")
	}
	return id, nil
}

func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// Auth handlers

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := h.auth.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "account created", u)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "logged in", map[string]interface{}{
		"user":   u,
		"tokens": pair,
	})
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "token refreshed", pair)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "logged out", nil)
}

// Auction handlers

func (h *Handler) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	auctions, total, err := h.auctions.ListActive(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", &Page{Items: auctions, Page: page, PageSize: pageSize, Total: total})
}

func (h *Handler) handleListAuctionsByCategory(w http.ResponseWriter, r *http.Request, rawID string) {
	categoryID, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, errors.NewValidationError("INVALID_ID", "malformed id in path"))
		return
	}

	page, pageSize := pagination(r)
	auctions, total, err := h.auctions.ListActiveByCategory(r.Context(), categoryID, page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", &Page{Items: auctions, Page: page, PageSize: pageSize, Total: total})
}

func (h *Handler) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	detail, err := h.auctions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", detail)
}

func (h *Handler) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	sellerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var req CreateAuctionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.auctions.Create(r.Context(), &auctionsvc.CreateAuctionRequest{
		Title:         req.Title,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		StartingPrice: req.StartingPrice,
		ReservePrice:  req.ReservePrice,
		MinIncrement:  req.MinIncrement,
		StartAt:       req.StartAt,
		EndAt:         req.EndAt,
		CategoryID:    req.CategoryID,
		SellerID:      sellerID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "auction created", created)
}

func (h *Handler) handleActivateAuction(w http.ResponseWriter, r *http.Request) {
	callerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	activated, err := h.auctions.Activate(r.Context(), id, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "auction activated", activated)
}

func (h *Handler) handleCancelAuction(w http.ResponseWriter, r *http.Request) {
	callerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.auctions.Cancel(r.Context(), id, callerID); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "auction cancelled", nil)
}

func (h *Handler) handleMyAuctions(w http.ResponseWriter, r *http.Request) {
	sellerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	page, pageSize := pagination(r)
	auctions, total, err := h.auctions.ListBySeller(r.Context(), sellerID, page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", &Page{Items: auctions, Page: page, PageSize: pageSize, Total: total})
}

// Bid handlers

func (h *Handler) handleListBids(w http.ResponseWriter, r *http.Request) {
	auctionID, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, pageSize := pagination(r)
	bids, total, err := h.bids.ListByAuction(r.Context(), auctionID, page, pageSize)
	if err != nil {
		writeError(w, errors.NewInternalError("failed to list bids").WithCause(err))
		return
	}
	writeSuccess(w, http.StatusOK, "", &Page{Items: bids, Page: page, PageSize: pageSize, Total: total})
}

func (h *Handler) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	bidderID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	auctionID, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CreateBidRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.bidding.PlaceBid(r.Context(), &bidding.PlaceBidRequest{
		AuctionID:     auctionID,
		BidderID:      bidderID,
		Amount:        req.Amount,
		SourceAddress: remoteIP(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "bid accepted", result)
}

func (h *Handler) handleMyBids(w http.ResponseWriter, r *http.Request) {
	bidderID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	page, pageSize := pagination(r)
	bids, total, err := h.bids.ListByBidder(r.Context(), bidderID, page, pageSize)
	if err != nil {
		writeError(w, errors.NewInternalError("failed to list bids").WithCause(err))
		return
	}
	writeSuccess(w, http.StatusOK, "", &Page{Items: bids, Page: page, PageSize: pageSize, Total: total})
}

// Category handlers

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", categories)
}

func (h *Handler) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := h.categories.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", c)
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	if _, err := userIDFromContext(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	var req CreateCategoryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.categories.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "category created", c)
}
