package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liveexchange/auction-backend/internal/domain/auction"
	"github.com/liveexchange/auction-backend/internal/domain/bid"
	"github.com/liveexchange/auction-backend/internal/domain/values"
)

// AuctionRepository persists auctions and performs the atomic
// bid-insert-and-reprice write that backs the coordinator.
type AuctionRepository struct {
	pool *pgxpool.Pool
}

// NewAuctionRepository creates an auction repository.
func NewAuctionRepository(pool *pgxpool.Pool) *AuctionRepository {
	return &AuctionRepository{pool: pool}
}

const auctionColumns = `
	id, title, description, image_url,
	starting_price, current_price, reserve_price, min_increment,
	start_at, end_at, status, seller_id, category_id, winner_bid_id,
	created_at, updated_at`

// Create stores a new auction.
func (r *AuctionRepository) Create(ctx context.Context, a *auction.Auction) error {
	query := `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	var reserve interface{}
	if a.ReservePrice != nil {
		reserve = *a.ReservePrice
	}

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.Title, a.Description, a.ImageURL,
		a.StartingPrice, a.CurrentPrice, reserve, a.MinIncrement,
		a.StartAt, a.EndAt, a.Status.String(), a.SellerID, a.CategoryID, a.WinnerBidID,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("category %s: %w", a.CategoryID, ErrNotFound)
		}
		return fmt.Errorf("creating auction: %w", err)
	}
	return nil
}

// GetByID retrieves an auction.
func (r *AuctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	return scanAuction(row)
}

// GetWithTopBid returns the auction, its current winning bid (nil when no
// bids exist), and the total bid count, all from one consistent snapshot.
func (r *AuctionRepository) GetWithTopBid(ctx context.Context, id uuid.UUID) (*auction.Auction, *bid.Bid, int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("beginning read transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := scanAuction(tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
	if err != nil {
		return nil, nil, 0, err
	}

	top, err := scanOptionalBid(tx.QueryRow(ctx, `
		SELECT `+bidColumns+`
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, timestamp ASC
		LIMIT 1
	`, id))
	if err != nil {
		return nil, nil, 0, err
	}

	var total int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE auction_id = $1`, id).Scan(&total); err != nil {
		return nil, nil, 0, fmt.Errorf("counting bids: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, 0, fmt.Errorf("committing read transaction: %w", err)
	}
	return a, top, total, nil
}

// InsertBidAndUpdateAuction atomically inserts the new winning bid, clears
// the prior winner's flag, and moves the auction's current price. The
// price update is guarded by the caller's previously observed updated_at;
// zero rows updated means the auction changed underneath and the write is
// rolled back with ErrConflict.
func (r *AuctionRepository) InsertBidAndUpdateAuction(ctx context.Context, newBid *bid.Bid, priorTopBidID *uuid.UUID, newPrice values.Money, observedUpdatedAt time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	tag, err := tx.Exec(ctx, `
		UPDATE auctions
		SET current_price = $2, updated_at = $3
		WHERE id = $1 AND updated_at = $4 AND status = 'active'
	`, newBid.AuctionID, newPrice, now, observedUpdatedAt)
	if err != nil {
		return fmt.Errorf("updating auction price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	if priorTopBidID != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE bids SET is_winning = FALSE WHERE id = $1 AND auction_id = $2
		`, *priorTopBidID, newBid.AuctionID); err != nil {
			return fmt.Errorf("clearing prior winner: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bids (id, auction_id, bidder_id, amount, timestamp, is_winning, source_address, is_auto_bid)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)
	`, newBid.ID, newBid.AuctionID, newBid.BidderID, newBid.Amount, newBid.Timestamp, newBid.SourceAddress, newBid.IsAutoBid); err != nil {
		return fmt.Errorf("inserting bid: %w", err)
	}

	return tx.Commit(ctx)
}

// UpdateStatus persists a lifecycle transition produced by the domain
// state machine.
func (r *AuctionRepository) UpdateStatus(ctx context.Context, a *auction.Auction) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE auctions
		SET status = $2, start_at = $3, winner_bid_id = $4, updated_at = $5
		WHERE id = $1
	`, a.ID, a.Status.String(), a.StartAt, a.WinnerBidID, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating auction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns Active auctions that have not ended, ordered by
// end time ascending, paginated.
func (r *AuctionRepository) ListActive(ctx context.Context, page, pageSize int) ([]*auction.Auction, int64, error) {
	return r.list(ctx, `status = 'active' AND end_at > NOW()`, nil, page, pageSize)
}

// ListActiveByCategory returns Active auctions in a category.
func (r *AuctionRepository) ListActiveByCategory(ctx context.Context, categoryID uuid.UUID, page, pageSize int) ([]*auction.Auction, int64, error) {
	return r.list(ctx, `status = 'active' AND end_at > NOW() AND category_id = $1`, []interface{}{categoryID}, page, pageSize)
}

// ListBySeller returns every auction belonging to a seller.
func (r *AuctionRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]*auction.Auction, int64, error) {
	return r.list(ctx, `seller_id = $1`, []interface{}{sellerID}, page, pageSize)
}

// ListExpiredActive returns Active auctions whose end time has passed,
// for the background sweeper.
func (r *AuctionRepository) ListExpiredActive(ctx context.Context, limit int) ([]*auction.Auction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+auctionColumns+`
		FROM auctions
		WHERE status = 'active' AND end_at <= NOW()
		ORDER BY end_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing expired auctions: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// CountActive returns the number of currently Active auctions.
func (r *AuctionRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM auctions WHERE status = 'active' AND end_at > NOW()`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting active auctions: %w", err)
	}
	return n, nil
}

func (r *AuctionRepository) list(ctx context.Context, where string, args []interface{}, page, pageSize int) ([]*auction.Auction, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM auctions WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting auctions: %w", err)
	}

	offset := (page - 1) * pageSize
	limitArgs := append(append([]interface{}{}, args...), pageSize, offset)
	query := fmt.Sprintf(`
		SELECT %s FROM auctions
		WHERE %s
		ORDER BY end_at ASC
		LIMIT $%d OFFSET $%d
	`, auctionColumns, where, len(args)+1, len(args)+2)

	rows, err := r.pool.Query(ctx, query, limitArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := collectAuctions(rows)
	if err != nil {
		return nil, 0, err
	}
	return auctions, total, nil
}

func collectAuctions(rows pgx.Rows) ([]*auction.Auction, error) {
	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating auction rows: %w", err)
	}
	return auctions, nil
}

func scanAuction(row pgx.Row) (*auction.Auction, error) {
	var a auction.Auction
	var statusStr string
	var reserve *values.Money

	err := row.Scan(
		&a.ID, &a.Title, &a.Description, &a.ImageURL,
		&a.StartingPrice, &a.CurrentPrice, &reserve, &a.MinIncrement,
		&a.StartAt, &a.EndAt, &statusStr, &a.SellerID, &a.CategoryID, &a.WinnerBidID,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning auction: %w", err)
	}

	a.ReservePrice = reserve
	a.Status, err = auction.ParseStatus(statusStr)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
