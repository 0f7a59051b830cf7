package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liveexchange/auction-backend/internal/domain/bid"
)

// BidRepository serves the read side of the bid history. Writes go
// through AuctionRepository.InsertBidAndUpdateAuction so the price and
// winner flag always move together.
type BidRepository struct {
	pool *pgxpool.Pool
}

// NewBidRepository creates a bid repository.
func NewBidRepository(pool *pgxpool.Pool) *BidRepository {
	return &BidRepository{pool: pool}
}

const bidColumns = `
	id, auction_id, bidder_id, amount, timestamp, is_winning, source_address, is_auto_bid`

// GetByID retrieves a single bid.
func (r *BidRepository) GetByID(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	b, err := scanOptionalBid(r.pool.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

// ListByAuction returns the auction's bid history, newest first.
func (r *BidRepository) ListByAuction(ctx context.Context, auctionID uuid.UUID, page, pageSize int) ([]*bid.Bid, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE auction_id = $1`, auctionID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting bids: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+bidColumns+`
		FROM bids
		WHERE auction_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`, auctionID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("listing bids: %w", err)
	}
	defer rows.Close()

	bids, err := collectBids(rows)
	if err != nil {
		return nil, 0, err
	}
	return bids, total, nil
}

// ListByBidder returns a user's bids across auctions, newest first.
func (r *BidRepository) ListByBidder(ctx context.Context, bidderID uuid.UUID, page, pageSize int) ([]*bid.Bid, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE bidder_id = $1`, bidderID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting bids: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+bidColumns+`
		FROM bids
		WHERE bidder_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`, bidderID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("listing bids: %w", err)
	}
	defer rows.Close()

	bids, err := collectBids(rows)
	if err != nil {
		return nil, 0, err
	}
	return bids, total, nil
}

func collectBids(rows pgx.Rows) ([]*bid.Bid, error) {
	var bids []*bid.Bid
	for rows.Next() {
		var b bid.Bid
		if err := rows.Scan(
			&b.ID, &b.AuctionID, &b.BidderID, &b.Amount,
			&b.Timestamp, &b.IsWinning, &b.SourceAddress, &b.IsAutoBid,
		); err != nil {
			return nil, fmt.Errorf("scanning bid: %w", err)
		}
		bids = append(bids, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bid rows: %w", err)
	}
	return bids, nil
}

// scanOptionalBid scans a single bid row, returning (nil, nil) when the
// row does not exist.
func scanOptionalBid(row pgx.Row) (*bid.Bid, error) {
	var b bid.Bid
	err := row.Scan(
		&b.ID, &b.AuctionID, &b.BidderID, &b.Amount,
		&b.Timestamp, &b.IsWinning, &b.SourceAddress, &b.IsAutoBid,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning bid: %w", err)
	}
	return &b, nil
}
