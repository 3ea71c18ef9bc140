package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-auction/internal/models"

	"github.com/uptrace/bun"
)

// ErrStale is returned when a conditional write matched no row because the
// auction changed since it was read.
var ErrStale = errors.New("auction changed since read")

type DB struct {
	Bun *bun.DB
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Bun.PingContext(ctx)
}

// ---------------- AUCTIONS ----------------

// CreateAuction records the seller (when given) and inserts the auction in one transaction.
func (d *DB) CreateAuction(ctx context.Context, a *models.Auction, seller *models.User) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if seller != nil {
			if err := upsertUser(ctx, tx, seller); err != nil {
				return fmt.Errorf("upsert seller: %w", err)
			}
		}
		if _, err := tx.NewInsert().Model(a).Exec(ctx); err != nil {
			return fmt.Errorf("insert auction: %w", err)
		}
		return nil
	})
}

// GetAuction returns sql.ErrNoRows (wrapped by bun) for unknown ids.
func (d *DB) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	var a models.Auction
	err := d.Bun.NewSelect().
		Model(&a).
		Where("a.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAuctions returns one page of auctions plus the total number matching the filter.
func (d *DB) ListAuctions(ctx context.Context, f models.AuctionFilter, sort models.SortKey, p models.Page, now time.Time) ([]models.Auction, int, error) {
	var items []models.Auction
	q := d.Bun.NewSelect().Model(&items)

	if len(f.Statuses) > 0 {
		q = q.Where("a.status IN (?)", bun.In(f.Statuses))
	}
	if len(f.AuctionStatuses) > 0 {
		q = q.Where("a.auction_status IN (?)", bun.In(f.AuctionStatuses))
	}
	if f.Category != "" {
		q = q.Where("a.category = ?", f.Category)
	}
	if f.ActiveOnly {
		q = q.Where("a.status = ?", models.ListingApproved).
			Where("a.auction_status IN (?)", bun.In([]models.AuctionStatus{models.AuctionScheduled, models.AuctionLive})).
			Where("a.end_time > ?", now)
	}

	switch sort {
	case models.SortEndingSoon:
		q = q.Where("a.status = ?", models.ListingApproved).
			Where("a.auction_status = ?", models.AuctionLive).
			Where("a.end_time >= ?", now).
			Order("a.end_time ASC", "a.created_at DESC")
	case models.SortPriceAsc:
		q = q.OrderExpr("COALESCE(a.current_bid, a.starting_bid) ASC").Order("a.created_at DESC")
	case models.SortPriceDesc:
		q = q.OrderExpr("COALESCE(a.current_bid, a.starting_bid) DESC").Order("a.created_at DESC")
	default:
		q = q.Order("a.created_at DESC")
	}
	q = q.Order("a.id ASC")

	total, err := q.Limit(p.Limit).Offset(p.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// DueAuctions selects auctions whose lifecycle boundary has passed: SCHEDULED
// with start_time <= now, or LIVE with end_time <= now.
func (d *DB) DueAuctions(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	var items []models.Auction
	err := d.Bun.NewSelect().
		Model(&items).
		Where("(a.auction_status = ? AND a.start_time <= ?) OR (a.auction_status = ? AND a.end_time <= ?)",
			models.AuctionScheduled, now, models.AuctionLive, now).
		Order("a.end_time ASC").
		Limit(limit).
		Scan(ctx)
	return items, err
}

// SetListingStatus moves the listing to `to` only when it is currently one of `from`.
func (d *DB) SetListingStatus(ctx context.Context, id string, from []models.ListingStatus, to models.ListingStatus, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ---------------- BIDS ----------------

// BidCommit is everything an accepted bid writes. It is applied in one
// transaction or not at all.
type BidCommit struct {
	Bid models.Bid
	// Bidder is upserted with the bid so the bids.user_id reference holds.
	Bidder *models.User
	// ExpectedLeadingBidID is the leading bid observed when the bid was
	// validated; the auction row is only updated if it is still the leader.
	ExpectedLeadingBidID string
	Now                  time.Time
	// End closes the auction in the same write (buy-now).
	End           bool
	ListingStatus models.ListingStatus
	Notifications []models.Notification
}

// CommitBid applies an accepted bid. It returns ErrStale when the auction's
// leader changed or it stopped being biddable since it was read.
func (d *DB) CommitBid(ctx context.Context, c BidCommit) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().
			Model((*models.Auction)(nil)).
			Set("current_bid = ?", c.Bid.Amount).
			Set("leading_bid_id = ?", c.Bid.ID).
			Set("bid_count = bid_count + 1").
			Set("updated_at = ?", c.Now)
		if c.End {
			q = q.Set("auction_status = ?", models.AuctionEnded).
				Set("status = ?", c.ListingStatus)
			if c.ListingStatus == models.ListingSold {
				q = q.Set("winner_id = ?", c.Bid.UserID)
			}
		}
		res, err := q.
			Where("id = ?", c.Bid.AuctionID).
			Where("leading_bid_id = ?", c.ExpectedLeadingBidID).
			Where("auction_status = ?", models.AuctionLive).
			Where("status = ?", models.ListingApproved).
			Where("start_time <= ?", c.Now).
			Where("end_time > ?", c.Now).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update auction: %w", err)
		}
		ok, err := affected(res)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStale
		}

		if c.Bidder != nil {
			if err := upsertUser(ctx, tx, c.Bidder); err != nil {
				return fmt.Errorf("upsert bidder: %w", err)
			}
		}

		// The previous leader is demoted before the insert; at most one bid per
		// auction is accepted at any time.
		if c.ExpectedLeadingBidID != "" {
			_, err := tx.NewUpdate().
				Model((*models.Bid)(nil)).
				Set("status = ?", models.BidOutbid).
				Where("id = ?", c.ExpectedLeadingBidID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("mark outbid: %w", err)
			}
		}

		if _, err := tx.NewInsert().Model(&c.Bid).Exec(ctx); err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}

		if len(c.Notifications) > 0 {
			if _, err := tx.NewInsert().Model(&c.Notifications).Exec(ctx); err != nil {
				return fmt.Errorf("insert notifications: %w", err)
			}
		}
		return nil
	})
}

func (d *DB) GetBid(ctx context.Context, id string) (*models.Bid, error) {
	var b models.Bid
	if err := d.Bun.NewSelect().Model(&b).Where("b.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBids returns every bid for the auction, highest amount first and the
// earliest bid first among equal amounts.
func (d *DB) ListBids(ctx context.Context, auctionID string) ([]models.BidWithBidder, error) {
	var rows []models.BidWithBidder
	err := d.Bun.NewSelect().
		TableExpr("bids AS b").
		ColumnExpr("b.id, b.user_id, b.amount, b.status, b.created_at").
		ColumnExpr("COALESCE(u.name, '') AS bidder_name").
		Join("LEFT JOIN users AS u ON u.id = b.user_id").
		Where("b.auction_id = ?", auctionID).
		OrderExpr("b.amount DESC").
		OrderExpr("b.created_at ASC").
		OrderExpr("b.id ASC").
		Scan(ctx, &rows)
	return rows, err
}

// ---------------- LIFECYCLE ----------------

// Transition is a conditional auction_status change.
type Transition struct {
	AuctionID string
	From      models.AuctionStatus
	To        models.AuctionStatus
	// ExpectedLeadingBidID guards settlement: the winner recorded must be the
	// leader that was observed.
	ExpectedLeadingBidID string
	ListingStatus        models.ListingStatus
	WinnerID             string
	Now                  time.Time
	Notifications        []models.Notification
}

// Transition applies t only if the auction is still in t.From with the same
// leader. It reports whether a row changed.
func (d *DB) Transition(ctx context.Context, t Transition) (bool, error) {
	applied := false
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().
			Model((*models.Auction)(nil)).
			Set("auction_status = ?", t.To).
			Set("updated_at = ?", t.Now)
		if t.ListingStatus != "" {
			q = q.Set("status = ?", t.ListingStatus)
		}
		if t.WinnerID != "" {
			q = q.Set("winner_id = ?", t.WinnerID)
		}
		res, err := q.
			Where("id = ?", t.AuctionID).
			Where("auction_status = ?", t.From).
			Where("leading_bid_id = ?", t.ExpectedLeadingBidID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update auction status: %w", err)
		}
		if applied, err = affected(res); err != nil || !applied {
			return err
		}
		if len(t.Notifications) > 0 {
			if _, err := tx.NewInsert().Model(&t.Notifications).Exec(ctx); err != nil {
				return fmt.Errorf("insert notifications: %w", err)
			}
		}
		return nil
	})
	return applied, err
}

// ---------------- USERS ----------------

// UpsertUser records the identity behind a token. Balances are left untouched.
func (d *DB) UpsertUser(ctx context.Context, u *models.User) error {
	return upsertUser(ctx, d.Bun, u)
}

func upsertUser(ctx context.Context, idb bun.IDB, u *models.User) error {
	_, err := idb.NewInsert().
		Model(u).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("name = EXCLUDED.name").
		Set("role = EXCLUDED.role").
		Exec(ctx)
	return err
}

func affected(res interface{ RowsAffected() (int64, error) }) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
