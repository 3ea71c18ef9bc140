package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-auction/internal/auction/db"
	"ms-auction/internal/auctionerr"
	"ms-auction/internal/models"
	"ms-auction/internal/utils"

	"github.com/shopspring/decimal"
)

// commitAttempts is the first try plus one retry against fresh data.
const commitAttempts = 2

type BidRequest struct {
	AuctionID string
	Bidder    models.User
	Amount    decimal.Decimal
	// IdempotencyKey is optional. A repeated key within its TTL is rejected.
	IdempotencyKey string
}

// PlaceBid validates and records a bid. Checks run in order: auction active,
// caller identity, amount shape, minimum amount. The auction update, bid
// insert, outbid demotion and notification commit together or not at all.
func (s *Service) PlaceBid(ctx context.Context, req BidRequest) (*models.Bid, error) {
	reserved := false
	if req.IdempotencyKey != "" && req.Bidder.ID != "" && s.idempotency != nil {
		ok, err := s.idempotency.Reserve(ctx, req.Bidder.ID, req.IdempotencyKey)
		switch {
		case err != nil:
			s.log.Warn("REDIS", fmt.Sprintf("Idempotency guard unavailable, continuing without it: %v", err))
		case !ok:
			return nil, auctionerr.New(auctionerr.Conflict, "a bid with this Idempotency-Key was already submitted")
		default:
			reserved = true
		}
	}

	bid, err := s.placeBid(ctx, req)
	if err != nil && reserved {
		if rerr := s.idempotency.Release(context.WithoutCancel(ctx), req.Bidder.ID, req.IdempotencyKey); rerr != nil {
			s.log.Warn("REDIS", fmt.Sprintf("Failed to release idempotency key: %v", rerr))
		}
	}
	return bid, err
}

func (s *Service) placeBid(ctx context.Context, req BidRequest) (*models.Bid, error) {
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		a, err := s.load(ctx, req.AuctionID)
		if err != nil {
			return nil, err
		}
		if a, err = s.sync(ctx, a); err != nil {
			return nil, err
		}

		now := s.now()
		if reason := biddable(a, now); reason != "" {
			return nil, auctionerr.NotActive(a.ID, reason)
		}
		if req.Bidder.ID == "" {
			return nil, auctionerr.New(auctionerr.Unauthorized, "authentication required to bid")
		}
		if a.SellerID == req.Bidder.ID {
			return nil, auctionerr.New(auctionerr.ForbiddenSelfBid, "sellers cannot bid on their own auction")
		}
		if !req.Amount.IsPositive() {
			return nil, auctionerr.Validation("amount", "must be greater than zero")
		}
		if !req.Amount.Equal(req.Amount.Round(2)) {
			return nil, auctionerr.Validation("amount", "must have at most two decimal places")
		}
		if minimum := a.MinimumBid(); req.Amount.LessThan(minimum) {
			return nil, auctionerr.TooLow(minimum)
		}

		bid, commit, err := s.prepareCommit(ctx, a, req, now)
		if err != nil {
			return nil, err
		}

		err = s.db.CommitBid(ctx, commit)
		if errors.Is(err, db.ErrStale) {
			s.log.LogBid("CONFLICT", a.ID, fmt.Sprintf("attempt %d lost the race, re-validating", attempt))
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, auctionerr.New(auctionerr.InternalError, "bid request timed out")
			}
			return nil, fmt.Errorf("commit bid on %s: %w", a.ID, err)
		}

		s.log.LogBid("ACCEPTED", a.ID, fmt.Sprintf("bid=%s user=%s amount=%s", bid.ID, bid.UserID, bid.Amount.StringFixed(2)))
		s.afterCommit(ctx, a, bid, commit)
		return bid, nil
	}
	return nil, auctionerr.New(auctionerr.Conflict, "the auction changed while the bid was being placed, retry")
}

func (s *Service) prepareCommit(ctx context.Context, a *models.Auction, req BidRequest, now time.Time) (*models.Bid, db.BidCommit, error) {
	bidder := req.Bidder
	if bidder.Role == "" {
		bidder.Role = models.RoleStandard
	}
	bidder.CreatedAt = now

	bid := &models.Bid{
		ID:        utils.NewBidID(),
		AuctionID: a.ID,
		UserID:    bidder.ID,
		Amount:    req.Amount,
		Status:    models.BidAccepted,
		CreatedAt: now,
	}
	commit := db.BidCommit{
		Bid:                  *bid,
		Bidder:               &bidder,
		ExpectedLeadingBidID: a.LeadingBidID,
		Now:                  now,
	}

	if a.LeadingBidID != "" {
		prev, err := s.db.GetBid(ctx, a.LeadingBidID)
		if err != nil {
			return nil, db.BidCommit{}, fmt.Errorf("load leading bid %s: %w", a.LeadingBidID, err)
		}
		if prev.UserID != bidder.ID {
			commit.Notifications = append(commit.Notifications, notification(prev.UserID, a.ID, models.NotificationOutbid,
				fmt.Sprintf("You were outbid on %q: the current bid is %s", a.Title, req.Amount.StringFixed(2)), now))
		}
	}

	if a.HitsBuyNow(req.Amount) {
		commit.End = true
		settled := *a
		settled.LeadingBidID, settled.CurrentBid = bid.ID, decimal.NewNullDecimal(req.Amount)
		commit.ListingStatus = a.Status
		if settled.ReserveMet() {
			commit.ListingStatus = models.ListingSold
			commit.Notifications = append(commit.Notifications, notification(bidder.ID, a.ID, models.NotificationWon,
				fmt.Sprintf("You won %q with a buy-now bid of %s", a.Title, req.Amount.StringFixed(2)), now))
		}
	}
	return bid, commit, nil
}

// afterCommit fans the accepted bid out. Nothing here can fail the bid.
func (s *Service) afterCommit(ctx context.Context, a *models.Auction, bid *models.Bid, commit db.BidCommit) {
	next := *a
	next.CurrentBid = decimal.NewNullDecimal(bid.Amount)
	next.LeadingBidID = bid.ID
	next.BidCount++
	next.UpdatedAt = commit.Now

	ev, err := models.NewBidUpdateEvent(models.BidUpdate{
		AuctionID:      a.ID,
		BidID:          bid.ID,
		BidderID:       bid.UserID,
		Amount:         bid.Amount,
		CurrentBid:     bid.Amount,
		MinimumNextBid: next.MinimumBid(),
		BidCount:       next.BidCount,
		EndTime:        a.EndTime,
		PlacedAt:       bid.CreatedAt,
	})
	if err != nil {
		s.log.Error("BROADCAST", fmt.Sprintf("Failed to encode bid event for %s: %v", a.ID, err))
	} else {
		s.publish(ctx, s.topics.BidAccepted, ev)
	}

	if commit.End {
		from := next.AuctionStatus
		next.AuctionStatus = models.AuctionEnded
		next.Status = commit.ListingStatus
		if commit.ListingStatus == models.ListingSold {
			next.WinnerID = bid.UserID
		}
		s.log.LogLifecycle(string(from), string(next.AuctionStatus), a.ID)
		if s.timers != nil {
			if err := s.timers.Clear(context.WithoutCancel(ctx), a.ID); err != nil {
				s.log.Warn("REDIS", fmt.Sprintf("Failed to clear timers for %s: %v", a.ID, err))
			}
		}
		s.publishStatus(ctx, &next, from, "buy-now price reached")
	}
}

// BidHistory lists every bid on the auction, highest first with the earliest
// bid winning ties. The first entry is the current leader.
func (s *Service) BidHistory(ctx context.Context, auctionID string) ([]models.BidHistoryEntry, error) {
	a, err := s.load(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.ListBids(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("list bids for %s: %w", auctionID, err)
	}
	out := make([]models.BidHistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = models.BidHistoryEntry{
			ID:        r.ID,
			Amount:    r.Amount,
			Bidder:    models.BidderSummary{ID: r.UserID, Name: r.BidderName},
			CreatedAt: r.CreatedAt,
			IsWinning: r.ID == a.LeadingBidID,
		}
	}
	return out, nil
}
