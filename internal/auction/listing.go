package auction

import (
	"context"
	"fmt"
	"strings"

	"ms-auction/internal/auctionerr"
	"ms-auction/internal/models"
	"ms-auction/internal/utils"

	"github.com/shopspring/decimal"
)

// CreateAuction registers a new listing awaiting moderation. The auction
// starts SCHEDULED; timers are armed for both boundaries.
func (s *Service) CreateAuction(ctx context.Context, seller models.User, in models.AuctionInput) (*models.Auction, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	now := s.now()

	a := &models.Auction{
		ID:            utils.NewAuctionID(),
		SellerID:      seller.ID,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Category:      strings.TrimSpace(in.Category),
		Status:        models.ListingPending,
		AuctionStatus: models.AuctionScheduled,
		StartTime:     in.StartTime.UTC(),
		EndTime:       in.EndTime.UTC(),
		StartingBid:   decimal.NewNullDecimal(in.StartingBid),
		BidIncrement:  decimal.NewNullDecimal(in.BidIncrement),
		ReservePrice:  in.ReservePrice,
		BuyNowPrice:   in.BuyNowPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	seller.CreatedAt = now
	if err := s.db.CreateAuction(ctx, a, &seller); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}
	s.log.LogBid("CREATED", a.ID, fmt.Sprintf("seller=%s start=%s end=%s", seller.ID, a.StartTime.Format("2006-01-02T15:04:05Z"), a.EndTime.Format("2006-01-02T15:04:05Z")))

	if s.timers != nil {
		if err := s.timers.Schedule(ctx, a); err != nil {
			s.log.Warn("REDIS", fmt.Sprintf("Failed to schedule timers for %s, sweeper will cover it: %v", a.ID, err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.log.Warn("CACHE", fmt.Sprintf("Listing cache invalidation failed: %v", err))
		}
	}
	return a, nil
}

// ApproveListing publishes a pending or rejected listing for bidding.
func (s *Service) ApproveListing(ctx context.Context, id string) (*models.Auction, error) {
	return s.moderate(ctx, id, []models.ListingStatus{models.ListingDraft, models.ListingPending, models.ListingRejected}, models.ListingApproved)
}

// RejectListing withdraws a listing that has not sold.
func (s *Service) RejectListing(ctx context.Context, id string) (*models.Auction, error) {
	return s.moderate(ctx, id, []models.ListingStatus{models.ListingDraft, models.ListingPending, models.ListingApproved}, models.ListingRejected)
}

func (s *Service) moderate(ctx context.Context, id string, from []models.ListingStatus, to models.ListingStatus) (*models.Auction, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == to {
		return a, nil
	}
	ok, err := s.db.SetListingStatus(ctx, id, from, to, s.now())
	if err != nil {
		return nil, fmt.Errorf("set listing status: %w", err)
	}
	if !ok {
		return nil, auctionerr.Newf(auctionerr.Conflict, "listing %s cannot move from %s to %s", id, a.Status, to)
	}
	s.log.LogBid("MODERATED", id, fmt.Sprintf("%s -> %s", a.Status, to))
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.log.Warn("CACHE", fmt.Sprintf("Listing cache invalidation failed: %v", err))
		}
	}
	return s.load(ctx, id)
}

func validateInput(in models.AuctionInput) error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return auctionerr.Validation("title", "is required")
	case strings.TrimSpace(in.Category) == "":
		return auctionerr.Validation("category", "is required")
	case in.StartTime.IsZero() || in.EndTime.IsZero():
		return auctionerr.Validation("startTime", "and endTime are required")
	case !in.StartTime.Before(in.EndTime):
		return auctionerr.Validation("endTime", "must be after startTime")
	case !in.StartingBid.IsPositive():
		return auctionerr.Validation("startingBid", "must be greater than zero")
	case in.BidIncrement.IsNegative():
		return auctionerr.Validation("bidIncrement", "must not be negative")
	case in.ReservePrice.Valid && !in.ReservePrice.Decimal.IsPositive():
		return auctionerr.Validation("reservePrice", "must be greater than zero")
	case in.BuyNowPrice.Valid && in.BuyNowPrice.Decimal.LessThan(in.StartingBid):
		return auctionerr.Validation("buyNowPrice", "must not be below startingBid")
	case in.BuyNowPrice.Valid && in.ReservePrice.Valid && in.BuyNowPrice.Decimal.LessThan(in.ReservePrice.Decimal):
		return auctionerr.Validation("buyNowPrice", "must not be below reservePrice")
	}
	if !in.StartingBid.Equal(in.StartingBid.Round(2)) {
		return auctionerr.Validation("startingBid", "must have at most two decimal places")
	}
	if !in.BidIncrement.Equal(in.BidIncrement.Round(2)) {
		return auctionerr.Validation("bidIncrement", "must have at most two decimal places")
	}
	return nil
}
