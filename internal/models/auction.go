package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

func init() {
	// Money crosses the JSON boundary as a number rendered from the exact decimal string.
	decimal.MarshalJSONWithoutQuotes = true
}

// ListingStatus is the moderation lifecycle of the product behind an auction.
type ListingStatus string

const (
	ListingDraft    ListingStatus = "draft"
	ListingPending  ListingStatus = "pending"
	ListingApproved ListingStatus = "APPROVED"
	ListingSold     ListingStatus = "SOLD"
	ListingRejected ListingStatus = "rejected"
)

type AuctionStatus string

const (
	AuctionScheduled AuctionStatus = "SCHEDULED"
	AuctionLive      AuctionStatus = "LIVE"
	AuctionEnded     AuctionStatus = "ENDED"
	AuctionCancelled AuctionStatus = "CANCELLED"
)

// Terminal reports whether no further transition or bid is possible.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionEnded || s == AuctionCancelled
}

func (s AuctionStatus) Valid() bool {
	switch s {
	case AuctionScheduled, AuctionLive, AuctionEnded, AuctionCancelled:
		return true
	}
	return false
}

func (s ListingStatus) Valid() bool {
	switch s {
	case ListingDraft, ListingPending, ListingApproved, ListingSold, ListingRejected:
		return true
	}
	return false
}

// MinimumIncrement is the step used when an auction has no (or a zero) bid increment.
var MinimumIncrement = decimal.New(1, -2)

type Auction struct {
	bun.BaseModel `bun:"table:auctions,alias:a"`

	ID            string              `bun:"id,pk" json:"id"`
	SellerID      string              `bun:"seller_id,notnull" json:"sellerId"`
	Title         string              `bun:"title,notnull" json:"title"`
	Description   string              `bun:"description" json:"description"`
	Category      string              `bun:"category,notnull" json:"category"`
	Status        ListingStatus       `bun:"status,notnull" json:"status"`
	AuctionStatus AuctionStatus       `bun:"auction_status,notnull" json:"auctionStatus"`
	StartTime     time.Time           `bun:"start_time,notnull" json:"startTime"`
	EndTime       time.Time           `bun:"end_time,notnull" json:"endTime"`
	CurrentBid    decimal.NullDecimal `bun:"current_bid,type:numeric(18,2)" json:"currentBid"`
	StartingBid   decimal.NullDecimal `bun:"starting_bid,type:numeric(18,2)" json:"startingBid"`
	BidIncrement  decimal.NullDecimal `bun:"bid_increment,type:numeric(18,2)" json:"bidIncrement"`
	ReservePrice  decimal.NullDecimal `bun:"reserve_price,type:numeric(18,2)" json:"reservePrice"`
	BuyNowPrice   decimal.NullDecimal `bun:"buy_now_price,type:numeric(18,2)" json:"buyNowPrice"`
	// LeadingBidID is "" until the first accepted bid. It is the compare-and-set
	// key for every bid commit.
	LeadingBidID string    `bun:"leading_bid_id,notnull,default:''" json:"leadingBidId,omitempty"`
	WinnerID     string    `bun:"winner_id,notnull,default:''" json:"winnerId,omitempty"`
	BidCount     int       `bun:"bid_count,notnull,default:0" json:"bidCount"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt    time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// Increment returns the effective bid step.
func (a *Auction) Increment() decimal.Decimal {
	if !a.BidIncrement.Valid || !a.BidIncrement.Decimal.IsPositive() {
		return MinimumIncrement
	}
	return a.BidIncrement.Decimal
}

// MinimumBid is the smallest amount the next bid may carry:
// max(currentBid + increment, startingBid), or startingBid before the first bid.
func (a *Auction) MinimumBid() decimal.Decimal {
	starting := decimal.Zero
	if a.StartingBid.Valid {
		starting = a.StartingBid.Decimal
	}
	if a.LeadingBidID == "" || !a.CurrentBid.Valid || a.CurrentBid.Decimal.IsZero() {
		if starting.IsPositive() {
			return starting
		}
		return a.Increment()
	}
	return decimal.Max(a.CurrentBid.Decimal.Add(a.Increment()), starting)
}

// ReserveMet reports whether the current bid satisfies the reserve, if any.
func (a *Auction) ReserveMet() bool {
	if a.LeadingBidID == "" || !a.CurrentBid.Valid {
		return false
	}
	if !a.ReservePrice.Valid {
		return true
	}
	return a.CurrentBid.Decimal.GreaterThanOrEqual(a.ReservePrice.Decimal)
}

// HitsBuyNow reports whether amount ends the auction immediately.
func (a *Auction) HitsBuyNow(amount decimal.Decimal) bool {
	return a.BuyNowPrice.Valid && a.BuyNowPrice.Decimal.IsPositive() &&
		amount.GreaterThanOrEqual(a.BuyNowPrice.Decimal)
}

// AuctionInput is the seller-supplied part of a new auction.
type AuctionInput struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Category     string              `json:"category"`
	StartTime    time.Time           `json:"startTime"`
	EndTime      time.Time           `json:"endTime"`
	StartingBid  decimal.Decimal     `json:"startingBid"`
	BidIncrement decimal.Decimal     `json:"bidIncrement"`
	ReservePrice decimal.NullDecimal `json:"reservePrice"`
	BuyNowPrice  decimal.NullDecimal `json:"buyNowPrice"`
}

// AuctionFilter drives the listing query. Empty fields do not filter.
type AuctionFilter struct {
	Statuses        []ListingStatus
	AuctionStatuses []AuctionStatus
	Category        string
	// ActiveOnly restricts to APPROVED listings that are SCHEDULED or LIVE and not past their end.
	ActiveOnly bool
}

type SortKey string

const (
	SortEndingSoon SortKey = "ending_soon"
	SortNewest     SortKey = "newest"
	SortPriceAsc   SortKey = "price_asc"
	SortPriceDesc  SortKey = "price_desc"
)

func (s SortKey) Valid() bool {
	switch s {
	case SortEndingSoon, SortNewest, SortPriceAsc, SortPriceDesc:
		return true
	}
	return false
}

type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Offset of the first row of the page, pages are 1-based.
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

type AuctionPage struct {
	Items      []Auction `json:"items"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	Total      int       `json:"total"`
	TotalPages int       `json:"totalPages"`
}
