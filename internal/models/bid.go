package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type BidStatus string

const (
	BidAccepted BidStatus = "accepted"
	BidOutbid   BidStatus = "outbid"
)

// Bid rows are append-only; status is the only column ever updated, when a
// newer bid supersedes this one.
type Bid struct {
	bun.BaseModel `bun:"table:bids,alias:b"`

	ID        string          `bun:"id,pk" json:"id"`
	AuctionID string          `bun:"auction_id,notnull" json:"auctionId"`
	UserID    string          `bun:"user_id,notnull" json:"userId"`
	Amount    decimal.Decimal `bun:"amount,type:numeric(18,2),notnull" json:"amount"`
	Status    BidStatus       `bun:"status,notnull" json:"status"`
	CreatedAt time.Time       `bun:"created_at,notnull" json:"createdAt"`
}

// BidHistoryEntry is one row of the public bid history.
type BidHistoryEntry struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Bidder    BidderSummary   `json:"bidder"`
	CreatedAt time.Time       `json:"createdAt"`
	IsWinning bool            `json:"isWinning"`
}

type BidderSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BidWithBidder is the store projection used to build history entries.
type BidWithBidder struct {
	ID         string          `bun:"id"`
	UserID     string          `bun:"user_id"`
	Amount     decimal.Decimal `bun:"amount"`
	Status     BidStatus       `bun:"status"`
	CreatedAt  time.Time       `bun:"created_at"`
	BidderName string          `bun:"bidder_name"`
}
