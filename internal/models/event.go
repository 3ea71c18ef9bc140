package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventBidUpdate     EventType = "bid_update"
	EventAuctionStatus EventType = "auction_status"
)

// LiveEvent is what viewers receive: a tagged payload scoped to one auction.
type LiveEvent struct {
	Type      EventType       `json:"type"`
	AuctionID string          `json:"auctionId"`
	Payload   json.RawMessage `json:"payload"`
}

type BidUpdate struct {
	AuctionID      string          `json:"auctionId"`
	BidID          string          `json:"bidId"`
	BidderID       string          `json:"bidderId"`
	Amount         decimal.Decimal `json:"amount"`
	CurrentBid     decimal.Decimal `json:"currentBid"`
	MinimumNextBid decimal.Decimal `json:"minimumNextBid"`
	BidCount       int             `json:"bidCount"`
	EndTime        time.Time       `json:"endTime"`
	PlacedAt       time.Time       `json:"placedAt"`
}

type StatusUpdate struct {
	AuctionID     string              `json:"auctionId"`
	From          AuctionStatus       `json:"from"`
	AuctionStatus AuctionStatus       `json:"auctionStatus"`
	Status        ListingStatus       `json:"status"`
	CurrentBid    decimal.NullDecimal `json:"currentBid"`
	WinnerID      string              `json:"winnerId,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	At            time.Time           `json:"at"`
}

func NewBidUpdateEvent(u BidUpdate) (LiveEvent, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return LiveEvent{}, err
	}
	return LiveEvent{Type: EventBidUpdate, AuctionID: u.AuctionID, Payload: raw}, nil
}

func NewStatusEvent(u StatusUpdate) (LiveEvent, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return LiveEvent{}, err
	}
	return LiveEvent{Type: EventAuctionStatus, AuctionID: u.AuctionID, Payload: raw}, nil
}
