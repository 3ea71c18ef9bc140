package models

import (
	"time"

	"github.com/uptrace/bun"
)

type NotificationType string

const (
	NotificationOutbid    NotificationType = "outbid"
	NotificationWon       NotificationType = "won"
	NotificationCancelled NotificationType = "auction_cancelled"
)

type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID        string           `bun:"id,pk" json:"id"`
	UserID    string           `bun:"user_id,notnull" json:"userId"`
	AuctionID string           `bun:"auction_id" json:"auctionId,omitempty"`
	Type      NotificationType `bun:"type,notnull" json:"type"`
	Message   string           `bun:"message,notnull" json:"message"`
	IsRead    bool             `bun:"is_read,notnull,default:false" json:"isRead"`
	ReadAt    *time.Time       `bun:"read_at,nullzero" json:"readAt,omitempty"`
	CreatedAt time.Time        `bun:"created_at,notnull" json:"createdAt"`
}

type NotificationPage struct {
	Items  []Notification `json:"items"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
	Total  int            `json:"total"`
	Unread int            `json:"unread"`
}
