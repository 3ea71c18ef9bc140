package utils

import "github.com/google/uuid"

func NewAuctionID() string      { return "auc_" + uuid.NewString() }
func NewBidID() string          { return "bid_" + uuid.NewString() }
func NewNotificationID() string { return "ntf_" + uuid.NewString() }
