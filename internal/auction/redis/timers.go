package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-auction/internal/models"
)

// Schedule arms one expiring key per upcoming boundary of a. A boundary that
// has already passed gets no key; the sweeper or the next read handles it.
func (r *Redis) Schedule(ctx context.Context, a *models.Auction) error {
	now := r.now()
	pipe := r.Client.TxPipeline()
	if ttl := a.StartTime.Sub(now); a.AuctionStatus == models.AuctionScheduled && ttl > 0 {
		pipe.Set(ctx, startTimerPrefix+a.ID, a.StartTime.UTC().Format(time.RFC3339), ttl)
	}
	if ttl := a.EndTime.Sub(now); !a.AuctionStatus.Terminal() && ttl > 0 {
		pipe.Set(ctx, endTimerPrefix+a.ID, a.EndTime.UTC().Format(time.RFC3339), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedule timers for %s: %w", a.ID, err)
	}
	return nil
}

// Clear removes both timers for the auction.
func (r *Redis) Clear(ctx context.Context, auctionID string) error {
	return r.Client.Del(ctx, startTimerPrefix+auctionID, endTimerPrefix+auctionID).Err()
}

// auctionFromTimerKey returns the auction a timer key belongs to.
func auctionFromTimerKey(key string) (string, bool) {
	for _, prefix := range []string{startTimerPrefix, endTimerPrefix} {
		if id, ok := strings.CutPrefix(key, prefix); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// SubscribeExpiries calls handle with the auction ID of every timer key that
// expires. It blocks until ctx is cancelled.
func (r *Redis) SubscribeExpiries(ctx context.Context, handle func(ctx context.Context, auctionID string) error) error {
	channel := fmt.Sprintf("__keyevent@%d__:expired", r.Client.Options().DB)
	pubsub := r.Client.PSubscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	r.Logger.Info("REDIS", fmt.Sprintf("Subscribed to %s", channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			id, ok := auctionFromTimerKey(msg.Payload)
			if !ok {
				continue
			}
			r.Logger.Debug("REDIS", fmt.Sprintf("Timer expired: %s", msg.Payload))
			if err := handle(ctx, id); err != nil {
				r.Logger.Error("LIFECYCLE", fmt.Sprintf("Re-evaluating %s after timer expiry failed: %v", id, err))
			}
		}
	}
}
