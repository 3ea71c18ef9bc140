package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-auction/internal/auction/db"
	"ms-auction/internal/auctionerr"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	"ms-auction/internal/utils"
)

// Evaluate is the single time-driven lifecycle predicate. It returns the next
// status a is due for at now, if any. SCHEDULED moves to LIVE once startTime
// is reached; LIVE moves to ENDED once endTime is reached. An auction that is
// already past its end while still SCHEDULED takes both steps.
func Evaluate(a *models.Auction, now time.Time) (models.AuctionStatus, bool) {
	switch a.AuctionStatus {
	case models.AuctionScheduled:
		if !now.Before(a.StartTime) {
			return models.AuctionLive, true
		}
	case models.AuctionLive:
		if !now.Before(a.EndTime) {
			return models.AuctionEnded, true
		}
	}
	return "", false
}

// Project applies Evaluate in memory until no step is due. Read paths that do
// not persist use it so they show the same status a sync would produce.
func Project(a models.Auction, now time.Time) models.Auction {
	for i := 0; i < 2; i++ {
		to, due := Evaluate(&a, now)
		if !due {
			break
		}
		a.AuctionStatus = to
	}
	return a
}

// biddable explains why a cannot take a bid at now, or returns "".
func biddable(a *models.Auction, now time.Time) string {
	switch {
	case a.Status != models.ListingApproved:
		return fmt.Sprintf("listing is %s", a.Status)
	case a.AuctionStatus != models.AuctionLive:
		return fmt.Sprintf("auction is %s", a.AuctionStatus)
	case now.Before(a.StartTime):
		return "auction has not started"
	case !now.Before(a.EndTime):
		return "auction has ended"
	}
	return ""
}

// sync persists every transition Evaluate says is due and returns the fresh row.
func (s *Service) sync(ctx context.Context, a *models.Auction) (*models.Auction, error) {
	for i := 0; i < 3; i++ {
		to, due := Evaluate(a, s.now())
		if !due {
			return a, nil
		}
		reason := "start_time reached"
		if to == models.AuctionEnded {
			reason = "end_time reached"
		}
		if _, err := s.transition(ctx, a, to, reason); err != nil {
			return nil, err
		}
		// Applied or lost to another writer; either way the row moved on.
		fresh, err := s.load(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		a = fresh
	}
	return a, nil
}

// transition conditionally moves a from its observed status to `to`. Ending
// settles an approved listing: SOLD with a winner when there is a leading bid
// that meets the reserve.
func (s *Service) transition(ctx context.Context, a *models.Auction, to models.AuctionStatus, reason string) (bool, error) {
	now := s.now()
	t := db.Transition{
		AuctionID:            a.ID,
		From:                 a.AuctionStatus,
		To:                   to,
		ExpectedLeadingBidID: a.LeadingBidID,
		Now:                  now,
	}

	var leader *models.Bid
	if a.LeadingBidID != "" && to.Terminal() {
		b, err := s.db.GetBid(ctx, a.LeadingBidID)
		if err != nil {
			return false, fmt.Errorf("load leading bid %s: %w", a.LeadingBidID, err)
		}
		leader = b
	}

	switch to {
	case models.AuctionEnded:
		// Only an approved listing sells; moderation outcomes stay as they are.
		if leader != nil && a.ReserveMet() && a.Status == models.ListingApproved {
			t.ListingStatus = models.ListingSold
			t.WinnerID = leader.UserID
			t.Notifications = append(t.Notifications, notification(leader.UserID, a.ID, models.NotificationWon,
				fmt.Sprintf("You won %q with a bid of %s", a.Title, leader.Amount.StringFixed(2)), now))
		}
	case models.AuctionCancelled:
		if leader != nil {
			t.Notifications = append(t.Notifications, notification(leader.UserID, a.ID, models.NotificationCancelled,
				fmt.Sprintf("The auction %q was cancelled", a.Title), now))
		}
	}

	applied, err := s.db.Transition(ctx, t)
	if err != nil {
		return false, fmt.Errorf("transition %s %s->%s: %w", a.ID, a.AuctionStatus, to, err)
	}
	if !applied {
		return false, nil
	}

	from := a.AuctionStatus
	next := *a
	next.AuctionStatus = to
	next.UpdatedAt = now
	if t.ListingStatus != "" {
		next.Status = t.ListingStatus
	}
	if t.WinnerID != "" {
		next.WinnerID = t.WinnerID
	}
	s.log.LogLifecycle(string(from), string(to), a.ID)

	if to.Terminal() && s.timers != nil {
		if err := s.timers.Clear(ctx, a.ID); err != nil {
			s.log.Warn("REDIS", fmt.Sprintf("Failed to clear timers for %s: %v", a.ID, err))
		}
	}
	s.publishStatus(ctx, &next, from, reason)
	return true, nil
}

// Reevaluate loads the auction and applies any due transition. Timer expiry
// and the sweeper both end up here.
func (s *Service) Reevaluate(ctx context.Context, auctionID string) error {
	a, err := s.load(ctx, auctionID)
	if err != nil {
		return err
	}
	_, err = s.sync(ctx, a)
	return err
}

// SweepDue applies due transitions to at most batch auctions and returns how
// many it looked at.
func (s *Service) SweepDue(ctx context.Context, batch int) (int, error) {
	due, err := s.db.DueAuctions(ctx, s.now(), batch)
	if err != nil {
		return 0, fmt.Errorf("select due auctions: %w", err)
	}
	var errs []error
	for i := range due {
		if _, err := s.sync(ctx, &due[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return len(due), errors.Join(errs...)
}

// CancelAuction administratively cancels a SCHEDULED or LIVE auction.
// Cancelling a cancelled auction is a no-op; an ended one is a Conflict.
func (s *Service) CancelAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	for attempt := 0; attempt < 2; attempt++ {
		a, err := s.load(ctx, auctionID)
		if err != nil {
			return nil, err
		}
		// An auction past its end settles as ENDED before any cancel applies.
		if a, err = s.sync(ctx, a); err != nil {
			return nil, err
		}
		switch a.AuctionStatus {
		case models.AuctionCancelled:
			return a, nil
		case models.AuctionEnded:
			return nil, auctionerr.Newf(auctionerr.Conflict, "auction %s has already ended", auctionID)
		}
		applied, err := s.transition(ctx, a, models.AuctionCancelled, "cancelled by administrator")
		if err != nil {
			return nil, err
		}
		if applied {
			return s.load(ctx, auctionID)
		}
	}
	return nil, auctionerr.Newf(auctionerr.Conflict, "auction %s changed concurrently, retry", auctionID)
}

func notification(userID, auctionID string, typ models.NotificationType, message string, now time.Time) models.Notification {
	return models.Notification{
		ID:        utils.NewNotificationID(),
		UserID:    userID,
		AuctionID: auctionID,
		Type:      typ,
		Message:   message,
		CreatedAt: now,
	}
}

// Sweeper periodically applies due transitions so auctions nobody reads still
// start and end on time.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	batch    int
	log      *logger.Logger
}

func NewSweeper(svc *Service, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{svc: svc, interval: interval, batch: 200, log: log}
}

// Run blocks until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("LIFECYCLE", fmt.Sprintf("Sweeper started, interval %s", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.log.Info("LIFECYCLE", "Sweeper stopped")
			return
		case <-ticker.C:
			n, err := w.svc.SweepDue(ctx, w.batch)
			if err != nil {
				w.log.Error("LIFECYCLE", fmt.Sprintf("Sweep failed: %v", err))
			} else if n > 0 {
				w.log.Info("LIFECYCLE", fmt.Sprintf("Sweep processed %d due auctions", n))
			}
		}
	}
}
