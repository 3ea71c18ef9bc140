package auction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-auction/internal/auction/db"
	"ms-auction/internal/auctionerr"
	"ms-auction/internal/config"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
)

// DBLayer is the persistent store. Every mutation it offers is conditional;
// the service holds no locks of its own.
type DBLayer interface {
	CreateAuction(ctx context.Context, a *models.Auction, seller *models.User) error
	GetAuction(ctx context.Context, id string) (*models.Auction, error)
	ListAuctions(ctx context.Context, f models.AuctionFilter, sort models.SortKey, p models.Page, now time.Time) ([]models.Auction, int, error)
	DueAuctions(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
	SetListingStatus(ctx context.Context, id string, from []models.ListingStatus, to models.ListingStatus, now time.Time) (bool, error)
	CommitBid(ctx context.Context, c db.BidCommit) error
	GetBid(ctx context.Context, id string) (*models.Bid, error)
	ListBids(ctx context.Context, auctionID string) ([]models.BidWithBidder, error)
	Transition(ctx context.Context, t db.Transition) (bool, error)
}

// LivePublisher hands events to the broadcaster. Publish must not block.
type LivePublisher interface {
	Publish(ev models.LiveEvent)
}

// EventProducer writes domain events to the event stream. Calls may block;
// the service only invokes it from its outbox goroutine.
type EventProducer interface {
	PublishEvent(ctx context.Context, topic string, ev models.LiveEvent) error
}

// Timers arms per-auction wake-ups at the start and end boundaries.
type Timers interface {
	Schedule(ctx context.Context, a *models.Auction) error
	Clear(ctx context.Context, auctionID string) error
}

// IdempotencyGuard reserves client supplied bid keys.
type IdempotencyGuard interface {
	Reserve(ctx context.Context, userID, key string) (bool, error)
	Release(ctx context.Context, userID, key string) error
}

// ListingCache stores serialized listing pages until the next invalidation.
// Get reports the generation it looked in; Set stores under that generation,
// so a page computed before an Invalidate never outlives it.
type ListingCache interface {
	Get(ctx context.Context, key string) (value []byte, gen int64, ok bool, err error)
	Set(ctx context.Context, gen int64, key string, value []byte) error
	Invalidate(ctx context.Context) error
}

type Deps struct {
	DB          DBLayer
	Live        LivePublisher
	Events      EventProducer
	Topics      config.TopicConfig
	Timers      Timers
	Idempotency IdempotencyGuard
	Cache       ListingCache
	Logger      *logger.Logger
	// EventBuffer bounds the outbox queue; EventTimeout bounds one write.
	EventBuffer  int
	EventTimeout time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type Service struct {
	db          DBLayer
	live        LivePublisher
	events      *eventOutbox
	topics      config.TopicConfig
	timers      Timers
	idempotency IdempotencyGuard
	cache       ListingCache
	log         *logger.Logger
	clock       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		db:          d.DB,
		live:        d.Live,
		topics:      d.Topics,
		timers:      d.Timers,
		idempotency: d.Idempotency,
		cache:       d.Cache,
		log:         d.Logger,
		clock:       d.Clock,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if d.Events != nil {
		s.events = newEventOutbox(d.Events, d.EventBuffer, d.EventTimeout, d.Logger)
	}
	return s
}

// Close flushes queued domain events and stops the outbox.
func (s *Service) Close() {
	if s.events != nil {
		s.events.close()
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// load reads an auction, translating a missing row into NotFound.
func (s *Service) load(ctx context.Context, id string) (*models.Auction, error) {
	a, err := s.db.GetAuction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auctionerr.Newf(auctionerr.NotFound, "auction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load auction %s: %w", id, err)
	}
	return a, nil
}

// publish delivers ev to viewers and the event stream after a commit.
// Failures are logged only.
func (s *Service) publish(ctx context.Context, topic string, ev models.LiveEvent) {
	if s.live != nil {
		s.live.Publish(ev)
	}
	if s.events != nil && topic != "" {
		s.events.enqueue(topic, ev)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("CACHE", fmt.Sprintf("Listing cache invalidation failed: %v", err))
		}
	}
}

func (s *Service) publishStatus(ctx context.Context, a *models.Auction, from models.AuctionStatus, reason string) {
	ev, err := models.NewStatusEvent(models.StatusUpdate{
		AuctionID:     a.ID,
		From:          from,
		AuctionStatus: a.AuctionStatus,
		Status:        a.Status,
		CurrentBid:    a.CurrentBid,
		WinnerID:      a.WinnerID,
		Reason:        reason,
		At:            a.UpdatedAt,
	})
	if err != nil {
		s.log.Error("BROADCAST", fmt.Sprintf("Failed to encode status event for %s: %v", a.ID, err))
		return
	}
	s.publish(ctx, s.topics.StatusChanged, ev)
}
