package auction_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"ms-auction/internal/auction"
	"ms-auction/internal/auction/db"
	"ms-auction/internal/auction/db/dbtest"
	"ms-auction/internal/config"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var testTopics = config.TopicConfig{BidAccepted: "auction.bids", StatusChanged: "auction.status"}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func money(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type MockLivePublisher struct {
	mock.Mock
}

func (m *MockLivePublisher) Publish(ev models.LiveEvent) {
	m.Called(ev)
}

// events returns the published events of type typ in publish order.
func (m *MockLivePublisher) events(typ models.EventType) []models.LiveEvent {
	var out []models.LiveEvent
	for _, c := range m.Calls {
		if c.Method != "Publish" {
			continue
		}
		if ev := c.Arguments.Get(0).(models.LiveEvent); ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type MockEventProducer struct {
	mock.Mock
}

func (m *MockEventProducer) PublishEvent(ctx context.Context, topic string, ev models.LiveEvent) error {
	args := m.Called(ctx, topic, ev)
	return args.Error(0)
}

// stalledProducer holds every write until release is closed or the write times out.
type stalledProducer struct {
	release chan struct{}
	mu      sync.Mutex
	written []models.LiveEvent
}

func (p *stalledProducer) PublishEvent(ctx context.Context, _ string, ev models.LiveEvent) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, ev)
	return nil
}

func (p *stalledProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.written)
}

type fakeTimers struct {
	mu        sync.Mutex
	scheduled []string
	cleared   []string
}

func (f *fakeTimers) Schedule(_ context.Context, a *models.Auction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, a.ID)
	return nil
}

func (f *fakeTimers) Clear(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, id)
	return nil
}

type fixture struct {
	svc    *auction.Service
	store  *db.DB
	clock  *testClock
	live   *MockLivePublisher
	timers *fakeTimers
}

func newFixture(t *testing.T, opts ...func(*auction.Deps)) *fixture {
	t.Helper()

	f := &fixture{
		store:  &db.DB{Bun: dbtest.New(t)},
		clock:  &testClock{now: base},
		live:   &MockLivePublisher{},
		timers: &fakeTimers{},
	}
	f.live.On("Publish", mock.Anything).Return()

	deps := auction.Deps{
		DB:     f.store,
		Live:   f.live,
		Topics: testTopics,
		Timers: f.timers,
		Logger: discardLogger(),
		Clock:  f.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.svc = auction.NewService(deps)
	t.Cleanup(f.svc.Close)
	return f
}

// seed stores a LIVE, approved auction running from an hour before base to an
// hour after it, with startingBid=100 and bidIncrement=10.
func (f *fixture) seed(t *testing.T, id string, mutate ...func(*models.Auction)) *models.Auction {
	t.Helper()
	a := &models.Auction{
		ID:            id,
		SellerID:      "seller-1",
		Title:         "Walnut desk",
		Category:      "furniture",
		Status:        models.ListingApproved,
		AuctionStatus: models.AuctionLive,
		StartTime:     base.Add(-time.Hour),
		EndTime:       base.Add(time.Hour),
		StartingBid:   money("100"),
		BidIncrement:  money("10"),
		CreatedAt:     base.Add(-2 * time.Hour),
		UpdatedAt:     base.Add(-2 * time.Hour),
	}
	for _, m := range mutate {
		m(a)
	}
	require.NoError(t, f.store.CreateAuction(context.Background(), a, nil))
	return a
}

func (f *fixture) notifications(t *testing.T, userID string) []models.Notification {
	t.Helper()
	var out []models.Notification
	err := f.store.Bun.NewSelect().Model(&out).
		Where("n.user_id = ?", userID).
		OrderExpr("n.created_at ASC").
		Scan(context.Background())
	require.NoError(t, err)
	return out
}

func discardLogger() *logger.Logger {
	return logger.NewWriterLogger("auction-test", io.Discard)
}

func bidder(id string) models.User {
	return models.User{ID: id, Name: "Bidder " + id, Email: id + "@example.com", Role: models.RoleStandard}
}
