package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *logger.Logger { return logger.NewWriterLogger("broadcast-test", io.Discard) }

func bidEvent(auctionID string, n int) models.LiveEvent {
	return models.LiveEvent{
		Type:      models.EventBidUpdate,
		AuctionID: auctionID,
		Payload:   json.RawMessage(fmt.Sprintf(`{"seq":%d}`, n)),
	}
}

func next(t *testing.T, s *Subscriber) models.LiveEvent {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return models.LiveEvent{}
	}
}

func TestPublishReachesOnlyThatAuctionsViewers(t *testing.T) {
	h := NewHub(8, quiet())
	a, b, c := h.Register(), h.Register(), h.Register()
	require.True(t, h.Subscribe(a, "auc_1"))
	require.True(t, h.Subscribe(b, "auc_1"))
	require.True(t, h.Subscribe(c, "auc_2"))

	h.Publish(bidEvent("auc_1", 1))

	assert.Equal(t, "auc_1", next(t, a).AuctionID)
	assert.Equal(t, "auc_1", next(t, b).AuctionID)
	assert.Empty(t, c.Events())
	assert.Equal(t, 2, h.Viewers("auc_1"))
	assert.Equal(t, 3, h.Connections())
}

func TestPublishWithoutViewersIsNoop(t *testing.T) {
	h := NewHub(8, quiet())
	h.Publish(bidEvent("nobody", 1))
	assert.Zero(t, h.Viewers("nobody"))
}

func TestSubscriberWatchesSeveralAuctions(t *testing.T) {
	h := NewHub(8, quiet())
	s := h.Register()
	h.Subscribe(s, "auc_1")
	h.Subscribe(s, "auc_2")

	h.Publish(bidEvent("auc_1", 1))
	h.Publish(bidEvent("auc_2", 2))
	assert.Equal(t, "auc_1", next(t, s).AuctionID)
	assert.Equal(t, "auc_2", next(t, s).AuctionID)

	h.Unsubscribe(s, "auc_1")
	h.Publish(bidEvent("auc_1", 3))
	assert.Empty(t, s.Events())
	assert.Zero(t, h.Viewers("auc_1"))
	assert.Equal(t, 1, h.Viewers("auc_2"))
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	h := NewHub(2, quiet())
	slow, fast := h.Register(), h.Register()
	h.Subscribe(slow, "auc_1")
	h.Subscribe(fast, "auc_1")

	for i := 1; i <= 3; i++ {
		h.Publish(bidEvent("auc_1", i))
		next(t, fast)
	}

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("slow subscriber was not removed")
	}
	assert.Equal(t, 1, h.Viewers("auc_1"))
	assert.Equal(t, 1, h.Connections())
	assert.False(t, h.Subscribe(slow, "auc_2"))
}

func TestRemoveIsIdempotent(t *testing.T) {
	h := NewHub(2, quiet())
	s := h.Register()
	h.Subscribe(s, "auc_1")

	h.Remove(s)
	h.Remove(s)

	assert.Zero(t, h.Connections())
	assert.Zero(t, h.Viewers("auc_1"))
	_, open := <-s.Done()
	assert.False(t, open)
}

func TestEventsArriveInPublishOrder(t *testing.T) {
	const total = 200
	h := NewHub(total, quiet())
	s := h.Register()
	h.Subscribe(s, "auc_1")

	// Other auctions publish concurrently and must not disturb auc_1's order.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < total; j++ {
				h.Publish(bidEvent(fmt.Sprintf("other_%d", n), j))
			}
		}(i)
	}
	for i := 0; i < total; i++ {
		h.Publish(bidEvent("auc_1", i))
	}
	wg.Wait()

	for i := 0; i < total; i++ {
		var payload struct{ Seq int }
		require.NoError(t, json.Unmarshal(next(t, s).Payload, &payload))
		require.Equal(t, i, payload.Seq)
	}
}

type sliceSource []models.LiveEvent

func (src sliceSource) Run(ctx context.Context, handle func(context.Context, models.LiveEvent)) error {
	for _, ev := range src {
		handle(ctx, ev)
	}
	return nil
}

func TestIngestPublishesFromSource(t *testing.T) {
	h := NewHub(8, quiet())
	s := h.Register()
	h.Subscribe(s, "auc_1")

	require.NoError(t, h.Ingest(context.Background(), sliceSource{bidEvent("auc_1", 1), bidEvent("auc_2", 2)}))
	assert.Equal(t, "auc_1", next(t, s).AuctionID)
	assert.Empty(t, s.Events())
}
