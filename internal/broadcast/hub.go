// Package broadcast fans live auction events out to viewers. Delivery is
// best-effort and at-most-once: nothing is queued for a viewer that is not
// connected, and a viewer that cannot keep up is dropped.
package broadcast

import (
	"fmt"
	"sync"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/google/uuid"
)

// Subscriber is one viewer connection. It may watch several auctions.
type Subscriber struct {
	ID     string
	send   chan models.LiveEvent
	done   chan struct{}
	closed sync.Once
}

// Events yields the subscriber's events in publish order per auction.
func (s *Subscriber) Events() <-chan models.LiveEvent { return s.send }

// Done is closed once the subscriber has been removed from the hub.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.closed.Do(func() { close(s.done) })
}

type topic struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// Hub is the auctionId -> subscribers registry. Lock order is Hub.mu before
// topic.mu; publishing to one auction holds only that auction's lock while
// sending, so different auctions fan out in parallel and one auction's
// events reach each subscriber in the order they were published.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]*topic
	members map[*Subscriber]map[string]struct{}
	buffer  int
	log     *logger.Logger
}

func NewHub(buffer int, log *logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{
		topics:  make(map[string]*topic),
		members: make(map[*Subscriber]map[string]struct{}),
		buffer:  buffer,
		log:     log,
	}
}

// Register creates a subscriber with no auctions.
func (h *Hub) Register() *Subscriber {
	s := &Subscriber{
		ID:   uuid.NewString(),
		send: make(chan models.LiveEvent, h.buffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.members[s] = make(map[string]struct{})
	h.mu.Unlock()
	return s
}

// Subscribe adds s to auctionID's viewers. It reports false if s was already removed.
func (h *Hub) Subscribe(s *Subscriber, auctionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	auctions, ok := h.members[s]
	if !ok {
		return false
	}
	t, ok := h.topics[auctionID]
	if !ok {
		t = &topic{subs: make(map[*Subscriber]struct{})}
		h.topics[auctionID] = t
	}
	t.mu.Lock()
	t.subs[s] = struct{}{}
	t.mu.Unlock()
	auctions[auctionID] = struct{}{}
	return true
}

func (h *Hub) Unsubscribe(s *Subscriber, auctionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if auctions, ok := h.members[s]; ok {
		delete(auctions, auctionID)
	}
	h.detach(s, auctionID)
}

// detach requires h.mu held for writing.
func (h *Hub) detach(s *Subscriber, auctionID string) {
	t, ok := h.topics[auctionID]
	if !ok {
		return
	}
	t.mu.Lock()
	delete(t.subs, s)
	empty := len(t.subs) == 0
	t.mu.Unlock()
	if empty {
		delete(h.topics, auctionID)
	}
}

// Remove drops s from every auction and closes its Done channel.
func (h *Hub) Remove(s *Subscriber) {
	h.mu.Lock()
	for auctionID := range h.members[s] {
		h.detach(s, auctionID)
	}
	delete(h.members, s)
	h.mu.Unlock()
	s.close()
}

// Publish hands ev to every current viewer of its auction without blocking.
// A viewer whose buffer is full is treated as dead and removed.
func (h *Hub) Publish(ev models.LiveEvent) {
	h.mu.RLock()
	t, ok := h.topics[ev.AuctionID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	t.mu.Lock()
	h.mu.RUnlock()

	var dropped []*Subscriber
	for s := range t.subs {
		select {
		case s.send <- ev:
		default:
			dropped = append(dropped, s)
		}
	}
	delivered := len(t.subs) - len(dropped)
	t.mu.Unlock()

	for _, s := range dropped {
		h.log.LogBroadcast("DROP", ev.AuctionID, fmt.Sprintf("subscriber %s is not keeping up, disconnecting", s.ID))
		h.Remove(s)
	}
	h.log.LogBroadcast(string(ev.Type), ev.AuctionID, fmt.Sprintf("delivered to %d subscribers", delivered))
}

// Viewers is the number of subscribers currently watching auctionID.
func (h *Hub) Viewers(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.topics[auctionID]
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Connections is the number of registered subscribers.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}
