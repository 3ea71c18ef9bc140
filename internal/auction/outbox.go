package auction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"
)

type outboundEvent struct {
	topic string
	ev    models.LiveEvent
}

// eventOutbox writes domain events to the event stream off the request path.
// A single drainer keeps each auction's events in commit order. When the
// queue is full, or after close, events are dropped and logged.
type eventOutbox struct {
	producer EventProducer
	queue    chan outboundEvent
	quit     chan struct{}
	done     chan struct{}
	stop     sync.Once
	timeout  time.Duration
	log      *logger.Logger
}

func newEventOutbox(p EventProducer, buffer int, timeout time.Duration, log *logger.Logger) *eventOutbox {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	o := &eventOutbox{
		producer: p,
		queue:    make(chan outboundEvent, buffer),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		timeout:  timeout,
		log:      log,
	}
	go o.run()
	return o
}

func (o *eventOutbox) enqueue(topic string, ev models.LiveEvent) {
	select {
	case <-o.quit:
		o.log.LogKafka("DROP", topic, fmt.Sprintf("%s for %s: outbox closed", ev.Type, ev.AuctionID))
		return
	default:
	}
	select {
	case o.queue <- outboundEvent{topic: topic, ev: ev}:
	default:
		o.log.LogKafka("DROP", topic, fmt.Sprintf("%s for %s: outbox full", ev.Type, ev.AuctionID))
	}
}

func (o *eventOutbox) run() {
	defer close(o.done)
	for {
		select {
		case out := <-o.queue:
			o.send(out)
		case <-o.quit:
			for {
				select {
				case out := <-o.queue:
					o.send(out)
				default:
					return
				}
			}
		}
	}
}

func (o *eventOutbox) send(out outboundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	if err := o.producer.PublishEvent(ctx, out.topic, out.ev); err != nil {
		o.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", out.ev.Type, out.ev.AuctionID, err))
	}
}

// close flushes what is already queued and stops the drainer.
func (o *eventOutbox) close() {
	o.stop.Do(func() { close(o.quit) })
	<-o.done
}
