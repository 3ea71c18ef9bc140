package broadcast

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/gorilla/websocket"
)

// Client is the API side of the ingress socket. It holds one connection to
// the broadcaster and reconnects after a fixed delay for as long as it runs.
// Events published while it is disconnected are dropped.
type Client struct {
	URL   string
	Token string
	// Delay between reconnect attempts.
	Delay time.Duration

	queue     chan models.LiveEvent
	connected atomic.Bool
	dialer    *websocket.Dialer
	log       *logger.Logger
}

func NewClient(url, token string, delay time.Duration, buffer int, log *logger.Logger) *Client {
	if delay <= 0 {
		delay = 5 * time.Second
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		URL:    url,
		Token:  token,
		Delay:  delay,
		queue:  make(chan models.LiveEvent, buffer),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log,
	}
}

// Connected reports whether the ingress socket is currently open.
func (c *Client) Connected() bool { return c.connected.Load() }

// Publish queues ev for the broadcaster without blocking.
func (c *Client) Publish(ev models.LiveEvent) {
	if !c.connected.Load() {
		c.log.LogBroadcast("DROP", ev.AuctionID, "broadcaster not connected")
		return
	}
	select {
	case c.queue <- ev:
	default:
		c.log.LogBroadcast("DROP", ev.AuctionID, "publish queue full")
	}
}

// Run keeps the connection up until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("BROADCAST", fmt.Sprintf("Broadcaster connection lost: %v; retrying in %s", err, c.Delay))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.Delay):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	header := http.Header{}
	header.Set("X-Internal-Token", c.Token)
	conn, _, err := c.dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.URL, err)
	}
	defer conn.Close()

	c.drain()
	c.connected.Store(true)
	defer c.connected.Store(false)
	c.log.Info("BROADCAST", fmt.Sprintf("Connected to broadcaster at %s", c.URL))

	// The broadcaster never writes application data on this socket; reading
	// only surfaces the close.
	closed := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				closed <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return nil
		case err := <-closed:
			return err
		case ev := <-c.queue:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(NewInternalMessage(ev)); err != nil {
				return fmt.Errorf("send %s for %s: %w", ev.Type, ev.AuctionID, err)
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// drain discards anything queued before the connection came up.
func (c *Client) drain() {
	for {
		select {
		case <-c.queue:
		default:
			return
		}
	}
}
