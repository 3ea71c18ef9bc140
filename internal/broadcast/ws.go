package broadcast

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds client frames; viewers only send subscribe requests.
	maxMessageSize = 4096
	// maxIngressSize bounds frames from the trusted publisher.
	maxIngressSize = 1 << 20
)

// Message types on the viewer and ingress sockets.
const (
	MsgSubscribe         = "subscribe"
	MsgUnsubscribe       = "unsubscribe"
	MsgSubscribed        = "subscribed"
	MsgUnsubscribed      = "unsubscribed"
	MsgError             = "error"
	MsgInternalBroadcast = "internal_broadcast"
)

// ClientMessage is what a viewer sends.
type ClientMessage struct {
	Type      string `json:"type"`
	AuctionID string `json:"auctionId"`
}

// ControlMessage acknowledges or rejects a viewer request.
type ControlMessage struct {
	Type      string `json:"type"`
	AuctionID string `json:"auctionId,omitempty"`
	Message   string `json:"message,omitempty"`
}

// InternalMessage is injected by the trusted publisher.
type InternalMessage struct {
	Type      string `json:"type"`
	AuctionID string `json:"auctionId"`
	Event     struct {
		Type    models.EventType `json:"type"`
		Payload json.RawMessage  `json:"payload"`
	} `json:"event"`
}

// Server exposes the hub over WebSocket.
type Server struct {
	Hub           *Hub
	InternalToken string
	Logger        *logger.Logger
	upgrader      websocket.Upgrader
}

func NewServer(hub *Hub, internalToken string, log *logger.Logger) *Server {
	return &Server{
		Hub:           hub,
		InternalToken: internalToken,
		Logger:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Viewers are browsers on other origins; the socket carries only public data.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeViewer upgrades a viewer connection. The viewer then subscribes to
// auctions by ID and receives their events until it disconnects.
func (s *Server) ServeViewer(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("BROADCAST", fmt.Sprintf("Viewer upgrade failed: %v", err))
		return
	}
	sub := s.Hub.Register()
	s.Logger.LogBroadcast("CONNECT", "-", fmt.Sprintf("viewer %s from %s", sub.ID, r.RemoteAddr))

	control := make(chan ControlMessage, 8)
	go s.readViewer(conn, sub, control)
	s.writeViewer(conn, sub, control)
}

func (s *Server) readViewer(conn *websocket.Conn, sub *Subscriber, control chan<- ControlMessage) {
	defer s.Hub.Remove(sub)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.Logger.Debug("BROADCAST", fmt.Sprintf("Viewer %s read error: %v", sub.ID, err))
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			if !reply(control, sub, ControlMessage{Type: MsgError, Message: "malformed message"}) {
				return
			}
			continue
		}

		var ack ControlMessage
		switch {
		case msg.AuctionID == "":
			ack = ControlMessage{Type: MsgError, Message: "auctionId is required"}
		case msg.Type == MsgSubscribe:
			if !s.Hub.Subscribe(sub, msg.AuctionID) {
				return
			}
			ack = ControlMessage{Type: MsgSubscribed, AuctionID: msg.AuctionID}
		case msg.Type == MsgUnsubscribe:
			s.Hub.Unsubscribe(sub, msg.AuctionID)
			ack = ControlMessage{Type: MsgUnsubscribed, AuctionID: msg.AuctionID}
		default:
			ack = ControlMessage{Type: MsgError, AuctionID: msg.AuctionID, Message: fmt.Sprintf("unknown message type %q", msg.Type)}
		}
		if !reply(control, sub, ack) {
			return
		}
	}
}

func reply(control chan<- ControlMessage, sub *Subscriber, msg ControlMessage) bool {
	select {
	case control <- msg:
		return true
	case <-sub.Done():
		return false
	}
}

// writeViewer is the connection's only writer.
func (s *Server) writeViewer(conn *websocket.Conn, sub *Subscriber, control <-chan ControlMessage) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Hub.Remove(sub)
		conn.Close()
		s.Logger.LogBroadcast("DISCONNECT", "-", fmt.Sprintf("viewer %s", sub.ID))
	}()

	for {
		var err error
		select {
		case <-sub.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case ev := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteJSON(ev)
		case msg := <-control:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteJSON(msg)
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			s.Logger.LogBroadcast("SEND_FAILED", "-", fmt.Sprintf("viewer %s: %v", sub.ID, err))
			return
		}
	}
}

// ServeInternal accepts the trusted publisher's connection. Requests without
// the shared X-Internal-Token are refused before the upgrade.
func (s *Server) ServeInternal(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Internal-Token")
	if s.InternalToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.InternalToken)) != 1 {
		s.Logger.LogSecurity("INTERNAL_WS_REJECTED", fmt.Sprintf("bad internal token from %s", r.RemoteAddr))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("BROADCAST", fmt.Sprintf("Internal upgrade failed: %v", err))
		return
	}
	defer conn.Close()
	s.Logger.LogBroadcast("PUBLISHER_CONNECT", "-", r.RemoteAddr)

	conn.SetReadLimit(maxIngressSize)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.Logger.LogBroadcast("PUBLISHER_DISCONNECT", "-", err.Error())
			return
		}
		var msg InternalMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.Logger.Warn("BROADCAST", "Malformed internal message ignored")
			continue
		}
		ev, err := msg.LiveEvent()
		if err != nil {
			s.Logger.Warn("BROADCAST", fmt.Sprintf("Rejected internal message: %v", err))
			continue
		}
		s.Hub.Publish(ev)
	}
}

// LiveEvent validates the message and returns the event it carries.
func (m InternalMessage) LiveEvent() (models.LiveEvent, error) {
	switch {
	case m.Type != MsgInternalBroadcast:
		return models.LiveEvent{}, fmt.Errorf("unexpected message type %q", m.Type)
	case m.AuctionID == "":
		return models.LiveEvent{}, fmt.Errorf("auctionId is required")
	case m.Event.Type != models.EventBidUpdate && m.Event.Type != models.EventAuctionStatus:
		return models.LiveEvent{}, fmt.Errorf("unknown event type %q", m.Event.Type)
	}
	return models.LiveEvent{Type: m.Event.Type, AuctionID: m.AuctionID, Payload: m.Event.Payload}, nil
}

// NewInternalMessage wraps ev for the ingress socket.
func NewInternalMessage(ev models.LiveEvent) InternalMessage {
	msg := InternalMessage{Type: MsgInternalBroadcast, AuctionID: ev.AuctionID}
	msg.Event.Type = ev.Type
	msg.Event.Payload = ev.Payload
	return msg
}
