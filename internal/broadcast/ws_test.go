package broadcast

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-auction/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "internal-secret"

func startServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(16, quiet())
	srv := httptest.NewServer(NewRouter(NewServer(hub, token, quiet())))
	t.Cleanup(srv.Close)
	return hub, srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dialViewer(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readControl(t *testing.T, conn *websocket.Conn) ControlMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ControlMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func subscribe(t *testing.T, conn *websocket.Conn, auctionID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgSubscribe, AuctionID: auctionID}))
	ack := readControl(t, conn)
	require.Equal(t, MsgSubscribed, ack.Type)
	require.Equal(t, auctionID, ack.AuctionID)
}

func TestViewerReceivesPublishedEvents(t *testing.T) {
	hub, srv := startServer(t)
	conn := dialViewer(t, srv)
	subscribe(t, conn, "auc_1")

	hub.Publish(bidEvent("auc_2", 1))
	hub.Publish(bidEvent("auc_1", 2))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.LiveEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventBidUpdate, ev.Type)
	assert.Equal(t, "auc_1", ev.AuctionID)
	assert.JSONEq(t, `{"seq":2}`, string(ev.Payload))
}

func TestViewerControlErrors(t *testing.T) {
	_, srv := startServer(t)
	conn := dialViewer(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, MsgError, readControl(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgSubscribe}))
	assert.Equal(t, "auctionId is required", readControl(t, conn).Message)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "shout", AuctionID: "auc_1"}))
	assert.Equal(t, MsgError, readControl(t, conn).Type)

	// The connection survives bad input.
	subscribe(t, conn, "auc_1")
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgUnsubscribe, AuctionID: "auc_1"}))
	assert.Equal(t, MsgUnsubscribed, readControl(t, conn).Type)
}

func TestViewerDisconnectLeavesHub(t *testing.T) {
	hub, srv := startServer(t)
	conn := dialViewer(t, srv)
	subscribe(t, conn, "auc_1")
	require.Equal(t, 1, hub.Viewers("auc_1"))

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, hub.Viewers("auc_1"))
}

func TestInternalRequiresToken(t *testing.T) {
	_, srv := startServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/internal/ws"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header := http.Header{}
	header.Set("X-Internal-Token", "wrong")
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "/internal/ws"), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestInternalBroadcastFansOut(t *testing.T) {
	_, srv := startServer(t)
	viewer := dialViewer(t, srv)
	subscribe(t, viewer, "auc_1")

	header := http.Header{}
	header.Set("X-Internal-Token", token)
	pub, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/internal/ws"), header)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.WriteMessage(websocket.TextMessage, []byte("garbage")))
	require.NoError(t, pub.WriteJSON(map[string]any{"type": "internal_broadcast", "auctionId": "auc_1", "event": map[string]any{"type": "mystery"}}))
	require.NoError(t, pub.WriteJSON(NewInternalMessage(models.LiveEvent{
		Type:      models.EventAuctionStatus,
		AuctionID: "auc_1",
		Payload:   json.RawMessage(`{"status":"ENDED"}`),
	})))

	viewer.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.LiveEvent
	require.NoError(t, viewer.ReadJSON(&ev))
	assert.Equal(t, models.EventAuctionStatus, ev.Type)
	assert.JSONEq(t, `{"status":"ENDED"}`, string(ev.Payload))
}

func TestLiveEventValidation(t *testing.T) {
	good := NewInternalMessage(bidEvent("auc_1", 1))
	ev, err := good.LiveEvent()
	require.NoError(t, err)
	assert.Equal(t, "auc_1", ev.AuctionID)

	noAuction := good
	noAuction.AuctionID = ""
	_, err = noAuction.LiveEvent()
	assert.Error(t, err)

	wrongType := good
	wrongType.Type = MsgSubscribe
	_, err = wrongType.LiveEvent()
	assert.Error(t, err)
}

func TestServerSentEvents(t *testing.T) {
	hub, srv := startServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/auctions/auc_1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "subscribed to auc_1")
	require.Equal(t, 1, hub.Viewers("auc_1"))

	hub.Publish(bidEvent("auc_1", 7))

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	assert.Equal(t, "bid_update", event)
	var ev models.LiveEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.JSONEq(t, `{"seq":7}`, string(ev.Payload))

	cancel()
	assert.Eventually(t, func() bool { return hub.Viewers("auc_1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHealthz(t *testing.T) {
	_, srv := startServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
