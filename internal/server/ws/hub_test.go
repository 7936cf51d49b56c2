package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

func betEvent(seq uint64, id domain.MarketID) domain.Event {
	return domain.Event{
		Seq:      seq,
		Type:     domain.EventBetPlaced,
		MarketID: id,
		At:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Bet: &domain.BetPlaced{
			MarketID:   id,
			Bettor:     common.HexToAddress("0x000000000000000000000000000000000000a11c"),
			Amount:     domain.NewAmount(5),
			StakeTotal: domain.NewAmount(5),
			TotalPool:  domain.NewAmount(5),
		},
	}
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(func() Status { return Status{LastSeq: 9, Markets: 2} }, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

// broadcastAndRead sends evt through the hub and reads the next frame. The
// hello frame is queued before registration, so callers read it first.
func broadcastAndRead(t *testing.T, hub *Hub, evt domain.Event, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	hub.Broadcast(evt)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return kind, data
}

func TestHubJSONClient(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")

	hello := readJSON(t, conn)
	assert.Equal(t, "hello", hello["type"])
	assert.EqualValues(t, 9, hello["last_seq"])
	assert.EqualValues(t, 2, hello["markets"])

	kind, data := broadcastAndRead(t, hub, betEvent(10, 1), conn)
	assert.Equal(t, websocket.TextMessage, kind)
	var evt domain.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, uint64(10), evt.Seq)
	require.NotNil(t, evt.Bet)
	assert.Equal(t, "5", evt.Bet.Amount.String())
}

func TestHubProtoClient(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "?encoding=proto")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	var hello structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &hello))
	assert.Equal(t, "proto", hello.Fields["encoding"].GetStringValue())

	kind, data = broadcastAndRead(t, hub, betEvent(11, 3), conn)
	assert.Equal(t, websocket.BinaryMessage, kind)
	var evt structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &evt))
	assert.Equal(t, "bet_placed", evt.Fields["type"].GetStringValue())
	assert.EqualValues(t, 11, evt.Fields["seq"].GetNumberValue())
}

func TestHubRejectsUnknownEncoding(t *testing.T) {
	_, srv := startHub(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?encoding=xml"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNewClientQueuesHelloBeforeRegistration(t *testing.T) {
	hub := NewHub(func() Status { return Status{LastSeq: 4, Markets: 1} }, slog.New(slog.DiscardHandler))

	c := hub.newClient(nil, EncodingJSON)
	require.Len(t, c.send, 1)
	var hello map[string]any
	require.NoError(t, json.Unmarshal(<-c.send, &hello))
	assert.Equal(t, "hello", hello["type"])
	assert.Equal(t, float64(4), hello["last_seq"])
	assert.Zero(t, hub.clientCount())
}

func TestHandleWSAfterHubStopped(t *testing.T) {
	hub := NewHub(nil, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestSubscriptionMatching(t *testing.T) {
	c := &client{subs: map[string]bool{}}
	evt := betEvent(1, 4)

	assert.False(t, c.isSubscribed(channelsFor(evt)))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"market:4"}})
	assert.True(t, c.isSubscribed(channelsFor(evt)))
	assert.False(t, c.isSubscribed(channelsFor(betEvent(2, 5))))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"market:4"}})
	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"type:bet_*"}})
	assert.True(t, c.isSubscribed(channelsFor(betEvent(3, 5))))
}
