// Package ws streams committed ledger events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/alanyoungcy/arenaledger/internal/metrics"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// Encodings a client may request with ?encoding=.
const (
	EncodingJSON  = "json"
	EncodingProto = "proto"
)

// defaultSubs receive every event.
var defaultSubs = []string{"market:*"}

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	proto bool
	subs  map[string]bool
	mu    sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to change subscriptions.
// Channels are "market:<id>", "type:<event_type>" or a prefix ending in "*".
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// frame is one event encoded both ways, routed by its channels.
type frame struct {
	channels []string
	json     []byte
	proto    []byte
}

// Status is reported to clients when they connect.
type Status struct {
	LastSeq uint64
	Markets uint64
}

// Hub fans committed ledger events out to connected WebSocket clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan frame
	register   chan *client
	unregister chan *client
	done       chan struct{}
	status     func() Status
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// NewHub creates a hub. status feeds the hello message and may be nil.
func NewHub(status func() Status, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan frame, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		status:     status,
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
	}
}

// Run starts the hub's main event loop. It handles client registration,
// unregistration and message broadcasting until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case f := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(f.channels) {
					continue
				}
				data := f.json
				if c.proto {
					data = f.proto
				}
				select {
				case c.send <- data:
				default:
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues evt for every subscribed client. It never blocks; when
// the hub is backed up the event is dropped from the live feed.
func (h *Hub) Broadcast(evt domain.Event) {
	f, err := encodeEvent(evt)
	if err != nil {
		h.logger.Error("ws: encode event",
			slog.Uint64("seq", evt.Seq),
			slog.String("error", err.Error()),
		)
		return
	}
	select {
	case h.broadcast <- f:
	default:
		metrics.RecordFanoutError("ws")
		h.logger.Warn("ws: broadcast queue full", slog.Uint64("seq", evt.Seq))
	}
}

// channelsFor lists the channels evt is published on.
func channelsFor(evt domain.Event) []string {
	return []string{
		fmt.Sprintf("market:%d", evt.MarketID),
		"type:" + string(evt.Type),
	}
}

func encodeEvent(evt domain.Event) (frame, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return frame{}, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return frame{}, err
	}
	pb, err := encodeProto(fields)
	if err != nil {
		return frame{}, err
	}
	return frame{channels: channelsFor(evt), json: data, proto: pb}, nil
}

// encodeProto renders a JSON object as a serialized google.protobuf.Struct.
func encodeProto(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("ws: build struct: %w", err)
	}
	return proto.Marshal(s)
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws?encoding=json|proto
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	encoding := strings.ToLower(r.URL.Query().Get("encoding"))
	if encoding == "" {
		encoding = EncodingJSON
	}
	if encoding != EncodingJSON && encoding != EncodingProto {
		http.Error(w, `{"error":"encoding must be json or proto"}`, http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := h.newClient(conn, encoding)
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// newClient builds a client with the default subscriptions and its hello
// frame already queued. Once registered, only the hub may close c.send.
func (h *Hub) newClient(conn *websocket.Conn, encoding string) *client {
	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		proto: encoding == EncodingProto,
		subs:  make(map[string]bool),
	}
	for _, ch := range defaultSubs {
		c.subs[ch] = true
	}
	c.sendHello(encoding)
	return c
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads subscription changes from the client until it goes away.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests from the client.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

// sendHello tells a new client where the ledger stands so it can backfill
// over HTTP before applying live events.
func (c *client) sendHello(encoding string) {
	fields := map[string]any{
		"type":           "hello",
		"encoding":       encoding,
		"uptime_seconds": float64(max(int64(time.Since(c.hub.startedAt).Seconds()), 0)),
	}
	if c.hub.status != nil {
		st := c.hub.status()
		fields["last_seq"] = float64(st.LastSeq)
		fields["markets"] = float64(st.Markets)
	}

	var (
		msg []byte
		err error
	)
	if c.proto {
		msg, err = encodeProto(fields)
	} else {
		msg, err = json.Marshal(fields)
	}
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// isSubscribed reports whether any of channels matches a subscription.
// A subscription ending in "*" matches by prefix.
func (c *client) isSubscribed(channels []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, channel := range channels {
		if c.subs[channel] {
			return true
		}
		for sub := range c.subs {
			if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
				return true
			}
		}
	}
	return false
}

// writePump pumps messages from the hub to the WebSocket connection: text
// frames for JSON clients, binary frames for protobuf clients, and periodic
// pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	kind := websocket.TextMessage
	if c.proto {
		kind = websocket.BinaryMessage
	}

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(kind, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
