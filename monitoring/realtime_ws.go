package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventType names a live event topic.
type EventType string

const (
	SessionRecorded EventType = "session_recorded"
	ModelTrained    EventType = "model_trained"
	CohortsBuilt    EventType = "cohorts_built"
	Heartbeat       EventType = "heartbeat"
)

// Event is the envelope sent to websocket clients.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// ClientMessage is what clients send: {"type":"subscribe","topic":"model_trained"}.
type ClientMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

type outbound struct {
	topic   EventType
	payload []byte
}

type Client struct {
	conn *websocket.Conn
	send chan []byte
	id   string

	mu            sync.RWMutex
	subscriptions map[EventType]bool
}

// wants reports whether the client receives topic. Clients without
// subscriptions receive everything.
func (c *Client) wants(topic EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[topic]
}

// Hub fans events out to connected websocket clients. Run owns the client
// set; Publish never blocks and drops events when the queue is full.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	// HeartbeatInterval is how often Run sends a Heartbeat event carrying
	// the client count. Zero disables heartbeats.
	HeartbeatInterval time.Duration

	mu    sync.RWMutex
	count int
}

const DefaultHeartbeatInterval = 30 * time.Second

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:            logger,
		HeartbeatInterval: DefaultHeartbeatInterval,
	}
}

// Run serves the hub until ctx is cancelled. It must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.logger.Debug("websocket hub stopped")
	var heartbeat <-chan time.Time
	if h.HeartbeatInterval > 0 {
		ticker := time.NewTicker(h.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			h.logger.Debug("client connected", zap.String("client_id", client.id), zap.Int("total", len(h.clients)))

		case client := <-h.unregister:
			h.drop(client)
			h.logger.Debug("client disconnected", zap.String("client_id", client.id), zap.Int("total", len(h.clients)))

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case <-heartbeat:
			payload, err := encodeEvent(Heartbeat, map[string]int{"clients": len(h.clients)})
			if err != nil {
				h.logger.Warn("heartbeat encode failed", zap.Error(err))
				continue
			}
			h.fanOut(outbound{topic: Heartbeat, payload: payload})

		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		}
	}
}

func (h *Hub) fanOut(msg outbound) {
	for client := range h.clients {
		if !client.wants(msg.topic) {
			continue
		}
		select {
		case client.send <- msg.payload:
		default:
			h.drop(client)
		}
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.setCount(len(h.clients))
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		conn:          conn,
		send:          make(chan []byte, 64),
		id:            uuid.NewString(),
		subscriptions: make(map[EventType]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump(h.logger)
	go client.readPump(h)
}

// Publish encodes data as an event of the given type and queues it.
func (h *Hub) Publish(topic EventType, data any) error {
	msg, err := encodeEvent(topic, data)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- outbound{topic: topic, payload: msg}:
	default:
		h.logger.Warn("websocket broadcast queue is full, dropping event", zap.String("type", string(topic)))
	}
	return nil
}

func encodeEvent(topic EventType, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", topic, err)
	}
	msg, err := json.Marshal(Event{
		ID:        uuid.NewString(),
		Type:      topic,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return msg, nil
}

func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write failed", zap.String("client_id", c.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("bad client message", zap.String("client_id", c.id), zap.Error(err))
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg ClientMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case "subscribe":
		c.subscriptions[EventType(msg.Topic)] = true
	case "unsubscribe":
		delete(c.subscriptions, EventType(msg.Topic))
	}
}
