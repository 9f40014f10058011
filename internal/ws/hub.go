package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulsefeed-backend/internal/metrics"
)

// Hub fans feed events out to WebSocket and SSE subscribers. The forum
// service publishes into it; it never reaches back into the forum.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	events     chan []byte

	sseMu   sync.Mutex
	sseSubs map[chan []byte]bool

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	mu      sync.RWMutex

	allowedOrigins []string
}

type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	topics     map[string]bool
	lastActive time.Time
}

// Message is the wire envelope for one feed event.
type Message struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type subscriptionRequest struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

func NewHub(allowedOrigins []string, logger *zap.SugaredLogger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		events:         make(chan []byte, 64),
		sseSubs:        make(map[chan []byte]bool),
		logger:         logger,
		metrics:        m,
		allowedOrigins: allowedOrigins,
	}
}

// Publish serializes one event and queues it for every subscriber. It
// never blocks the caller; when the queue is full the event is dropped
// with a warning, because the forum write path must not stall on slow
// feed consumers.
func (h *Hub) Publish(eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Errorw("Failed to marshal feed event", "type", eventType, "error", err)
		return
	}
	msg, err := json.Marshal(Message{
		Type:      "event",
		Topic:     eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		h.logger.Errorw("Failed to marshal feed envelope", "type", eventType, "error", err)
		return
	}

	select {
	case h.events <- msg:
		if h.metrics != nil {
			h.metrics.RecordFeedEvent(context.Background(), eventType)
		}
	default:
		h.logger.Warnw("Feed event queue full; dropping event", "type", eventType)
	}
}

// Run owns the client set. It exits when ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	go h.startClientCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			h.logger.Infow("Feed hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.IncrementConnections(ctx)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.DecrementConnections(ctx)
			}

		case msg := <-h.events:
			h.broadcast(msg)
		}
	}
}

func (h *Hub) broadcast(msg []byte) {
	var envelope Message
	topic := ""
	if err := json.Unmarshal(msg, &envelope); err == nil {
		topic = envelope.Topic
	}

	var stale []*Client
	h.mu.RLock()
	for client := range h.clients {
		if !client.isSubscribed(topic) {
			continue
		}
		select {
		case client.send <- msg:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	if len(stale) > 0 {
		h.mu.Lock()
		for _, client := range stale {
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		}
		h.mu.Unlock()
	}

	h.sseMu.Lock()
	for sub := range h.sseSubs {
		select {
		case sub <- msg:
		default:
		}
	}
	h.sseMu.Unlock()
}

func (h *Hub) startClientCleanup(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.cleanupInactiveClients()
		}
	}
}

func (h *Hub) cleanupInactiveClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-60 * time.Second)

	for client := range h.clients {
		if client.lastActive.Before(cutoff) {
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed || allowed == "*" {
					return true
				}
			}
			return false
		},
	}
}

// HandleWebSocket upgrades the connection and subscribes it to every
// topic until the client narrows its subscription.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, 256),
		topics:     map[string]bool{"*": true},
		lastActive: time.Now(),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Errorw("WebSocket error", "error", err)
			}
			break
		}

		c.lastActive = time.Now()
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

func (c *Client) handleMessage(message []byte) {
	var sub subscriptionRequest
	if err := json.Unmarshal(message, &sub); err != nil {
		c.hub.logger.Warnw("Invalid subscription message", "error", err)
		return
	}

	switch sub.Type {
	case "subscribe":
		// An explicit subscription replaces the default catch-all.
		delete(c.topics, "*")
		for _, topic := range sub.Topics {
			c.topics[topic] = true
		}

	case "unsubscribe":
		for _, topic := range sub.Topics {
			delete(c.topics, topic)
		}
	}
}

func (c *Client) isSubscribed(topic string) bool {
	return c.topics["*"] || c.topics[topic]
}
