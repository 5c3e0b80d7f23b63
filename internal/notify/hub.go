// Package notify fans ledger notifications out to external indexers
// over WebSocket. A late subscriber reads the backlog via the ledger's
// ReadRange and then attaches to the live feed.
package notify

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mintledger/internal/domain"
	"mintledger/internal/observability"
)

// HubConfig configures hub behavior.
type HubConfig struct {
	// SendBuffer is the per-client outbound queue length. A client
	// that falls this far behind is disconnected.
	SendBuffer int
	// WriteTimeout is the timeout for writing one frame.
	WriteTimeout time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// PongTimeout is how long to wait for a pong before dropping.
	PongTimeout time.Duration
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts notifications to connected WebSocket clients and to
// in-process subscribers.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	local   []func(domain.Notification)
	closed  bool
}

// NewHub creates a hub. Wire it to a ledger with
// ledger.Subscribe(hub.Broadcast).
func NewHub(config *HubConfig, logger *log.Logger) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// SubscribeLocal registers an in-process subscriber. Subscribers run on
// the broadcasting goroutine and must not block.
func (h *Hub) SubscribeLocal(fn func(domain.Notification)) {
	h.mu.Lock()
	h.local = append(h.local, fn)
	h.mu.Unlock()
}

// Broadcast sends one notification to every subscriber. Slow WebSocket
// clients are dropped rather than blocking the feed.
func (h *Hub) Broadcast(n domain.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		h.logger.Printf("notify: marshal: %v", err)
		return
	}

	h.mu.RLock()
	local := h.local
	var stale []*client
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, fn := range local {
		fn(n)
	}
	for _, c := range stale {
		h.logger.Printf("notify: dropping slow client %s", c.conn.RemoteAddr())
		h.remove(c)
	}
}

// ServeHTTP upgrades the request and attaches the connection to the
// feed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("notify: upgrade: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.config.SendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	observability.DefaultMetrics.NotificationSubscribers.Set(float64(count))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// writeLoop drains the client's queue and keeps the connection alive
// with pings.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound frames; the feed is one-way. It exists to
// process control frames and notice closed connections.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, exists := h.clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	close(c.send)
	c.conn.Close()
	observability.DefaultMetrics.NotificationSubscribers.Set(float64(count))
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops accepting new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}
