// Package notify pushes deal alerts to connected websocket clients.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/tripthesia-aggregator/internal/deals"
	"github.com/example/tripthesia-aggregator/internal/obs"
)

const (
	WriteTimeout = 10 * time.Second
	PongTimeout  = 60 * time.Second
	PingInterval = PongTimeout * 9 / 10
	sendBuffer   = 16
)

// ErrSlowConsumer is returned when a client's buffer is full and the alert was dropped.
var ErrSlowConsumer = errors.New("notify: client buffer full")

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Hub fans alerts out to every connection of the alert's user. It implements deals.Notifier.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: obs.OrDefault(logger),
	}
}

var _ deals.Notifier = (*Hub)(nil)

// ServeWS upgrades the request and subscribes the connection to userID's alerts.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	h.register(c)
	h.logger.Info("alert subscriber connected", slog.String("user", userID))

	go h.writeLoop(c)
	go h.readLoop(c)
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// Subscribers reports the number of open connections for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Notify queues the alert for every connection of its user. Users without a
// connection are skipped silently.
func (h *Hub) Notify(ctx context.Context, alert deals.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	var dropped error
	for c := range h.clients[alert.UserID] {
		select {
		case c.send <- payload:
		case <-c.done:
		default:
			dropped = ErrSlowConsumer
		}
	}
	return dropped
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for user, set := range h.clients {
		for c := range set {
			c.close()
		}
		delete(h.clients, user)
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	defer h.unregister(c)

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Warn("alert write failed", slog.String("user", c.userID), slog.Any("error", err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop only consumes control frames; it ends when the client goes away.
func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
