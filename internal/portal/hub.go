package portal

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/idpforge/internal/logging"
)

// ErrClientClosed is returned when sending to a closed connection.
var ErrClientClosed = errors.New("client connection closed")

const writeTimeout = 10 * time.Second

// Event is pushed to websocket clients.
type Event struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
	Op   string `json:"op,omitempty"`
	Seq  int64  `json:"seq"`
	At   string `json:"at"`
}

// Client is one websocket subscriber.
type Client struct {
	ConnID      string
	Socket      *websocket.Conn
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		ConnID:      uuid.New().String(),
		Socket:      conn,
		ConnectedAt: time.Now(),
	}
}

// Send writes an event to the client. Thread-safe.
func (c *Client) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	_ = c.Socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.Socket.WriteJSON(ev)
}

// Close closes the connection once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.Socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(time.Second))
	return c.Socket.Close()
}

// Hub tracks connected clients and fans events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	seq     int64
	log     *logging.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{clients: make(map[string]*Client), log: log}
}

// Add registers a connected client.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ConnID] = c
	h.log.Info().Str("connId", c.ConnID).Msg("client connected")
}

// Remove unregisters a client.
func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[connID]; !ok {
		return
	}
	delete(h.clients, connID)
	h.log.Info().Str("connId", connID).Msg("client disconnected")
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast stamps ev with the next sequence number and sends it to every
// client. Clients that fail to receive it are dropped.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	h.seq++
	ev.Seq = h.seq
	if ev.At == "" {
		ev.At = time.Now().UTC().Format(time.RFC3339)
	}
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.Send(ev); err != nil {
			h.log.Warn().Err(err).Str("connId", c.ConnID).Msg("broadcast send failed")
			h.Remove(c.ConnID)
			c.Close()
		}
	}
}

// CloseAll closes every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}
