package app

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"
)

// wsConn is the slice of *websocket.Conn the gateway writes to; tests swap
// in their own implementation.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one live connection. Key stays empty until the first-frame
// registration binds an identity. Writes go through mu because delivery,
// echo and the ping ticker reach the socket from different goroutines.
type Client struct {
	mu   sync.Mutex
	conn wsConn

	Key  string
	Kind string
	ID   string
}

// NewClient wraps a live socket into an unregistered Client.
func NewClient(conn wsConn) *Client {
	return &Client{conn: conn}
}

// Registered reports whether the first-frame registration happened.
func (c *Client) Registered() bool {
	return c.Key != ""
}

// WriteJSON marshals v and writes it as one text frame.
func (c *Client) WriteJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Ping writes a ping control frame.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, []byte("ping"))
}

// Close closes the underlying socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Registry maps registry keys to live connections. At most one entry per
// key; a reconnect replaces and closes the previous connection.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry create a Registry
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Add registers c under key, closing any prior connection for that key.
func (r *Registry) Add(key string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.clients[key]; ok && old != c {
		_ = old.Close()
	}
	r.clients[key] = c
}

// Remove deletes the entry only while it still belongs to c, so the
// teardown of a replaced connection cannot evict its successor.
func (r *Registry) Remove(key string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.clients[key]; ok && cur == c {
		delete(r.clients, key)
	}
}

// Get returns the live connection for key.
func (r *Registry) Get(key string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[key]
	return c, ok
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
