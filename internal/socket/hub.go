package socket

import (
	"context"
	"log/slog"
	"sync"
)

// Hub is the single-writer registry of locally connected socket clients,
// grounded on the register/unregister channel pattern so client state is
// only ever mutated from the Run goroutine.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client // keyed by user ID; single-session policy

	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}

	logger *slog.Logger
}

// NewHub builds an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

// Run drives the hub's event loop until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if existing, ok := h.clients[c.userID]; ok {
				// single-session policy: the newest connection wins.
				close(existing.send)
			}
			h.clients[c.userID] = c
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[c.userID]; ok && current == c {
				delete(h.clients, c.userID)
				close(c.send)
			}
			h.mu.Unlock()
		}
	}
}

// Deliver sends msg to userID's locally connected client, if any. Reports
// whether a local client received it; false means the caller should fall
// back to cross-instance delivery (or treat the attempt as failed).
func (h *Hub) Deliver(userID string, msg Message) (socketID string, delivered bool) {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return "", false
	}

	select {
	case c.send <- msg:
		return c.id, true
	default:
		h.logger.Warn("socket send buffer full, disconnecting", slog.String("user_id", userID))
		h.unregister <- c
		return "", false
	}
}

// ConnectedCount returns the number of locally connected clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsConnected reports whether userID has a live local connection.
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}
