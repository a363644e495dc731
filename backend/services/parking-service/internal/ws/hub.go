package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"parkingops/backend/services/parking-service/internal/events"
)

// Hub tracks feed subscribers and fans session events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub builds subscriber hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Add registers a subscriber.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
}

// Remove drops a subscriber.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish implements events.Publisher. Delivery is best effort: slow subscribers lose
// messages rather than stall the caller.
func (h *Hub) Publish(_ context.Context, event events.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var lotID int64
	if event.Session != nil {
		lotID = event.Session.LotID
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.Wants(lotID) {
			c.Send(data)
		}
	}
	return nil
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}
