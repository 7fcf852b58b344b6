package services

import (
	"sync"
	"time"
)

// streamBuffer is the per-client backlog before events are dropped.
const streamBuffer = 32

// StreamEvent is a notification pushed to connected clients.
type StreamEvent struct {
	ID        uint      `json:"id"`
	Kind      string    `json:"kind"`
	TaskID    uint      `json:"task_id,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type streamClient struct {
	userID uint
	ch     chan StreamEvent
}

// SSEHub fans stored notifications out to the recipient's open streams.
type SSEHub struct {
	mu      sync.RWMutex
	clients map[string]*streamClient
}

func NewSSEHub() *SSEHub {
	return &SSEHub{clients: make(map[string]*streamClient)}
}

// Subscribe registers a stream for userID under clientID.
func (h *SSEHub) Subscribe(clientID string, userID uint) <-chan StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[clientID]; ok {
		close(old.ch)
	}
	c := &streamClient{userID: userID, ch: make(chan StreamEvent, streamBuffer)}
	h.clients[clientID] = c
	return c.ch
}

func (h *SSEHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[clientID]; ok {
		close(c.ch)
		delete(h.clients, clientID)
	}
}

// Publish sends event to every stream of userID and returns how many
// received it. Slow clients miss events instead of blocking delivery.
func (h *SSEHub) Publish(userID uint, event StreamEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, c := range h.clients {
		if c.userID != userID {
			continue
		}
		select {
		case c.ch <- event:
			sent++
		default:
		}
	}
	return sent
}

func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
