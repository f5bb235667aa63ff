package server

import (
	"sync"

	"github.com/google/uuid"
)

// Hub fans frames out to stream subscribers. Slow subscribers miss frames
// instead of blocking the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]chan []byte
	buffer int
	closed bool
}

// NewHub creates a hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{subs: make(map[string]chan []byte), buffer: buffer}
}

// Subscribe registers a subscriber. The returned func unsubscribes and
// closes the channel.
func (h *Hub) Subscribe() (string, <-chan []byte, func()) {
	id := uuid.NewString()
	ch := make(chan []byte, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return id, ch, func() {}
	}
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return id, ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish offers data to every subscriber and returns how many took it.
func (h *Hub) Publish(data []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for _, ch := range h.subs {
		select {
		case ch <- data:
			delivered++
		default:
		}
	}
	return delivered
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
