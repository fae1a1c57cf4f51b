// Package observer publishes the detector's stable state to interested
// parties: in-process subscribers and WebSocket clients.
package observer

import (
	"sync"
	"time"
)

// Status is a snapshot of the stable detector state.
type Status struct {
	Signal    string    `json:"signal"`
	Recording bool      `json:"recording"`
	Handle    string    `json:"handle,omitempty"`
	Artifact  string    `json:"artifact,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher accepts status changes.
type Publisher interface {
	Publish(s Status)
}

// Hub fans status changes out to subscribers. Publish never blocks: a slow
// subscriber loses its oldest pending status, never the newest one.
// It is safe for concurrent use.
type Hub struct {
	mu        sync.Mutex
	subs      map[chan Status]struct{}
	latest    Status
	hasLatest bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Status]struct{})}
}

// Publish records s as the latest status and delivers it to every subscriber.
func (h *Hub) Publish(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = s
	h.hasLatest = true

	for ch := range h.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Full: drop the oldest pending status to make room
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel function unregisters it and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Status, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Status, buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Latest returns the most recent status, if any has been published.
func (h *Hub) Latest() (Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.hasLatest
}

// Subscribers returns the number of registered subscribers
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

var _ Publisher = (*Hub)(nil)
