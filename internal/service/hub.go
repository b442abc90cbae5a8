package service

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// StageEvent is one progress notification on the daemon's event feed.
type StageEvent struct {
	CaptureID string    `json:"capture_id"`
	Stage     string    `json:"stage"`
	At        time.Time `json:"at"`
}

// Hub fans capture progress events out to websocket subscribers. Slow
// subscribers drop events rather than stall the capture pipeline.
type Hub struct {
	mu   sync.Mutex
	next int64
	subs map[int64]chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int64]chan []byte)}
}

// Subscribe registers a new subscriber. The returned cancel function is
// idempotent and closes the channel.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan []byte, 64)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish sends an event to every subscriber without blocking.
func (h *Hub) Publish(ev StageEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Debug("event marshal failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- data:
		default:
			// Subscriber is behind; this event is dropped for it.
		}
	}
}
