package coordinator

import (
	"sync"
	"time"
)

// EventType names a collaborator notification
type EventType string

const (
	EventPlaybackStateChanged EventType = "playback_state_changed"
	EventMuteChanged          EventType = "mute_changed"
	EventStreamError          EventType = "stream_error"
	EventResolutionExhausted  EventType = "resolution_exhausted"
	EventSurfaceSwapped       EventType = "surface_swapped"
)

// Event is delivered to subscribers
type Event struct {
	Type    EventType `json:"type"`
	State   string    `json:"state,omitempty"`
	Muted   *bool     `json:"muted,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Surface string    `json:"surface,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Hub fans events out to subscribers. A slow subscriber loses its oldest
// undelivered events instead of blocking the loop.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int

	onCount func(n int)
}

// NewHub creates an empty hub. onCount is called with the subscriber count after every change.
func NewHub(onCount func(n int)) *Hub {
	return &Hub{subs: make(map[int]chan Event), onCount: onCount}
}

// Subscribe registers a subscriber and returns its channel and a cancel func
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	count := len(h.subs)
	h.mu.Unlock()
	h.count(count)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
			count := len(h.subs)
			h.mu.Unlock()
			h.count(count)
		})
	}
}

// Publish delivers ev to every subscriber without blocking
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Close cancels every subscription
func (h *Hub) Close() {
	h.mu.Lock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
	h.count(0)
}

func (h *Hub) count(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}
