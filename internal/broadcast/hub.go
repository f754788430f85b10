// Package broadcast fans live notifications out to websocket subscribers,
// best-effort and at-most-once.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultSubscriberBuffer = 16

type HubOptions struct {
	// SubscriberBuffer is the per-subscriber send buffer; a subscriber whose
	// buffer is full misses frames instead of blocking the hub.
	SubscriberBuffer int
	Logger           zerolog.Logger
}

// Hub tracks the set of connected subscribers. No replay: a subscriber that
// joins late only sees frames broadcast after it registered.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan []byte
	buffer      int
	log         zerolog.Logger
}

// Subscription is one registered subscriber handle. Frames arrive on C; Close
// unregisters.
type Subscription struct {
	ID  string
	C   <-chan []byte
	hub *Hub
}

func (s *Subscription) Close() {
	s.hub.unregister(s.ID)
}

func NewHub(opts HubOptions) *Hub {
	buffer := opts.SubscriberBuffer
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subscribers: map[string]chan []byte{},
		buffer:      buffer,
		log:         opts.Logger.With().Str("component", "broadcast").Logger(),
	}
}

// Register adds a subscriber and returns its handle.
func (h *Hub) Register() *Subscription {
	id := uuid.NewString()
	ch := make(chan []byte, h.buffer)
	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()
	h.log.Info().Str("subscriber_id", id).Msg("subscriber connected")
	return &Subscription{ID: id, C: ch, hub: h}
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	_, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()
	if ok {
		h.log.Info().Str("subscriber_id", id).Msg("subscriber disconnected")
	}
}

// Broadcast pushes payload to every currently-registered subscriber. A slow
// subscriber drops the frame for itself only; delivery to the rest proceeds.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- payload:
		default:
			h.log.Debug().Str("subscriber_id", id).Msg("subscriber buffer full, frame dropped")
		}
	}
}

// SubscriberCount reports the number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
