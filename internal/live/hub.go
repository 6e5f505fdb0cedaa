package live

import (
	"log/slog"
	"sync"

	"github.com/your-org/pestvision/internal/observability"
	"github.com/your-org/pestvision/pkg/dto"
)

// DefaultBuffer is the per-subscriber queue capacity. A subscriber that falls
// this many events behind starts losing events, not slowing the publisher.
const DefaultBuffer = 64

// Hub broadcasts processed live events to any number of subscribers. Each
// subscriber owns an independent bounded queue; delivery is best-effort and
// Publish never blocks the ingestion path.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buffer int
}

// Subscriber is one live-feed consumer. Events arrive on Events() from the
// moment of subscription onward; Close detaches it from the hub.
type Subscriber struct {
	hub    *Hub
	events chan dto.LiveEvent

	closeOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[*Subscriber]struct{}),
		buffer: DefaultBuffer,
	}
}

// Subscribe registers a new consumer. The caller must Close it when done.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		hub:    h,
		events: make(chan dto.LiveEvent, h.buffer),
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	observability.LiveSubscribers.Inc()
	slog.Debug("live subscriber attached")
	return s
}

// Publish delivers the event to every current subscriber. A subscriber whose
// queue is full loses this event; the publisher is never delayed.
func (h *Hub) Publish(event dto.LiveEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		select {
		case s.events <- event:
		default:
			observability.LiveEventsDropped.Inc()
			slog.Warn("live event dropped: subscriber buffer full",
				"detection_id", event.Detection.ID,
			)
		}
	}
}

// SubscriberCount reports the number of attached subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Events yields published events in publish order. The channel is closed by
// Close.
func (s *Subscriber) Events() <-chan dto.LiveEvent {
	return s.events
}

// Close detaches the subscriber and closes its event channel. Safe to call
// more than once.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()

		close(s.events)
		observability.LiveSubscribers.Dec()
		slog.Debug("live subscriber detached")
	})
}
