package store

import (
	"context"
	"log/slog"
	"sync"
)

// Hub fans session events out to in-process subscribers. Backends use it as
// their local bus; a cross-instance transport can feed it through Publish.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(SessionEvent)
}

func NewHub() *Hub {
	return &Hub{subs: map[uint64]func(SessionEvent){}}
}

func (h *Hub) Subscribe(fn func(SessionEvent)) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subs[id] = fn
	return &hubSubscription{hub: h, id: id}
}

// Publish delivers evt to every current subscriber. Callbacks run on the
// publishing goroutine, outside the hub lock.
func (h *Hub) Publish(evt SessionEvent) {
	h.mu.RLock()
	fns := make([]func(SessionEvent), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(evt)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type hubSubscription struct {
	hub  *Hub
	id   uint64
	once sync.Once
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
}

// ForSession wraps fn so it only sees events for sessionID.
func ForSession(sessionID string, fn func(SessionEvent)) func(SessionEvent) {
	return func(evt SessionEvent) {
		if evt.SessionID != sessionID {
			return
		}
		fn(evt)
	}
}

// Relay carries session events between processes. Events published through
// a relay come back to every instance, including the sender, and are fed
// into each instance's Hub.
type Relay interface {
	Publish(ctx context.Context, evt SessionEvent) error
}

// Announce sends evt through relay when one is configured and falls back to
// local delivery otherwise or when the relay fails.
func (h *Hub) Announce(ctx context.Context, relay Relay, evt SessionEvent) {
	if relay == nil {
		h.Publish(evt)
		return
	}
	if err := relay.Publish(ctx, evt); err != nil {
		slog.Warn("session event relay failed", "type", evt.Type, "err", err)
		h.Publish(evt)
	}
}
