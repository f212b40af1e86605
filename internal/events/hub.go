// internal/events/hub.go
package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Subscription is one live push stream for a player.
type Subscription struct {
	PlayerID uuid.UUID
	C        <-chan Event

	ch   chan Event
	hub  *Hub
	once sync.Once
}

// Close detaches the subscription from the hub and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub routes events to in-process subscribers by recipient player id.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	buffer int
	logger logrus.FieldLogger
}

// NewHub returns a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int, logger logrus.FieldLogger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe opens a stream of events addressed to playerID.
func (h *Hub) Subscribe(playerID uuid.UUID) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{PlayerID: playerID, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[playerID] == nil {
		h.subs[playerID] = make(map[*Subscription]struct{})
	}
	h.subs[playerID][sub] = struct{}{}
	return sub
}

// Publish delivers ev to every subscription of every recipient. A full buffer drops the event.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, pid := range ev.Recipients {
		for sub := range h.subs[pid] {
			select {
			case sub.ch <- ev:
			default:
				h.logger.WithFields(logrus.Fields{
					"player_id":  pid,
					"session_id": ev.SessionID,
					"type":       ev.Type,
				}).Warn("subscriber buffer full, dropping event")
			}
		}
	}
}

// Subscribers returns how many open streams a player has.
func (h *Hub) Subscribers(playerID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[playerID])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[sub.PlayerID]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			close(sub.ch)
		}
		if len(set) == 0 {
			delete(h.subs, sub.PlayerID)
		}
	}
}
