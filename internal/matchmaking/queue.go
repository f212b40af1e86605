// internal/matchmaking/queue.go

// Package matchmaking pairs waiting players into match sessions in arrival order.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizduel/internal/events"
	"github.com/jason-s-yu/quizduel/internal/models"
	"github.com/jason-s-yu/quizduel/internal/timer"
	"github.com/sirupsen/logrus"
)

// DefaultTTL bounds how long a player waits before being evicted.
const DefaultTTL = 60 * time.Second

// Entry is one waiting player.
type Entry struct {
	Player     models.Player `json:"player"`
	EnqueuedAt time.Time     `json:"enqueuedAt"`
}

// Ticket is the answer to a join request: either the session the player is
// in, or their 1-based place in line.
type Ticket struct {
	SessionID *uuid.UUID `json:"sessionId,omitempty"`
	Queued    bool       `json:"queued"`
	Position  int        `json:"position,omitempty"`
}

// SessionFactory creates sessions for paired players. The match engine implements it.
type SessionFactory interface {
	ActiveSession(playerID uuid.UUID) (uuid.UUID, bool)
	CreateSession(a, b models.Player) (uuid.UUID, error)
}

// Queue is a FIFO of waiting players. Pairing happens under the queue lock so a
// player is never paired twice or dropped by concurrent joins.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	factory SessionFactory
	timers  *timer.Scheduler
	ttl     time.Duration
	events  events.Publisher
	logger  logrus.FieldLogger
	closed  bool
}

// NewQueue builds a queue that evicts entries after ttl and notifies owners through pub.
func NewQueue(factory SessionFactory, timers *timer.Scheduler, ttl time.Duration, pub events.Publisher, logger logrus.FieldLogger) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if pub == nil {
		pub = events.Discard
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Queue{
		factory: factory,
		timers:  timers,
		ttl:     ttl,
		events:  pub,
		logger:  logger,
	}
}

// Enqueue joins the player to the queue, or returns their live session.
// Joining twice never creates a second entry.
func (q *Queue) Enqueue(ctx context.Context, player models.Player) (Ticket, error) {
	if err := ctx.Err(); err != nil {
		return Ticket{}, err
	}
	if player.ID == uuid.Nil {
		return Ticket{}, errors.New("player id is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return Ticket{}, errors.New("matchmaking queue is closed")
	}
	if id, ok := q.factory.ActiveSession(player.ID); ok {
		return Ticket{SessionID: &id}, nil
	}
	if pos := q.indexOf(player.ID); pos >= 0 {
		return Ticket{Queued: true, Position: pos + 1}, nil
	}

	q.entries = append(q.entries, Entry{Player: player, EnqueuedAt: q.timers.Clock().Now()})
	q.startExpiry(player.ID)
	q.logger.WithFields(logrus.Fields{
		"player_id": player.ID,
		"waiting":   len(q.entries),
	}).Debug("player queued")

	ticket := Ticket{Queued: true, Position: len(q.entries)}
	for len(q.entries) >= 2 {
		a, b := q.entries[0], q.entries[1]
		q.entries = q.entries[2:]
		q.cancelExpiry(a.Player.ID)
		q.cancelExpiry(b.Player.ID)

		id, err := q.factory.CreateSession(a.Player, b.Player)
		if err != nil {
			q.entries = append([]Entry{a, b}, q.entries...)
			q.startExpiry(a.Player.ID)
			q.startExpiry(b.Player.ID)
			return Ticket{}, fmt.Errorf("failed to create session: %w", err)
		}
		q.logger.WithFields(logrus.Fields{
			"session_id": id,
			"player_a":   a.Player.ID,
			"player_b":   b.Player.ID,
			"waited_ms":  q.timers.Clock().Since(a.EnqueuedAt).Milliseconds(),
		}).Info("players paired")

		if a.Player.ID == player.ID || b.Player.ID == player.ID {
			sid := id
			ticket = Ticket{SessionID: &sid}
		}
	}
	if ticket.Queued {
		ticket.Position = q.indexOf(player.ID) + 1
	}
	return ticket, nil
}

// Remove takes a waiting player out of line.
func (q *Queue) Remove(playerID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	pos := q.indexOf(playerID)
	if pos < 0 {
		return false
	}
	q.entries = append(q.entries[:pos], q.entries[pos+1:]...)
	q.cancelExpiry(playerID)
	return true
}

// Position returns the player's 1-based place in line.
func (q *Queue) Position(playerID uuid.UUID) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pos := q.indexOf(playerID)
	return pos + 1, pos >= 0
}

// Len returns how many players are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close evicts everyone without notification.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		q.cancelExpiry(e.Player.ID)
	}
	q.entries = nil
	q.closed = true
}

func (q *Queue) indexOf(playerID uuid.UUID) int {
	for i, e := range q.entries {
		if e.Player.ID == playerID {
			return i
		}
	}
	return -1
}

func expiryKey(playerID uuid.UUID) timer.Key {
	return timer.Key{Player: playerID, Purpose: timer.PurposeQueueExpiry}
}

func (q *Queue) startExpiry(playerID uuid.UUID) {
	q.timers.Start(expiryKey(playerID), q.ttl, q.onExpire)
}

func (q *Queue) cancelExpiry(playerID uuid.UUID) {
	q.timers.Cancel(expiryKey(playerID))
}

func (q *Queue) onExpire(f timer.Fired) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.timers.Claim(f) {
		return
	}
	pos := q.indexOf(f.Key.Player)
	if pos < 0 {
		return
	}
	entry := q.entries[pos]
	q.entries = append(q.entries[:pos], q.entries[pos+1:]...)

	q.logger.WithField("player_id", entry.Player.ID).Info("queue entry expired")
	q.events.Publish(events.Event{
		Type:       events.TypeQueueExpired,
		Recipients: []uuid.UUID{entry.Player.ID},
		Payload: map[string]interface{}{
			"waitedMs": f.Duration.Milliseconds(),
		},
		At: q.timers.Clock().Now(),
	})
}
