// internal/timer/scheduler.go
package timer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Purpose names what a timer is for. At most one timer is live per (session, player, purpose).
type Purpose string

const (
	PurposeSubjectPick Purpose = "subject-pick"
	PurposeQuestion    Purpose = "question"
	PurposeRoundOver   Purpose = "round-over"
	PurposeRetention   Purpose = "retention"
	PurposeQueueExpiry Purpose = "queue-expiry"
)

// Key addresses a single timer slot. Player is uuid.Nil for session-wide timers,
// Session is uuid.Nil for timers that are not tied to a session (queue expiry).
type Key struct {
	Session uuid.UUID
	Player  uuid.UUID
	Purpose Purpose
}

// Fired is the ticket handed to a timer callback. It must be claimed with
// Scheduler.Claim before the callback acts on it.
type Fired struct {
	Key       Key
	Seq       uint64
	StartedAt time.Time
	Duration  time.Duration
}

type entry struct {
	seq       uint64
	timer     clockwork.Timer
	startedAt time.Time
	duration  time.Duration
}

// Scheduler owns every platform timer handle in a side table keyed by Key.
// It knows nothing about game rules.
type Scheduler struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	timers map[Key]*entry
	seq    uint64
	closed bool
	logger logrus.FieldLogger
}

// NewScheduler returns a scheduler driven by the given clock. A nil clock means the real clock.
func NewScheduler(clock clockwork.Clock, logger logrus.FieldLogger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		clock:  clock,
		timers: make(map[Key]*entry),
		logger: logger,
	}
}

// Clock exposes the scheduler's clock so owners compute timestamps from the same source.
func (s *Scheduler) Clock() clockwork.Clock {
	return s.clock
}

// Start arms a one-shot timer for key, cancelling any timer already live for it.
// fn runs on its own goroutine once d elapses and receives the ticket to claim.
func (s *Scheduler) Start(key Key, d time.Duration, fn func(Fired)) Fired {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Fired{}
	}
	if prev, ok := s.timers[key]; ok {
		prev.timer.Stop()
		delete(s.timers, key)
	}

	s.seq++
	ticket := Fired{
		Key:       key,
		Seq:       s.seq,
		StartedAt: s.clock.Now(),
		Duration:  d,
	}
	e := &entry{
		seq:       ticket.Seq,
		startedAt: ticket.StartedAt,
		duration:  d,
	}
	e.timer = s.clock.AfterFunc(d, func() {
		if !s.isCurrent(ticket) {
			s.logger.WithFields(logrus.Fields{
				"session_id": key.Session,
				"player_id":  key.Player,
				"purpose":    key.Purpose,
			}).Debug("stale timer fired, ignoring")
			return
		}
		fn(ticket)
	})
	s.timers[key] = e
	return ticket
}

// Claim consumes the ticket if it is still the live timer for its key. A callback
// that fails to claim must do nothing: the timer was cancelled, replaced, or already claimed.
// Owners call Claim while holding the lock that guards the state the timer mutates.
func (s *Scheduler) Claim(f Fired) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.timers[f.Key]
	if !ok || cur.seq != f.Seq {
		return false
	}
	delete(s.timers, f.Key)
	return true
}

// Cancel stops the timer for key. Cancelling an absent timer is a no-op.
func (s *Scheduler) Cancel(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(key)
}

// CancelPlayer stops every timer owned by a player within a session.
func (s *Scheduler) CancelPlayer(session, player uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.timers {
		if key.Session == session && key.Player == player {
			s.cancelLocked(key)
			n++
		}
	}
	return n
}

// CancelSession stops every timer tied to a session.
func (s *Scheduler) CancelSession(session uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.timers {
		if key.Session == session {
			s.cancelLocked(key)
			n++
		}
	}
	return n
}

// Active reports whether a timer is live for key.
func (s *Scheduler) Active(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Remaining returns max(0, duration - elapsed) for the live timer at key.
func (s *Scheduler) Remaining(key Key) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[key]
	if !ok {
		return 0, false
	}
	return RemainingAt(s.clock.Now(), e.startedAt, e.duration), true
}

// Len returns how many timers are live.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close stops all timers. Start is a no-op afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.timers {
		s.cancelLocked(key)
	}
	s.closed = true
}

func (s *Scheduler) cancelLocked(key Key) bool {
	e, ok := s.timers[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.timers, key)
	return true
}

func (s *Scheduler) isCurrent(f Fired) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.timers[f.Key]
	return ok && cur.seq == f.Seq
}

// RemainingAt derives the time left on a timer from its bookkeeping: max(0, d - (now - startedAt)).
func RemainingAt(now, startedAt time.Time, d time.Duration) time.Duration {
	if startedAt.IsZero() {
		return 0
	}
	left := d - now.Sub(startedAt)
	if left < 0 {
		return 0
	}
	return left
}
