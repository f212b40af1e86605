// internal/events/events.go

// Package events is the push side of the match core: the engine publishes
// events here and transports (websocket hub, NATS) deliver them.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type names an event delivered to clients.
type Type string

const (
	TypeSessionCreated  Type = "session_created"
	TypeStateChanged    Type = "state_changed"
	TypeSubjectPicked   Type = "subject_picked"
	TypeAnswerEvaluated Type = "answer_evaluated"
	TypePlayerFinished  Type = "player_finished"
	TypePlayerReady     Type = "player_ready"
	TypeGameOver        Type = "game_over"
	TypeOpponentLeft    Type = "opponent_left"
	TypeSessionClosed   Type = "session_closed"
	TypeQueueExpired    Type = "queue_expired"
)

// Event is a single push notification. Recipients lists the players it is for;
// transports that fan out per session ignore it.
type Event struct {
	Type       Type                   `json:"type"`
	SessionID  uuid.UUID              `json:"sessionId"`
	Recipients []uuid.UUID            `json:"-"`
	Round      int                    `json:"round,omitempty"`
	From       string                 `json:"from,omitempty"`
	State      string                 `json:"state,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	At         time.Time              `json:"at"`
}

// Publisher delivers events. Implementations must not block the caller.
type Publisher interface {
	Publish(ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev Event)

func (f PublisherFunc) Publish(ev Event) { f(ev) }

// Multi fans an event out to several publishers in order.
type Multi []Publisher

func (m Multi) Publish(ev Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ev)
		}
	}
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(Event) {})
