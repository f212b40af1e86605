// internal/match/session.go
package match

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizduel/internal/models"
)

// State is the phase a session is in.
type State string

const (
	StateSubjectSelection State = "subject-selection"
	StatePlaying          State = "playing"
	StateRoundOver        State = "round-over"
	StateGameOver         State = "game-over"
)

// allowedTransitions is the complete edge set of the session state machine.
var allowedTransitions = map[State][]State{
	StateSubjectSelection: {StatePlaying},
	StatePlaying:          {StateRoundOver},
	StateRoundOver:        {StateSubjectSelection, StateGameOver},
	StateGameOver:         {},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Answer is a recorded answer event. TimedOut marks the sentinel produced by a question timer.
type Answer struct {
	Index    int       `json:"index"`
	TimedOut bool      `json:"timedOut"`
	Correct  bool      `json:"correct"`
	At       time.Time `json:"at"`
}

// TimeoutAnswer is the sentinel evaluated when a question timer expires.
var TimeoutAnswer = Answer{Index: -1, TimedOut: true}

type answerKey struct {
	Player   int
	Question uuid.UUID
}

// Outcome is the final result of a game-over session. Winner is nil on a draw.
type Outcome struct {
	Winner *uuid.UUID `json:"winner,omitempty"`
	Draw   bool       `json:"draw"`
	Scores [2]int     `json:"scores"`
}

// Session is one match between exactly two players. It holds no timer handles;
// only start timestamps, from which remaining time is derived.
type Session struct {
	ID           uuid.UUID
	Players      [2]models.Player
	CurrentRound int
	MaxRounds    int
	PickerIndex  int
	Subject      string
	Questions    []models.Question
	Progress     [2]int
	Answers      map[answerKey]Answer
	Scores       [2]int
	State        State
	Finished     map[uuid.UUID]bool
	Ready        map[uuid.UUID]bool
	Outcome      *Outcome
	CreatedAt    time.Time

	// timer bookkeeping
	PickStartedAt      time.Time
	QuestionStartedAt  [2]time.Time
	RoundOverStartedAt time.Time
	EndedAt            time.Time

	// rawScores backs the cumulative floor mode; Scores is what players see.
	rawScores [2]int
	// left tracks players who detached from a closed session.
	left map[uuid.UUID]bool
	// abandoned is set when a player left mid-match. The session is then
	// read-only and kept only so the remaining player can poll the outcome.
	abandoned bool
	// actions counts entries written to the action log.
	actions int
}

func newSession(a, b models.Player, maxRounds int, now time.Time) *Session {
	return &Session{
		ID:           uuid.New(),
		Players:      [2]models.Player{a, b},
		CurrentRound: 1,
		MaxRounds:    maxRounds,
		PickerIndex:  0,
		State:        StateSubjectSelection,
		Answers:      make(map[answerKey]Answer),
		Finished:     make(map[uuid.UUID]bool),
		Ready:        make(map[uuid.UUID]bool),
		left:         make(map[uuid.UUID]bool),
		CreatedAt:    now,
	}
}

// closed reports whether the match is over, either finished or abandoned.
func (s *Session) closed() bool {
	return s.State == StateGameOver || s.abandoned
}

// PlayerIndex returns the seat of playerID, or -1.
func (s *Session) PlayerIndex(playerID uuid.UUID) int {
	for i, p := range s.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// Picker returns the player choosing this round's subject.
func (s *Session) Picker() models.Player {
	return s.Players[s.PickerIndex]
}

// CurrentQuestion returns the question the player at idx is on, if any remain.
func (s *Session) CurrentQuestion(idx int) (models.Question, bool) {
	p := s.Progress[idx]
	if p < 0 || p >= len(s.Questions) {
		return models.Question{}, false
	}
	return s.Questions[p], true
}

// RoundComplete holds iff every player has finished all of the round's questions.
func (s *Session) RoundComplete() bool {
	for i, p := range s.Players {
		if !s.Finished[p.ID] || s.Progress[i] != len(s.Questions) {
			return false
		}
	}
	return true
}

// AllReady reports whether both players signalled the next round.
func (s *Session) AllReady() bool {
	for _, p := range s.Players {
		if !s.Ready[p.ID] {
			return false
		}
	}
	return true
}

// Opponent returns the other seat.
func Opponent(idx int) int {
	return 1 - idx
}

func (s *Session) clearRoundState() {
	s.Subject = ""
	s.Questions = nil
	s.Progress = [2]int{}
	s.Answers = make(map[answerKey]Answer)
	s.Finished = make(map[uuid.UUID]bool)
	s.Ready = make(map[uuid.UUID]bool)
	s.QuestionStartedAt = [2]time.Time{}
	s.RoundOverStartedAt = time.Time{}
	s.PickStartedAt = time.Time{}
}
