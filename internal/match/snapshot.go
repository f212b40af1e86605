// internal/match/snapshot.go
package match

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizduel/internal/timer"
)

// PlayerView is one seat as seen by either player.
type PlayerView struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Score       int       `json:"score"`
	Progress    int       `json:"progress"`
	Finished    bool      `json:"finished"`
	Ready       bool      `json:"ready"`
}

// QuestionView is the caller's current question, without the answer.
type QuestionView struct {
	ID       uuid.UUID `json:"id"`
	Number   int       `json:"number"`
	Total    int       `json:"total"`
	Prompt   string    `json:"prompt"`
	Options  []string  `json:"options"`
	Subject  string    `json:"subject"`
	Answered bool      `json:"answered"`
}

// TimerView describes the timer that currently matters to the caller.
type TimerView struct {
	Purpose     timer.Purpose `json:"purpose"`
	StartedAt   time.Time     `json:"startedAt"`
	DurationMs  int64         `json:"durationMs"`
	RemainingMs int64         `json:"remainingMs"`
}

// Snapshot is the read-only, caller-scoped view returned by Poll.
// It never carries timer handles or correct answers.
type Snapshot struct {
	SessionID    uuid.UUID     `json:"sessionId"`
	State        State         `json:"state"`
	Round        int           `json:"round"`
	MaxRounds    int           `json:"maxRounds"`
	You          int           `json:"you"`
	Picker       uuid.UUID     `json:"picker"`
	IsPicker     bool          `json:"isPicker"`
	Subject      string        `json:"subject,omitempty"`
	Players      [2]PlayerView `json:"players"`
	Question     *QuestionView `json:"question,omitempty"`
	Timer        *TimerView    `json:"timer,omitempty"`
	Outcome      *Outcome      `json:"outcome,omitempty"`
	OpponentLeft bool          `json:"opponentLeft,omitempty"`
	// Abandoned marks a match that ended because a player left.
	Abandoned bool `json:"abandoned,omitempty"`
}

// snapshot builds the view for the player at idx. Caller holds e.mu.
func (e *Engine) snapshot(s *Session, idx int) Snapshot {
	snap := Snapshot{
		SessionID: s.ID,
		State:     s.State,
		Round:     s.CurrentRound,
		MaxRounds: s.MaxRounds,
		You:       idx,
		Picker:    s.Picker().ID,
		IsPicker:  s.PickerIndex == idx,
		Subject:   s.Subject,
		Outcome:   s.Outcome,
	}
	for i, p := range s.Players {
		snap.Players[i] = PlayerView{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
			Score:       s.Scores[i],
			Progress:    s.Progress[i],
			Finished:    s.Finished[p.ID],
			Ready:       s.Ready[p.ID],
		}
	}
	snap.OpponentLeft = s.left[s.Players[Opponent(idx)].ID]
	snap.Abandoned = s.abandoned

	if s.State == StatePlaying && !s.abandoned {
		if q, ok := s.CurrentQuestion(idx); ok {
			_, answered := s.Answers[answerKey{Player: idx, Question: q.ID}]
			snap.Question = &QuestionView{
				ID:       q.ID,
				Number:   s.Progress[idx] + 1,
				Total:    len(s.Questions),
				Prompt:   q.Prompt,
				Options:  append([]string(nil), q.Options...),
				Subject:  q.Subject,
				Answered: answered,
			}
		}
	}

	now := e.clock.Now()
	switch s.State {
	case StateSubjectSelection:
		snap.Timer = timerView(timer.PurposeSubjectPick, now, s.PickStartedAt, e.rules.PickTimeout)
	case StatePlaying:
		snap.Timer = timerView(timer.PurposeQuestion, now, s.QuestionStartedAt[idx], e.rules.QuestionTimeout)
	case StateRoundOver:
		snap.Timer = timerView(timer.PurposeRoundOver, now, s.RoundOverStartedAt, e.rules.RoundOverTimeout)
	}
	return snap
}

func timerView(p timer.Purpose, now, startedAt time.Time, d time.Duration) *TimerView {
	if startedAt.IsZero() {
		return nil
	}
	return &TimerView{
		Purpose:     p,
		StartedAt:   startedAt,
		DurationMs:  d.Milliseconds(),
		RemainingMs: timer.RemainingAt(now, startedAt, d).Milliseconds(),
	}
}
