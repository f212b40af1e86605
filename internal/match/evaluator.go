// internal/match/evaluator.go
package match

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizduel/internal/events"
	"github.com/sirupsen/logrus"
)

// AnswerResult is returned to the player who answered.
// GameOver is set when the final round just finished; the session ends at the next advance.
type AnswerResult struct {
	Correct   bool `json:"correct"`
	TimedOut  bool `json:"timedOut"`
	Score     int  `json:"score"`
	Progress  int  `json:"progress"`
	Finished  bool `json:"finished"`
	RoundOver bool `json:"roundOver"`
	GameOver  bool `json:"gameOver"`
}

// applyScore folds one evaluated answer into the player's score.
func applyScore(r Rules, s *Session, idx int, a Answer) {
	switch {
	case a.Correct:
		s.rawScores[idx]++
	case a.TimedOut:
		s.rawScores[idx] -= r.TimeoutPenalty
		if r.ScoreFloor != FloorCumulative && s.rawScores[idx] < 0 {
			s.rawScores[idx] = 0
		}
	}
	s.Scores[idx] = max(0, s.rawScores[idx])
}

// evaluate is the only path that scores an answer and advances a player, for
// explicit answers and question timeouts alike. Caller holds e.mu.
func (e *Engine) evaluate(s *Session, idx int, questionID uuid.UUID, a Answer) (AnswerResult, error) {
	if s.abandoned {
		return AnswerResult{}, newError(KindInvalidState, "session %s was abandoned", s.ID)
	}
	if s.State != StatePlaying {
		return AnswerResult{}, newError(KindInvalidState, "session is %s, not %s", s.State, StatePlaying)
	}
	player := s.Players[idx]
	if s.Finished[player.ID] {
		return AnswerResult{}, newError(KindAlreadyActed, "player already finished round %d", s.CurrentRound)
	}
	key := answerKey{Player: idx, Question: questionID}
	if _, dup := s.Answers[key]; dup {
		return AnswerResult{}, newError(KindAlreadyActed, "question %s already answered", questionID)
	}
	q, ok := s.CurrentQuestion(idx)
	if !ok || q.ID != questionID {
		return AnswerResult{}, newError(KindStaleReference, "question %s is not the current question", questionID)
	}

	now := e.clock.Now()
	a.Correct = !a.TimedOut && q.IsCorrect(a.Index)
	a.At = now
	s.Answers[key] = a
	applyScore(e.rules, s, idx, a)
	s.Progress[idx]++

	res := AnswerResult{
		Correct:  a.Correct,
		TimedOut: a.TimedOut,
		Score:    s.Scores[idx],
		Progress: s.Progress[idx],
	}

	e.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"player_id":  player.ID,
		"question":   questionID,
		"correct":    a.Correct,
		"timed_out":  a.TimedOut,
		"score":      res.Score,
	}).Debug("answer evaluated")

	e.publish(s, events.Event{
		Type:  events.TypeAnswerEvaluated,
		From:  player.ID.String(),
		Round: s.CurrentRound,
		Payload: map[string]interface{}{
			"correct":  a.Correct,
			"timedOut": a.TimedOut,
			"score":    res.Score,
			"progress": res.Progress,
		},
	})
	e.logAction(s, player.ID, "answer", map[string]interface{}{
		"questionId": questionID,
		"index":      a.Index,
		"correct":    a.Correct,
		"timedOut":   a.TimedOut,
	})

	if s.Progress[idx] < len(s.Questions) {
		e.startQuestionTimer(s, idx)
		return res, nil
	}

	e.markFinished(s, idx)
	res.Finished = true
	if s.RoundComplete() {
		e.endRound(s)
		res.RoundOver = true
		res.GameOver = s.CurrentRound >= s.MaxRounds
	}
	return res, nil
}

// markFinished is idempotent: a timer and a client can race to finish the same player.
func (e *Engine) markFinished(s *Session, idx int) {
	player := s.Players[idx]
	if s.Finished[player.ID] {
		return
	}
	s.Finished[player.ID] = true
	s.QuestionStartedAt[idx] = time.Time{}
	e.timers.CancelPlayer(s.ID, player.ID)

	e.publish(s, events.Event{
		Type:  events.TypePlayerFinished,
		From:  player.ID.String(),
		Round: s.CurrentRound,
	})
}
