package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyScorePerEventFloor(t *testing.T) {
	r := DefaultRules()
	s := newSession(testPlayer("a"), testPlayer("b"), 3, time.Now())

	applyScore(r, s, 0, TimeoutAnswer)
	assert.Equal(t, 0, s.Scores[0], "timeout at zero stays at zero")

	applyScore(r, s, 0, Answer{Correct: true})
	assert.Equal(t, 1, s.Scores[0])

	applyScore(r, s, 0, TimeoutAnswer)
	applyScore(r, s, 0, TimeoutAnswer)
	assert.Equal(t, 0, s.Scores[0])

	applyScore(r, s, 0, Answer{Correct: true})
	assert.Equal(t, 1, s.Scores[0], "per-event floor forgets earlier penalties")
}

func TestApplyScoreCumulativeFloor(t *testing.T) {
	r := DefaultRules()
	r.ScoreFloor = FloorCumulative
	s := newSession(testPlayer("a"), testPlayer("b"), 3, time.Now())

	applyScore(r, s, 0, TimeoutAnswer)
	applyScore(r, s, 0, TimeoutAnswer)
	assert.Equal(t, 0, s.Scores[0], "visible score never negative")

	applyScore(r, s, 0, Answer{Correct: true})
	assert.Equal(t, 0, s.Scores[0], "raw total is still -1")

	applyScore(r, s, 0, Answer{Correct: true})
	assert.Equal(t, 0, s.Scores[0], "raw total is back to 0")

	applyScore(r, s, 0, Answer{Correct: true})
	assert.Equal(t, 1, s.Scores[0])
}

func TestApplyScoreWrongAnswerUnchanged(t *testing.T) {
	r := DefaultRules()
	s := newSession(testPlayer("a"), testPlayer("b"), 3, time.Now())
	applyScore(r, s, 1, Answer{Correct: true})
	applyScore(r, s, 1, Answer{Index: 3})
	assert.Equal(t, 1, s.Scores[1])
	assert.Equal(t, 0, s.Scores[0])
}

func TestApplyScoreConfigurablePenalty(t *testing.T) {
	r := DefaultRules()
	r.TimeoutPenalty = 2
	s := newSession(testPlayer("a"), testPlayer("b"), 3, time.Now())
	for i := 0; i < 3; i++ {
		applyScore(r, s, 0, Answer{Correct: true})
	}
	applyScore(r, s, 0, TimeoutAnswer)
	assert.Equal(t, 1, s.Scores[0])
}

func TestRulesValidate(t *testing.T) {
	assert.NoError(t, DefaultRules().Validate())

	bad := DefaultRules()
	bad.QuestionsPerRound = 0
	assert.Error(t, bad.Validate())

	bad = DefaultRules()
	bad.PickTimeout = 0
	assert.Error(t, bad.Validate())

	bad = DefaultRules()
	bad.ScoreFloor = "sometimes"
	assert.Error(t, bad.Validate())
}

func TestCanTransitionEdges(t *testing.T) {
	assert.True(t, CanTransition(StateSubjectSelection, StatePlaying))
	assert.True(t, CanTransition(StatePlaying, StateRoundOver))
	assert.True(t, CanTransition(StateRoundOver, StateSubjectSelection))
	assert.True(t, CanTransition(StateRoundOver, StateGameOver))

	assert.False(t, CanTransition(StatePlaying, StateGameOver))
	assert.False(t, CanTransition(StateSubjectSelection, StateRoundOver))
	for _, to := range []State{StateSubjectSelection, StatePlaying, StateRoundOver, StateGameOver} {
		assert.False(t, CanTransition(StateGameOver, to), "game-over is terminal")
	}
}
