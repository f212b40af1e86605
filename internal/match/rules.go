// internal/match/rules.go
package match

import (
	"fmt"
	"time"
)

// FloorMode selects how the timeout penalty interacts with the zero floor.
type FloorMode string

const (
	// FloorPerEvent floors the score at zero on every decrement.
	FloorPerEvent FloorMode = "per-event"
	// FloorCumulative keeps a raw total that may go negative; the visible score is max(0, raw).
	FloorCumulative FloorMode = "cumulative"
)

// Rules are the tunable parameters of a match.
type Rules struct {
	PickTimeout       time.Duration
	QuestionTimeout   time.Duration
	RoundOverTimeout  time.Duration
	ResultRetention   time.Duration
	QuestionsPerRound int
	MaxRounds         int
	TimeoutPenalty    int
	ScoreFloor        FloorMode
	ForfeitOnLeave    bool
}

// DefaultRules returns the stock match settings.
func DefaultRules() Rules {
	return Rules{
		PickTimeout:       18 * time.Second,
		QuestionTimeout:   15 * time.Second,
		RoundOverTimeout:  30 * time.Second,
		ResultRetention:   60 * time.Second,
		QuestionsPerRound: 5,
		MaxRounds:         3,
		TimeoutPenalty:    1,
		ScoreFloor:        FloorPerEvent,
		ForfeitOnLeave:    true,
	}
}

// Validate rejects settings the state machine cannot run with.
func (r Rules) Validate() error {
	switch {
	case r.PickTimeout <= 0:
		return fmt.Errorf("pick timeout must be positive, got %s", r.PickTimeout)
	case r.QuestionTimeout <= 0:
		return fmt.Errorf("question timeout must be positive, got %s", r.QuestionTimeout)
	case r.RoundOverTimeout <= 0:
		return fmt.Errorf("round-over timeout must be positive, got %s", r.RoundOverTimeout)
	case r.ResultRetention < 0:
		return fmt.Errorf("result retention must not be negative, got %s", r.ResultRetention)
	case r.QuestionsPerRound <= 0:
		return fmt.Errorf("questions per round must be positive, got %d", r.QuestionsPerRound)
	case r.MaxRounds <= 0:
		return fmt.Errorf("max rounds must be positive, got %d", r.MaxRounds)
	case r.TimeoutPenalty < 0:
		return fmt.Errorf("timeout penalty must not be negative, got %d", r.TimeoutPenalty)
	}
	switch r.ScoreFloor {
	case FloorPerEvent, FloorCumulative:
	default:
		return fmt.Errorf("unknown score floor mode %q", r.ScoreFloor)
	}
	return nil
}
