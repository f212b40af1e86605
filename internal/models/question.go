// internal/models/question.go
package models

import "github.com/google/uuid"

// Question is a single multiple-choice prompt. CorrectIndex is never sent to clients.
type Question struct {
	ID           uuid.UUID `json:"id" yaml:"id"`
	Subject      string    `json:"subject" yaml:"subject"`
	Prompt       string    `json:"prompt" yaml:"prompt"`
	Options      []string  `json:"options" yaml:"options"`
	CorrectIndex int       `json:"-" yaml:"correct"`
}

// IsCorrect reports whether idx selects the correct option.
func (q Question) IsCorrect(idx int) bool {
	return idx >= 0 && idx < len(q.Options) && idx == q.CorrectIndex
}
