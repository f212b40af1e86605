// internal/questions/provider.go

// Package questions supplies subjects and randomized question sets to the match engine.
package questions

import (
	"context"
	"errors"

	"github.com/jason-s-yu/quizduel/internal/models"
)

// ErrUnknownSubject is returned when a subject has no questions.
var ErrUnknownSubject = errors.New("unknown subject")

// Provider is the question source consumed by the match engine.
// DrawQuestions returns up to count distinct questions of the subject in random order.
type Provider interface {
	ListSubjects(ctx context.Context) ([]string, error)
	DrawQuestions(ctx context.Context, subject string, count int) ([]models.Question, error)
}
