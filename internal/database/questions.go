// internal/database/questions.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/quizduel/internal/models"
	"github.com/jason-s-yu/quizduel/internal/questions"
)

// QuestionRepository serves questions from Postgres.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository wraps pool.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListSubjects returns every subject that has at least one question.
func (r *QuestionRepository) ListSubjects(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT subject FROM questions ORDER BY subject`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	subjects, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan subjects: %w", err)
	}
	return subjects, nil
}

// DrawQuestions samples up to count questions of subject without replacement.
func (r *QuestionRepository) DrawQuestions(ctx context.Context, subject string, count int) ([]models.Question, error) {
	q := `
		SELECT id, subject, prompt, options, correct_index
		FROM questions
		WHERE subject = $1
		ORDER BY random()
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, q, subject, count)
	if err != nil {
		return nil, fmt.Errorf("failed to draw questions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Question, error) {
		var qq models.Question
		err := row.Scan(&qq.ID, &qq.Subject, &qq.Prompt, &qq.Options, &qq.CorrectIndex)
		return qq, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan questions: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", questions.ErrUnknownSubject, subject)
	}
	return out, nil
}

// SeedQuestions inserts questions that are not present yet, in one transaction.
func (r *QuestionRepository) SeedQuestions(ctx context.Context, qs []models.Question) error {
	q := `
		INSERT INTO questions (id, subject, prompt, options, correct_index)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, qq := range qs {
			if _, err := tx.Exec(ctx, q, qq.ID, qq.Subject, qq.Prompt, qq.Options, qq.CorrectIndex); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to seed questions: %w", err)
	}
	return nil
}
