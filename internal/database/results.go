// internal/database/results.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ResultRepository is the leaderboard sink for finished matches.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository wraps pool.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// RecordResult appends a match result and folds it into the identity's leaderboard row.
func (r *ResultRepository) RecordResult(ctx context.Context, identity string, pointsDelta int, isWin bool) error {
	wins := 0
	if isWin {
		wins = 1
	}
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO match_results (identity, points, is_win)
			VALUES ($1, $2, $3)
		`, identity, pointsDelta, isWin); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO leaderboard (identity, points, wins, games)
			VALUES ($1, $2, $3, 1)
			ON CONFLICT (identity) DO UPDATE SET
				points = leaderboard.points + EXCLUDED.points,
				wins = leaderboard.wins + EXCLUDED.wins,
				games = leaderboard.games + 1,
				updated_at = NOW()
		`, identity, pointsDelta, wins)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record result for %s: %w", identity, err)
	}
	return nil
}
