// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pool for dsn and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables used by the question repository, the result
// sink and the historian. It is safe to run on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS questions (
		id            UUID PRIMARY KEY,
		subject       TEXT NOT NULL,
		prompt        TEXT NOT NULL,
		options       TEXT[] NOT NULL CHECK (cardinality(options) >= 2),
		correct_index INT  NOT NULL CHECK (correct_index >= 0)
	);
	CREATE INDEX IF NOT EXISTS questions_subject_idx ON questions (subject);

	CREATE TABLE IF NOT EXISTS leaderboard (
		identity   TEXT PRIMARY KEY,
		points     BIGINT NOT NULL DEFAULT 0,
		wins       INT    NOT NULL DEFAULT 0,
		games      INT    NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS match_results (
		id          BIGSERIAL PRIMARY KEY,
		identity    TEXT NOT NULL,
		points      INT  NOT NULL,
		is_win      BOOLEAN NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS matches (
		id         UUID PRIMARY KEY,
		status     TEXT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time   TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS match_actions (
		match_id       UUID NOT NULL REFERENCES matches (id),
		action_index   INT  NOT NULL,
		actor_id       UUID,
		action_type    TEXT NOT NULL,
		action_payload JSONB,
		recorded_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (match_id, action_index)
	);`

	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
