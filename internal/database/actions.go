// internal/database/actions.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/quizduel/internal/cache"
)

// Match statuses stored in the matches table.
const (
	MatchInProgress = "in_progress"
	MatchCompleted  = "completed"
	MatchAbandoned  = "abandoned"
)

// statusAfter maps the terminal action types to the status they set.
func statusAfter(actionType string) string {
	switch actionType {
	case "game_over":
		return MatchCompleted
	case "leave":
		return MatchAbandoned
	}
	return ""
}

// InsertActions writes a batch of action records in a single transaction.
func InsertActions(ctx context.Context, pool *pgxpool.Pool, batch []cache.MatchActionRecord) error {
	if len(batch) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batch {
			if err := insertActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert action %d of %s: %w", rec.ActionIndex, rec.SessionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert %d actions: %w", len(batch), err)
	}
	return nil
}

func insertActionTx(ctx context.Context, tx pgx.Tx, rec cache.MatchActionRecord) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO matches (id, status, start_time)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO NOTHING
	`, rec.SessionID, MatchInProgress); err != nil {
		return err
	}

	payload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	var actor *uuid.UUID
	if rec.ActorID != uuid.Nil {
		actor = &rec.ActorID
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO match_actions (match_id, action_index, actor_id, action_type, action_payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (match_id, action_index) DO NOTHING
	`, rec.SessionID, rec.ActionIndex, actor, rec.ActionType, payload, time.UnixMilli(rec.Timestamp)); err != nil {
		return err
	}

	if status := statusAfter(rec.ActionType); status != "" {
		_, err = tx.Exec(ctx, `
			UPDATE matches SET status = $2, end_time = NOW()
			WHERE id = $1 AND status = $3
		`, rec.SessionID, status, MatchInProgress)
		return err
	}
	return nil
}

// MarkAbandoned flags a match that stopped producing actions.
func MarkAbandoned(ctx context.Context, pool *pgxpool.Pool, matchID uuid.UUID) (bool, error) {
	tag, err := pool.Exec(ctx, `
		UPDATE matches SET status = $2, end_time = NOW()
		WHERE id = $1 AND status = $3
	`, matchID, MatchAbandoned, MatchInProgress)
	if err != nil {
		return false, fmt.Errorf("failed to mark match %s abandoned: %w", matchID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ActionRepository adapts the action functions to the historian's sink.
type ActionRepository struct {
	pool *pgxpool.Pool
}

func NewActionRepository(pool *pgxpool.Pool) *ActionRepository {
	return &ActionRepository{pool: pool}
}

func (r *ActionRepository) InsertActions(ctx context.Context, batch []cache.MatchActionRecord) error {
	return InsertActions(ctx, r.pool, batch)
}

func (r *ActionRepository) MarkAbandoned(ctx context.Context, matchID uuid.UUID) (bool, error) {
	return MarkAbandoned(ctx, r.pool, matchID)
}
