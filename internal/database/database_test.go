package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/quizduel/internal/cache"
	"github.com/jason-s-yu/quizduel/internal/models"
	"github.com/jason-s-yu/quizduel/internal/questions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusAfter(t *testing.T) {
	assert.Equal(t, MatchCompleted, statusAfter("game_over"))
	assert.Equal(t, MatchAbandoned, statusAfter("leave"))
	assert.Equal(t, "", statusAfter("answer"))
}

// testPool connects to QUIZDUEL_TEST_DATABASE_URL, skipping when it is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	dsn := os.Getenv("QUIZDUEL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("QUIZDUEL_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func TestQuestionRepositoryRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewQuestionRepository(pool)

	subject := "test-" + uuid.NewString()
	var seed []models.Question
	for i := 0; i < 4; i++ {
		seed = append(seed, models.Question{
			ID:           uuid.New(),
			Subject:      subject,
			Prompt:       "prompt",
			Options:      []string{"a", "b"},
			CorrectIndex: i % 2,
		})
	}
	require.NoError(t, repo.SeedQuestions(ctx, seed))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM questions WHERE subject = $1`, subject)
	})

	subjects, err := repo.ListSubjects(ctx)
	require.NoError(t, err)
	assert.Contains(t, subjects, subject)

	qs, err := repo.DrawQuestions(ctx, subject, 3)
	require.NoError(t, err)
	assert.Len(t, qs, 3)

	_, err = repo.DrawQuestions(ctx, "missing-"+uuid.NewString(), 3)
	assert.ErrorIs(t, err, questions.ErrUnknownSubject)
}

func TestResultRepositoryAccumulates(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewResultRepository(pool)
	identity := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM leaderboard WHERE identity = $1`, identity)
		_, _ = pool.Exec(context.Background(), `DELETE FROM match_results WHERE identity = $1`, identity)
	})

	require.NoError(t, repo.RecordResult(ctx, identity, 5, true))
	require.NoError(t, repo.RecordResult(ctx, identity, 3, false))

	var points, wins, games int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT points, wins, games FROM leaderboard WHERE identity = $1`, identity,
	).Scan(&points, &wins, &games))
	assert.Equal(t, 8, points)
	assert.Equal(t, 1, wins)
	assert.Equal(t, 2, games)
}

func TestInsertActionsCompletesMatch(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	id := uuid.New()
	now := time.Now().UnixMilli()

	require.NoError(t, InsertActions(ctx, pool, []cache.MatchActionRecord{
		{SessionID: id, ActionIndex: 1, ActionType: "session_created", Timestamp: now},
		{SessionID: id, ActionIndex: 2, ActorID: uuid.New(), ActionType: "answer", Timestamp: now},
		{SessionID: id, ActionIndex: 3, ActionType: "game_over", Timestamp: now},
	}))

	var status string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM matches WHERE id = $1`, id).Scan(&status))
	assert.Equal(t, MatchCompleted, status)

	changed, err := MarkAbandoned(ctx, pool, id)
	require.NoError(t, err)
	assert.False(t, changed, "completed matches are never abandoned")
}
