package config

import (
	"testing"
	"time"

	"github.com/jason-s-yu/quizduel/internal/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "PICK_TIMEOUT", "QUESTION_TIMEOUT", "DATABASE_URL", "PG_HOST", "SCORE_FLOOR", "TOKEN_EXPIRE_TIME", "CORS_ORIGINS", "LOG_LEVEL", "LOG_FORMAT", "HISTORIAN_BATCH_SIZE", "MATCH_INACTIVITY_TIMEOUT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, match.DefaultRules(), cfg.Rules)
	assert.Equal(t, 60*time.Second, cfg.QueueTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Zero(t, cfg.TokenExpire)
	assert.Equal(t, 20, cfg.HistorianBatchSize)
	assert.Equal(t, 10*time.Minute, cfg.MatchInactivity)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PICK_TIMEOUT", "10s")
	t.Setenv("QUESTIONS_PER_ROUND", "7")
	t.Setenv("SCORE_FLOOR", "cumulative")
	t.Setenv("FORFEIT_ON_LEAVE", "false")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TOKEN_EXPIRE_TIME", "24h")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_HOST", "db")
	t.Setenv("POSTGRES_USER", "quiz")
	t.Setenv("POSTGRES_PASSWORD", "p@ss")
	t.Setenv("PG_DATABASE", "trivia")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Rules.PickTimeout)
	assert.Equal(t, 7, cfg.Rules.QuestionsPerRound)
	assert.Equal(t, match.FloorCumulative, cfg.Rules.ScoreFloor)
	assert.False(t, cfg.Rules.ForfeitOnLeave)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 24*time.Hour, cfg.TokenExpire)
	assert.Equal(t, "postgres://quiz:p%40ss@db:5432/trivia", cfg.DatabaseURL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("QUESTION_TIMEOUT", "fast")
	t.Setenv("MAX_ROUNDS", "three")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUESTION_TIMEOUT")
	assert.Contains(t, err.Error(), "MAX_ROUNDS")
}

func TestLoadRejectsInvalidRules(t *testing.T) {
	t.Setenv("MAX_ROUNDS", "0")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("MAX_ROUNDS", "")
	t.Setenv("SCORE_FLOOR", "lenient")
	_, err = Load()
	assert.Error(t, err)
}

func TestValidateHistorianSettings(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.HistorianBatchSize = 0
	assert.Error(t, cfg.Validate())
}
