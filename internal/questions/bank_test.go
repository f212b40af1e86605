package questions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizduel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBank = `
subjects:
  Science:
    - prompt: "Chemical symbol for water?"
      options: [H2O, CO2, NaCl]
      correct: 0
    - prompt: "Closest planet to the sun?"
      options: [Venus, Mercury]
      correct: 1
    - prompt: "Speed of light is roughly 300,000 km per...?"
      options: [hour, second, minute]
      correct: 1
  History:
    - id: 6f1c2b1e-3a5e-4f0b-9a55-0c9d0d3c1a11
      prompt: "Year the Berlin wall fell?"
      options: ["1989", "1991"]
      correct: 0
`

func TestParseBank(t *testing.T) {
	b, err := ParseBank([]byte(sampleBank))
	require.NoError(t, err)

	subjects, err := b.ListSubjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"History", "Science"}, subjects)

	qs, err := b.DrawQuestions(context.Background(), "History", 5)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, uuid.MustParse("6f1c2b1e-3a5e-4f0b-9a55-0c9d0d3c1a11"), qs[0].ID)
	assert.Equal(t, "History", qs[0].Subject)
	assert.True(t, qs[0].IsCorrect(0))
}

func TestDrawWithoutReplacement(t *testing.T) {
	b, err := ParseBank([]byte(sampleBank))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		qs, err := b.DrawQuestions(context.Background(), "Science", 3)
		require.NoError(t, err)
		require.Len(t, qs, 3)
		seen := map[uuid.UUID]bool{}
		for _, q := range qs {
			assert.False(t, seen[q.ID], "question drawn twice")
			seen[q.ID] = true
		}
	}

	qs, err := b.DrawQuestions(context.Background(), "Science", 2)
	require.NoError(t, err)
	assert.Len(t, qs, 2)
}

func TestDrawUnknownSubject(t *testing.T) {
	b := NewBank()
	_, err := b.DrawQuestions(context.Background(), "Art", 5)
	assert.ErrorIs(t, err, ErrUnknownSubject)
}

func TestAddRejectsBadQuestions(t *testing.T) {
	_, err := ParseBank([]byte(`
subjects:
  Math:
    - prompt: "2+2?"
      options: ["4"]
      correct: 0
`))
	assert.Error(t, err)

	_, err = ParseBank([]byte(`
subjects:
  Math:
    - prompt: "2+2?"
      options: ["3", "4"]
      correct: 2
`))
	assert.Error(t, err)
}

func TestLoadBankFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleBank), 0o600))

	b, err := LoadBankFile(path)
	require.NoError(t, err)
	subjects, _ := b.ListSubjects(context.Background())
	assert.Len(t, subjects, 2)

	_, err = LoadBankFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGeneratedIDsAreStable(t *testing.T) {
	a, err := ParseBank([]byte(sampleBank))
	require.NoError(t, err)
	b, err := ParseBank([]byte(sampleBank))
	require.NoError(t, err)

	require.Len(t, a.All(), 4)
	assert.Equal(t, a.All(), b.All())
	assert.Equal(t, "History", a.All()[0].Subject)
}

func TestAddRejectsDuplicatePrompt(t *testing.T) {
	b := NewBank()
	q := models.Question{Prompt: "2+2?", Options: []string{"3", "4"}, CorrectIndex: 1}
	require.NoError(t, b.Add("Math", q))
	assert.Error(t, b.Add("Math", q))
	assert.NoError(t, b.Add("Arithmetic", q))
}
