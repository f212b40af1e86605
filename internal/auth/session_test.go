package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizduel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndAuthenticate(t *testing.T) {
	iss, err := NewIssuer(0)
	require.NoError(t, err)

	p := models.Player{ID: uuid.New(), DisplayName: "Ada", AvatarURL: "a.png", ExternalID: "ext-1"}
	token, err := iss.Issue(p)
	require.NoError(t, err)

	got, err := iss.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestAuthenticateRejectsForeignKey(t *testing.T) {
	a, err := NewIssuer(0)
	require.NoError(t, err)
	b, err := NewIssuer(0)
	require.NoError(t, err)

	token, err := a.Issue(models.Player{ID: uuid.New()})
	require.NoError(t, err)
	_, err = b.Authenticate(token)
	assert.Error(t, err)

	_, err = a.Authenticate("not-a-token")
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	iss, err := NewIssuer(time.Hour)
	require.NoError(t, err)
	start := time.Now()
	iss.now = func() time.Time { return start }

	token, err := iss.Issue(models.Player{ID: uuid.New()})
	require.NoError(t, err)
	_, err = iss.Authenticate(token)
	require.NoError(t, err)

	iss.now = func() time.Time { return start.Add(2 * time.Hour) }
	_, err = iss.Authenticate(token)
	assert.Error(t, err)
}

func TestParseExpiry(t *testing.T) {
	for _, s := range []string{"", "0", "never"} {
		d, err := ParseExpiry(s)
		require.NoError(t, err)
		assert.Zero(t, d)
	}
	d, err := ParseExpiry("72h")
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, d)

	_, err = ParseExpiry("soon")
	assert.Error(t, err)
	_, err = ParseExpiry("-1h")
	assert.Error(t, err)
}
