package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinCodeVerifier(t *testing.T) {
	v := NewJoinCodeVerifier("sp2025")

	assert.NoError(t, v.Verify("sm-1", "sp2025"))
	assert.ErrorIs(t, v.Verify("sm-1", "sp2024"), ErrInvalidCredentials)
	assert.ErrorIs(t, v.Verify("sm-1", ""), ErrInvalidCredentials)

	assert.ErrorIs(t, NewJoinCodeVerifier("").Verify("sm-1", ""), ErrInvalidCredentials,
		"an unset join code never matches")
}

func TestTokenVerifier(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := NewTokenVerifier("secret", "staffdraft")
	v.now = func() time.Time { return now }

	token, err := v.Issue("sm-1", time.Hour)
	require.NoError(t, err)

	assert.NoError(t, v.Verify("sm-1", token))
	assert.ErrorIs(t, v.Verify("sm-2", token), ErrInvalidCredentials, "subject must match")

	other := NewTokenVerifier("other-secret", "staffdraft")
	other.now = v.now
	assert.ErrorIs(t, other.Verify("sm-1", token), ErrInvalidCredentials, "signature must match")

	now = now.Add(2 * time.Hour)
	assert.ErrorIs(t, v.Verify("sm-1", token), ErrInvalidCredentials, "expired token")
}

func TestAny(t *testing.T) {
	tokens := NewTokenVerifier("secret", "")
	v := Any(NewJoinCodeVerifier("sp2025"), tokens)

	token, err := tokens.Issue("sm-1", time.Minute)
	require.NoError(t, err)

	assert.NoError(t, v.Verify("sm-1", "sp2025"))
	assert.NoError(t, v.Verify("sm-1", token))
	assert.ErrorIs(t, v.Verify("sm-1", "nope"), ErrInvalidCredentials)
	assert.ErrorIs(t, Any().Verify("sm-1", "sp2025"), ErrInvalidCredentials)
}
