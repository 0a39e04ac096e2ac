package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/park285/Cheese-Arena/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestIssueVerifyUser(t *testing.T) {
	tokens, err := NewTokens("secret", time.Hour, time.Minute)
	require.NoError(t, err)

	tok, exp, err := tokens.Issue("user-42", "Alice", false)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	id, err := tokens.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, Identity{ID: "user-42", Name: "Alice"}, id)
	require.Equal(t, domain.KindRated, id.Kind())
}

func TestIssueGuest(t *testing.T) {
	tokens, err := NewTokens("secret", time.Hour, time.Minute)
	require.NoError(t, err)

	id, tok, _, err := tokens.IssueGuest("")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id.ID, "guest-"))
	require.True(t, strings.HasPrefix(id.Name, "Guest-"))

	got, err := tokens.Verify(tok)
	require.NoError(t, err)
	require.True(t, got.Guest)
	require.Equal(t, id.ID, got.ID)
	require.Equal(t, domain.KindGuest, got.Kind())

	_, _, err = tokens.Issue("user-1", "", true)
	require.Error(t, err)
	_, _, err = tokens.Issue("guest-1", "", false)
	require.Error(t, err)
}

func TestVerifyRejects(t *testing.T) {
	tokens, err := NewTokens("secret", time.Hour, time.Minute)
	require.NoError(t, err)
	other, err := NewTokens("other", time.Hour, time.Minute)
	require.NoError(t, err)

	tok, _, err := other.Issue("user-1", "", false)
	require.NoError(t, err)
	_, err = tokens.Verify(tok)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Verify("")
	require.ErrorIs(t, err, ErrInvalidToken)

	// expired
	tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := tokens.Issue("user-1", "", false)
	require.NoError(t, err)
	tokens.now = time.Now
	_, err = tokens.Verify(old)
	require.True(t, errors.Is(err, jwt.ErrTokenExpired))

	// a guest flag on a non-guest subject is forged
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "user-9", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Guest:            true,
	})
	s, err := forged.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tokens.Verify(s)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokens(" ", time.Hour, time.Hour)
	require.ErrorIs(t, err, ErrMissingSecret)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", BearerToken("Bearer abc"))
	require.Equal(t, "abc", BearerToken("bearer  abc "))
	require.Equal(t, "", BearerToken("Basic abc"))
	require.Equal(t, "", BearerToken(""))
}
