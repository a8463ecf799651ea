package jwtx

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims Claims) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestExpiry(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username: "alice",
		Role:     "student",
	})

	got, err := Expiry(token)
	require.NoError(t, err)
	require.True(t, got.Equal(exp))
}

func TestExpiryMissingClaim(t *testing.T) {
	t.Parallel()

	token := signedToken(t, Claims{Username: "bob"})
	_, err := Expiry(token)
	require.ErrorIs(t, err, ErrNoExpiry)
}

func TestExpiryMalformed(t *testing.T) {
	t.Parallel()

	_, err := Expiry("not.a.token")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Expiry("")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestRemaining(t *testing.T) {
	t.Parallel()

	now := time.Now().Truncate(time.Second)
	token := signedToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(200 * time.Second)),
		},
	})

	left, err := Remaining(token, now)
	require.NoError(t, err)
	require.Equal(t, 200*time.Second, left)

	left, err = Remaining(token, now.Add(300*time.Second))
	require.NoError(t, err)
	require.Equal(t, -100*time.Second, left)
}

func TestParseUnverifiedReadsIdentity(t *testing.T) {
	t.Parallel()

	token := signedToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-9"},
		Username:         "carol",
		Role:             "examiner",
	})

	claims, err := ParseUnverified(token)
	require.NoError(t, err)
	require.Equal(t, "user-9", claims.Subject)
	require.Equal(t, "carol", claims.Username)
	require.Equal(t, "examiner", claims.Role)
}
