package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed reports a token that could not be parsed at all.
	ErrMalformed = errors.New("jwtx: malformed token")

	// ErrNoExpiry reports a token without an exp claim.
	ErrNoExpiry = errors.New("jwtx: token has no expiry claim")
)

// Claims are the access-token claims the exam platform embeds. The client
// never verifies signatures; the server is the authority and invalid
// tokens surface as 401s on first use. We only ever read the claims.
type Claims struct {
	jwt.RegisteredClaims

	// Username for the authenticated user
	Username string `json:"username,omitempty"`

	// Role is the platform role ("student", "examiner", "admin")
	Role string `json:"role,omitempty"`
}

// ParseUnverified decodes a token's claims without verifying its
// signature.
func ParseUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, ErrMalformed
	}
	return claims, nil
}

// Expiry returns the exp claim of an encoded token. This is what the
// session manager's expiry watch runs on.
func Expiry(token string) (time.Time, error) {
	claims, err := ParseUnverified(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// Remaining returns the lifetime left on an encoded token at the given
// instant. Negative values mean the token is already expired.
func Remaining(token string, now time.Time) (time.Duration, error) {
	exp, err := Expiry(token)
	if err != nil {
		return 0, err
	}
	return exp.Sub(now), nil
}
