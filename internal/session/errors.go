package session

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/opencampus/examdesk/pkg/examapi"
)

// AuthErrorKind classifies authentication failures for UI presentation.
type AuthErrorKind string

const (
	KindInvalidCredentials AuthErrorKind = "invalid_credentials"
	KindAccountLocked      AuthErrorKind = "account_locked"
	KindNoRefreshToken     AuthErrorKind = "no_refresh_token"
	KindUnknown            AuthErrorKind = "unknown"
)

// AuthError is the typed failure returned by user-invoked session
// operations. Background maintenance never returns these to callers;
// it logs them instead.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	cause   error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("auth: %s", e.Kind)
}

func (e *AuthError) Unwrap() error { return e.cause }

// Is matches any *AuthError with the same Kind, so callers can compare
// against the sentinels below with errors.Is.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidCredentials = &AuthError{Kind: KindInvalidCredentials}
	ErrAccountLocked      = &AuthError{Kind: KindAccountLocked}
	ErrNoRefreshToken     = &AuthError{Kind: KindNoRefreshToken}
)

// classifyAPIError maps an API failure to the auth taxonomy: 401 is bad
// credentials, 423 a locked account, anything else is Unknown carrying
// the server-supplied message when present.
func classifyAPIError(err error) *AuthError {
	var apiErr *examapi.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return &AuthError{Kind: KindInvalidCredentials, Message: apiErr.Message, cause: err}
		case http.StatusLocked:
			return &AuthError{Kind: KindAccountLocked, Message: apiErr.Message, cause: err}
		default:
			return &AuthError{Kind: KindUnknown, Message: apiErr.Message, cause: err}
		}
	}
	return &AuthError{Kind: KindUnknown, Message: err.Error(), cause: err}
}
