package session

import "github.com/opencampus/examdesk/pkg/examapi"

// Storage keys. CredentialKey is encrypted at rest; RememberKey is a
// bare flag other processes may probe without decrypting anything.
const (
	CredentialKey = "examdesk.session"
	RememberKey   = "examdesk.remember"
)

// Credential is the authenticated identity and its token pair. It is
// either entirely absent (unauthenticated) or fully populated; partial
// states are never persisted.
type Credential struct {
	User         examapi.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	RememberMe   bool         `json:"remember_me"`
}

// clone returns a copy so callers can't mutate the manager's state.
func (c *Credential) clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// ProfileUpdate carries a partial identity update. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	DisplayName *string
	Email       *string
	AvatarURL   *string
}

func (u ProfileUpdate) apply(user *examapi.User) {
	if u.DisplayName != nil {
		user.DisplayName = *u.DisplayName
	}
	if u.Email != nil {
		user.Email = *u.Email
	}
	if u.AvatarURL != nil {
		user.AvatarURL = *u.AvatarURL
	}
}
