package examapi

import "time"

// ============================================================================
// Auth Types
// ============================================================================

// User is the identity record returned by the auth endpoints.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// LoginRequest is the payload for POST /v1/auth/login.
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// TokenPairResponse is returned by login and refresh: the identity plus
// a fresh access/refresh token pair.
type TokenPairResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ============================================================================
// Notification Types
// ============================================================================

// Notification is a server-held notification record.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse is the API's standard error body.
type ErrorResponse struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}
