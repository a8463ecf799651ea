package examapi

import (
	"net/http"
	"strings"
	"time"
)

// TokenProvider supplies the current bearer access token for
// authenticated requests. The session manager is the usual provider, so
// a token refreshed mid-flight is picked up on the next call.
type TokenProvider func() string

// Client is a client for the exam platform's REST API. It covers the
// auth endpoints (login, refresh, password recovery, email verification)
// and the notification endpoints consumed by the notification cache.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Token supplies the access token for authenticated endpoints.
	// May be nil for clients that only perform unauthenticated calls.
	Token TokenProvider
}

// NewClient creates a new API client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}
