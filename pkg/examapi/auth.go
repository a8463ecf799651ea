package examapi

import (
	"context"
	"net/http"
)

// Login authenticates with username and password and returns the
// identity plus a token pair. Distinguished failures: 401 invalid
// credentials, 423 account locked.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenPairResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/login", req)
	if err != nil {
		return nil, err
	}

	var pair TokenPairResponse
	if err := decodeJSON(resp, &pair, http.StatusOK); err != nil {
		return nil, err
	}
	return &pair, nil
}

// Logout invalidates the current session server-side. The access token
// is carried via the client's token provider.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/logout", nil)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// RefreshToken exchanges a refresh token for a new token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenPairResponse, error) {
	body := map[string]string{"refresh_token": refreshToken}
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/refresh", body)
	if err != nil {
		return nil, err
	}

	var pair TokenPairResponse
	if err := decodeJSON(resp, &pair, http.StatusOK); err != nil {
		return nil, err
	}
	return &pair, nil
}

// ForgotPassword requests a password-reset email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/forgot-password", body)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// ResetPassword completes a password reset using the emailed token.
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	body := map[string]string{"token": token, "password": password}
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/reset-password", body)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// VerifyEmail confirms an email address using the emailed token.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	body := map[string]string{"token": token}
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/verify-email", body)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// ResendVerification re-sends the verification email.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/resend-verification", body)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}
