package examapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoginSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/auth/login", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "alice", req.Username)
		require.True(t, req.RememberMe)

		_ = json.NewEncoder(w).Encode(TokenPairResponse{
			User:         User{ID: "u1", Username: "alice", Role: "student"},
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	pair, err := client.Login(context.Background(), LoginRequest{
		Username: "alice", Password: "pw", RememberMe: true,
	})
	require.NoError(t, err)
	require.Equal(t, "access-1", pair.AccessToken)
	require.Equal(t, "refresh-1", pair.RefreshToken)
	require.Equal(t, "alice", pair.User.Username)
}

func TestLoginErrorStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{"invalid credentials", http.StatusUnauthorized, `{"error":"invalid_credentials","message":"bad username or password"}`, "invalid_credentials"},
		{"account locked", http.StatusLocked, `{"error":"account_locked","message":"too many attempts"}`, "account_locked"},
		{"opaque failure", http.StatusInternalServerError, `nonsense`, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL)
			_, err := client.Login(context.Background(), LoginRequest{Username: "x", Password: "y"})
			require.Error(t, err)

			apiErr, ok := err.(*APIError)
			require.True(t, ok)
			require.Equal(t, tt.status, apiErr.StatusCode)
			require.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func TestAuthenticatedRequestsCarryBearerToken(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/v1/notifications":
			_ = json.NewEncoder(w).Encode([]Notification{{ID: "n1", Message: "hello"}})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	client.Token = func() string { return "tok-123" }

	list, err := client.GetNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Bearer tok-123", gotAuth)

	require.NoError(t, client.MarkNotificationAsRead(context.Background(), "n1"))
	require.Equal(t, "Bearer tok-123", gotAuth)

	require.NoError(t, client.MarkAllNotificationsAsRead(context.Background()))
}

func TestMarkNotificationAsReadEscapesID(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.MarkNotificationAsRead(context.Background(), "a/b"))
	require.Equal(t, "/v1/notifications/a%2Fb/read", gotPath)
}

func TestRefreshToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/auth/refresh", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "refresh-old", body["refresh_token"])

		_ = json.NewEncoder(w).Encode(TokenPairResponse{
			AccessToken:  "access-new",
			RefreshToken: "refresh-new",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	pair, err := client.RefreshToken(context.Background(), "refresh-old")
	require.NoError(t, err)
	require.Equal(t, "access-new", pair.AccessToken)
	require.Equal(t, "refresh-new", pair.RefreshToken)
}

func TestNoContentEndpoints(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()
	require.NoError(t, client.ForgotPassword(ctx, "a@example.com"))
	require.NoError(t, client.ResetPassword(ctx, "tok", "newpw"))
	require.NoError(t, client.VerifyEmail(ctx, "tok"))
	require.NoError(t, client.ResendVerification(ctx, "a@example.com"))
	require.NoError(t, client.Logout(ctx))
}
