/*
Package examapi provides a client for the exam platform's REST API.

# Overview

The package wraps the auth endpoints (login, logout, refresh, password
recovery, email verification) and the notification endpoints (list,
mark-as-read) behind a single Client. Authenticated endpoints obtain
their bearer token from a TokenProvider func, so the session manager can
stay the single owner of the credential:

	client := examapi.NewClient("https://api.exams.example.com")
	client.Token = func() string { return session.AccessToken() }

	pair, err := client.Login(ctx, examapi.LoginRequest{
		Username: "alice",
		Password: "s3cret",
	})

# Errors

Failures decode into *APIError carrying the HTTP status code, the
server's machine-readable code and message when present, or a generic
message otherwise:

	var apiErr *examapi.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusLocked {
		// account locked
	}

The caller decides what each status means; this package only transports.
*/
package examapi
