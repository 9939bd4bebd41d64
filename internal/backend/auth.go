package backend

import (
	"context"
	"net/http"
	"strings"

	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/session"
)

// LoginResponse is returned by /auth/login.
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        session.User `json:"user"`
}

// RegisterResponse is returned by /auth/register.
type RegisterResponse struct {
	Message string       `json:"message"`
	User    session.User `json:"user"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	body, err := jsonBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	var out LoginResponse
	err = c.do(ctx, request{
		op:          "login",
		method:      http.MethodPost,
		path:        "/auth/login",
		contentType: "application/json",
		body:        body,
	}, &out)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, errors.NewBackend(http.StatusOK, "login response has no access_token")
	}
	return &out, nil
}

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, username, email, password string) (*RegisterResponse, error) {
	body, err := jsonBody(map[string]string{"username": username, "email": email, "password": password})
	if err != nil {
		return nil, err
	}

	var out RegisterResponse
	err = c.do(ctx, request{
		op:          "register",
		method:      http.MethodPost,
		path:        "/auth/register",
		contentType: "application/json",
		body:        body,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
