package backend

import (
	"context"
	"net/http"
	"strings"

	"github.com/zzeiidann/DNAI/internal/errors"
)

// Chat sends one user message and returns the assistant's reply.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	body, err := jsonBody(map[string]string{"message": message})
	if err != nil {
		return "", err
	}

	var out struct {
		Response *string `json:"response"`
	}
	err = c.do(ctx, request{
		op:          "chat",
		method:      http.MethodPost,
		path:        "/chat",
		contentType: "application/json",
		body:        body,
		authed:      true,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Response == nil || strings.TrimSpace(*out.Response) == "" {
		return "", errors.NewBackend(http.StatusOK, "chat response is empty")
	}
	return *out.Response, nil
}
