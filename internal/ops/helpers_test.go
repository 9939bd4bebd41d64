package ops

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zzeiidann/DNAI/internal/backend"
	"github.com/zzeiidann/DNAI/internal/db"
	"github.com/zzeiidann/DNAI/internal/session"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func newTestState(t *testing.T) *State {
	t.Helper()
	st, err := LoadState(context.Background(), db.NewMemory(), WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return st
}

type fakeAnalyzer struct {
	result   *backend.Analysis
	err      error
	gotName  string
	gotBytes []byte
}

func (f *fakeAnalyzer) AnalyzeFood(_ context.Context, filename string, image io.Reader) (*backend.Analysis, error) {
	f.gotName = filename
	f.gotBytes, _ = io.ReadAll(image)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeChatter struct {
	reply string
	err   error
	calls []string
}

func (f *fakeChatter) Chat(_ context.Context, message string) (string, error) {
	f.calls = append(f.calls, message)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeAuth struct {
	token    string
	user     session.User
	err      error
	register *backend.RegisterResponse
	calls    int
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (*backend.LoginResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	u := f.user
	if u.Email == "" {
		u.Email = email
	}
	return &backend.LoginResponse{AccessToken: f.token, TokenType: "bearer", User: u}, nil
}

func (f *fakeAuth) Register(_ context.Context, username, email, _ string) (*backend.RegisterResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.register != nil {
		return f.register, nil
	}
	return &backend.RegisterResponse{User: session.User{Username: username, Email: email}}, nil
}
