package ops

import (
	"context"
	"io"
	"time"

	"github.com/zzeiidann/DNAI/internal/backend"
	"github.com/zzeiidann/DNAI/internal/chat"
	"github.com/zzeiidann/DNAI/internal/db"
	"github.com/zzeiidann/DNAI/internal/ledger"
	"github.com/zzeiidann/DNAI/internal/session"
)

// Limits
const (
	DefaultRecentLimit = 3
	MaxRecentLimit     = 50
)

// Analyzer recognizes food in an image.
type Analyzer interface {
	AnalyzeFood(ctx context.Context, filename string, image io.Reader) (*backend.Analysis, error)
}

// Chatter produces an assistant reply for one user message.
type Chatter interface {
	Chat(ctx context.Context, message string) (string, error)
}

// Authenticator signs users in and up.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResponse, error)
	Register(ctx context.Context, username, email, password string) (*backend.RegisterResponse, error)
}

// State is the loaded client state every surface works on.
type State struct {
	KV      db.KV
	Ledger  *ledger.Ledger
	Chat    *chat.Store
	Session *session.Session
}

// StateOption configures LoadState.
type StateOption func(*stateOptions)

type stateOptions struct {
	now func() time.Time
}

// WithClock overrides time.Now for the ledger and the conversation store.
func WithClock(now func() time.Time) StateOption {
	return func(o *stateOptions) { o.now = now }
}

// LoadState reads the ledger, conversations, and session from kv.
func LoadState(ctx context.Context, kv db.KV, opts ...StateOption) (*State, error) {
	o := stateOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	l, err := ledger.Open(ctx, ledger.NewRepository(kv), ledger.WithClock(o.now))
	if err != nil {
		return nil, err
	}
	store, err := chat.Open(ctx, chat.NewRepository(kv), chat.WithClock(o.now))
	if err != nil {
		return nil, err
	}
	sess, err := session.Load(ctx, kv)
	if err != nil {
		return nil, err
	}
	return &State{KV: kv, Ledger: l, Chat: store, Session: sess}, nil
}

// Reload re-reads the ledger, conversations, and session so a long-running
// server sees writes made by CLI commands, including login and logout.
func (st *State) Reload(ctx context.Context) error {
	if err := st.Ledger.Reload(ctx); err != nil {
		return err
	}
	if err := st.Chat.Reload(ctx); err != nil {
		return err
	}
	return st.Session.Reload(ctx)
}
