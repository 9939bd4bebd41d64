// Package session holds the signed-in user's bearer token and profile.
// A Session is passed explicitly to whatever builds backend requests.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zzeiidann/DNAI/internal/db"
	"github.com/zzeiidann/DNAI/internal/errors"
)

// User is the profile returned by the auth backend. Fields the client does
// not know about are kept in Extra and written back unchanged.
type User struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Username string         `json:"username,omitempty"`
	Email    string         `json:"email,omitempty"`
	Extra    map[string]any `json:"-"`
}

var knownUserFields = map[string]bool{"id": true, "name": true, "username": true, "email": true}

// DisplayName is the name shown in greetings: name, then username, then email.
func (u User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// MarshalJSON merges Extra back into the object.
func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Extra)+4)
	for k, v := range u.Extra {
		out[k] = v
	}
	type plain User
	b, err := json.Marshal(plain(u))
	if err != nil {
		return nil, err
	}
	var known map[string]any
	if err := json.Unmarshal(b, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the known fields and keeps the rest in Extra.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	*u = User(p)
	for k, v := range all {
		if knownUserFields[k] {
			continue
		}
		if u.Extra == nil {
			u.Extra = make(map[string]any)
		}
		u.Extra[k] = v
	}
	return nil
}

// Session is the current authentication state.
type Session struct {
	mu    sync.Mutex
	kv    db.KV
	token string
	user  *User
	now   func() time.Time
}

// Load reads the persisted token and user.
func Load(ctx context.Context, kv db.KV) (*Session, error) {
	s := &Session{kv: kv, now: time.Now}
	token, user, err := read(ctx, kv)
	if err != nil {
		return nil, err
	}
	s.token, s.user = token, user
	return s, nil
}

// Reload re-reads the token and user, picking up a sign-in or sign-out made
// by another process. The session is left unchanged on error.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, user, err := read(ctx, s.kv)
	if err != nil {
		return err
	}
	s.token, s.user = token, user
	return nil
}

func read(ctx context.Context, kv db.KV) (string, *User, error) {
	var token string
	raw, ok, err := kv.Get(ctx, db.KeyToken)
	if err != nil {
		return "", nil, err
	}
	if ok {
		token = strings.TrimSpace(string(raw))
	}

	raw, ok, err = kv.Get(ctx, db.KeyUser)
	if err != nil {
		return "", nil, err
	}
	if !ok || absentUser(raw) {
		return token, nil, nil
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return "", nil, errors.NewCorruptState(db.KeyUser, "expected a user object")
	}
	return token, &u, nil
}

// absentUser reports stored user values that mean "no user". Browser dumps
// may contain the literal "undefined".
func absentUser(raw []byte) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "undefined":
		return true
	}
	return false
}

// New returns an in-memory session that is not persisted, for tests and
// one-shot callers.
func New(token string, user *User) *Session {
	return &Session{kv: db.NewMemory(), token: token, user: user, now: time.Now}
}

// Set stores a new token and user, replacing any previous session.
func (s *Session) Set(ctx context.Context, token string, user User) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.NewInvalidRequest("token is required")
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return errors.NewInternal(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Put(ctx, db.KeyToken, []byte(token)); err != nil {
		return err
	}
	if err := s.kv.Put(ctx, db.KeyUser, raw); err != nil {
		return err
	}
	s.token = token
	s.user = &user
	return nil
}

// Clear signs out: both keys are removed.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, db.KeyToken); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, db.KeyUser); err != nil {
		return err
	}
	s.token = ""
	s.user = nil
	return nil
}

// Token returns the bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns the signed-in user, or nil.
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// ExpiresAt reads the exp claim of a JWT token without verifying its
// signature. ok is false for opaque tokens and tokens without exp.
func (s *Session) ExpiresAt() (time.Time, bool) {
	return expiry(s.Token())
}

func expiry(token string) (time.Time, bool) {
	if token == "" || strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Authenticated reports whether a token is present and, for JWTs, not expired.
func (s *Session) Authenticated() bool {
	token := s.Token()
	if token == "" {
		return false
	}
	if exp, ok := expiry(token); ok && !s.now().Before(exp) {
		return false
	}
	return true
}

// AuthHeader returns the Authorization header value, or "" when signed out.
func (s *Session) AuthHeader() string {
	token := s.Token()
	if token == "" {
		return ""
	}
	return "Bearer " + token
}
