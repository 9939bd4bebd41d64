package ops

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/session"
)

// MinPasswordLength is the shortest password registration accepts.
const MinPasswordLength = 6

// LoginInput contains parameters for the Login operation.
type LoginInput struct {
	Email    string
	Password string
}

// LoginOutput contains the result of the Login operation.
type LoginOutput struct {
	User      session.User `json:"user"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

// Login exchanges credentials for a token and stores it in the session.
func Login(ctx context.Context, auth Authenticator, sess *session.Session, input LoginInput) (*LoginOutput, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, errors.NewInvalidRequest("email is required")
	}
	if input.Password == "" {
		return nil, errors.NewInvalidRequest("password is required")
	}

	resp, err := auth.Login(ctx, email, input.Password)
	if err != nil {
		return nil, err
	}
	if err := sess.Set(ctx, resp.AccessToken, resp.User); err != nil {
		return nil, err
	}

	out := &LoginOutput{User: resp.User}
	if exp, ok := sess.ExpiresAt(); ok {
		out.ExpiresAt = &exp
	}
	return out, nil
}

// RegisterInput contains the registration form.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// RegisterOutput contains the result of the Register operation.
type RegisterOutput struct {
	Message string       `json:"message"`
	User    session.User `json:"user"`
}

// Register validates the form and creates an account. The caller still
// has to log in afterwards.
func Register(ctx context.Context, auth Authenticator, input RegisterInput) (*RegisterOutput, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	if username == "" {
		return nil, errors.NewInvalidRequest("username is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.NewInvalidRequest("email is not valid")
	}
	if input.Password != input.ConfirmPassword {
		return nil, errors.NewInvalidRequest("Password tidak cocok")
	}
	if utf8.RuneCountInString(input.Password) < MinPasswordLength {
		return nil, errors.NewInvalidRequest("Password minimal 6 karakter")
	}

	resp, err := auth.Register(ctx, username, email, input.Password)
	if err != nil {
		return nil, err
	}
	msg := resp.Message
	if msg == "" {
		msg = "Registrasi berhasil"
	}
	return &RegisterOutput{Message: msg, User: resp.User}, nil
}

// Logout clears the stored session.
func Logout(ctx context.Context, sess *session.Session) error {
	return sess.Clear(ctx)
}

// WhoAmIOutput describes the current session.
type WhoAmIOutput struct {
	Authenticated bool          `json:"authenticated"`
	User          *session.User `json:"user,omitempty"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
}

// WhoAmI reports the current session without contacting the backend.
func WhoAmI(sess *session.Session) *WhoAmIOutput {
	out := &WhoAmIOutput{
		Authenticated: sess.Authenticated(),
		User:          sess.User(),
	}
	if exp, ok := sess.ExpiresAt(); ok {
		out.ExpiresAt = &exp
	}
	return out
}
