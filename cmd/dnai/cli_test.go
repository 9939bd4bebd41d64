package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zzeiidann/DNAI/internal/backend"
	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/db"
	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/ops"
	"github.com/zzeiidann/DNAI/internal/prefs"
	"github.com/zzeiidann/DNAI/internal/session"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func confidence(v float64) *float64 { return &v }

// fakeBackend answers every backend call without a network.
type fakeBackend struct {
	analysis  *backend.Analysis
	reply     string
	chatErr   error
	loginErr  error
	healthErr error
	passwords []string
	messages  []string
}

func (f *fakeBackend) AnalyzeFood(_ context.Context, _ string, image io.Reader) (*backend.Analysis, error) {
	_, _ = io.ReadAll(image)
	return f.analysis, nil
}

func (f *fakeBackend) Chat(_ context.Context, message string) (string, error) {
	f.messages = append(f.messages, message)
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.reply, nil
}

func (f *fakeBackend) Login(_ context.Context, email, password string) (*backend.LoginResponse, error) {
	f.passwords = append(f.passwords, password)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &backend.LoginResponse{
		AccessToken: "opaque-token",
		TokenType:   "bearer",
		User:        session.User{Username: "sari", Email: email},
	}, nil
}

func (f *fakeBackend) Register(_ context.Context, username, email, password string) (*backend.RegisterResponse, error) {
	f.passwords = append(f.passwords, password)
	return &backend.RegisterResponse{Message: "User registered", User: session.User{Username: username, Email: email}}, nil
}

func (f *fakeBackend) Health(context.Context) (*backend.HealthStatus, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &backend.HealthStatus{Status: "ok"}, nil
}

// setupTestEnv loads state from an in-memory store on a fixed clock.
func setupTestEnv(t *testing.T) (*cliEnv, *fakeBackend) {
	t.Helper()
	st, err := ops.LoadState(context.Background(), db.NewMemory(), ops.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	fb := &fakeBackend{reply: "Perbanyak sayur."}
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true
	return &cliEnv{st: st, cfg: cfg, backend: fb, logger: zap.NewNop(), stdin: strings.NewReader("")}, fb
}

// run executes one command and returns its stdout.
func run(t *testing.T, env *cliEnv, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp(env)
	var buf bytes.Buffer
	app.Writer = &buf
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"dnai"}, args...))
	return buf.String(), err
}

func runJSON(t *testing.T, env *cliEnv, out any, args ...string) {
	t.Helper()
	stdout, err := run(t, env, args...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(stdout), out), "output: %s", stdout)
}

func TestCLIAddAndEntries(t *testing.T) {
	env, _ := setupTestEnv(t)

	var added ops.AddEntryOutput
	runJSON(t, env, &added, "add", "--name", "Nasi Goreng", "--calories", "650", "--protein", "20.5", "--carbs", "80", "--fat", "25")
	require.NotEmpty(t, added.Entry.ID)
	require.Equal(t, 650, added.Entry.Calories)
	require.True(t, added.Entry.Manual)
	require.Equal(t, 650, added.Totals.Calories)

	var list ops.ListEntriesOutput
	runJSON(t, env, &list, "entries")
	require.Equal(t, 1, list.Count)
	require.Equal(t, "Nasi Goreng", list.Entries[0].Name)
	require.InDelta(t, 20.5, list.Totals.Protein, 1e-9)

	var past ops.ListEntriesOutput
	runJSON(t, env, &past, "entries", "--date", "2025-05-31")
	require.Equal(t, 0, past.Count)
}

func TestCLIAdd_Errors(t *testing.T) {
	env, _ := setupTestEnv(t)

	_, err := run(t, env, "add", "--name", "   ", "--calories", "100")
	require.Error(t, err)
	require.Contains(t, err.Error(), "[INVALID_REQUEST]")

	_, err = run(t, env, "add", "--name", "Tempe", "--date", "01-06-2025")
	require.Error(t, err)
	require.Contains(t, err.Error(), "[INVALID_REQUEST]")

	require.Empty(t, env.st.Ledger.Entries())
}

func TestCLIDelete(t *testing.T) {
	env, _ := setupTestEnv(t)

	var added ops.AddEntryOutput
	runJSON(t, env, &added, "add", "--name", "Tahu", "--calories", "80")

	var deleted ops.DeleteEntryOutput
	runJSON(t, env, &deleted, "delete", added.Entry.ID)
	require.True(t, deleted.Deleted)
	require.Empty(t, env.st.Ledger.Entries())

	runJSON(t, env, &deleted, "delete", added.Entry.ID)
	require.False(t, deleted.Deleted)

	_, err := run(t, env, "delete")
	require.Error(t, err)
	require.Contains(t, err.Error(), "id is required")
}

func TestCLISummary(t *testing.T) {
	env, _ := setupTestEnv(t)
	runJSON(t, env, &ops.AddEntryOutput{}, "add", "--name", "Bubur Ayam", "--calories", "400", "--protein", "15")
	runJSON(t, env, &ops.AddEntryOutput{}, "add", "--name", "Soto", "--calories", "850", "--protein", "45.5")

	var summary ops.SummaryOutput
	runJSON(t, env, &summary, "summary")
	require.Equal(t, 1250, summary.Totals.Calories)
	require.Equal(t, 2000, summary.Goal)
	require.Equal(t, 750, summary.Remaining)
	require.Len(t, summary.Recent, 2)
	require.Equal(t, "Soto", summary.Recent[0].Name)

	runJSON(t, env, &summary, "summary", "--goal", "1000", "--recent", "1")
	require.Equal(t, -250, summary.Remaining)
	require.InDelta(t, 100, summary.Progress, 1e-9)
	require.Len(t, summary.Recent, 1)

	text, err := run(t, env, "summary", "--text")
	require.NoError(t, err)
	require.Contains(t, text, "1,250 / 2,000 kkal (63%)")
	require.Contains(t, text, "sisa 750 kkal")
	require.Contains(t, text, "protein 60.5 g")

	text, err = run(t, env, "summary", "--text", "--goal", "1000")
	require.NoError(t, err)
	require.Contains(t, text, "lebih 250 kkal")
}

func TestCLIAnalyze(t *testing.T) {
	env, fb := setupTestEnv(t)
	fb.analysis = &backend.Analysis{FoodName: "Sate Ayam", Calories: 450, Protein: 30, Carbs: 12, Fat: 28, Confidence: confidence(0.92)}

	path := filepath.Join(t.TempDir(), "sate.png")
	require.NoError(t, os.WriteFile(path, pngBytes, 0o600))

	var out ops.AnalyzeFoodOutput
	runJSON(t, env, &out, "analyze", path)
	require.Equal(t, "Sate Ayam", out.Analysis.FoodName)
	require.Nil(t, out.Entry)
	require.Empty(t, env.st.Ledger.Entries())

	runJSON(t, env, &out, "analyze", "--track", path)
	require.NotNil(t, out.Entry)
	require.False(t, out.Entry.Manual)
	require.Len(t, env.st.Ledger.Entries(), 1)

	_, err := run(t, env, "analyze", filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "[NOT_FOUND]")

	_, err = run(t, env, "analyze")
	require.Error(t, err)
	require.Contains(t, err.Error(), "[INVALID_REQUEST]")
}

func TestCLIChat(t *testing.T) {
	env, fb := setupTestEnv(t)

	var out ops.SendChatOutput
	runJSON(t, env, &out, "chat", "Berapa", "kalori", "nasi?")
	require.False(t, out.Failed)
	require.Equal(t, "Perbanyak sayur.", out.Reply)
	require.Equal(t, []string{"Berapa kalori nasi?"}, fb.messages)
	require.Len(t, out.Conversation.Messages, 3)

	t.Run("message from stdin", func(t *testing.T) {
		env.stdin = strings.NewReader("Apa itu serat?\n")
		runJSON(t, env, &out, "chat")
		require.Equal(t, "Apa itu serat?", fb.messages[len(fb.messages)-1])
	})

	t.Run("backend failure appends apology", func(t *testing.T) {
		fb.chatErr = errors.NewBackend(500, "boom")
		runJSON(t, env, &out, "chat", "Halo")
		require.True(t, out.Failed)
		require.NotEmpty(t, out.Reply)
		fb.chatErr = nil
	})

	t.Run("blank message", func(t *testing.T) {
		env.stdin = strings.NewReader("")
		_, err := run(t, env, "chat")
		require.Error(t, err)
		require.Contains(t, err.Error(), "[INVALID_REQUEST]")
	})
}

func TestCLIConversations(t *testing.T) {
	env, _ := setupTestEnv(t)

	var list ops.ListConversationsOutput
	runJSON(t, env, &list, "conversations", "list")
	require.Len(t, list.Conversations, 1)
	first := list.ActiveID

	var created struct {
		ID string `json:"id"`
	}
	runJSON(t, env, &created, "conversations", "new")
	require.NotEqual(t, first, created.ID)

	runJSON(t, env, &list, "conv", "list")
	require.Len(t, list.Conversations, 2)
	require.Equal(t, created.ID, list.ActiveID)

	runJSON(t, env, &created, "conversations", "select", first)
	require.Equal(t, first, env.st.Chat.ActiveID())

	var shown struct {
		ID       string            `json:"id"`
		Messages []json.RawMessage `json:"messages"`
	}
	runJSON(t, env, &shown, "conversations", "show")
	require.Equal(t, first, shown.ID)
	require.Len(t, shown.Messages, 1)

	runJSON(t, env, &ops.SendChatOutput{}, "chat", "Halo")
	runJSON(t, env, &shown, "conversations", "reset", first)
	require.Len(t, shown.Messages, 1)

	var deleted ops.DeleteConversationOutput
	runJSON(t, env, &deleted, "conversations", "delete", first)
	require.True(t, deleted.Deleted)
	require.Len(t, env.st.Chat.List(), 1)

	_, err := run(t, env, "conversations", "select", "nope")
	require.Error(t, err)
	require.Contains(t, err.Error(), "[NOT_FOUND]")
}

func TestCLIAuth(t *testing.T) {
	env, fb := setupTestEnv(t)

	var who ops.WhoAmIOutput
	runJSON(t, env, &who, "whoami")
	require.False(t, who.Authenticated)

	var login ops.LoginOutput
	runJSON(t, env, &login, "login", "--email", "sari@example.com", "--password", "rahasia")
	require.Equal(t, "sari", login.User.Username)
	require.True(t, env.st.Session.Authenticated())

	runJSON(t, env, &who, "whoami")
	require.True(t, who.Authenticated)
	require.Equal(t, "sari@example.com", who.User.Email)

	runJSON(t, env, &who, "logout")
	require.False(t, who.Authenticated)
	require.False(t, env.st.Session.Authenticated())

	t.Run("password from stdin", func(t *testing.T) {
		env.stdin = strings.NewReader("dari-stdin\nignored\n")
		runJSON(t, env, &login, "login", "--email", "sari@example.com")
		require.Equal(t, "dari-stdin", fb.passwords[len(fb.passwords)-1])
	})

	t.Run("rejected login", func(t *testing.T) {
		require.NoError(t, env.st.Session.Clear(context.Background()))
		fb.loginErr = errors.NewUnauthenticated("Incorrect email or password")
		_, err := run(t, env, "login", "--email", "sari@example.com", "--password", "salah")
		require.Error(t, err)
		require.Contains(t, err.Error(), "[UNAUTHENTICATED]")
		require.False(t, env.st.Session.Authenticated())
		fb.loginErr = nil
	})
}

func TestCLIRegister(t *testing.T) {
	env, fb := setupTestEnv(t)

	var out ops.RegisterOutput
	runJSON(t, env, &out, "register", "--username", "sari", "--email", "sari@example.com", "--password", "rahasia")
	require.Equal(t, "sari", out.User.Username)
	require.False(t, env.st.Session.Authenticated())

	calls := len(fb.passwords)
	_, err := run(t, env, "register", "--username", "sari", "--email", "sari@example.com", "--password", "rahasia", "--confirm", "lain")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Password tidak cocok")

	_, err = run(t, env, "register", "--username", "sari", "--email", "sari@example.com", "--password", "123")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Password minimal 6 karakter")
	require.Len(t, fb.passwords, calls)
}

func TestCLITheme(t *testing.T) {
	env, _ := setupTestEnv(t)

	var out map[string]string
	runJSON(t, env, &out, "theme")
	require.Equal(t, "dark", out["theme"])

	runJSON(t, env, &out, "theme", "toggle")
	require.Equal(t, "light", out["theme"])

	runJSON(t, env, &out, "theme", "DARK")
	require.Equal(t, "dark", out["theme"])

	got, err := prefs.GetTheme(context.Background(), env.st.KV)
	require.NoError(t, err)
	require.Equal(t, prefs.ThemeDark, got)

	_, err = run(t, env, "theme", "blue")
	require.Error(t, err)
	require.Contains(t, err.Error(), "[INVALID_REQUEST]")
}

func TestCLIExportImport(t *testing.T) {
	env, _ := setupTestEnv(t)
	runJSON(t, env, &ops.AddEntryOutput{}, "add", "--name", "Gado-gado", "--calories", "350")
	runJSON(t, env, &ops.SendChatOutput{}, "chat", "Halo")

	path := filepath.Join(t.TempDir(), "backup.jsonl")

	var exported ops.ExportOutput
	runJSON(t, env, &exported, "export", "--path", path)
	require.Equal(t, path, exported.Path)
	require.Equal(t, 1, exported.Entries)
	require.Equal(t, 1, exported.Conversations)

	t.Run("collision in error mode", func(t *testing.T) {
		var imported ops.ImportOutput
		runJSON(t, env, &imported, "import", path)
		require.Len(t, imported.Errors, 2)
		for _, e := range imported.Errors {
			require.Equal(t, "ID_COLLISION", e.Code)
		}
		require.Zero(t, imported.Entries.Imported)
		require.Len(t, env.st.Ledger.Entries(), 1)
	})

	t.Run("fresh state", func(t *testing.T) {
		fresh, _ := setupTestEnv(t)
		fresh.cfg = env.cfg

		var imported ops.ImportOutput
		runJSON(t, fresh, &imported, "import", "--mode", "skip", path)
		require.Equal(t, 1, imported.Entries.Imported)
		require.Len(t, fresh.st.Ledger.Entries(), 1)
		require.Equal(t, "Gado-gado", fresh.st.Ledger.Entries()[0].Name)
	})

	t.Run("bad mode", func(t *testing.T) {
		_, err := run(t, env, "import", "--mode", "merge", path)
		require.Error(t, err)
		require.Contains(t, err.Error(), "[INVALID_REQUEST]")
	})
}

func TestCLIHealth(t *testing.T) {
	env, fb := setupTestEnv(t)

	var status backend.HealthStatus
	runJSON(t, env, &status, "health")
	require.Equal(t, "ok", status.Status)

	fb.healthErr = errors.NewBackendUnreachable(io.ErrUnexpectedEOF)
	_, err := run(t, env, "health")
	require.Error(t, err)
	require.Contains(t, err.Error(), "[BACKEND_ERROR]")
}

func TestCLIServe_RejectsBadPort(t *testing.T) {
	env, _ := setupTestEnv(t)
	_, err := run(t, env, "serve", "--port", "70000")
	require.Error(t, err)
	require.Contains(t, err.Error(), "port must be between 1 and 65535")
}

func TestCLIHelpWithoutState(t *testing.T) {
	app := newCLIApp(nil)
	var buf bytes.Buffer
	app.Writer = &buf
	require.NoError(t, app.Run([]string{"dnai", "--help"}))
	for _, name := range []string{"add", "summary", "analyze", "chat", "conversations", "export", "import", "serve"} {
		require.Contains(t, buf.String(), name)
	}
}

func TestGrams(t *testing.T) {
	require.Equal(t, "60.5", grams(60.5))
	require.Equal(t, "12", grams(12))
	require.Equal(t, "1,234.5", grams(1234.5))
}
