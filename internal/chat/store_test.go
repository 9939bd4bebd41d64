package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/zzeiidann/DNAI/internal/db"
	"github.com/zzeiidann/DNAI/internal/errors"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) tick() { c.t = c.t.Add(time.Minute) }

func openTestStore(t *testing.T) (*Store, *db.Memory, *clock) {
	t.Helper()
	kv := db.NewMemory()
	clk := &clock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	s, err := Open(context.Background(), NewRepository(kv), WithClock(clk.now))
	require.NoError(t, err)
	return s, kv, clk
}

func TestOpen_SeedsGreetingThread(t *testing.T) {
	s, kv, _ := openTestStore(t)

	list := s.List()
	require.Len(t, list, 1)
	require.Equal(t, DefaultTitle, list[0].Title)
	require.Equal(t, []Message{{Role: RoleBot, Content: Greeting}}, list[0].Messages)
	require.Equal(t, list[0].ID, s.ActiveID())

	_, ok, err := kv.Get(context.Background(), db.KeyConversations)
	require.NoError(t, err)
	require.True(t, ok, "seeded thread is persisted")
}

func TestAppendUserTurn_DerivesTitleOnce(t *testing.T) {
	ctx := context.Background()
	s, _, clk := openTestStore(t)

	clk.tick()
	c, err := s.AppendUserTurn(ctx, "  Berapa kalori dalam nasi goreng spesial pakai telur?  ")
	require.NoError(t, err)
	require.Equal(t, "Berapa kalori dalam nasi goren", c.Title)
	require.Equal(t, TitleMaxRunes, utf8.RuneCountInString(c.Title))
	require.Len(t, c.Messages, 2)
	require.Equal(t, clk.t, c.UpdatedAt)

	c, err = s.AppendBotTurn(ctx, "", "Sekitar 600 kkal per porsi.")
	require.NoError(t, err)
	c, err = s.AppendUserTurn(ctx, "Kalau mie goreng?")
	require.NoError(t, err)
	require.Equal(t, "Berapa kalori dalam nasi goren", c.Title, "later turns keep the title")
	require.Len(t, c.Messages, 4)
	require.Equal(t, RoleUser, c.Messages[3].Role)
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Tips diet sehat?", "Tips diet sehat?"},
		{"line one\nline two", "line one line two"},
		{strings.Repeat("é", 40), strings.Repeat("é", 30)},
		{"   ", DefaultTitle},
	}
	for _, tt := range tests {
		if got := DeriveTitle(tt.in); got != tt.want {
			t.Errorf("DeriveTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAppendUserTurn_BlankRejected(t *testing.T) {
	s, _, _ := openTestStore(t)

	_, err := s.AppendUserTurn(context.Background(), " \n\t ")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
	require.Len(t, s.Active().Messages, 1)
}

func TestCreateConversation_BecomesActive(t *testing.T) {
	ctx := context.Background()
	s, _, clk := openTestStore(t)
	first := s.ActiveID()

	clk.tick()
	c, err := s.CreateConversation(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first, c.ID)
	require.Equal(t, c.ID, s.ActiveID())
	require.Len(t, s.List(), 2)
	require.Equal(t, c.ID, s.List()[0].ID, "list is newest first")
}

func TestDeleteConversation_NeverEmpty(t *testing.T) {
	ctx := context.Background()
	s, _, _ := openTestStore(t)
	only := s.ActiveID()

	require.NoError(t, s.DeleteConversation(ctx, only))

	list := s.List()
	require.Len(t, list, 1)
	require.NotEqual(t, only, list[0].ID)
	require.Equal(t, []Message{{Role: RoleBot, Content: Greeting}}, list[0].Messages)
	require.Equal(t, list[0].ID, s.ActiveID())
}

func TestDeleteConversation_ActiveFallsBackToMostRecent(t *testing.T) {
	ctx := context.Background()
	s, _, clk := openTestStore(t)
	a := s.ActiveID()

	clk.tick()
	b, err := s.CreateConversation(ctx)
	require.NoError(t, err)
	clk.tick()
	c, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	// Touch a so it is the most recently updated survivor
	_, err = s.Select(ctx, a)
	require.NoError(t, err)
	clk.tick()
	_, err = s.AppendUserTurn(ctx, "halo")
	require.NoError(t, err)

	_, err = s.Select(ctx, c.ID)
	require.NoError(t, err)
	require.NoError(t, s.DeleteConversation(ctx, c.ID))
	require.Equal(t, a, s.ActiveID())

	// Deleting a non-active thread leaves the active one alone
	require.NoError(t, s.DeleteConversation(ctx, b.ID))
	require.Equal(t, a, s.ActiveID())
	require.Len(t, s.List(), 1)
}

func TestDeleteConversation_UnknownID(t *testing.T) {
	s, _, _ := openTestStore(t)
	err := s.DeleteConversation(context.Background(), "nope")
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)

	_, err = s.Select(context.Background(), "nope")
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s, _, _ := openTestStore(t)
	_, err := s.AppendUserTurn(ctx, "Makanan tinggi protein?")
	require.NoError(t, err)
	_, err = s.AppendBotTurn(ctx, "", "Telur, dada ayam, tempe.")
	require.NoError(t, err)

	c, err := s.Reset(ctx, s.ActiveID())
	require.NoError(t, err)
	require.Equal(t, DefaultTitle, c.Title)
	require.Equal(t, []Message{{Role: RoleBot, Content: Greeting}}, c.Messages)

	c, err = s.AppendUserTurn(ctx, "Tips diet sehat?")
	require.NoError(t, err)
	require.Equal(t, "Tips diet sehat?", c.Title, "reset thread is retitled")
}

func TestReturnedConversationIsACopy(t *testing.T) {
	s, _, _ := openTestStore(t)
	c := s.Active()
	c.Messages[0].Content = "mutated"
	require.Equal(t, Greeting, s.Active().Messages[0].Content)
}

func TestPersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, kv, clk := openTestStore(t)

	_, err := s.AppendUserTurn(ctx, "Kalori nasi goreng?")
	require.NoError(t, err)
	_, err = s.AppendBotTurn(ctx, "", "Sekitar **600 kkal**.")
	require.NoError(t, err)
	clk.tick()
	created, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	reopened, err := Open(ctx, NewRepository(kv))
	require.NoError(t, err)
	require.Equal(t, s.List(), reopened.List())
	require.Equal(t, created.ID, reopened.ActiveID())
}

func TestOpen_DanglingActiveFallsBack(t *testing.T) {
	ctx := context.Background()
	s, kv, _ := openTestStore(t)
	id := s.ActiveID()

	require.NoError(t, kv.Put(ctx, db.KeyActiveConversation, []byte(`"gone"`)))
	reopened, err := Open(ctx, NewRepository(kv))
	require.NoError(t, err)
	require.Equal(t, id, reopened.ActiveID())

	raw, _, err := kv.Get(ctx, db.KeyActiveConversation)
	require.NoError(t, err)
	require.Equal(t, `"`+id+`"`, string(raw))
}

func TestOpen_CorruptState(t *testing.T) {
	tests := []struct {
		name string
		key  string
		data string
	}{
		{"not an array", db.KeyConversations, `{"id":"a"}`},
		{"bad role", db.KeyConversations, `[{"id":"a","messages":[{"role":"system","content":"x"}],"created_at":"2025-06-01T08:00:00Z","updated_at":"2025-06-01T08:00:00Z"}]`},
		{"missing timestamps", db.KeyConversations, `[{"id":"a","messages":[]}]`},
		{"duplicate id", db.KeyConversations, `[{"id":"a","created_at":"2025-06-01T08:00:00Z","updated_at":"2025-06-01T08:00:00Z"},{"id":"a","created_at":"2025-06-01T08:00:00Z","updated_at":"2025-06-01T08:00:00Z"}]`},
		{"active is an object", db.KeyActiveConversation, `{"id":"a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := db.NewMemory()
			require.NoError(t, kv.Put(context.Background(), tt.key, []byte(tt.data)))
			_, err := Open(context.Background(), NewRepository(kv))
			require.True(t, errors.Is(err, errors.ErrCorruptState), "got %v", err)
		})
	}
}

func TestDecodeActive_BareID(t *testing.T) {
	id, err := DecodeActive(db.KeyActiveConversation, []byte("01JX5Z3N2C7A8B9D0E1F2G3H4J"))
	require.NoError(t, err)
	require.Equal(t, "01JX5Z3N2C7A8B9D0E1F2G3H4J", id)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	s, _, _ := openTestStore(t)
	existing := s.Active()

	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	other := Conversation{ID: "imported-1", Title: "Tips diet", Messages: []Message{{Role: RoleUser, Content: "Tips diet sehat?"}}, CreatedAt: at, UpdatedAt: at}
	dup := existing
	dup.Title = "Replaced"

	_, err := s.Import(ctx, []Conversation{other, dup}, ImportModeError)
	require.True(t, errors.Is(err, errors.ErrConflict), "got %v", err)
	require.Len(t, s.List(), 1)

	res, err := s.Import(ctx, []Conversation{other, dup}, ImportModeSkip)
	require.NoError(t, err)
	require.Equal(t, &ImportResult{Imported: 1, Skipped: 1}, res)
	require.Equal(t, existing.ID, s.ActiveID(), "import leaves the active thread alone")

	res, err = s.Import(ctx, []Conversation{dup}, ImportModeReplace)
	require.NoError(t, err)
	require.Equal(t, 1, res.Replaced)
	got, ok := s.Get(existing.ID)
	require.True(t, ok)
	require.Equal(t, "Replaced", got.Title)

	_, err = s.Import(ctx, []Conversation{{ID: " "}}, ImportModeSkip)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func TestReload_PicksUpOtherWriters(t *testing.T) {
	ctx := context.Background()
	s, kv, clk := openTestStore(t)

	other, err := Open(ctx, NewRepository(kv), WithClock(clk.now))
	require.NoError(t, err)
	created, err := other.CreateConversation(ctx)
	require.NoError(t, err)

	_, ok := s.Get(created.ID)
	require.False(t, ok)

	require.NoError(t, s.Reload(ctx))
	_, ok = s.Get(created.ID)
	require.True(t, ok)
	require.Equal(t, created.ID, s.ActiveID())
}

func TestAppendBotTurn_TargetsGivenThread(t *testing.T) {
	ctx := context.Background()
	s, _, _ := openTestStore(t)

	asked, err := s.AppendUserTurn(ctx, "Menu sarapan rendah kalori?")
	require.NoError(t, err)

	other, err := s.CreateConversation(ctx)
	require.NoError(t, err)
	require.Equal(t, other.ID, s.ActiveID())

	c, err := s.AppendBotTurn(ctx, asked.ID, "Oatmeal dengan buah.")
	require.NoError(t, err)
	require.Equal(t, asked.ID, c.ID)
	require.Len(t, c.Messages, 3)

	got, ok := s.Get(other.ID)
	require.True(t, ok)
	require.Len(t, got.Messages, 1, "the newly active thread is untouched")
	require.Equal(t, other.ID, s.ActiveID(), "appending does not change the active thread")
}

func TestAppendBotTurn_UnknownThread(t *testing.T) {
	s, _, _ := openTestStore(t)

	_, err := s.AppendBotTurn(context.Background(), "01JUNKNOWN", "halo")
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
}

func TestConcurrentTurnsAndReload(t *testing.T) {
	ctx := context.Background()
	kv := db.NewMemory()
	s, err := Open(ctx, NewRepository(kv))
	require.NoError(t, err)
	id := s.ActiveID()

	const turns = 8
	var wg sync.WaitGroup
	for i := range turns {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.AppendBotTurn(ctx, id, fmt.Sprintf("balasan %d", i))
			require.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			require.NoError(t, s.Reload(ctx))
		}()
	}
	wg.Wait()

	got, ok := s.Get(id)
	require.True(t, ok)
	require.Len(t, got.Messages, turns+1)

	fresh, err := Open(ctx, NewRepository(kv))
	require.NoError(t, err)
	stored, ok := fresh.Get(id)
	require.True(t, ok)
	require.Len(t, stored.Messages, turns+1)
}
