package ops

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zzeiidann/DNAI/internal/backend"
	"github.com/zzeiidann/DNAI/internal/chat"
	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/db"
)

// TestWorkflow runs a day of use against the sqlite store and reopens it.
func TestWorkflow(t *testing.T) {
	ctx := context.Background()
	baseDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{baseDir}

	sqlDB, err := db.Init(baseDir)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	kv := db.NewStore(sqlDB)
	clock := WithClock(func() time.Time { return testNow })

	st, err := LoadState(ctx, kv, clock)
	require.NoError(t, err)

	// Manual entries
	added, err := AddEntry(ctx, st.Ledger, AddEntryInput{Name: "Nasi Goreng", Calories: "600", Protein: "20", Carbs: "80", Fat: "15"})
	require.NoError(t, err)
	_, err = AddEntry(ctx, st.Ledger, AddEntryInput{Name: "Kopi Susu", Calories: "150"})
	require.NoError(t, err)

	// Analyzer result tracked
	analyzer := &fakeAnalyzer{result: &backend.Analysis{FoodName: "Sate Ayam", Calories: 350, Protein: 25, Carbs: 10, Fat: 22, Confidence: confidence(0.91)}}
	analyzed, err := AnalyzeFood(ctx, analyzer, st.Ledger, cfg, AnalyzeFoodInput{Filename: "sate.png", Image: bytes.NewReader(pngBytes), Track: true})
	require.NoError(t, err)
	require.NotNil(t, analyzed.Entry)

	sum, err := Summary(st.Ledger, cfg, SummaryInput{})
	require.NoError(t, err)
	require.Equal(t, 1100, sum.Totals.Calories)
	require.Equal(t, 900, sum.Remaining)
	require.InDelta(t, 55.0, sum.Progress, 1e-9)
	require.Len(t, sum.Recent, 3)
	require.Equal(t, "Sate Ayam", sum.Recent[0].Name)

	// Chat
	sent, err := SendChat(ctx, st.Chat, &fakeChatter{reply: "**Nasi goreng** sekitar 600 kkal."}, SendChatInput{Message: "Kalori nasi goreng?"})
	require.NoError(t, err)
	require.Equal(t, "Kalori nasi goreng?", sent.Conversation.Title)
	require.Len(t, sent.Conversation.Messages, 3)

	// Export
	exported, err := Export(ctx, st, cfg, ExportInput{Path: filepath.Join(baseDir, "day.jsonl")})
	require.NoError(t, err)
	require.Equal(t, 3, exported.Entries)

	// Delete
	del, err := DeleteEntry(ctx, st.Ledger, DeleteEntryInput{ID: added.Entry.ID})
	require.NoError(t, err)
	require.True(t, del.Deleted)

	// Reopen from disk
	reopened, err := LoadState(ctx, kv, clock)
	require.NoError(t, err)
	require.Len(t, reopened.Ledger.Entries(), 2)
	require.Equal(t, sent.Conversation.ID, reopened.Chat.ActiveID())
	require.Equal(t, chat.RoleBot, reopened.Chat.Active().Messages[2].Role)

	// Restoring the export brings the deleted entry back and skips the rest
	restored, err := Import(ctx, reopened, cfg, ImportInput{Path: exported.Path, Mode: ImportModeSkip})
	require.NoError(t, err)
	require.Equal(t, 1, restored.Entries.Imported)
	require.Equal(t, 2, restored.Entries.Skipped)
	require.Equal(t, 1, restored.Conversations.Skipped)

	sum, err = Summary(reopened.Ledger, cfg, SummaryInput{})
	require.NoError(t, err)
	require.Equal(t, 1100, sum.Totals.Calories)
}
