package ops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/ledger"
)

func TestAddEntry(t *testing.T) {
	st := newTestState(t)

	out, err := AddEntry(context.Background(), st.Ledger, AddEntryInput{
		Name: "Nasi Goreng", Calories: "600", Protein: "20", Carbs: "80", Fat: "15",
	})
	require.NoError(t, err)
	require.Equal(t, "Nasi Goreng", out.Entry.Name)
	require.True(t, out.Entry.Manual)
	require.Equal(t, ledger.Totals{Calories: 600, Protein: 20, Carbs: 80, Fat: 15}, out.Totals)
}

func TestAddEntry_Validation(t *testing.T) {
	st := newTestState(t)
	ctx := context.Background()

	_, err := AddEntry(ctx, st.Ledger, AddEntryInput{Name: "", Calories: "100"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = AddEntry(ctx, st.Ledger, AddEntryInput{Name: "Soto", Date: "June 1"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	out, err := AddEntry(ctx, st.Ledger, AddEntryInput{Name: "Soto", Calories: "abc"})
	require.NoError(t, err)
	require.Equal(t, 0, out.Entry.Calories)
}

func TestAddEntry_PastDay(t *testing.T) {
	st := newTestState(t)

	out, err := AddEntry(context.Background(), st.Ledger, AddEntryInput{Name: "Bakso", Calories: "400", Date: "2025-05-30"})
	require.NoError(t, err)
	require.Equal(t, ledger.Day("2025-05-30"), out.Entry.Day())

	list, err := ListEntries(st.Ledger, ListEntriesInput{})
	require.NoError(t, err)
	require.Equal(t, ledger.Day("2025-06-01"), list.Date)
	require.Zero(t, list.Count)
}

func TestDeleteEntry(t *testing.T) {
	st := newTestState(t)
	ctx := context.Background()

	added, err := AddEntry(ctx, st.Ledger, AddEntryInput{Name: "Tempe", Calories: "150"})
	require.NoError(t, err)

	out, err := DeleteEntry(ctx, st.Ledger, DeleteEntryInput{ID: added.Entry.ID})
	require.NoError(t, err)
	require.True(t, out.Deleted)

	out, err = DeleteEntry(ctx, st.Ledger, DeleteEntryInput{ID: added.Entry.ID})
	require.NoError(t, err)
	require.False(t, out.Deleted)

	_, err = DeleteEntry(ctx, st.Ledger, DeleteEntryInput{ID: "  "})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestListEntries(t *testing.T) {
	st := newTestState(t)
	ctx := context.Background()

	for _, in := range []AddEntryInput{
		{Name: "Bubur", Calories: "300", Protein: "8"},
		{Name: "Gado-gado", Calories: "350", Fat: "18.5"},
		{Name: "Kemarin", Calories: "999", Date: "2025-05-31"},
	} {
		_, err := AddEntry(ctx, st.Ledger, in)
		require.NoError(t, err)
	}

	out, err := ListEntries(st.Ledger, ListEntriesInput{Date: "2025-06-01"})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	require.Equal(t, "Bubur", out.Entries[0].Name)
	require.Equal(t, ledger.Totals{Calories: 650, Protein: 8, Fat: 18.5}, out.Totals)

	empty, err := ListEntries(st.Ledger, ListEntriesInput{Date: "2024-01-01"})
	require.NoError(t, err)
	require.NotNil(t, empty.Entries)
	require.Empty(t, empty.Entries)
}

func TestSummary(t *testing.T) {
	st := newTestState(t)
	ctx := context.Background()
	cfg := config.DefaultConfig()

	for _, name := range []string{"a", "b", "c", "d"} {
		_, err := AddEntry(ctx, st.Ledger, AddEntryInput{Name: name, Calories: "300"})
		require.NoError(t, err)
	}

	out, err := Summary(st.Ledger, cfg, SummaryInput{})
	require.NoError(t, err)
	require.Equal(t, 1200, out.Totals.Calories)
	require.Equal(t, 2000, out.Goal)
	require.InDelta(t, 60.0, out.Progress, 1e-9)
	require.Equal(t, 800, out.Remaining)
	require.Equal(t, 4, out.Count)
	require.Len(t, out.Recent, DefaultRecentLimit)
	require.Equal(t, "d", out.Recent[0].Name)

	over, err := Summary(st.Ledger, cfg, SummaryInput{Goal: 1000, Recent: 10})
	require.NoError(t, err)
	require.Equal(t, 100.0, over.Progress)
	require.Equal(t, -200, over.Remaining)
	require.Len(t, over.Recent, 4)

	_, err = Summary(st.Ledger, cfg, SummaryInput{Goal: -1})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestSummary_ZeroGoalConfig(t *testing.T) {
	st := newTestState(t)
	cfg := &config.Config{}

	out, err := Summary(st.Ledger, cfg, SummaryInput{Date: testNow.Add(24 * time.Hour).Format(ledger.DayLayout)})
	require.NoError(t, err)
	require.Equal(t, 0, out.Goal)
	require.Equal(t, 0.0, out.Progress)
}
