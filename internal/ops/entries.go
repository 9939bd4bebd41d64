package ops

import (
	"context"
	"strings"

	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/ledger"
)

// AddEntryInput contains the raw manual-entry form.
type AddEntryInput struct {
	Name     string
	Calories string
	Protein  string
	Carbs    string
	Fat      string
	Date     string // optional YYYY-MM-DD, default today
}

// AddEntryOutput contains the result of the AddEntry operation.
type AddEntryOutput struct {
	Entry  ledger.FoodEntry `json:"entry"`
	Totals ledger.Totals    `json:"totals"` // totals of the entry's day after adding
}

// AddEntry records a manually entered food.
func AddEntry(ctx context.Context, l *ledger.Ledger, input AddEntryInput) (*AddEntryOutput, error) {
	day, err := parseOptionalDay(input.Date)
	if err != nil {
		return nil, err
	}

	e, err := l.AddEntry(ctx, ledger.Draft{
		Name:     input.Name,
		Calories: input.Calories,
		Protein:  input.Protein,
		Carbs:    input.Carbs,
		Fat:      input.Fat,
		Day:      day,
	})
	if err != nil {
		return nil, err
	}

	return &AddEntryOutput{
		Entry:  e,
		Totals: l.TotalsForDate(e.Day()),
	}, nil
}

// DeleteEntryInput contains parameters for the DeleteEntry operation.
type DeleteEntryInput struct {
	ID string
}

// DeleteEntryOutput contains the result of the DeleteEntry operation.
type DeleteEntryOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"` // false when no entry had the id
}

// DeleteEntry removes an entry. An unknown id is not an error.
func DeleteEntry(ctx context.Context, l *ledger.Ledger, input DeleteEntryInput) (*DeleteEntryOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	deleted, err := l.DeleteEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DeleteEntryOutput{ID: id, Deleted: deleted}, nil
}

// ListEntriesInput contains parameters for the ListEntries operation.
type ListEntriesInput struct {
	Date string // optional YYYY-MM-DD, default today
}

// ListEntriesOutput contains the result of the ListEntries operation.
type ListEntriesOutput struct {
	Date    ledger.Day         `json:"date"`
	Entries []ledger.FoodEntry `json:"entries"`
	Totals  ledger.Totals      `json:"totals"`
	Count   int                `json:"count"`
}

// ListEntries returns one day's entries in insertion order with their totals.
func ListEntries(l *ledger.Ledger, input ListEntriesInput) (*ListEntriesOutput, error) {
	day, err := dayOrToday(l, input.Date)
	if err != nil {
		return nil, err
	}

	entries := []ledger.FoodEntry{}
	var totals ledger.Totals
	for e := range l.EntriesForDate(day) {
		entries = append(entries, e)
		totals = totals.Add(e)
	}

	return &ListEntriesOutput{
		Date:    day,
		Entries: entries,
		Totals:  totals,
		Count:   len(entries),
	}, nil
}

// SummaryInput contains parameters for the Summary operation.
type SummaryInput struct {
	Date   string // optional YYYY-MM-DD, default today
	Goal   int    // optional, default from config
	Recent int    // optional, default DefaultRecentLimit
}

// SummaryOutput is the dashboard view of one day.
type SummaryOutput struct {
	Date      ledger.Day         `json:"date"`
	Totals    ledger.Totals      `json:"totals"`
	Goal      int                `json:"goal"`
	Progress  float64            `json:"progress"`  // percent of goal, capped at 100
	Remaining int                `json:"remaining"` // negative once the goal is exceeded
	Count     int                `json:"count"`
	Recent    []ledger.FoodEntry `json:"recent"` // newest first
}

// Summary computes totals, goal progress, and recent entries for one day.
func Summary(l *ledger.Ledger, cfg *config.Config, input SummaryInput) (*SummaryOutput, error) {
	day, err := dayOrToday(l, input.Date)
	if err != nil {
		return nil, err
	}

	goal := input.Goal
	if goal < 0 {
		return nil, errors.NewInvalidRequest("goal must not be negative")
	}
	if goal == 0 && cfg != nil {
		goal = cfg.DailyGoal
	}

	limit := input.Recent
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	count := 0
	var totals ledger.Totals
	for e := range l.EntriesForDate(day) {
		totals = totals.Add(e)
		count++
	}

	return &SummaryOutput{
		Date:      day,
		Totals:    totals,
		Goal:      goal,
		Progress:  ledger.Progress(totals, goal),
		Remaining: ledger.Remaining(totals, goal),
		Count:     count,
		Recent:    l.Recent(day, limit),
	}, nil
}

func parseOptionalDay(s string) (ledger.Day, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	day, err := ledger.ParseDay(s)
	if err != nil {
		return "", errors.NewInvalidRequest(err.Error())
	}
	return day, nil
}

func dayOrToday(l *ledger.Ledger, s string) (ledger.Day, error) {
	day, err := parseOptionalDay(s)
	if err != nil {
		return "", err
	}
	if day == "" {
		day = l.Today()
	}
	return day, nil
}
