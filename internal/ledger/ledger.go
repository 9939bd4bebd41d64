// Package ledger is the persisted calorie ledger: food entries plus the
// per-day totals and goal progress derived from them.
package ledger

import (
	"context"
	"fmt"
	"iter"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/ids"
)

// Ledger holds the entry collection in memory and writes the whole
// collection through its Repository on every mutation.
type Ledger struct {
	mu      sync.Mutex
	repo    Repository
	entries []FoodEntry
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Open loads the collection from repo.
func Open(ctx context.Context, repo Repository, opts ...Option) (*Ledger, error) {
	l := &Ledger{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	entries, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	l.entries = entries
	return l, nil
}

// Reload replaces the in-memory collection with the stored one, picking up
// writes made by other processes. The lock is held across the read so a
// concurrent append cannot be overwritten by an older snapshot.
func (l *Ledger) Reload(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.repo.Load(ctx)
	if err != nil {
		return err
	}
	l.entries = entries
	return nil
}

// AddEntry builds a manual entry from a form draft and appends it.
// Only a blank name is rejected; unreadable numbers become zero.
func (l *Ledger) AddEntry(ctx context.Context, d Draft) (FoodEntry, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return FoodEntry{}, errors.NewInvalidRequest("name is required")
	}

	date, err := l.dateFor(d.Day)
	if err != nil {
		return FoodEntry{}, errors.NewInvalidRequest(err.Error())
	}

	e := FoodEntry{
		Date:     date,
		Name:     name,
		Calories: ParseCalories(d.Calories),
		Protein:  ParseGrams(d.Protein),
		Carbs:    ParseGrams(d.Carbs),
		Fat:      ParseGrams(d.Fat),
		Manual:   true,
	}
	return l.append(ctx, e)
}

// AddAnalyzed appends an analyzer result, timestamped now.
func (l *Ledger) AddAnalyzed(ctx context.Context, a Analyzed) (FoodEntry, error) {
	e := FoodEntry{
		Date:       l.now().Round(0),
		Name:       strings.TrimSpace(a.Name),
		Calories:   a.Calories,
		Protein:    a.Protein,
		Carbs:      a.Carbs,
		Fat:        a.Fat,
		Confidence: a.Confidence,
	}
	return l.append(ctx, e)
}

func (l *Ledger) append(ctx context.Context, e FoodEntry) (FoodEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, err := ids.New(l.now())
	if err != nil {
		return FoodEntry{}, errors.NewInternal(err)
	}
	e.ID = id
	if err := Validate(e); err != nil {
		return FoodEntry{}, errors.NewInvalidRequest(err.Error())
	}

	updated := make([]FoodEntry, len(l.entries), len(l.entries)+1)
	copy(updated, l.entries)
	updated = append(updated, e)
	if err := l.repo.Save(ctx, updated); err != nil {
		return FoodEntry{}, err
	}
	l.entries = updated
	return e, nil
}

// dateFor picks the timestamp of a manual entry: now for today or an
// unspecified day, otherwise local midnight of the chosen day.
func (l *Ledger) dateFor(day Day) (time.Time, error) {
	now := l.now().Round(0)
	if day == "" || day == DayOf(now) {
		return now, nil
	}
	if _, err := ParseDay(string(day)); err != nil {
		return time.Time{}, err
	}
	return day.Start(now.Location())
}

// DeleteEntry removes the entry with the given id. Deleting an id that is
// not present is a no-op and reports false.
func (l *Ledger) DeleteEntry(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i, e := range l.entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	updated := make([]FoodEntry, 0, len(l.entries)-1)
	updated = append(updated, l.entries[:idx]...)
	updated = append(updated, l.entries[idx+1:]...)
	if err := l.repo.Save(ctx, updated); err != nil {
		return false, err
	}
	l.entries = updated
	return true, nil
}

// Get returns the entry with the given id.
func (l *Ledger) Get(id string) (FoodEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.ID == id {
			return e, true
		}
	}
	return FoodEntry{}, false
}

// Entries returns a copy of the whole collection in insertion order.
func (l *Ledger) Entries() []FoodEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FoodEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// EntriesForDate yields the entries recorded on day, in insertion order.
// Each iteration reads the collection afresh.
func (l *Ledger) EntriesForDate(day Day) iter.Seq[FoodEntry] {
	return func(yield func(FoodEntry) bool) {
		for _, e := range l.Entries() {
			if e.Day() != day {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// TotalsForDate sums the nutrients of every entry on day.
func (l *Ledger) TotalsForDate(day Day) Totals {
	var t Totals
	for e := range l.EntriesForDate(day) {
		t = t.Add(e)
	}
	return t
}

// Recent returns up to n of day's entries, newest first.
func (l *Ledger) Recent(day Day, n int) []FoodEntry {
	var all []FoodEntry
	for e := range l.EntriesForDate(day) {
		all = append(all, e)
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]FoodEntry, len(all))
	for i, e := range all {
		out[len(all)-1-i] = e
	}
	return out
}

// Today returns the current calendar day on the ledger's clock.
func (l *Ledger) Today() Day {
	return DayOf(l.now())
}

// Progress is calories as a percentage of goal, capped at 100.
// A goal of zero or less has no meaningful progress and yields 0.
func Progress(t Totals, goal int) float64 {
	if goal <= 0 {
		return 0
	}
	return math.Min(100, 100*float64(t.Calories)/float64(goal))
}

// Remaining is the calories left before reaching goal; negative once exceeded.
func Remaining(t Totals, goal int) int {
	return goal - t.Calories
}

// ImportMode controls id collisions when importing entries.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // any collision aborts the import
	ImportModeSkip    ImportMode = "skip"    // keep the existing entry
	ImportModeReplace ImportMode = "replace" // overwrite the existing entry in place
)

// ImportResult counts what Import did.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Replaced int `json:"replaced"`
}

// Import appends already-built entries, keeping their ids and dates.
// The collection is written once; nothing is written if any entry is invalid.
func (l *Ledger) Import(ctx context.Context, incoming []FoodEntry, mode ImportMode) (*ImportResult, error) {
	if mode == "" {
		mode = ImportModeError
	}
	if mode != ImportModeError && mode != ImportModeSkip && mode != ImportModeReplace {
		return nil, errors.NewInvalidRequest("mode must be one of: error, skip, replace")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	updated := make([]FoodEntry, len(l.entries))
	copy(updated, l.entries)
	index := make(map[string]int, len(updated))
	for i, e := range updated {
		index[e.ID] = i
	}

	result := &ImportResult{}
	for i, e := range incoming {
		if err := Validate(e); err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("entry %d: %v", i, err))
		}
		pos, exists := index[e.ID]
		switch {
		case !exists:
			index[e.ID] = len(updated)
			updated = append(updated, e)
			result.Imported++
		case mode == ImportModeSkip:
			result.Skipped++
		case mode == ImportModeReplace:
			updated[pos] = e
			result.Replaced++
		default:
			return nil, errors.NewConflict(fmt.Sprintf("entry with id %q already exists", e.ID))
		}
	}

	if result.Imported+result.Replaced == 0 {
		return result, nil
	}
	if err := l.repo.Save(ctx, updated); err != nil {
		return nil, err
	}
	l.entries = updated
	return result, nil
}
