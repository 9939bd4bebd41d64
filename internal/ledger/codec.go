package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/zzeiidann/DNAI/internal/errors"
)

// wireEntry mirrors FoodEntry with every field optional so that missing,
// null, and mistyped values can be told apart during validation.
type wireEntry struct {
	ID         json.RawMessage `json:"id"`
	Date       *string         `json:"date"`
	Name       *string         `json:"name"`
	Calories   *float64        `json:"calories"`
	Protein    *float64        `json:"protein"`
	Carbs      *float64        `json:"carbs"`
	Fat        *float64        `json:"fat"`
	Manual     *bool           `json:"manual"`
	Confidence *float64        `json:"confidence"`
}

// Encode serializes the whole collection as a JSON array.
func Encode(entries []FoodEntry) ([]byte, error) {
	if entries == nil {
		entries = []FoodEntry{}
	}
	return json.Marshal(entries)
}

// Decode parses and validates a stored collection. key names the storage
// slot in CORRUPT_STATE errors. Empty input and JSON null decode to no entries.
func Decode(key string, data []byte) ([]FoodEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []FoodEntry{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, errors.NewCorruptState(key, "expected a JSON array of entries")
	}

	entries := make([]FoodEntry, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, r := range raw {
		e, err := decodeEntry(r)
		if err != nil {
			return nil, errors.NewCorruptState(key, fmt.Sprintf("entry %d: %v", i, err))
		}
		if seen[e.ID] {
			return nil, errors.NewCorruptState(key, fmt.Sprintf("entry %d: duplicate id %q", i, e.ID))
		}
		seen[e.ID] = true
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeEntry(r json.RawMessage) (FoodEntry, error) {
	var w wireEntry
	if err := json.Unmarshal(r, &w); err != nil {
		return FoodEntry{}, fmt.Errorf("malformed entry: %v", err)
	}

	id, err := decodeID(w.ID)
	if err != nil {
		return FoodEntry{}, err
	}

	if w.Date == nil {
		return FoodEntry{}, fmt.Errorf("date is required")
	}
	date, err := time.Parse(time.RFC3339Nano, *w.Date)
	if err != nil {
		return FoodEntry{}, fmt.Errorf("date %q is not an ISO 8601 timestamp", *w.Date)
	}

	e := FoodEntry{
		ID:         id,
		Date:       date,
		Calories:   0,
		Confidence: w.Confidence,
	}
	if w.Name != nil {
		e.Name = *w.Name
	}
	if w.Calories != nil {
		c := *w.Calories
		if c != math.Trunc(c) || c > math.MaxInt32 {
			return FoodEntry{}, fmt.Errorf("calories must be a whole number, got %v", c)
		}
		e.Calories = int(c)
	}
	if w.Protein != nil {
		e.Protein = *w.Protein
	}
	if w.Carbs != nil {
		e.Carbs = *w.Carbs
	}
	if w.Fat != nil {
		e.Fat = *w.Fat
	}
	if w.Manual != nil {
		e.Manual = *w.Manual
	}

	if err := Validate(e); err != nil {
		return FoodEntry{}, err
	}
	return e, nil
}

// decodeID accepts a non-empty string or an integer. Integer ids come from
// browser dumps that used a millisecond timestamp.
func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("id is required")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("id must not be empty")
		}
		return s, nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("id must be a string or integer")
	}
	if _, err := n.Int64(); err != nil {
		return "", fmt.Errorf("id must be a string or integer, got %s", n)
	}
	return n.String(), nil
}

// Validate checks the FoodEntry invariants.
func Validate(e FoodEntry) error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if e.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if e.Calories < 0 {
		return fmt.Errorf("calories must not be negative, got %d", e.Calories)
	}
	macros := []struct {
		field string
		v     float64
	}{{"protein", e.Protein}, {"carbs", e.Carbs}, {"fat", e.Fat}}
	for _, m := range macros {
		if m.v < 0 || math.IsNaN(m.v) || math.IsInf(m.v, 0) {
			return fmt.Errorf("%s must be a non-negative number, got %v", m.field, m.v)
		}
	}
	if e.Confidence != nil {
		c := *e.Confidence
		if c < 0 || c > 1 || math.IsNaN(c) {
			return fmt.Errorf("confidence must be within [0,1], got %v", c)
		}
	}
	return nil
}
