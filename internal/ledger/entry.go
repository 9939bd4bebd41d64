package ledger

import (
	"fmt"
	"time"
)

// DayLayout is the calendar-day format used for date-scoped queries.
const DayLayout = "2006-01-02"

// FoodEntry is one recorded food item, either analyzed from a photo or entered by hand.
type FoodEntry struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	Name       string    `json:"name"`
	Calories   int       `json:"calories"`
	Protein    float64   `json:"protein"`
	Carbs      float64   `json:"carbs"`
	Fat        float64   `json:"fat"`
	Manual     bool      `json:"manual"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Day returns the calendar day of the entry in the offset it was recorded in.
func (e FoodEntry) Day() Day {
	return DayOf(e.Date)
}

// Totals is the field-wise sum of a set of entries.
type Totals struct {
	Calories int     `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Add returns t with e's nutrients added.
func (t Totals) Add(e FoodEntry) Totals {
	return Totals{
		Calories: t.Calories + e.Calories,
		Protein:  t.Protein + e.Protein,
		Carbs:    t.Carbs + e.Carbs,
		Fat:      t.Fat + e.Fat,
	}
}

// Draft is the raw manual-entry form. Numeric fields hold user text.
type Draft struct {
	Name     string
	Calories string
	Protein  string
	Carbs    string
	Fat      string
	// Day is the tracker day the entry belongs to. Empty means today.
	Day Day
}

// Analyzed is a food recognized by the analysis backend, ready to be tracked.
type Analyzed struct {
	Name       string
	Calories   int
	Protein    float64
	Carbs      float64
	Fat        float64
	Confidence *float64
}

// Day is a calendar day in YYYY-MM-DD form.
type Day string

// ParseDay validates s as a calendar day.
func ParseDay(s string) (Day, error) {
	if _, err := time.Parse(DayLayout, s); err != nil {
		return "", fmt.Errorf("invalid day %q: want YYYY-MM-DD", s)
	}
	return Day(s), nil
}

// DayOf returns the calendar day t falls on, in t's own location.
func DayOf(t time.Time) Day {
	return Day(t.Format(DayLayout))
}

// Start returns midnight of d in loc.
func (d Day) Start(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DayLayout, string(d), loc)
}

func (d Day) String() string {
	return string(d)
}
