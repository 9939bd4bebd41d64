package ledger

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	leadingInt   = regexp.MustCompile(`^\s*[+-]?\d+`)
	leadingFloat = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// ParseCalories reads the leading integer of s ("600", "600 kcal", "12.7" -> 12).
// Anything unreadable or negative becomes 0.
func ParseCalories(s string) int {
	m := leadingInt.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(m))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ParseGrams reads the leading real number of s ("20", "20.5g", ".5").
// Anything unreadable, negative, or non-finite becomes 0.
func ParseGrams(s string) float64 {
	m := leadingFloat.FindString(s)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
