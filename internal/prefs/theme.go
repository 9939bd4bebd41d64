// Package prefs stores client display preferences.
package prefs

import (
	"context"
	"strings"

	"github.com/zzeiidann/DNAI/internal/db"
	"github.com/zzeiidann/DNAI/internal/errors"
)

// Theme is the UI color scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// DefaultTheme applies when nothing is stored.
const DefaultTheme = ThemeDark

// ParseTheme validates s. Case and surrounding space are ignored.
func ParseTheme(s string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case ThemeDark:
		return ThemeDark, nil
	case ThemeLight:
		return ThemeLight, nil
	}
	return "", errors.NewInvalidRequest("theme must be dark or light")
}

// Toggled returns the other theme.
func (t Theme) Toggled() Theme {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

// GetTheme reads the stored theme. A missing or unrecognized value
// yields DefaultTheme.
func GetTheme(ctx context.Context, kv db.KV) (Theme, error) {
	raw, ok, err := kv.Get(ctx, db.KeyTheme)
	if err != nil {
		return "", err
	}
	if !ok {
		return DefaultTheme, nil
	}
	t, err := ParseTheme(strings.Trim(string(raw), `"`))
	if err != nil {
		return DefaultTheme, nil
	}
	return t, nil
}

// SetTheme stores t.
func SetTheme(ctx context.Context, kv db.KV, t Theme) error {
	if _, err := ParseTheme(string(t)); err != nil {
		return err
	}
	return kv.Put(ctx, db.KeyTheme, []byte(t))
}

// ToggleTheme flips the stored theme and returns the new one.
func ToggleTheme(ctx context.Context, kv db.KV) (Theme, error) {
	cur, err := GetTheme(ctx, kv)
	if err != nil {
		return "", err
	}
	next := cur.Toggled()
	if err := SetTheme(ctx, kv, next); err != nil {
		return "", err
	}
	return next, nil
}
