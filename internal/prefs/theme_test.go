package prefs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zzeiidann/DNAI/internal/db"
	"github.com/zzeiidann/DNAI/internal/errors"
)

func TestGetTheme_DefaultsToDark(t *testing.T) {
	got, err := GetTheme(context.Background(), db.NewMemory())
	require.NoError(t, err)
	require.Equal(t, ThemeDark, got)
}

func TestGetTheme_StoredValues(t *testing.T) {
	tests := []struct {
		stored string
		want   Theme
	}{
		{"light", ThemeLight},
		{"dark", ThemeDark},
		{`"light"`, ThemeLight},
		{"LIGHT", ThemeLight},
		{"solarized", ThemeDark},
	}
	for _, tt := range tests {
		kv := db.NewMemory()
		require.NoError(t, kv.Put(context.Background(), db.KeyTheme, []byte(tt.stored)))
		got, err := GetTheme(context.Background(), kv)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "stored %q", tt.stored)
	}
}

func TestToggleTheme(t *testing.T) {
	ctx := context.Background()
	kv := db.NewMemory()

	next, err := ToggleTheme(ctx, kv)
	require.NoError(t, err)
	require.Equal(t, ThemeLight, next)

	raw, ok, err := kv.Get(ctx, db.KeyTheme)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "light", string(raw))

	next, err = ToggleTheme(ctx, kv)
	require.NoError(t, err)
	require.Equal(t, ThemeDark, next)
}

func TestSetTheme_Invalid(t *testing.T) {
	err := SetTheme(context.Background(), db.NewMemory(), Theme("blue"))
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}
