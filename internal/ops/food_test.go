package ops

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zzeiidann/DNAI/internal/backend"
	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/errors"
)

func nasiGoreng() *backend.Analysis {
	return &backend.Analysis{FoodName: "Nasi Goreng", Calories: 600, Protein: 20, Carbs: 80, Fat: 15, Confidence: confidence(0.92)}
}

func confidence(v float64) *float64 { return &v }

func TestAnalyzeFood(t *testing.T) {
	st := newTestState(t)
	a := &fakeAnalyzer{result: nasiGoreng()}

	out, err := AnalyzeFood(context.Background(), a, st.Ledger, config.DefaultConfig(), AnalyzeFoodInput{
		Filename: "/home/budi/Pictures/nasi.png",
		Image:    bytes.NewReader(pngBytes),
	})
	require.NoError(t, err)
	require.Equal(t, "Nasi Goreng", out.Analysis.FoodName)
	require.Nil(t, out.Entry)
	require.Equal(t, "nasi.png", a.gotName)
	require.Equal(t, pngBytes, a.gotBytes)
	require.Empty(t, st.Ledger.Entries(), "analysis alone does not track")
}

func TestAnalyzeFood_Track(t *testing.T) {
	st := newTestState(t)
	a := &fakeAnalyzer{result: nasiGoreng()}

	out, err := AnalyzeFood(context.Background(), a, st.Ledger, config.DefaultConfig(), AnalyzeFoodInput{
		Filename: "nasi.png",
		Image:    bytes.NewReader(pngBytes),
		Track:    true,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Entry)
	require.False(t, out.Entry.Manual)
	require.NotNil(t, out.Entry.Confidence)
	require.Equal(t, 0.92, *out.Entry.Confidence)
	require.Equal(t, 600, st.Ledger.TotalsForDate(st.Ledger.Today()).Calories)
}

func TestAnalyzeFood_RejectsBeforeUpload(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxImageBytes = 64

	tests := []struct {
		name  string
		image []byte
		code  errors.ErrorCode
	}{
		{"too large", append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0}, 100)...), errors.ErrImageTooLarge},
		{"not an image", []byte("just some text, definitely not a picture"), errors.ErrInvalidRequest},
		{"empty", nil, errors.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestState(t)
			a := &fakeAnalyzer{result: nasiGoreng()}
			_, err := AnalyzeFood(context.Background(), a, st.Ledger, cfg, AnalyzeFoodInput{
				Filename: "x.png",
				Image:    bytes.NewReader(tt.image),
			})
			require.True(t, errors.Is(err, tt.code), "got %v", err)
			require.Empty(t, a.gotName, "analyzer must not be called")
		})
	}
}

func TestAnalyzeFood_BackendFailure(t *testing.T) {
	st := newTestState(t)
	a := &fakeAnalyzer{err: errors.NewBackend(500, "model not loaded")}

	_, err := AnalyzeFood(context.Background(), a, st.Ledger, config.DefaultConfig(), AnalyzeFoodInput{
		Filename: "x.png", Image: bytes.NewReader(pngBytes), Track: true,
	})
	require.True(t, errors.Is(err, errors.ErrBackend))
	require.True(t, strings.Contains(err.Error(), "model not loaded"))
	require.Empty(t, st.Ledger.Entries())
}

func TestTrackAnalysis(t *testing.T) {
	st := newTestState(t)

	out, err := TrackAnalysis(context.Background(), st.Ledger, TrackAnalysisInput{Analysis: *nasiGoreng()})
	require.NoError(t, err)
	require.Equal(t, 600, out.Totals.Calories)
	require.Equal(t, testNow, out.Entry.Date)

	_, err = TrackAnalysis(context.Background(), st.Ledger, TrackAnalysisInput{Analysis: backend.Analysis{FoodName: " "}})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestTrackAnalysis_WithoutConfidence(t *testing.T) {
	st := newTestState(t)
	a := nasiGoreng()
	a.Confidence = nil

	out, err := TrackAnalysis(context.Background(), st.Ledger, TrackAnalysisInput{Analysis: *a})
	require.NoError(t, err)
	require.Nil(t, out.Entry.Confidence)

	stored, ok := st.Ledger.Get(out.Entry.ID)
	require.True(t, ok)
	require.Nil(t, stored.Confidence)
}

func TestTrackAnalysis_CopiesConfidence(t *testing.T) {
	st := newTestState(t)
	a := nasiGoreng()

	out, err := TrackAnalysis(context.Background(), st.Ledger, TrackAnalysisInput{Analysis: *a})
	require.NoError(t, err)
	require.NotNil(t, out.Entry.Confidence)

	*a.Confidence = 0.1
	require.Equal(t, 0.92, *out.Entry.Confidence)
}
