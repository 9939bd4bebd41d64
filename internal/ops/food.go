package ops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zzeiidann/DNAI/internal/backend"
	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/ledger"
)

// AnalyzeFoodInput contains parameters for the AnalyzeFood operation.
type AnalyzeFoodInput struct {
	Filename string
	Image    io.Reader // read up to the configured size limit
	Track    bool      // also record the result in the ledger
}

// AnalyzeFoodOutput contains the result of the AnalyzeFood operation.
type AnalyzeFoodOutput struct {
	Analysis backend.Analysis  `json:"analysis"`
	Entry    *ledger.FoodEntry `json:"entry,omitempty"` // set when tracked
}

// AnalyzeFood checks the upload is an image within the size limit, sends it
// to the analyzer, and optionally tracks the result.
func AnalyzeFood(ctx context.Context, a Analyzer, l *ledger.Ledger, cfg *config.Config, input AnalyzeFoodInput) (*AnalyzeFoodOutput, error) {
	if input.Image == nil {
		return nil, errors.NewInvalidRequest("image is required")
	}
	name := filepath.Base(strings.TrimSpace(input.Filename))
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}

	data, err := readImage(input.Image, maxImageBytes(cfg))
	if err != nil {
		return nil, err
	}

	analysis, err := a.AnalyzeFood(ctx, name, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	out := &AnalyzeFoodOutput{Analysis: *analysis}
	if input.Track {
		tracked, err := TrackAnalysis(ctx, l, TrackAnalysisInput{Analysis: *analysis})
		if err != nil {
			return nil, err
		}
		out.Entry = &tracked.Entry
	}
	return out, nil
}

func maxImageBytes(cfg *config.Config) int64 {
	if cfg == nil || cfg.MaxImageBytes <= 0 {
		return config.DefaultConfig().MaxImageBytes
	}
	return cfg.MaxImageBytes
}

// readImage reads at most limit bytes and rejects anything that does not
// sniff as an image.
func readImage(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("failed to read image: %v", err))
	}
	if int64(len(data)) > limit {
		return nil, errors.NewImageTooLarge(limit, int64(len(data)))
	}
	if len(data) == 0 {
		return nil, errors.NewInvalidRequest("image is empty")
	}
	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("file is not an image (%s)", ct))
	}
	return data, nil
}

// TrackAnalysisInput contains parameters for the TrackAnalysis operation.
type TrackAnalysisInput struct {
	Analysis backend.Analysis
}

// TrackAnalysisOutput contains the result of the TrackAnalysis operation.
type TrackAnalysisOutput struct {
	Entry  ledger.FoodEntry `json:"entry"`
	Totals ledger.Totals    `json:"totals"`
}

// TrackAnalysis records an analyzer result as a ledger entry timestamped now.
func TrackAnalysis(ctx context.Context, l *ledger.Ledger, input TrackAnalysisInput) (*TrackAnalysisOutput, error) {
	a := input.Analysis
	var conf *float64
	if a.Confidence != nil {
		c := *a.Confidence
		conf = &c
	}
	e, err := l.AddAnalyzed(ctx, ledger.Analyzed{
		Name:       a.FoodName,
		Calories:   a.Calories,
		Protein:    a.Protein,
		Carbs:      a.Carbs,
		Fat:        a.Fat,
		Confidence: conf,
	})
	if err != nil {
		return nil, err
	}
	return &TrackAnalysisOutput{Entry: e, Totals: l.TotalsForDate(e.Day())}, nil
}
