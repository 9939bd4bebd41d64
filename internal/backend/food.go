package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/zzeiidann/DNAI/internal/errors"
)

// Alternative is a lower-ranked match for an analyzed image.
type Alternative struct {
	FoodName   string  `json:"food_name"`
	Calories   int     `json:"calories"`
	Confidence float64 `json:"confidence"`
}

// Analysis is a validated food recognition result.
type Analysis struct {
	FoodName     string        `json:"food_name"`
	Calories     int           `json:"calories"`
	Protein      float64       `json:"protein"`
	Carbs        float64       `json:"carbs"`
	Fat          float64       `json:"fat"`
	Confidence   *float64      `json:"confidence,omitempty"` // nil when the backend gave none
	Price        int           `json:"price,omitempty"`
	Place        string        `json:"place,omitempty"`
	Alternatives []Alternative `json:"alternatives"`
}

// wireAnalysis accepts both the English field names and the Indonesian
// ones (nama_makanan, kalori, harga, tempat) some backends emit.
type wireAnalysis struct {
	FoodName     *string           `json:"food_name"`
	NamaMakanan  *string           `json:"nama_makanan"`
	Calories     *float64          `json:"calories"`
	Kalori       *float64          `json:"kalori"`
	Protein      *float64          `json:"protein"`
	Carbs        *float64          `json:"carbs"`
	Fat          *float64          `json:"fat"`
	Confidence   *float64          `json:"confidence"`
	Harga        *float64          `json:"harga"`
	Tempat       *string           `json:"tempat"`
	Alternatives []json.RawMessage `json:"alternatives"`
	Error        string            `json:"error"`
}

func firstString(vals ...*string) string {
	for _, v := range vals {
		if v != nil && strings.TrimSpace(*v) != "" {
			return strings.TrimSpace(*v)
		}
	}
	return ""
}

func firstNumber(vals ...*float64) (float64, bool) {
	for _, v := range vals {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// validate converts the wire shape into an Analysis, rejecting values a
// ledger entry could not hold.
func (w wireAnalysis) validate() (*Analysis, error) {
	a := &Analysis{
		FoodName: firstString(w.FoodName, w.NamaMakanan),
		Place:    firstString(w.Tempat),
	}
	if a.FoodName == "" {
		return nil, fmt.Errorf("food_name is required")
	}

	cal, ok := firstNumber(w.Calories, w.Kalori)
	if !ok {
		return nil, fmt.Errorf("calories is required")
	}
	if err := checkNonNegative("calories", cal); err != nil {
		return nil, err
	}
	a.Calories = int(math.Round(cal))

	macros := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"protein", w.Protein, &a.Protein},
		{"carbs", w.Carbs, &a.Carbs},
		{"fat", w.Fat, &a.Fat},
	}
	for _, m := range macros {
		if m.src == nil {
			continue
		}
		if err := checkNonNegative(m.name, *m.src); err != nil {
			return nil, err
		}
		*m.dst = *m.src
	}

	if w.Confidence != nil {
		c := *w.Confidence
		if c < 0 || c > 1 || math.IsNaN(c) {
			return nil, fmt.Errorf("confidence must be within [0,1], got %v", c)
		}
		a.Confidence = &c
	}
	if w.Harga != nil && *w.Harga > 0 {
		a.Price = int(math.Round(*w.Harga))
	}

	a.Alternatives = make([]Alternative, 0, len(w.Alternatives))
	for _, raw := range w.Alternatives {
		var alt wireAnalysis
		if err := json.Unmarshal(raw, &alt); err != nil {
			continue
		}
		name := firstString(alt.FoodName, alt.NamaMakanan)
		if name == "" {
			continue
		}
		cal, _ := firstNumber(alt.Calories, alt.Kalori)
		conf, _ := firstNumber(alt.Confidence)
		a.Alternatives = append(a.Alternatives, Alternative{
			FoodName:   name,
			Calories:   int(math.Round(math.Max(0, cal))),
			Confidence: math.Min(1, math.Max(0, conf)),
		})
	}
	return a, nil
}

func checkNonNegative(field string, v float64) error {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a non-negative number, got %v", field, v)
	}
	return nil
}

// AnalyzeFood uploads an image as multipart field "file" and returns the
// recognized food.
func (c *Client) AnalyzeFood(ctx context.Context, filename string, image io.Reader) (*Analysis, error) {
	br := bufio.NewReaderSize(image, 512)
	head, _ := br.Peek(512)
	contentType := http.DetectContentType(head)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err == nil {
			_, err = io.Copy(part, br)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var w wireAnalysis
	err := c.do(ctx, request{
		op:          "analyze",
		method:      http.MethodPost,
		path:        "/food/analyze",
		contentType: mw.FormDataContentType(),
		body:        pr,
		authed:      true,
	}, &w)
	// Unblocks the writer goroutine if the request ended before the body was read
	pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return nil, err
	}

	if w.Error != "" {
		return nil, errors.NewNotFound("food match", filepath.Base(filename))
	}
	a, verr := w.validate()
	if verr != nil {
		return nil, errors.NewBackend(http.StatusOK, "invalid analysis: "+verr.Error())
	}
	return a, nil
}
