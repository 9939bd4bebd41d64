package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/zzeiidann/DNAI/internal/backend"
	"github.com/zzeiidann/DNAI/internal/chat"
	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/ledger"
	"github.com/zzeiidann/DNAI/internal/ops"
	"github.com/zzeiidann/DNAI/internal/prefs"
	"github.com/zzeiidann/DNAI/internal/session"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "dashboard", "tracker", "analyzer", "chat"
	Theme   prefs.Theme
	User    *session.User
	Path    string // current request path, for the theme toggle's return
}

// DashboardPageData is the template data for the dashboard.
type DashboardPageData struct {
	PageData
	Summary *ops.SummaryOutput
}

// EntryForm holds the manual-entry form values so they survive a failed submit.
type EntryForm struct {
	Name     string
	Calories string
	Protein  string
	Carbs    string
	Fat      string
	Date     string
}

// TrackerPageData is the template data for the tracker page.
type TrackerPageData struct {
	PageData
	List  *ops.ListEntriesOutput
	Goal  int
	Today bool
	Form  EntryForm
	Error string
}

// AnalyzerPageData is the template data for the food analyzer page.
type AnalyzerPageData struct {
	PageData
	Analysis *backend.Analysis
	Tracked  *ledger.FoodEntry
	Error    string
}

// ChatMessageView is one rendered chat bubble.
type ChatMessageView struct {
	Role chat.Role
	HTML template.HTML
}

// ChatPageData is the template data for the chat page.
type ChatPageData struct {
	PageData
	Conversations  []ops.ConversationSummary
	Active         chat.Conversation
	Messages       []ChatMessageView
	QuickQuestions []string
	ShowQuick      bool
	Notice         string
}

// AuthPageData is the template data for the login and register pages.
type AuthPageData struct {
	PageData
	Username string
	Email    string
	Error    string
	Message  string
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	logger    *zap.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, logger *zap.Logger) *Renderer {
	funcMap := template.FuncMap{
		"kcal":          formatKcal,
		"grams":         formatGrams,
		"percent":       formatPercent,
		"ago":           humanize.Time,
		"clock":         func(t time.Time) string { return t.Format("15:04") },
		"abs":           func(n int) int { return max(n, -n) },
		"rupiah":        formatRupiah,
		"confidencePct": func(c *float64) float64 { return *c * 100 },
	}

	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"dashboard": "dashboard.html",
		"tracker":   "tracker.html",
		"analyzer":  "analyzer.html",
		"chat":      "chat.html",
		"login":     "login.html",
		"register":  "register.html",
		"error":     "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		logger:    logger,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
// For htmx requests only the "content" block is rendered.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.logger.Error("template not found", zap.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	block := "layout"
	if req != nil && req.Header.Get("HX-Request") == "true" {
		block = "content"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		r.logger.Error("template execution failed", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, page PageData, err error) {
	dErr := errors.As(err)
	status := dErr.Status
	message := dErr.Message
	if dErr.Code == errors.ErrInternal {
		r.logger.Error("internal error", zap.String("path", req.URL.Path), zap.Error(err))
		message = "an internal error occurred"
	}

	if req.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(message))
		return
	}

	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		renderJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":    string(dErr.Code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	page.Title = fmt.Sprintf("Error %d", status)
	page.Version = r.version
	r.renderPageStatus(w, req, status, "error", ErrorPageData{
		PageData:   page,
		StatusCode: status,
		Message:    message,
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML
// in the source is dropped by goldmark's default renderer.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// messageViews renders bot turns as Markdown and user turns as escaped text.
func messageViews(msgs []chat.Message) []ChatMessageView {
	out := make([]ChatMessageView, 0, len(msgs))
	for _, m := range msgs {
		var html template.HTML
		if m.Role == chat.RoleBot {
			html = renderMarkdown(m.Content)
		} else {
			html = template.HTML(strings.ReplaceAll(template.HTMLEscapeString(m.Content), "\n", "<br>"))
		}
		out = append(out, ChatMessageView{Role: m.Role, HTML: html})
	}
	return out
}

// formatKcal formats calories with thousands separators ("1,250").
func formatKcal(n int) string {
	return humanize.Comma(int64(n))
}

// formatGrams formats a macro amount with at most one decimal ("12.5", "80").
func formatGrams(v float64) string {
	s := humanize.FormatFloat("#,###.#", v)
	return strings.TrimSuffix(s, ".0")
}

// formatPercent formats a progress percentage without decimals.
func formatPercent(p float64) string {
	return fmt.Sprintf("%.0f%%", math.Round(p))
}

// formatRupiah formats a price the way Indonesian menus do ("Rp 25.000").
func formatRupiah(n int) string {
	return "Rp " + strings.ReplaceAll(humanize.Comma(int64(n)), ",", ".")
}
