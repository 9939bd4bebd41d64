package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Deps are the collaborators the web handlers call into.
type Deps struct {
	State    *ops.State
	Analyzer ops.Analyzer
	Chatter  ops.Chatter
	Auth     ops.Authenticator
}

// NewServer creates and configures the HTTP server for the DNAI web UI.
func NewServer(deps Deps, cfg *config.Config, version string, logger *zap.Logger) (*http.Server, error) {
	handler, err := NewHandler(deps, cfg, version, logger)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.WebBind, cfg.WebPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(deps Deps, cfg *config.Config, version string, logger *zap.Logger) (http.Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	h := &Handlers{
		st:       deps.State,
		analyzer: deps.Analyzer,
		chatter:  deps.Chatter,
		auth:     deps.Auth,
		cfg:      cfg,
		renderer: NewRenderer(templateSub, version, logger),
		logger:   logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})

	// Public
	mux.HandleFunc("GET /login", h.HandleLoginPage)
	mux.HandleFunc("POST /login", h.HandleLogin)
	mux.HandleFunc("GET /register", h.HandleRegisterPage)
	mux.HandleFunc("POST /register", h.HandleRegister)
	mux.HandleFunc("POST /logout", h.HandleLogout)
	mux.HandleFunc("POST /theme", h.HandleTheme)

	// Signed in
	mux.Handle("GET /dashboard", h.requireAuth(h.HandleDashboard))
	mux.Handle("GET /tracker", h.requireAuth(h.HandleTracker))
	mux.Handle("POST /tracker/entries", h.requireAuth(h.HandleAddEntry))
	mux.Handle("POST /tracker/entries/{id}/delete", h.requireAuth(h.HandleDeleteEntry))
	mux.Handle("DELETE /tracker/entries/{id}", h.requireAuth(h.HandleDeleteEntry))
	mux.Handle("GET /analyzer", h.requireAuth(h.HandleAnalyzer))
	mux.Handle("POST /analyzer", h.requireAuth(h.HandleAnalyze))
	mux.Handle("POST /analyzer/track", h.requireAuth(h.HandleTrack))
	mux.Handle("GET /chat", h.requireAuth(h.HandleChat))
	mux.Handle("POST /chat/send", h.requireAuth(h.HandleChatSend))
	mux.Handle("POST /chat/new", h.requireAuth(h.HandleChatCreate))
	mux.Handle("POST /chat/{id}/select", h.requireAuth(h.HandleChatSelect))
	mux.Handle("POST /chat/{id}/reset", h.requireAuth(h.HandleChatReset))
	mux.Handle("POST /chat/{id}/delete", h.requireAuth(h.HandleChatDelete))

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return requestLogger(logger, securityHeaders(mux)), nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' data:")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger logs one line per request at debug, and server errors at warn.
func requestLogger(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		}
		if rec.status >= 500 {
			logger.Warn("request failed", fields...)
			return
		}
		logger.Debug("request", fields...)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *zap.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("DNAI UI running", zap.String("url", "http://"+srv.Addr))
	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
