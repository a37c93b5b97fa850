package web

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/strand/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// DefaultPort is the port used by `strand ui` when none is given.
const DefaultPort = 7474

const shutdownTimeout = 5 * time.Second

// NewServer creates the HTTP server for the strand web UI.
func NewServer(db *sql.DB, cfg *config.Config, version, bind string, port int, lggr *zap.SugaredLogger) (*http.Server, error) {
	h, err := newHandlers(db, cfg, version, lggr)
	if err != nil {
		return nil, err
	}

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	return &http.Server{
		Addr:              net.JoinHostPort(bind, strconv.Itoa(port)),
		Handler:           newMux(h, staticSub),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// newHandlers parses the embedded templates and builds the route handlers.
func newHandlers(db *sql.DB, cfg *config.Config, version string, lggr *zap.SugaredLogger) (*Handlers, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	renderer, err := NewRenderer(templateSub, version, lggr)
	if err != nil {
		return nil, err
	}
	return &Handlers{db: db, cfg: cfg, renderer: renderer}, nil
}

func newMux(h *Handlers, static fs.FS) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/runs", http.StatusFound)
	})
	mux.HandleFunc("GET /runs", h.HandleList)
	mux.HandleFunc("GET /runs/{id}", h.HandleDetail)
	mux.HandleFunc("DELETE /runs/{id}", h.HandleDelete)
	mux.HandleFunc("POST /runs/purge", h.HandlePurge)
	mux.HandleFunc("GET /tools", h.HandleTools)
	mux.HandleFunc("POST /tools/{kind}", h.HandleRunTool)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	return logRequests(h.renderer.lggr, securityHeaders(mux))
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logRequests logs one line per request at debug level, or warn for 5xx.
func logRequests(lggr *zap.SugaredLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		}
		if rec.status >= 500 {
			lggr.Warnw("request failed", fields...)
			return
		}
		lggr.Debugw("request", fields...)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, lggr *zap.SugaredLogger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	lggr.Infof("strand UI running at http://%s", srv.Addr)
	if host, _, err := net.SplitHostPort(srv.Addr); err == nil {
		if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
			lggr.Warn("server is binding to all interfaces and may be accessible from the network")
		}
	}

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-sigCh:
		lggr.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
