// Package web provides the HTTP API and results page for log analysis
// uploads.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/JonMunkholm/loglens/internal/config"
	"github.com/JonMunkholm/loglens/internal/core"
	"github.com/JonMunkholm/loglens/internal/metrics"
	"github.com/JonMunkholm/loglens/internal/report"
	"github.com/JonMunkholm/loglens/internal/schema"
	"github.com/JonMunkholm/loglens/internal/store"
	"github.com/JonMunkholm/loglens/internal/upload"
	webmw "github.com/JonMunkholm/loglens/internal/web/middleware"
)

// Deps are the collaborators the handlers use. Sessions, Store and
// Exporter are required.
type Deps struct {
	Sessions   *upload.Sessions
	Store      store.ResultStore
	Exporter   *report.Exporter
	Classifier *schema.Classifier
	Limiter    *upload.Limiter
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Server is the HTTP server of the upload service.
type Server struct {
	deps   Deps
	cfg    *config.Config
	router *chi.Mux
	server *http.Server

	limiters []*rateLimiter
}

// NewServer creates a Server with routes and middleware configured.
func NewServer(deps Deps, cfg *config.Config) (*Server, error) {
	if deps.Sessions == nil || deps.Store == nil || deps.Exporter == nil {
		return nil, errors.New("web: sessions, store and exporter are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Classifier == nil {
		deps.Classifier = schema.MustNewClassifier()
	}

	s := &Server{
		deps:   deps,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Pages
	s.router.Get("/", http.RedirectHandler("/results", http.StatusFound).ServeHTTP)
	s.router.Get("/results", s.handleResultsPage)

	// Health and metrics
	s.router.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		// Uploads count against the tighter upload budget.
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				r.Use(s.newRateLimiter(s.cfg.Rate.UploadLimit, time.Minute).middleware)
			}
			r.Post("/uploads", s.handleCreateUpload)
			r.Post("/analyze", s.handleAnalyze)
		})

		// Upload sessions
		r.Get("/uploads/{sessionID}", s.handleGetUpload)
		r.Put("/uploads/{sessionID}/schema", s.handleOverrideSchema)
		r.Post("/uploads/{sessionID}/confirm", s.handleConfirmUpload)
		r.Delete("/uploads/{sessionID}", s.handleCancelUpload)

		// Results
		r.Get("/results", s.handleListResults)
		r.Get("/results/{id}", s.handleGetResult)
		r.Get("/results/{id}/export", s.handleExportResult)

		// Schema table
		r.Get("/schemas", s.handleListSchemas)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.deps.Logger.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its rate limiter sweepers.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := newRateLimiter(rate, window)
	s.limiters = append(s.limiters, rl)
	return rl
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				// Inline styles only; the results page has no scripts.
				w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// handleHealth reports limiter and session load.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"sessions": s.deps.Sessions.Len(),
	}
	if s.deps.Limiter != nil {
		resp["submissions"] = s.deps.Limiter.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListSchemas returns the selectable labels and the signature table.
func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	type labelInfo struct {
		Value core.SchemaLabel `json:"value"`
		Name  string           `json:"name"`
	}
	labels := []labelInfo{{core.LabelAuto, core.LabelAuto.DisplayName()}}
	for _, l := range core.Labels {
		labels = append(labels, labelInfo{l, l.DisplayName()})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"labels":     labels,
		"signatures": s.deps.Classifier.Signatures(),
	})
}

// parseID reads a uuid path parameter.
func parseID(r *http.Request, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, core.NewValidationError("parse "+param, "invalid id")
	}
	return id, nil
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
