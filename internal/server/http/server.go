// Package httpserver exposes the request services over HTTP: one GET and
// one POST route per service key, plus health and metrics endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/culsys/valet-service/internal/database"
	"github.com/culsys/valet-service/internal/workflow"
)

// RequestEngine runs request flows. *workflow.Engine satisfies it.
type RequestEngine interface {
	Show(ctx context.Context, in workflow.Input) workflow.Outcome
	ShowBarcode(ctx context.Context, in workflow.Input, barcode string) workflow.Outcome
	Submit(ctx context.Context, in workflow.Input) workflow.Outcome
}

// Server is the HTTP front of the request broker.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	engine     RequestEngine
	db         *database.DB
	logger     zerolog.Logger
	auth       func(http.Handler) http.Handler
	metrics    bool
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool
}

// NewServer creates an HTTP server. db may be nil, which degrades the
// readiness probe to liveness only. authMiddleware builds the patron from
// the fronting SSO's headers; RemoteUserMiddleware is the usual choice.
func NewServer(
	cfg Config,
	engine RequestEngine,
	db *database.DB,
	logger zerolog.Logger,
	authMiddleware func(http.Handler) http.Handler,
) *Server {
	s := &Server{
		engine:  engine,
		db:      db,
		logger:  logger.With().Str("component", "http-server").Logger(),
		auth:    authMiddleware,
		metrics: cfg.MetricsEnabled,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDHeaderMiddleware)

	// Health endpoints (no auth)
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// One route tree per service key. The catalog decides whether the
	// key is real; the handler answers 404 for strangers.
	r.Route("/{service}", func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth)
		}
		r.Get("/barcode/{barcode}", s.showBarcodeHandler)
		r.Get("/{id}", s.showHandler)
		r.Post("/{id}", s.submitHandler)
		r.Get("/{id}/{mfhdID}", s.showHandler)
	})

	return r
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler returns readiness status including database health.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
