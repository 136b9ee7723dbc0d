// Package api provides the HTTP REST API for the clinic FAQ service.
//
// Endpoints:
//
//	POST /api/ask-faq     →  answer a question (with optional history)
//	GET  /api/health      →  pipeline health for API consumers
//	GET  /api/stats       →  document/intent counts and readiness flags
//	GET  /api/duplicates  →  vector index duplication report
//	GET  /health          →  liveness probe
//	GET  /ready           →  readiness probe (database + pipeline)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: request ID, logging, recovery, CORS
//   - ratelimit.go: per-IP token bucket rate limiting
//   - ask.go: question answering endpoint
//   - health.go: health check endpoints
//   - admin.go: diagnostics endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclinic/cliniq/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "0.0.0.0:8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Generation can take a while on slow providers.
	WriteTimeout = 60 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Options tunes the server middleware stack.
type Options struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server is the HTTP server for the FAQ REST API.
type Server struct {
	mux  *http.ServeMux
	opts Options

	health *HealthHandler
	ask    *AskHandler
	admin  *AdminHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(svc FAQService, dup DuplicateChecker, pool *pgxpool.Pool, opts Options, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:    mux,
		opts:   opts,
		health: NewHealthHandler(pool, svc, logger),
		ask:    NewAskHandler(svc, logger),
		admin:  NewAdminHandler(svc, dup, logger),
	}

	s.health.RegisterRoutes(mux)
	s.ask.RegisterRoutes(mux)
	s.admin.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → request ID → logging → CORS → rate limit → handler
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		recoveryMiddleware,
		requestIDMiddleware,
		loggingMiddleware,
	}
	if len(s.opts.CORSOrigins) > 0 {
		middlewares = append(middlewares, corsMiddleware(s.opts.CORSOrigins))
	}
	if s.opts.RateLimitRPS > 0 {
		// Probes stay exempt so orchestrators never see a 429.
		middlewares = append(middlewares, apiOnly(rateLimitMiddleware(newRateLimiter(s.opts.RateLimitRPS, s.opts.RateLimitBurst))))
	}
	return chain(s.mux, middlewares...)
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
