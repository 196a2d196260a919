// Package health serves the liveness and readiness endpoints every pipeline
// process exposes. Liveness is unconditional; readiness combines an atomic
// flag the process flips after startup with optional dependency checks
// (database, bus) registered by the main.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Check probes one dependency. It must respect ctx; the readiness handler
// gives all checks a shared two-second budget.
type Check func(ctx context.Context) error

// Server provides the health check endpoints:
//   - GET /health: liveness probe, always 200 OK
//   - GET /health/ready: readiness probe, 200 once the process marked itself
//     ready and every registered check passes, 503 otherwise
//
// The server shuts down gracefully when the context passed to Start is
// cancelled.
//
// Example usage:
//
//	srv := health.NewServer(":9091", logger)
//	srv.AddCheck("database", func(ctx context.Context) error { return db.PingContext(ctx) })
//	go func() {
//	    if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
//	        logger.Error("health server failed", slog.Any("error", err))
//	    }
//	}()
//	srv.SetReady(true) // after initialization completes
type Server struct {
	addr    string
	logger  *slog.Logger
	isReady *atomic.Bool
	checks  map[string]Check
	server  *http.Server
}

// statusResponse is the JSON body of both endpoints. Failed names the first
// dependency check that did not pass, when one did not.
type statusResponse struct {
	Status string `json:"status"`
	Failed string `json:"failed,omitempty"`
}

// NewServer creates a health server listening on addr. It starts in the
// not-ready state; call SetReady(true) once initialization completes.
func NewServer(addr string, logger *slog.Logger) *Server {
	isReady := &atomic.Bool{}
	isReady.Store(false)

	return &Server{
		addr:    addr,
		logger:  logger,
		isReady: isReady,
		checks:  make(map[string]Check),
	}
}

// AddCheck registers a named dependency check consulted by the readiness
// endpoint. Register all checks before Start; the map is not locked.
func (s *Server) AddCheck(name string, c Check) {
	s.checks[name] = c
}

// Start runs the HTTP server until ctx is cancelled or the listener fails.
// It blocks, so run it in a goroutine. Returns http.ErrServerClosed after a
// graceful shutdown (5 second drain).
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleLiveness)
	mux.HandleFunc("/health/ready", s.handleReadiness)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("health server starting", slog.String("addr", s.addr))
		if err := s.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("health server shutting down")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		s.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if err == http.ErrServerClosed {
			return err
		}
		s.logger.Error("health server failed", slog.Any("error", err))
		return err
	}
}

// SetReady flips the readiness flag. Mark ready after all dependencies are
// wired, and not ready again before shutdown so orchestrators drain first.
func (s *Server) SetReady(ready bool) {
	s.isReady.Store(ready)
	s.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

// handleLiveness always answers 200 OK. A process that cannot answer at all
// is what the liveness probe exists to catch.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, http.StatusOK, statusResponse{Status: "ok"})
}

// handleReadiness answers 200 only when the process marked itself ready and
// every dependency check passes.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !s.isReady.Load() {
		s.writeStatus(w, http.StatusServiceUnavailable, statusResponse{Status: "not ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("readiness check failed",
				slog.String("check", name),
				slog.Any("error", err))
			s.writeStatus(w, http.StatusServiceUnavailable, statusResponse{Status: "not ready", Failed: name})
			return
		}
	}

	s.writeStatus(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) writeStatus(w http.ResponseWriter, code int, body statusResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
