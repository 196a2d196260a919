package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"feedpipe/internal/resilience/circuitbreaker"
	"feedpipe/pkg/config"
)

// HealthResponse represents a simple health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// DBHealthResponse reports database reachability and the state of the
// circuit breaker guarding the probe.
type DBHealthResponse struct {
	Healthy            bool `json:"healthy"`
	CircuitBreakerOpen bool `json:"circuit_breaker_open"`
}

// startMetricsServer starts the Prometheus metrics HTTP server.
//
// The server exposes:
//   - GET /metrics - Prometheus metrics endpoint
//   - GET /health - simple liveness probe (always 200 OK)
//   - GET /health/db - database probe through the DB circuit breaker
//
// Environment variables:
//   - HARBOR_METRICS_PORT: port to listen on (default: 9090)
//
// When ctx is cancelled the server shuts down gracefully within 5 seconds;
// shutdown errors are logged but never block process termination.
func startMetricsServer(ctx context.Context, logger *slog.Logger, dbBreaker *circuitbreaker.DBCircuitBreaker) *http.Server {
	port := getMetricsPort()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/health/db", dbHealthHandler(dbBreaker))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("metrics server shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", slog.Any("error", err))
		} else {
			logger.Info("metrics server stopped")
		}
	}()

	return server
}

// getMetricsPort retrieves the metrics server port from environment.
// Defaults to 9090 if not set or invalid.
func getMetricsPort() int {
	port := config.GetEnvInt("HARBOR_METRICS_PORT", 9090)
	if port <= 0 || port > 65535 {
		return 9090
	}
	return port
}

// healthHandler handles GET /health requests (liveness probe).
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
}

// dbHealthHandler creates a handler for GET /health/db. The probe runs
// through the circuit breaker, so a down database flips this endpoint fast
// instead of piling blocked probes onto it.
func dbHealthHandler(dbBreaker *circuitbreaker.DBCircuitBreaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		healthy := dbBreaker.Ping(ctx) == nil

		statusCode := http.StatusOK
		if !healthy {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(DBHealthResponse{
			Healthy:            healthy,
			CircuitBreakerOpen: dbBreaker.IsOpen(),
		})
	}
}
