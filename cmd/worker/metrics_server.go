package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"feedpipe/internal/infra/feedclient"
	"feedpipe/pkg/config"
)

// HealthResponse represents a simple health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// BreakersHealthResponse reports the state of all outbound circuit breakers.
type BreakersHealthResponse struct {
	Healthy  bool            `json:"healthy"`
	Breakers []BreakerStatus `json:"breakers"`
}

// BreakerStatus represents the circuit breaker of a single outbound reader.
type BreakerStatus struct {
	Name string `json:"name"`
	Open bool   `json:"open"`
}

// startMetricsServer starts the Prometheus metrics HTTP server.
//
// The server exposes:
//   - GET /metrics - Prometheus metrics endpoint
//   - GET /health - simple liveness probe (always 200 OK)
//   - GET /health/breakers - outbound circuit breaker states; 503 while
//     any breaker is open
//
// Environment variables:
//   - WORKER_METRICS_PORT: port to listen on (default: 9092)
//
// When ctx is cancelled the server shuts down gracefully within 5 seconds;
// shutdown errors are logged but never block process termination.
func startMetricsServer(ctx context.Context, logger *slog.Logger, readers map[string]*feedclient.Reader) *http.Server {
	port := getMetricsPort()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/health/breakers", breakersHealthHandler(readers))

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
// Defaults to 9092 if not set or invalid.
func getMetricsPort() int {
	port := config.GetEnvInt("WORKER_METRICS_PORT", 9092)
	if port <= 0 || port > 65535 {
		return 9092
	}
	return port
}

// healthHandler handles GET /health requests (liveness probe).
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
}

// breakersHealthHandler creates a handler for GET /health/breakers.
// An open breaker means a class of outbound traffic (feeds, webpages or
// image probes) is currently refused, which operators want to see before
// the retry backlog shows it to them.
func breakersHealthHandler(readers map[string]*feedclient.Reader) http.HandlerFunc {
	names := make([]string, 0, len(readers))
	for name := range readers {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		breakers := make([]BreakerStatus, 0, len(names))
		healthy := true

		for _, name := range names {
			open := readers[name].Breaker().IsOpen()
			breakers = append(breakers, BreakerStatus{Name: name, Open: open})
			if open {
				healthy = false
			}
		}

		statusCode := http.StatusOK
		if !healthy {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(BreakersHealthResponse{
			Healthy:  healthy,
			Breakers: breakers,
		})
	}
}
