// Package observability provides the observability infrastructure shared by
// the harbor and worker processes: structured logging, Prometheus metrics,
// and OpenTelemetry tracing.
//
// This package centralizes observability concerns to enable:
//   - Tracing one feed sync across the harbor/worker process boundary
//   - Structured logging with message-scoped context propagation
//   - Prometheus metrics for monitoring the pipeline
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - metrics: Prometheus metrics registry and recorders
//   - tracing: OpenTelemetry trace propagation through message envelopes
//
// Example usage:
//
//	import (
//	    "feedpipe/internal/observability/logging"
//	    "feedpipe/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("harbor started")
//
//	    metrics.RecordFeedsChecked(8)
//	}
package observability
