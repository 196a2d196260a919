// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the pipeline.
//
// Key features:
//   - JSON and text output formats
//   - Message-scoped logger propagation through context
//   - Configurable log levels via LOG_LEVEL
//
// Example usage:
//
//	import "feedpipe/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("harbor started", slog.String("version", "1.0"))
//	}
//
//	func handleMessage(ctx context.Context, m *mq.Message) error {
//	    log := logging.FromContext(ctx)
//	    log.Info("processing message")
//	    return nil
//	}
package logging
