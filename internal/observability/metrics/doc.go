// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all pipeline metrics including:
//   - Message bus metrics (sends, handles, duration, redeliveries)
//   - Fetch metrics (feed and webpage requests, status, size)
//   - Business metrics (feeds checked, storys saved, creations cleaned)
//   - Database query metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via each process's /metrics endpoint.
//
// Example usage:
//
//	import "feedpipe/internal/observability/metrics"
//
//	func syncFeed(ctx context.Context) {
//	    start := time.Now()
//	    resp := readFeed(ctx)
//
//	    metrics.RecordFetch("feed", resp.Status, time.Since(start), len(resp.Body))
//	}
package metrics
