// Package tracing provides OpenTelemetry tracing integration.
//
// The pipeline traces message flow: the bus starts a producer span per send
// and a consumer span per handled message, and the trace context rides in
// the message envelope so one feed sync is a single trace across harbor and
// worker processes.
//
// Example usage:
//
//	import "feedpipe/internal/observability/tracing"
//
//	func main() {
//	    tracing.SetupPropagation()
//	}
//
//	func handle(ctx context.Context, m *mq.Message) error {
//	    ctx, span := tracing.StartConsumerSpan(ctx, m.Name, m.ID)
//	    defer span.End()
//	    // ... handle message ...
//	}
package tracing
