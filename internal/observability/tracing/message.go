package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the shared tracer for message spans.
var tracer = otel.Tracer("feedpipe")

// SetupPropagation installs the W3C trace context propagator. Without it the
// global propagator is a no-op and message envelopes carry no trace parent.
// Call once at process start.
func SetupPropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// InjectTrace captures the current trace context as a map for embedding in
// an outgoing message envelope. Returns nil when there is nothing to carry.
func InjectTrace(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return nil
	}
	return carrier
}

// ExtractTrace resumes the trace context carried in an incoming message.
func ExtractTrace(ctx context.Context, carrier map[string]string) context.Context {
	if len(carrier) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(carrier))
}

// StartProducerSpan starts a span covering one message send. mode is "tell"
// or "hope".
func StartProducerSpan(ctx context.Context, actor, mode string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "send "+actor,
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	span.SetAttributes(
		attribute.String("messaging.destination.name", actor),
		attribute.String("messaging.operation.type", mode),
	)
	return ctx, span
}

// StartConsumerSpan starts a span covering one message handling.
func StartConsumerSpan(ctx context.Context, actor, messageID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "handle "+actor,
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	span.SetAttributes(
		attribute.String("messaging.destination.name", actor),
		attribute.String("messaging.message.id", messageID),
	)
	return ctx, span
}

// EndSpan records the handler outcome and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
