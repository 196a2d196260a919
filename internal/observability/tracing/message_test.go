package tracing

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recorder collects every span ended during the test run. The otel global
// tracer delegates to a provider only once, so all tests share one provider
// installed in TestMain and slice recorder.Ended() from a per-test mark.
var recorder *tracetest.SpanRecorder

func TestMain(m *testing.M) {
	recorder = tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	SetupPropagation()
	os.Exit(m.Run())
}

func lastEnded(t *testing.T, mark int) sdktrace.ReadOnlySpan {
	t.Helper()
	ended := recorder.Ended()
	require.Greater(t, len(ended), mark, "no span recorded")
	return ended[len(ended)-1]
}

func findAttr(attrs []attribute.KeyValue, key string) (string, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

func TestInjectExtract_RoundTrip(t *testing.T) {
	ctx, span := StartProducerSpan(context.Background(), "feed_syncer", "tell")
	defer span.End()

	carrier := InjectTrace(ctx)
	require.NotNil(t, carrier)
	assert.Contains(t, carrier, "traceparent")

	resumed := ExtractTrace(context.Background(), carrier)
	got := trace.SpanContextFromContext(resumed)
	require.True(t, got.IsValid())
	assert.True(t, got.IsRemote())
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
}

func TestInjectTrace_NoActiveSpan(t *testing.T) {
	assert.Nil(t, InjectTrace(context.Background()))
}

func TestExtractTrace_EmptyCarrier(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, ExtractTrace(ctx, nil))
	assert.Equal(t, ctx, ExtractTrace(ctx, map[string]string{}))
}

func TestStartProducerSpan(t *testing.T) {
	mark := len(recorder.Ended())

	_, span := StartProducerSpan(context.Background(), "feed_checker", "hope")
	span.End()

	got := lastEnded(t, mark)
	assert.Equal(t, "send feed_checker", got.Name())
	assert.Equal(t, trace.SpanKindProducer, got.SpanKind())

	dest, ok := findAttr(got.Attributes(), "messaging.destination.name")
	require.True(t, ok)
	assert.Equal(t, "feed_checker", dest)

	mode, ok := findAttr(got.Attributes(), "messaging.operation.type")
	require.True(t, ok)
	assert.Equal(t, "hope", mode)
}

func TestStartConsumerSpan(t *testing.T) {
	mark := len(recorder.Ended())

	_, span := StartConsumerSpan(context.Background(), "story_fetcher", "msg-42")
	span.End()

	got := lastEnded(t, mark)
	assert.Equal(t, "handle story_fetcher", got.Name())
	assert.Equal(t, trace.SpanKindConsumer, got.SpanKind())

	id, ok := findAttr(got.Attributes(), "messaging.message.id")
	require.True(t, ok)
	assert.Equal(t, "msg-42", id)
}

func TestEndSpan(t *testing.T) {
	t.Run("success leaves status unset", func(t *testing.T) {
		mark := len(recorder.Ended())

		_, span := StartConsumerSpan(context.Background(), "feed_syncer", "msg-1")
		EndSpan(span, nil)

		got := lastEnded(t, mark)
		assert.Equal(t, codes.Unset, got.Status().Code)
	})

	t.Run("failure records the error", func(t *testing.T) {
		mark := len(recorder.Ended())

		_, span := StartConsumerSpan(context.Background(), "feed_syncer", "msg-2")
		EndSpan(span, errors.New("fetch blew up"))

		got := lastEnded(t, mark)
		assert.Equal(t, codes.Error, got.Status().Code)
		assert.Equal(t, "fetch blew up", got.Status().Description)
		require.Len(t, got.Events(), 1)
		assert.Equal(t, "exception", got.Events()[0].Name)
	})
}
