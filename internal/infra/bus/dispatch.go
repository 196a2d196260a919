// Package bus provides the mq.Bus implementations: an in-process bus for
// single-binary deployments and tests, and a Redis Streams bus for the
// production harbor/worker split.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"feedpipe/internal/mq"
	"feedpipe/internal/observability/logging"
	"feedpipe/internal/observability/metrics"
	"feedpipe/internal/observability/tracing"
)

// registry maps actor names to handlers, shared by both bus implementations.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]mq.Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]mq.Handler)}
}

func (r *registry) register(name string, h mq.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *registry) get(name string) (mq.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func (r *registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// dispatch runs one message through expiry check, tracing, metrics and the
// registered handler. A nil return means the substrate may acknowledge the
// message: success, expiry and permanently-broken payloads all count.
// Only retryable handler failures come back as errors.
func dispatch(ctx context.Context, reg *registry, m *mq.Message) error {
	handler, ok := reg.get(m.Name)
	if !ok {
		slog.Error("no handler for message",
			slog.String("actor", m.Name),
			slog.String("message_id", m.ID))
		metrics.RecordMessageHandled(m.Name, "invalid", 0)
		return nil
	}
	if m.Expired(time.Now()) {
		slog.Info("message expired, dropping",
			slog.String("actor", m.Name),
			slog.String("message_id", m.ID),
			slog.Time("expire_at", *m.ExpireAt))
		metrics.RecordMessageHandled(m.Name, "expired", 0)
		return nil
	}

	ctx = tracing.ExtractTrace(ctx, m.Trace)
	ctx, span := tracing.StartConsumerSpan(ctx, m.Name, m.ID)
	ctx = logging.WithLogger(ctx, slog.Default().With(
		slog.String("actor", m.Name),
		slog.String("message_id", m.ID)))
	start := time.Now()
	err := handler(ctx, m)
	elapsed := time.Since(start)
	tracing.EndSpan(span, err)

	if err != nil {
		if errors.Is(err, mq.ErrInvalidPayload) {
			// 壊れたペイロードは再配達しても直らない。捨てる。
			slog.Error("invalid payload, dropping message",
				slog.String("actor", m.Name),
				slog.String("message_id", m.ID),
				slog.Any("error", err))
			metrics.RecordMessageHandled(m.Name, "invalid", elapsed)
			return nil
		}
		slog.Error("handler failed",
			slog.String("actor", m.Name),
			slog.String("message_id", m.ID),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err))
		metrics.RecordMessageHandled(m.Name, "error", elapsed)
		return err
	}

	metrics.RecordMessageHandled(m.Name, "ok", elapsed)
	return nil
}

// newEnvelope builds and stamps one outgoing message.
func newEnvelope(ctx context.Context, name string, payload any, opts []mq.SendOption) (*mq.Message, error) {
	m, err := mq.NewMessage(name, payload)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Trace = tracing.InjectTrace(ctx)
	return m, nil
}
