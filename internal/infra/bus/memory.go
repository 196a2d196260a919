package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedpipe/internal/mq"
	"feedpipe/internal/observability/metrics"
	"feedpipe/internal/observability/tracing"

	"golang.org/x/sync/errgroup"
)

// memory bus defaults.
const (
	defaultInboxSize   = 1000
	memoryMaxAttempts  = 3
	memoryRetryBackoff = time.Second

	// consumersPerActor is how many goroutines drain each inbox. Ordering
	// across messages is not part of the Bus contract, so concurrent
	// consumption is safe and keeps slow fetches from starving an actor.
	consumersPerActor = 4
)

// inboxItem wraps a queued message with its delivery bookkeeping.
type inboxItem struct {
	m         *mq.Message
	attempts  int
	droppable bool // hoped messages are never retried
}

// MemoryBus delivers messages through per-actor buffered channels inside a
// single process. Tell blocks when an inbox is full, applying backpressure
// to the producer; Hope drops instead. Handler failures of told messages
// are re-queued up to memoryMaxAttempts.
//
// Used by the standalone deployment mode and by tests.
type MemoryBus struct {
	reg  *registry
	size int

	mu      sync.Mutex
	inboxes map[string]chan inboxItem
}

// NewMemoryBus creates an in-process bus. size is the per-actor inbox
// capacity; zero or negative means the default.
func NewMemoryBus(size int) *MemoryBus {
	if size <= 0 {
		size = defaultInboxSize
	}
	return &MemoryBus{
		reg:     newRegistry(),
		size:    size,
		inboxes: make(map[string]chan inboxItem),
	}
}

// Register binds a handler and creates the actor's inbox.
func (b *MemoryBus) Register(name string, h mq.Handler) {
	b.reg.register(name, h)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inboxes[name]; !ok {
		b.inboxes[name] = make(chan inboxItem, b.size)
	}
}

func (b *MemoryBus) inbox(name string) (chan inboxItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.inboxes[name]
	return ch, ok
}

// Tell queues the message, blocking while the inbox is full.
func (b *MemoryBus) Tell(ctx context.Context, name string, payload any, opts ...mq.SendOption) error {
	ctx, span := tracing.StartProducerSpan(ctx, name, "tell")
	err := b.send(ctx, name, payload, opts, false)
	tracing.EndSpan(span, err)
	if err != nil {
		metrics.RecordMessageSent(name, "tell", "error")
		return err
	}
	metrics.RecordMessageSent(name, "tell", "ok")
	return nil
}

// Hope queues the message if there is room and drops it otherwise.
func (b *MemoryBus) Hope(ctx context.Context, name string, payload any, opts ...mq.SendOption) error {
	ctx, span := tracing.StartProducerSpan(ctx, name, "hope")
	err := b.send(ctx, name, payload, opts, true)
	tracing.EndSpan(span, err)
	if err != nil {
		metrics.RecordMessageSent(name, "hope", "error")
		return err
	}
	return nil
}

func (b *MemoryBus) send(ctx context.Context, name string, payload any, opts []mq.SendOption, droppable bool) error {
	ch, ok := b.inbox(name)
	if !ok {
		return fmt.Errorf("send %s: %w", name, mq.ErrNoHandler)
	}
	m, err := newEnvelope(ctx, name, payload, opts)
	if err != nil {
		return err
	}
	item := inboxItem{m: m, droppable: droppable}

	if droppable {
		select {
		case ch <- item:
			metrics.RecordMessageSent(name, "hope", "ok")
		default:
			slog.Warn("inbox full, dropping hoped message",
				slog.String("actor", name),
				slog.String("message_id", m.ID))
			metrics.RecordMessageSent(name, "hope", "dropped")
		}
		metrics.InboxDepth.WithLabelValues(name).Set(float64(len(ch)))
		return nil
	}

	select {
	case ch <- item:
		metrics.InboxDepth.WithLabelValues(name).Set(float64(len(ch)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send %s: %w", name, ctx.Err())
	}
}

// Run consumes every registered inbox until ctx is done.
func (b *MemoryBus) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range b.reg.names() {
		ch, _ := b.inbox(name)
		actor := name
		inbox := ch
		for i := 0; i < consumersPerActor; i++ {
			g.Go(func() error {
				return b.consume(ctx, actor, inbox)
			})
		}
	}
	return g.Wait()
}

func (b *MemoryBus) consume(ctx context.Context, actor string, inbox chan inboxItem) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-inbox:
			metrics.InboxDepth.WithLabelValues(actor).Set(float64(len(inbox)))
			if err := dispatch(ctx, b.reg, item.m); err != nil {
				b.requeue(ctx, actor, inbox, item)
			}
		}
	}
}

// requeue re-queues a failed told message after a pause, dropping it once
// its attempts are spent. Hoped messages are never requeued.
func (b *MemoryBus) requeue(ctx context.Context, actor string, inbox chan inboxItem, item inboxItem) {
	if item.droppable {
		return
	}
	item.attempts++
	if item.attempts >= memoryMaxAttempts {
		slog.Error("message exhausted retries, dropping",
			slog.String("actor", actor),
			slog.String("message_id", item.m.ID),
			slog.Int("attempts", item.attempts))
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(memoryRetryBackoff):
		select {
		case inbox <- item:
		default:
			slog.Error("inbox full, dropping retried message",
				slog.String("actor", actor),
				slog.String("message_id", item.m.ID))
		}
	}
}
