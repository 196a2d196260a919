package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"feedpipe/internal/mq"
	"feedpipe/internal/observability/metrics"
	"feedpipe/internal/observability/tracing"
	"feedpipe/internal/resilience/retry"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// RedisConfig holds the settings for a RedisBus.
type RedisConfig struct {
	// URL is the Redis connection URL (redis://host:port/db).
	URL string

	// Group is the consumer group name. All consumers of one process
	// class share a group, so messages are distributed rather than
	// broadcast.
	Group string

	// Consumer identifies this process within the group.
	Consumer string

	// StreamPrefix namespaces the pipeline streams in a shared Redis.
	StreamPrefix string

	// HopeMaxLen caps each hope stream. The oldest entries shed first,
	// which is exactly the Hope contract under load.
	HopeMaxLen int64

	// TellMaxLen is a safety valve on tell streams. Delivery stays
	// at-least-once until a sustained backlog exceeds it.
	TellMaxLen int64

	// BatchSize is how many messages one XREADGROUP call may return.
	BatchSize int64

	// Block is the XREADGROUP blocking window.
	Block time.Duration

	// ClaimIdle is how long a pending told message may sit unacked before
	// another consumer claims and redelivers it.
	ClaimIdle time.Duration

	// MaxDeliveries caps deliveries of one told message. Past it the
	// message is dropped as poison.
	MaxDeliveries int64
}

// DefaultRedisConfig returns production defaults. The consumer name embeds
// hostname and pid so parallel workers never collide.
func DefaultRedisConfig() RedisConfig {
	host, _ := os.Hostname()
	return RedisConfig{
		URL:           "redis://localhost:6379/0",
		Group:         "feedpipe",
		Consumer:      fmt.Sprintf("%s-%d", host, os.Getpid()),
		StreamPrefix:  "feedpipe:",
		HopeMaxLen:    10000,
		TellMaxLen:    100000,
		BatchSize:     16,
		Block:         5 * time.Second,
		ClaimIdle:     time.Minute,
		MaxDeliveries: 5,
	}
}

// RedisBus carries messages on Redis Streams: one stream per actor and mode,
// XADD to publish, XREADGROUP to consume, XACK on completion. Told messages
// keep a pending entry until acked, so messages of a crashed consumer are
// reclaimed by the reclaim loop; hoped messages ride length-capped streams.
type RedisBus struct {
	client *redis.Client
	reg    *registry
	cfg    RedisConfig
}

// NewRedisBus connects to Redis at cfg.URL.
func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("NewRedisBus: parse url: %w", err)
	}
	return NewRedisBusWithClient(redis.NewClient(opts), cfg), nil
}

// NewRedisBusWithClient wraps an existing client. Tests use this with
// miniredis.
func NewRedisBusWithClient(client *redis.Client, cfg RedisConfig) *RedisBus {
	return &RedisBus{
		client: client,
		reg:    newRegistry(),
		cfg:    cfg,
	}
}

// Ping reports whether Redis is reachable, for readiness checks.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

// Register binds a handler to an actor name.
func (b *RedisBus) Register(name string, h mq.Handler) {
	b.reg.register(name, h)
}

func (b *RedisBus) tellStream(name string) string {
	return b.cfg.StreamPrefix + "tell:" + name
}

func (b *RedisBus) hopeStream(name string) string {
	return b.cfg.StreamPrefix + "hope:" + name
}

// Tell publishes to the actor's tell stream, retrying transient Redis
// failures with backoff.
func (b *RedisBus) Tell(ctx context.Context, name string, payload any, opts ...mq.SendOption) error {
	ctx, span := tracing.StartProducerSpan(ctx, name, "tell")
	err := b.publish(ctx, b.tellStream(name), name, payload, opts, b.cfg.TellMaxLen, true)
	tracing.EndSpan(span, err)
	if err != nil {
		metrics.RecordMessageSent(name, "tell", "error")
		return fmt.Errorf("tell %s: %w", name, err)
	}
	metrics.RecordMessageSent(name, "tell", "ok")
	return nil
}

// Hope publishes to the actor's capped hope stream in one attempt.
func (b *RedisBus) Hope(ctx context.Context, name string, payload any, opts ...mq.SendOption) error {
	ctx, span := tracing.StartProducerSpan(ctx, name, "hope")
	err := b.publish(ctx, b.hopeStream(name), name, payload, opts, b.cfg.HopeMaxLen, false)
	tracing.EndSpan(span, err)
	if err != nil {
		metrics.RecordMessageSent(name, "hope", "error")
		return fmt.Errorf("hope %s: %w", name, err)
	}
	metrics.RecordMessageSent(name, "hope", "ok")
	return nil
}

func (b *RedisBus) publish(ctx context.Context, stream, name string, payload any, opts []mq.SendOption, maxLen int64, withRetry bool) error {
	m, err := newEnvelope(ctx, name, payload, opts)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: messageValues(m),
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	if !withRetry {
		return b.client.XAdd(ctx, args).Err()
	}
	return retry.WithBackoff(ctx, retry.BusPublishConfig(), func() error {
		return b.client.XAdd(ctx, args).Err()
	})
}

// Run consumes the streams of every registered actor until ctx is done.
func (b *RedisBus) Run(ctx context.Context) error {
	names := b.reg.names()
	if len(names) == 0 {
		return fmt.Errorf("Run: no actors registered")
	}
	var tellStreams []string
	var all []string
	for _, name := range names {
		tellStreams = append(tellStreams, b.tellStream(name))
		all = append(all, b.tellStream(name), b.hopeStream(name))
	}
	for _, stream := range all {
		if err := b.createGroup(ctx, stream); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.readLoop(ctx, all) })
	g.Go(func() error { return b.reclaimLoop(ctx, tellStreams) })
	return g.Wait()
}

func (b *RedisBus) createGroup(ctx context.Context, stream string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, b.cfg.Group, "0").Err()
	// BUSYGROUP means the group already exists, which is fine.
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group for %s: %w", stream, err)
	}
	return nil
}

func (b *RedisBus) readLoop(ctx context.Context, streams []string) error {
	// XREADGROUP wants the stream list followed by one ">" per stream.
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		result, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			Streams:  args,
			Count:    b.cfg.BatchSize,
			Block:    b.cfg.Block,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("bus read failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range result {
			for _, xmsg := range stream.Messages {
				b.handle(ctx, stream.Stream, xmsg)
			}
		}
	}
}

// handle dispatches one stream entry. Failed told messages are left
// pending for the reclaim loop; everything else is acked.
func (b *RedisBus) handle(ctx context.Context, stream string, xmsg redis.XMessage) {
	m := parseMessage(xmsg)
	err := dispatch(ctx, b.reg, m)

	droppable := strings.HasPrefix(stream, b.cfg.StreamPrefix+"hope:")
	if err != nil && !droppable {
		return
	}
	if ackErr := b.client.XAck(ctx, stream, b.cfg.Group, xmsg.ID).Err(); ackErr != nil {
		slog.Error("bus ack failed",
			slog.String("stream", stream),
			slog.String("id", xmsg.ID),
			slog.Any("error", ackErr))
	}
}

func (b *RedisBus) reclaimLoop(ctx context.Context, tellStreams []string) error {
	interval := b.cfg.ClaimIdle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, stream := range tellStreams {
				b.reclaim(ctx, stream)
			}
		}
	}
}

// reclaim takes over told messages that sat unacked past ClaimIdle and
// redelivers them, dropping poison messages once their delivery count
// exceeds MaxDeliveries.
func (b *RedisBus) reclaim(ctx context.Context, stream string) {
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  b.cfg.Group,
		Idle:   b.cfg.ClaimIdle,
		Start:  "-",
		End:    "+",
		Count:  b.cfg.BatchSize,
	}).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			slog.Error("bus query pending failed",
				slog.String("stream", stream),
				slog.Any("error", err))
		}
		return
	}
	if len(pending) == 0 {
		return
	}

	var ids []string
	for _, entry := range pending {
		if entry.RetryCount > b.cfg.MaxDeliveries {
			slog.Error("message exceeded max deliveries, dropping",
				slog.String("stream", stream),
				slog.String("id", entry.ID),
				slog.Int64("deliveries", entry.RetryCount))
			if ackErr := b.client.XAck(ctx, stream, b.cfg.Group, entry.ID).Err(); ackErr != nil {
				slog.Error("bus ack poison failed",
					slog.String("stream", stream),
					slog.String("id", entry.ID),
					slog.Any("error", ackErr))
			}
			continue
		}
		ids = append(ids, entry.ID)
	}
	if len(ids) == 0 {
		return
	}

	claimed, err := b.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    b.cfg.Group,
		Consumer: b.cfg.Consumer,
		MinIdle:  b.cfg.ClaimIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("bus claim failed",
				slog.String("stream", stream),
				slog.Any("error", err))
		}
		return
	}
	for _, xmsg := range claimed {
		b.handle(ctx, stream, xmsg)
	}
}

// messageValues flattens an envelope into stream entry fields.
func messageValues(m *mq.Message) map[string]interface{} {
	values := map[string]interface{}{
		"id":      m.ID,
		"name":    m.Name,
		"payload": string(m.Payload),
	}
	if m.ExpireAt != nil {
		values["expire_at"] = m.ExpireAt.Format(time.RFC3339Nano)
	}
	if len(m.Trace) > 0 {
		trace, _ := json.Marshal(m.Trace)
		values["trace"] = string(trace)
	}
	return values
}

// parseMessage rebuilds the envelope from stream entry fields. Unknown or
// malformed fields are ignored; dispatch rejects anything unusable.
func parseMessage(xmsg redis.XMessage) *mq.Message {
	m := &mq.Message{}
	if v, ok := xmsg.Values["id"].(string); ok {
		m.ID = v
	}
	if v, ok := xmsg.Values["name"].(string); ok {
		m.Name = v
	}
	if v, ok := xmsg.Values["payload"].(string); ok {
		m.Payload = json.RawMessage(v)
	}
	if v, ok := xmsg.Values["expire_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			m.ExpireAt = &t
		}
	}
	if v, ok := xmsg.Values["trace"].(string); ok {
		var trace map[string]string
		if err := json.Unmarshal([]byte(v), &trace); err == nil {
			m.Trace = trace
		}
	}
	return m
}
