package bus

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"feedpipe/internal/mq"
)

func newTestRedisBus(t *testing.T) *RedisBus {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := DefaultRedisConfig()
	cfg.Group = "test-group"
	cfg.Consumer = "test-consumer"
	cfg.StreamPrefix = "test:"
	cfg.BatchSize = 8
	// miniredis は即座に応答するので、ブロックせずポーリングで読む
	cfg.Block = -1

	b := NewRedisBusWithClient(client, cfg)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestRedisBus_TellRoundtrip(t *testing.T) {
	b := newTestRedisBus(t)

	got := make(chan mq.FindFeedPayload, 1)
	b.Register("test.echo", func(ctx context.Context, m *mq.Message) error {
		var p mq.FindFeedPayload
		if err := m.Decode(&p); err != nil {
			return err
		}
		got <- p
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run より先に発行しても、グループは先頭から読むので取りこぼさない
	err := b.Tell(ctx, "test.echo", &mq.FindFeedPayload{FeedCreationID: 42, URL: "https://example.com"})
	if err != nil {
		t.Fatalf("Tell() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	select {
	case p := <-got:
		if p.FeedCreationID != 42 {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v, want nil after cancel", err)
	}
}

func TestRedisBus_HopeRoundtrip(t *testing.T) {
	b := newTestRedisBus(t)

	got := make(chan struct{}, 1)
	b.Register("test.echo", func(ctx context.Context, m *mq.Message) error {
		got <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Hope(ctx, "test.echo", nil); err != nil {
		t.Fatalf("Hope() error = %v", err)
	}

	go func() { _ = b.Run(ctx) }()

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestRedisBus_ExpireAtSurvivesTheWire(t *testing.T) {
	b := newTestRedisBus(t)

	deadline := time.Now().Add(time.Hour).UTC()
	got := make(chan *mq.Message, 1)
	b.Register("test.echo", func(ctx context.Context, m *mq.Message) error {
		got <- m
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Tell(ctx, "test.echo", nil, mq.WithExpireAt(deadline)); err != nil {
		t.Fatalf("Tell() error = %v", err)
	}
	go func() { _ = b.Run(ctx) }()

	select {
	case m := <-got:
		if m.ExpireAt == nil || !m.ExpireAt.Equal(deadline) {
			t.Errorf("ExpireAt = %v, want %v", m.ExpireAt, deadline)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestRedisBus_RunWithoutActors(t *testing.T) {
	b := newTestRedisBus(t)
	if err := b.Run(context.Background()); err == nil {
		t.Error("Run() without actors expected error")
	}
}

func TestRedisBus_Ping(t *testing.T) {
	b := newTestRedisBus(t)
	if err := b.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v", err)
	}
}

func TestMessageValuesRoundtrip(t *testing.T) {
	deadline := time.Date(2023, 6, 15, 12, 0, 0, 123456789, time.UTC)
	m := &mq.Message{
		ID:       "msg-1",
		Name:     "test.actor",
		Payload:  []byte(`{"feed_id":1}`),
		ExpireAt: &deadline,
		Trace:    map[string]string{"traceparent": "00-abc-def-01"},
	}

	parsed := parseMessage(redis.XMessage{ID: "1-0", Values: messageValues(m)})

	if parsed.ID != m.ID || parsed.Name != m.Name {
		t.Errorf("parsed = %+v", parsed)
	}
	if string(parsed.Payload) != string(m.Payload) {
		t.Errorf("Payload = %s", parsed.Payload)
	}
	if parsed.ExpireAt == nil || !parsed.ExpireAt.Equal(deadline) {
		t.Errorf("ExpireAt = %v, want %v", parsed.ExpireAt, deadline)
	}
	if parsed.Trace["traceparent"] != "00-abc-def-01" {
		t.Errorf("Trace = %v", parsed.Trace)
	}
}

func TestParseMessage_MalformedFields(t *testing.T) {
	parsed := parseMessage(redis.XMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			"id":        "msg-1",
			"name":      "test.actor",
			"payload":   "{}",
			"expire_at": "not a timestamp",
			"trace":     "not json",
		},
	})
	if parsed.ExpireAt != nil {
		t.Errorf("ExpireAt = %v, want nil for malformed field", parsed.ExpireAt)
	}
	if parsed.Trace != nil {
		t.Errorf("Trace = %v, want nil for malformed field", parsed.Trace)
	}
	if parsed.ID != "msg-1" || string(parsed.Payload) != "{}" {
		t.Errorf("well-formed fields must still parse: %+v", parsed)
	}
}

func TestStreamNames(t *testing.T) {
	b := newTestRedisBus(t)
	if got := b.tellStream("worker.sync_feed"); !strings.HasPrefix(got, "test:tell:") {
		t.Errorf("tellStream() = %q", got)
	}
	if got := b.hopeStream("worker.sync_feed"); !strings.HasPrefix(got, "test:hope:") {
		t.Errorf("hopeStream() = %q", got)
	}
}
