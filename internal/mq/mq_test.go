package mq

import (
	"errors"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	m, err := NewMessage(WorkerSyncFeed, &SyncFeedPayload{FeedID: 7, URL: "https://example.com/feed"})
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	if m.ID == "" {
		t.Error("ID not assigned")
	}
	if m.Name != WorkerSyncFeed {
		t.Errorf("Name = %q", m.Name)
	}

	var p SyncFeedPayload
	if err := m.Decode(&p); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if p.FeedID != 7 || p.URL != "https://example.com/feed" {
		t.Errorf("Decode() = %+v", p)
	}
}

func TestNewMessage_UnmarshalablePayload(t *testing.T) {
	if _, err := NewMessage(WorkerSyncFeed, make(chan int)); err == nil {
		t.Error("NewMessage(chan) expected error")
	}
}

func TestDecode_Invalid(t *testing.T) {
	m := &Message{Name: WorkerSyncFeed, Payload: []byte(`{"feed_id": "not a number"}`)}
	var p SyncFeedPayload
	err := m.Decode(&p)
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Decode() = %v, want ErrInvalidPayload", err)
	}
}

func TestExpired(t *testing.T) {
	now := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name     string
		expireAt *time.Time
		want     bool
	}{
		{"no deadline", nil, false},
		{"past deadline", &past, true},
		{"future deadline", &future, false},
		{"exactly at deadline", &now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Message{ExpireAt: tt.expireAt}
			if got := m.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithExpireAt(t *testing.T) {
	deadline := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	m := &Message{}
	WithExpireAt(deadline)(m)
	if m.ExpireAt == nil || !m.ExpireAt.Equal(deadline) {
		t.Errorf("ExpireAt = %v, want %v", m.ExpireAt, deadline)
	}
}
