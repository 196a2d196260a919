// Package mq defines the messaging contract between the harbor and worker
// sides of the pipeline: the Bus interface, the Message envelope, the actor
// name catalog and the typed payloads exchanged on the wire.
//
// Implementations live under internal/infra/bus. Handlers decode and
// validate their payload at entry; a payload that fails validation is
// rejected before any side effect happens.
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Actor names. The prefix tells which process class consumes the message.
const (
	WorkerFindFeed            = "worker.find_feed"
	WorkerSyncFeed            = "worker.sync_feed"
	WorkerFetchStory          = "worker.fetch_story"
	WorkerProcessStoryWebpage = "worker.process_story_webpage"
	WorkerDetectStoryImages   = "worker.detect_story_images"

	HarborUpdateFeedCreationStatus = "harbor.update_feed_creation_status"
	HarborSaveFeedCreationResult   = "harbor.save_feed_creation_result"
	HarborUpdateFeed               = "harbor.update_feed"
	HarborUpdateStory              = "harbor.update_story"
	HarborUpdateStoryImages        = "harbor.update_story_images"
	HarborCheckFeed                = "harbor.check_feed"
	HarborCleanFeedCreation        = "harbor.clean_feed_creation"
)

// Sentinel errors for bus operations.
var (
	// ErrNoHandler indicates a message was addressed to an actor name with
	// no registered handler.
	ErrNoHandler = errors.New("no handler registered")

	// ErrInvalidPayload indicates a payload failed schema validation.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Message is the envelope carried by the bus. Payload is raw JSON so the
// transport never depends on the payload catalog. Trace carries the W3C
// trace context so one feed sync stays a single trace across processes.
type Message struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Payload  json.RawMessage   `json:"payload"`
	ExpireAt *time.Time        `json:"expire_at,omitempty"`
	Trace    map[string]string `json:"trace,omitempty"`
}

// NewMessage builds an envelope for the named actor, marshalling payload
// to JSON.
func NewMessage(name string, payload any) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("NewMessage: marshal payload for %s: %w", name, err)
	}
	return &Message{
		ID:      uuid.New().String(),
		Name:    name,
		Payload: body,
	}, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, m.Name, err)
	}
	return nil
}

// Expired reports whether the message is past its expire_at as of now.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpireAt != nil && now.After(*m.ExpireAt)
}

// SendOption customizes an outgoing message.
type SendOption func(*Message)

// WithExpireAt stamps the message with a drop deadline. The substrate
// silently discards the message once the deadline passes.
func WithExpireAt(t time.Time) SendOption {
	return func(m *Message) {
		m.ExpireAt = &t
	}
}

// Handler consumes one message. Returning an error from a told message
// causes redelivery per the bus retry policy; hoped messages are never
// redelivered.
type Handler func(ctx context.Context, m *Message) error

// Bus is the messaging substrate contract: named actors with durable
// inboxes, at-least-once Tell and best-effort Hope.
//
// Ordering is NOT guaranteed across messages, even for the same actor.
// Handlers must be idempotent.
type Bus interface {
	// Register binds a handler to an actor name. Must be called before Run.
	Register(name string, h Handler)

	// Tell delivers payload to the named actor at least once.
	Tell(ctx context.Context, name string, payload any, opts ...SendOption) error

	// Hope delivers payload at most once and may drop it under load.
	Hope(ctx context.Context, name string, payload any, opts ...SendOption) error

	// Run consumes messages until ctx is done.
	Run(ctx context.Context) error
}

// Sender is the outbound half of Bus, all that emitting actors need.
type Sender interface {
	Tell(ctx context.Context, name string, payload any, opts ...SendOption) error
	Hope(ctx context.Context, name string, payload any, opts ...SendOption) error
}
