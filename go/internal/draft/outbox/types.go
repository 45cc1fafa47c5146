package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOutboxFull = errors.New("outbox full")
	ErrStopped    = errors.New("outbox stopped")
)

// OutboxEvent is one sync event waiting to be published.
type OutboxEvent struct {
	ID        uuid.UUID       `json:"id"`
	DraftID   uuid.UUID       `json:"draft_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventPublisher delivers events to an external system. Publish may be
// called more than once for the same event ID.
type EventPublisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// Store holds events until they are acknowledged. Pending returns events in
// the order they were appended.
type Store interface {
	Append(ctx context.Context, event OutboxEvent) error
	Pending(ctx context.Context, limit int) ([]OutboxEvent, error)
	Ack(ctx context.Context, id uuid.UUID) error
	Len(ctx context.Context) (int, error)
}
