package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Envelope is the wire form of an event shared by every sink.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	DraftID   string          `json:"draftId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func envelopeFor(event OutboxEvent) Envelope {
	return Envelope{
		EventID:   event.ID.String(),
		EventType: event.EventType,
		DraftID:   event.DraftID.String(),
		Timestamp: event.CreatedAt,
		Payload:   event.Payload,
	}
}

func marshalEnvelope(event OutboxEvent) ([]byte, error) {
	data, err := json.Marshal(envelopeFor(event))
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// LogPublisher writes events to the log. It is the sink used when nothing
// else is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a publisher that only logs events.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event OutboxEvent) error {
	p.logger.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("draft_id", event.DraftID.String()).
		RawJSON("payload", event.Payload).
		Msg("publishing event")
	return nil
}

// MultiPublisher fans an event out to several sinks. Every sink is tried;
// the event counts as published only when all of them succeed, so a sink
// that already accepted it may see it again on retry.
type MultiPublisher struct {
	publishers []EventPublisher
}

// NewMultiPublisher fans events out to every publisher.
func NewMultiPublisher(publishers ...EventPublisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// Publish tries every publisher and joins their errors.
func (m *MultiPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			log.Debug().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("sink", fmt.Sprintf("%T", p)).
				Msg("sink publish failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
