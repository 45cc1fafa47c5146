package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var errSinkDown = errors.New("sink down")

// recordingPublisher records successful publishes in order. fail decides
// whether a given attempt fails.
type recordingPublisher struct {
	mu        sync.Mutex
	published []OutboxEvent
	attempts  map[string]int
	fail      func(event OutboxEvent, attempt int) bool
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{attempts: make(map[string]int)}
}

func (p *recordingPublisher) Publish(_ context.Context, event OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := event.EventType
	p.attempts[key]++
	if p.fail != nil && p.fail(event, p.attempts[key]) {
		return errSinkDown
	}
	p.published = append(p.published, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.published))
	for _, e := range p.published {
		out = append(out, e.EventType)
	}
	return out
}

func (p *recordingPublisher) attemptsFor(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[eventType]
}

type countingMetrics struct {
	NoOpMetricsCollector
	mu      sync.Mutex
	dropped []string
}

func (m *countingMetrics) RecordEventDropped(eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, eventType)
}

func (m *countingMetrics) droppedTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dropped...)
}

func newEvent(t *testing.T, eventType string) OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"type": eventType})
	require.NoError(t, err)
	return OutboxEvent{
		ID:        uuid.New(),
		DraftID:   uuid.New(),
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}
