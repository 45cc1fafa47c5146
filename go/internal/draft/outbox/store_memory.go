package outbox

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a bounded in-process Store. Events are lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	events   []OutboxEvent
	capacity int
}

// NewMemoryStore creates an in-memory store. A positive capacity bounds the
// number of pending events.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{capacity: capacity}
}

func (s *MemoryStore) Append(_ context.Context, event OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity > 0 && len(s.events) >= s.capacity {
		return ErrOutboxFull
	}
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) Pending(_ context.Context, limit int) ([]OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.events)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]OutboxEvent(nil), s.events[:n]...), nil
}

func (s *MemoryStore) Ack(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.events {
		if e.ID == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events), nil
}
