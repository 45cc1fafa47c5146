package engine

import (
	"github.com/google/uuid"
	"github.com/mcdev12/staffdraft/go/internal/draft/events"
)

// Notifier delivers outbound messages. Implementations must not block: the
// engine calls them while holding the state lock so that notifications leave
// in the same order as the state changes that caused them.
type Notifier interface {
	Broadcast(msg events.Message)
	Send(connID string, msg events.Message)
	Disconnect(connID string)
}

// Sink receives events for external sync. Enqueue must not block on network
// I/O.
type Sink interface {
	Enqueue(draftID uuid.UUID, eventType string, payload any) error
}

// Metrics receives engine instrumentation.
type Metrics interface {
	ClaimApplied()
	ClaimRejected(reason string)
	TurnAdvanced()
	SeatsChanged(total, connected int)
	DraftStarted(seats, pool int)
	DraftEnded(reason string)
}

type NopMetrics struct{}

func (NopMetrics) ClaimApplied()         {}
func (NopMetrics) ClaimRejected(string)  {}
func (NopMetrics) TurnAdvanced()         {}
func (NopMetrics) SeatsChanged(int, int) {}
func (NopMetrics) DraftStarted(int, int) {}
func (NopMetrics) DraftEnded(string)     {}

type nopNotifier struct{}

func (nopNotifier) Broadcast(events.Message)    {}
func (nopNotifier) Send(string, events.Message) {}
func (nopNotifier) Disconnect(string)           {}

type nopSink struct{}

func (nopSink) Enqueue(uuid.UUID, string, any) error { return nil }
