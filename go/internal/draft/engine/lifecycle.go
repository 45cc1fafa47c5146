package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/staffdraft/go/internal/catalog"
	"github.com/mcdev12/staffdraft/go/internal/draft/events"
	"github.com/rs/zerolog/log"
)

// Flusher pushes queued sync events out and waits for the result.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Lifecycle drives Idle -> Started -> Ending -> Idle.
type Lifecycle struct {
	state    *State
	rotation *Rotation
	source   catalog.Source
	notifier Notifier
	sink     Sink
	flusher  Flusher
	metrics  Metrics
	clock    clockwork.Clock
	shuffle  func(n int, swap func(i, j int))

	flushTimeout time.Duration
	finishing    sync.WaitGroup
}

// NewLifecycle creates the lifecycle controller.
func NewLifecycle(state *State, rotation *Rotation, source catalog.Source, notifier Notifier, sink Sink, flusher Flusher, metrics Metrics, clock clockwork.Clock, shuffle func(n int, swap func(i, j int)), flushTimeout time.Duration) *Lifecycle {
	return &Lifecycle{
		state:        state,
		rotation:     rotation,
		source:       source,
		notifier:     notifier,
		sink:         sink,
		flusher:      flusher,
		metrics:      metrics,
		clock:        clock,
		shuffle:      shuffle,
		flushTimeout: flushTimeout,
	}
}

// Start shuffles the lobby into a turn order, snapshots the catalog and hands
// the first turn to seat 0. A catalog failure leaves the lobby untouched.
func (l *Lifecycle) Start(ctx context.Context) error {
	s := l.state

	s.mu.Lock()
	err := l.checkStartableLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	snap, err := l.source.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("catalog snapshot failed, draft not started")
		return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	if snap.PoolSize() == 0 {
		return ErrEmptyPool
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The lobby may have changed while the catalog was loading.
	if err := l.checkStartableLocked(); err != nil {
		return err
	}

	l.shuffle(len(s.seats), func(i, j int) {
		s.seats[i], s.seats[j] = s.seats[j], s.seats[i]
	})
	for i, seat := range s.seats {
		seat.Index = i
		// Lobby grace windows turn into held seats for the draft.
		if seat.Presence == PresenceGracePeriod {
			stopGraceLocked(seat)
			seat.Presence = PresenceSeatHeld
		}
	}

	s.status = StatusStarted
	s.epoch++
	s.draftID = uuid.New()
	s.catalog = snap
	s.claimed = make(map[string]struct{}, snap.PoolSize())
	s.remaining = snap.PoolSize()
	s.assignments = nil
	s.startedAt = l.clock.Now()

	order := s.rosterLocked()
	ids := make([]string, len(order))
	for i, v := range order {
		ids[i] = v.ParticipantID
	}

	log.Info().
		Str("draft_id", s.draftID.String()).
		Strs("order", ids).
		Int("pool", s.remaining).
		Msg("draft started")
	l.metrics.DraftStarted(len(s.seats), s.remaining)

	l.notifier.Broadcast(events.NewMessage(events.MessageDraftStarted, events.DraftStartedPayload{
		DraftID:   s.draftID.String(),
		Order:     order,
		PoolSize:  s.remaining,
		StartedAt: s.startedAt,
	}))
	l.notifier.Broadcast(events.NewMessage(events.MessagePoolSnapshot, events.PoolSnapshotPayload{
		Available: s.poolLocked(),
		Remaining: s.remaining,
	}))
	l.enqueueLocked(events.EventDraftStarted, events.DraftStartedEvent{
		DraftID:   s.draftID.String(),
		Order:     ids,
		PoolSize:  s.remaining,
		StartedAt: s.startedAt,
	})

	l.rotation.beginLocked()
	return nil
}

func (l *Lifecycle) checkStartableLocked() error {
	switch l.state.status {
	case StatusStarted:
		return ErrAlreadyStarted
	case StatusEnding:
		return ErrDraftEnding
	}
	if len(l.state.seats) == 0 {
		return ErrNoParticipants
	}
	return nil
}

// End is the administrative end-draft action. It returns once the final
// sync flush has been attempted and the engine is idle again.
func (l *Lifecycle) End(ctx context.Context, reason string) error {
	s := l.state
	s.mu.Lock()
	switch s.status {
	case StatusIdle:
		s.mu.Unlock()
		return ErrDraftNotStarted
	case StatusEnding:
		s.mu.Unlock()
		return ErrDraftEnding
	}
	draftID := l.beginEndingLocked(reason)
	s.mu.Unlock()

	l.finish(ctx, draftID)
	return nil
}

// endAsyncLocked closes the draft from inside a state mutation, running the
// flush and reset in the background.
func (l *Lifecycle) endAsyncLocked(reason string) {
	draftID := l.beginEndingLocked(reason)
	l.finishing.Add(1)
	go func() {
		defer l.finishing.Done()
		l.finish(context.Background(), draftID)
	}()
}

// beginEndingLocked disables claims and queues the end-of-draft event. The
// epoch bump makes every claim still queued fail with ErrDraftEnded.
func (l *Lifecycle) beginEndingLocked(reason string) uuid.UUID {
	s := l.state
	s.status = StatusEnding
	s.epoch++

	log.Info().
		Str("draft_id", s.draftID.String()).
		Str("reason", reason).
		Int("assignments", len(s.assignments)).
		Msg("draft ending")
	l.metrics.DraftEnded(reason)

	l.notifier.Broadcast(events.NewMessage(events.MessageDraftEnding, events.DraftEndingPayload{
		DraftID: s.draftID.String(),
		Reason:  reason,
	}))
	l.enqueueLocked(events.EventDraftEnded, events.DraftEndedEvent{
		DraftID:     s.draftID.String(),
		Reason:      reason,
		EndedAt:     l.clock.Now(),
		Assignments: append(s.assignments[:0:0], s.assignments...),
	})
	return s.draftID
}

// finish waits for the final flush, bounded by flushTimeout, then resets the
// engine to an empty lobby. Flush failures are logged and do not stop the
// reset.
func (l *Lifecycle) finish(ctx context.Context, draftID uuid.UUID) {
	synced := true
	if l.flusher != nil {
		flushCtx, cancel := context.WithTimeout(ctx, l.flushTimeout)
		if err := l.flusher.Flush(flushCtx); err != nil {
			synced = false
			log.Error().Err(err).Str("draft_id", draftID.String()).Msg("final sync flush failed")
		}
		cancel()
	}

	s := l.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusEnding || s.draftID != draftID {
		return
	}
	assignments := len(s.assignments)
	for _, seat := range s.seats {
		stopGraceLocked(seat)
	}
	s.resetLocked()

	log.Info().Str("draft_id", draftID.String()).Bool("synced", synced).Msg("draft ended")
	l.notifier.Broadcast(events.NewMessage(events.MessageDraftEnded, events.DraftEndedPayload{
		DraftID:     draftID.String(),
		Assignments: assignments,
		Synced:      synced,
	}))
	announceRosterLocked(s, l.notifier, l.metrics)
}

// Wait blocks until background end-of-draft work has finished.
func (l *Lifecycle) Wait() {
	l.finishing.Wait()
}

func (l *Lifecycle) enqueueLocked(eventType string, payload any) {
	if err := l.sink.Enqueue(l.state.draftID, eventType, payload); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to enqueue sync event")
	}
}
