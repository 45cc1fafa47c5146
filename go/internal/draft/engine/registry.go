package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/staffdraft/go/internal/auth"
	"github.com/mcdev12/staffdraft/go/internal/catalog"
	"github.com/mcdev12/staffdraft/go/internal/draft/events"
	"github.com/mcdev12/staffdraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Registration is the outcome of an accepted register call.
type Registration struct {
	Seat     events.SeatView
	Rejoined bool
	Snapshot events.DraftSnapshot
}

// Registry binds participant identities to live connections.
type Registry struct {
	state      *State
	verifier   auth.Verifier
	directory  catalog.Directory
	source     catalog.Source
	supervisor *Supervisor
	notifier   Notifier
	metrics    Metrics
}

// NewRegistry creates a registry over state. source may be nil, in which
// case lobby registrations carry no catalog preview.
func NewRegistry(state *State, verifier auth.Verifier, directory catalog.Directory, source catalog.Source, supervisor *Supervisor, notifier Notifier, metrics Metrics) *Registry {
	return &Registry{
		state:      state,
		verifier:   verifier,
		directory:  directory,
		source:     source,
		supervisor: supervisor,
		notifier:   notifier,
		metrics:    metrics,
	}
}

// Register seats participantID on connID, or rebinds an existing seat when
// the participant is returning.
func (r *Registry) Register(ctx context.Context, connID, participantID, credentials string) (Registration, error) {
	if connID == "" || participantID == "" {
		return Registration{}, ErrUnknownParticipant
	}
	if err := r.verifier.Verify(participantID, credentials); err != nil {
		log.Debug().Err(err).Str("participant_id", participantID).Msg("credentials rejected")
		return Registration{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	// The directory may hit the database, so resolve before taking the lock.
	// A failed lookup only matters if a new seat has to be created.
	participant, lookupErr := r.directory.LookupParticipant(ctx, participantID)
	preview := r.previewCatalog(ctx)

	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusEnding {
		return Registration{}, ErrDraftEnding
	}

	if other := s.seatByConnLocked(connID); other != nil && other.ParticipantID != participantID {
		return Registration{}, ErrConnectionInUse
	}

	seat := s.seatByParticipantLocked(participantID)
	switch {
	case seat != nil && seat.Presence == PresenceActive:
		if seat.ConnID != connID {
			return Registration{}, ErrAlreadyConnected
		}
		return r.acceptedLocked(seat, false, preview), nil

	case seat != nil:
		r.supervisor.rejoinLocked(seat, connID)
		log.Info().
			Str("participant_id", participantID).
			Int("seat", seat.Index).
			Str("status", s.status.String()).
			Msg("participant rejoined")
		reg := r.acceptedLocked(seat, true, preview)
		announceRosterLocked(s, r.notifier, r.metrics)
		return reg, nil

	case s.status == StatusStarted:
		return Registration{}, ErrNotInDraft
	}

	if lookupErr != nil {
		if errors.Is(lookupErr, catalog.ErrParticipantNotFound) {
			return Registration{}, ErrUnknownParticipant
		}
		return Registration{}, fmt.Errorf("lookup participant: %w", lookupErr)
	}

	seat = newSeat(participant, connID, len(s.seats))
	s.seats = append(s.seats, seat)

	log.Info().
		Str("participant_id", participantID).
		Str("connection_id", connID).
		Int("seats", len(s.seats)).
		Msg("participant registered")

	reg := r.acceptedLocked(seat, false, preview)
	announceRosterLocked(s, r.notifier, r.metrics)
	return reg, nil
}

// previewCatalog reads the catalog for a lobby registration so the
// registrant sees its projects and the pool before the draft starts. Once a
// draft is running the state already holds both.
func (r *Registry) previewCatalog(ctx context.Context) *catalog.Snapshot {
	r.state.mu.Lock()
	idle := r.state.status == StatusIdle
	r.state.mu.Unlock()
	if !idle || r.source == nil {
		return nil
	}

	snap, err := r.source.Load(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("catalog preview unavailable")
		return nil
	}
	return snap
}

func newSeat(p models.Participant, connID string, index int) *Seat {
	name := p.Name
	if name == "" {
		name = p.ID
	}
	return &Seat{
		ParticipantID: p.ID,
		Name:          name,
		ConnID:        connID,
		Index:         index,
		Presence:      PresenceActive,
	}
}

// acceptedLocked sends the registration result to the seat's connection
// ahead of any roster update it causes.
func (r *Registry) acceptedLocked(seat *Seat, rejoined bool, preview *catalog.Snapshot) Registration {
	reg := Registration{
		Seat:     seat.view(),
		Rejoined: rejoined,
		Snapshot: r.state.snapshotLocked(),
	}
	if r.state.catalog == nil && preview != nil {
		reg.Snapshot.Pool = preview.Consultants()
		reg.Snapshot.Projects = map[string][]models.Project{
			seat.ParticipantID: preview.ProjectsFor(seat.ParticipantID),
		}
	}
	view := reg.Seat
	snapshot := reg.Snapshot
	r.notifier.Send(seat.ConnID, events.NewMessage(events.MessageRegistrationResult, events.RegistrationResultPayload{
		Accepted: true,
		Rejoined: rejoined,
		Seat:     &view,
		Snapshot: &snapshot,
	}))
	return reg
}

// announceRosterLocked sends the roster to every connection and refreshes
// the seat gauges.
func announceRosterLocked(s *State, notifier Notifier, metrics Metrics) {
	connected := 0
	for _, seat := range s.seats {
		if seat.ConnID != "" {
			connected++
		}
	}
	metrics.SeatsChanged(len(s.seats), connected)
	notifier.Broadcast(events.NewMessage(events.MessageRosterUpdate, events.RosterUpdatePayload{
		Seats: s.rosterLocked(),
	}))
}
