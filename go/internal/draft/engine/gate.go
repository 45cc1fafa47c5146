package engine

import (
	"context"
	"sort"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/staffdraft/go/internal/draft/events"
	"github.com/mcdev12/staffdraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

type requestKind int

const (
	requestClaim requestKind = iota
	requestDefer
)

func (k requestKind) String() string {
	if k == requestDefer {
		return "defer"
	}
	return "claim"
}

// request is a claim or deferral waiting in the gate queue.
type request struct {
	kind         requestKind
	connID       string
	consultantID string
	projectID    string
	epoch        uint64
	reply        chan error
}

// Gate admits claims one at a time. Requests are queued in arrival order and
// a single worker validates and applies them, so no two requests ever see the
// same turn holder or the same unclaimed item.
type Gate struct {
	state     *State
	rotation  *Rotation
	lifecycle *Lifecycle
	notifier  Notifier
	sink      Sink
	metrics   Metrics
	clock     clockwork.Clock

	queue chan request
	done  chan struct{}
}

// NewGate creates a gate whose queue holds up to queueSize waiting requests.
func NewGate(state *State, rotation *Rotation, lifecycle *Lifecycle, notifier Notifier, sink Sink, metrics Metrics, clock clockwork.Clock, queueSize int) *Gate {
	return &Gate{
		state:     state,
		rotation:  rotation,
		lifecycle: lifecycle,
		notifier:  notifier,
		sink:      sink,
		metrics:   metrics,
		clock:     clock,
		queue:     make(chan request, queueSize),
		done:      make(chan struct{}),
	}
}

// Claim asks for consultantID to be placed on projectID on behalf of the
// connection's seat. It blocks until the worker has processed the request.
func (g *Gate) Claim(ctx context.Context, connID, consultantID, projectID string) error {
	return g.submit(ctx, request{
		kind:         requestClaim,
		connID:       connID,
		consultantID: consultantID,
		projectID:    projectID,
	})
}

// Defer gives up the connection's turn without claiming.
func (g *Gate) Defer(ctx context.Context, connID string) error {
	return g.submit(ctx, request{kind: requestDefer, connID: connID})
}

func (g *Gate) submit(ctx context.Context, req request) error {
	s := g.state
	s.mu.Lock()
	status, epoch := s.status, s.epoch
	s.mu.Unlock()

	switch status {
	case StatusIdle:
		g.rejected(req.kind, ErrDraftNotStarted)
		return ErrDraftNotStarted
	case StatusEnding:
		g.rejected(req.kind, ErrDraftEnded)
		return ErrDraftEnded
	}

	req.epoch = epoch
	req.reply = make(chan error, 1)

	select {
	case g.queue <- req:
	case <-g.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-g.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the single worker draining the queue. Requests still queued when
// ctx ends are rejected with ErrEngineStopped.
func (g *Gate) Run(ctx context.Context) {
	defer func() {
		for {
			select {
			case req := <-g.queue:
				req.reply <- ErrEngineStopped
			default:
				close(g.done)
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-g.queue:
			err := g.process(req)
			if err != nil {
				g.rejected(req.kind, err)
				log.Debug().
					Err(err).
					Str("connection_id", req.connID).
					Str("request", req.kind.String()).
					Str("consultant_id", req.consultantID).
					Msg("request rejected")
			}
			req.reply <- err
		}
	}
}

// rejected counts a rejected claim. Deferrals are not claims and are only
// logged.
func (g *Gate) rejected(kind requestKind, err error) {
	if kind == requestClaim {
		g.metrics.ClaimRejected(Reason(err))
	}
}

// process validates in a fixed order, each failure leaving state untouched.
func (g *Gate) process(req request) error {
	s := g.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.epoch != s.epoch || s.status == StatusEnding {
		return ErrDraftEnded
	}
	if s.status != StatusStarted {
		return ErrDraftNotStarted
	}

	holder := s.holderLocked()
	if holder == nil || holder.ConnID == "" || holder.ConnID != req.connID {
		return ErrNotYourTurn
	}

	if req.kind == requestDefer {
		log.Info().Str("participant_id", holder.ParticipantID).Msg("turn deferred")
		g.rotation.deferLocked()
		return nil
	}

	if _, taken := s.claimed[req.consultantID]; taken {
		return ErrAlreadyClaimed
	}
	consultant, ok := s.catalog.Consultant(req.consultantID)
	if !ok {
		return ErrUnknownItem
	}
	project, ok := s.catalog.Project(holder.ParticipantID, req.projectID)
	if !ok || !project.AcceptsRole(consultant.Role) {
		return ErrInvalidTarget
	}

	g.applyLocked(holder, consultant, project)
	return nil
}

func (g *Gate) applyLocked(holder *Seat, consultant models.Consultant, project models.Project) {
	s := g.state

	s.claimed[consultant.ID] = struct{}{}
	s.remaining--
	assignment := models.Assignment{
		DraftID:       s.draftID,
		Pick:          len(s.assignments) + 1,
		ParticipantID: holder.ParticipantID,
		ConsultantID:  consultant.ID,
		ProjectID:     project.ID,
		Bucket:        consultant.Role,
		AssignedAt:    g.clock.Now(),
	}
	s.assignments = append(s.assignments, assignment)
	g.metrics.ClaimApplied()

	log.Info().
		Str("participant_id", holder.ParticipantID).
		Str("consultant_id", consultant.ID).
		Str("project_id", project.ID).
		Str("bucket", string(consultant.Role)).
		Int("pick", assignment.Pick).
		Int("remaining", s.remaining).
		Msg("claim applied")

	g.notifier.Broadcast(events.NewMessage(events.MessageClaimApplied, events.ClaimAppliedPayload{
		ParticipantID:  holder.ParticipantID,
		ConsultantID:   consultant.ID,
		ConsultantName: consultant.Name,
		ProjectID:      project.ID,
		Bucket:         consultant.Role,
		Pick:           assignment.Pick,
		Remaining:      s.remaining,
	}))
	g.notifier.Broadcast(events.NewMessage(events.MessagePoolSnapshot, events.PoolSnapshotPayload{
		Available: s.poolLocked(),
		Remaining: s.remaining,
	}))

	g.enqueueLocked(events.EventAssignmentRecorded, events.AssignmentRecordedEvent{
		Assignment:      assignment,
		ConsultantName:  consultant.Name,
		ParticipantName: holder.Name,
		ProjectName:     project.Name,
	})
	g.enqueueLocked(events.EventProjectRoster, g.projectRosterLocked(holder.ParticipantID, project.ID))

	if s.remaining == 0 {
		g.lifecycle.endAsyncLocked("pool exhausted")
		return
	}
	g.rotation.advanceLocked()
}

func (g *Gate) projectRosterLocked(ownerID, projectID string) events.ProjectRosterEvent {
	s := g.state
	buckets := make(map[models.Category][]string)
	for _, a := range s.assignments {
		if a.ParticipantID == ownerID && a.ProjectID == projectID {
			buckets[a.Bucket] = append(buckets[a.Bucket], a.ConsultantID)
		}
	}
	for _, ids := range buckets {
		sort.Strings(ids)
	}
	return events.ProjectRosterEvent{
		DraftID:   s.draftID.String(),
		OwnerID:   ownerID,
		ProjectID: projectID,
		Buckets:   buckets,
	}
}

func (g *Gate) enqueueLocked(eventType string, payload any) {
	if err := g.sink.Enqueue(g.state.draftID, eventType, payload); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to enqueue sync event")
	}
}
