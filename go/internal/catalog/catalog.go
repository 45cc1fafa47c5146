package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/staffdraft/go/internal/models"
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrInvalidCatalog      = errors.New("invalid catalog")
)

// Source fetches the catalog snapshot a draft runs against. It is read once
// per draft start.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// Directory resolves participant identities at registration time.
type Directory interface {
	LookupParticipant(ctx context.Context, id string) (models.Participant, error)
}

// Snapshot is an immutable view of the participant roster, the claimable
// consultant pool and the projects each participant owns.
type Snapshot struct {
	participants []models.Participant
	consultants  []models.Consultant
	projects     []models.Project

	participantByID map[string]int
	consultantByID  map[string]int
	projectsByOwner map[string][]models.Project
}

// NewSnapshot validates and indexes catalog contents.
func NewSnapshot(participants []models.Participant, consultants []models.Consultant, projects []models.Project) (*Snapshot, error) {
	s := &Snapshot{
		participants:    participants,
		consultants:     consultants,
		projects:        projects,
		participantByID: make(map[string]int, len(participants)),
		consultantByID:  make(map[string]int, len(consultants)),
		projectsByOwner: make(map[string][]models.Project),
	}

	for i, p := range participants {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: participant %d has no id", ErrInvalidCatalog, i)
		}
		if _, dup := s.participantByID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate participant %q", ErrInvalidCatalog, p.ID)
		}
		s.participantByID[p.ID] = i
	}

	for i, c := range consultants {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: consultant %d has no id", ErrInvalidCatalog, i)
		}
		if c.Role == "" {
			return nil, fmt.Errorf("%w: consultant %q has no role", ErrInvalidCatalog, c.ID)
		}
		if _, dup := s.consultantByID[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate consultant %q", ErrInvalidCatalog, c.ID)
		}
		s.consultantByID[c.ID] = i
	}

	seen := make(map[[2]string]struct{}, len(projects))
	for _, p := range projects {
		if _, ok := s.participantByID[p.OwnerID]; !ok {
			return nil, fmt.Errorf("%w: project %q owned by unknown participant %q", ErrInvalidCatalog, p.ID, p.OwnerID)
		}
		key := [2]string{p.OwnerID, p.ID}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate project %q for %q", ErrInvalidCatalog, p.ID, p.OwnerID)
		}
		seen[key] = struct{}{}
		s.projectsByOwner[p.OwnerID] = append(s.projectsByOwner[p.OwnerID], p)
	}

	return s, nil
}

func (s *Snapshot) Participants() []models.Participant { return s.participants }
func (s *Snapshot) Consultants() []models.Consultant   { return s.consultants }
func (s *Snapshot) Projects() []models.Project         { return s.projects }

// PoolSize is the number of claimable consultants.
func (s *Snapshot) PoolSize() int { return len(s.consultants) }

// Participant returns the participant with the given ID.
func (s *Snapshot) Participant(id string) (models.Participant, bool) {
	i, ok := s.participantByID[id]
	if !ok {
		return models.Participant{}, false
	}
	return s.participants[i], true
}

// Consultant returns the consultant with the given ID.
func (s *Snapshot) Consultant(id string) (models.Consultant, bool) {
	i, ok := s.consultantByID[id]
	if !ok {
		return models.Consultant{}, false
	}
	return s.consultants[i], true
}

// ProjectsFor returns the projects owned by a participant.
func (s *Snapshot) ProjectsFor(ownerID string) []models.Project {
	return s.projectsByOwner[ownerID]
}

// Project finds one of the owner's projects by ID.
func (s *Snapshot) Project(ownerID, projectID string) (models.Project, bool) {
	for _, p := range s.projectsByOwner[ownerID] {
		if p.ID == projectID {
			return p, true
		}
	}
	return models.Project{}, false
}

// LookupParticipant implements Directory over a loaded snapshot.
func (s *Snapshot) LookupParticipant(_ context.Context, id string) (models.Participant, error) {
	p, ok := s.Participant(id)
	if !ok {
		return models.Participant{}, ErrParticipantNotFound
	}
	return p, nil
}

// Load implements Source for a fixed snapshot.
func (s *Snapshot) Load(context.Context) (*Snapshot, error) {
	return s, nil
}
