package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/staffdraft/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYAMLSourceLoad(t *testing.T) {
	src := NewYAMLSource(filepath.Join("testdata", "catalog.yaml"))

	snap, err := src.Load(context.Background())
	require.NoError(t, err)

	assert.Len(t, snap.Participants(), 3)
	assert.Equal(t, 4, snap.PoolSize())

	c, ok := snap.Consultant("c-002")
	require.True(t, ok)
	assert.Equal(t, models.CategoryEC, c.Role)
	assert.Equal(t, "Computer Science", c.Major)

	p, ok := snap.Project("sm-ana", "p-retail")
	require.True(t, ok)
	assert.True(t, p.AcceptsRole(models.CategoryNC))
	assert.True(t, p.AcceptsRole(models.CategoryEC))

	_, ok = snap.Project("sm-ben", "p-retail")
	assert.False(t, ok, "projects are scoped to their owner")

	assert.Len(t, snap.ProjectsFor("sm-cai"), 1)
	assert.Empty(t, snap.ProjectsFor("nobody"))
}

func TestYAMLSourceLookupParticipant(t *testing.T) {
	src := NewYAMLSource(filepath.Join("testdata", "catalog.yaml"))

	p, err := src.LookupParticipant(context.Background(), "sm-ben")
	require.NoError(t, err)
	assert.Equal(t, "Ben Okafor", p.Name)

	_, err = src.LookupParticipant(context.Background(), "sm-zed")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestYAMLSourceMissingFile(t *testing.T) {
	_, err := NewYAMLSource(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewSnapshotValidation(t *testing.T) {
	owner := []models.Participant{{ID: "sm-1", Name: "One"}}

	tests := []struct {
		name         string
		participants []models.Participant
		consultants  []models.Consultant
		projects     []models.Project
		wantErr      string
	}{
		{
			name:         "duplicate participant",
			participants: []models.Participant{{ID: "sm-1"}, {ID: "sm-1"}},
			wantErr:      "duplicate participant",
		},
		{
			name:         "consultant without role",
			participants: owner,
			consultants:  []models.Consultant{{ID: "c-1", Name: "No Role"}},
			wantErr:      "has no role",
		},
		{
			name:         "duplicate consultant",
			participants: owner,
			consultants:  []models.Consultant{{ID: "c-1", Role: "NC"}, {ID: "c-1", Role: "EC"}},
			wantErr:      "duplicate consultant",
		},
		{
			name:         "project with unknown owner",
			participants: owner,
			projects:     []models.Project{{ID: "p-1", OwnerID: "sm-9"}},
			wantErr:      "unknown participant",
		},
		{
			name:         "duplicate project",
			participants: owner,
			projects:     []models.Project{{ID: "p-1", OwnerID: "sm-1"}, {ID: "p-1", OwnerID: "sm-1"}},
			wantErr:      "duplicate project",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSnapshot(tt.participants, tt.consultants, tt.projects)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

type recordingExecer struct {
	statements []string
	failOn     string
}

func (r *recordingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.statements = append(r.statements, sql)
	if r.failOn != "" && strings.Contains(sql, r.failOn) {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestSeed(t *testing.T) {
	f, err := ReadFile(filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)

	db := &recordingExecer{failOn: "INSERT INTO projects"}
	results, err := Seed(context.Background(), db, f)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, Schema, db.statements[0])
	assert.Equal(t, SeedResult{Table: "participants", Total: 3, Inserted: 3}, results[0])
	assert.Equal(t, SeedResult{Table: "consultants", Total: 4, Inserted: 4}, results[1])
	assert.Equal(t, SeedResult{Table: "projects", Total: 3, Errors: 3}, results[2])
	assert.Equal(t, "projects seed: total=3 inserted=0 skipped=0 errors=3", results[2].String())
}

func TestSeedRejectsInvalidCatalog(t *testing.T) {
	db := &recordingExecer{}
	_, err := Seed(context.Background(), db, &File{
		Participants: []models.Participant{{ID: "sm-1"}},
		Projects:     []models.Project{{ID: "p-1", OwnerID: "sm-2"}},
	})
	assert.ErrorIs(t, err, ErrInvalidCatalog)
	assert.Empty(t, db.statements, "nothing is written for an invalid catalog")
}
