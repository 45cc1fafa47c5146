package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/mcdev12/staffdraft/go/internal/models"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a YAML catalog.
type File struct {
	Participants []models.Participant `yaml:"participants"`
	Consultants  []models.Consultant  `yaml:"consultants"`
	Projects     []models.Project     `yaml:"projects"`
}

// YAMLSource reads the catalog from a YAML file. The file is re-read on every
// Load so that edits between drafts are picked up.
type YAMLSource struct {
	path string
}

// NewYAMLSource creates a source reading the catalog at path.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

func (s *YAMLSource) Load(_ context.Context) (*Snapshot, error) {
	f, err := ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(f.Participants, f.Consultants, f.Projects)
}

// LookupParticipant loads the file and looks up id.
func (s *YAMLSource) LookupParticipant(ctx context.Context, id string) (models.Participant, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return models.Participant{}, err
	}
	return snap.LookupParticipant(ctx, id)
}

// ReadFile parses a YAML catalog file without validating it.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &f, nil
}
