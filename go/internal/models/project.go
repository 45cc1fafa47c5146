package models

import "slices"

// Project is a target container owned by one participant. Claimed consultants
// are placed into the bucket matching their role.
type Project struct {
	ID          string     `json:"id" yaml:"id"`
	OwnerID     string     `json:"owner_id" yaml:"owner"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Accepts     []Category `json:"accepts" yaml:"accepts"`
}

// AcceptsRole reports whether the project has a bucket for the given role.
func (p Project) AcceptsRole(role Category) bool {
	return slices.Contains(p.Accepts, role)
}
