package models

import "encoding/json"

// Category is the role of a consultant. It decides which bucket of a project
// the consultant lands in when claimed.
type Category string

const (
	CategoryNC Category = "NC" // new consultant
	CategoryEC Category = "EC" // experienced consultant
)

// Consultant is a claimable item in the draft pool.
type Consultant struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	Email      string          `json:"email,omitempty" yaml:"email,omitempty"`
	Major      string          `json:"major,omitempty" yaml:"major,omitempty"`
	Year       string          `json:"year,omitempty" yaml:"year,omitempty"`
	Role       Category        `json:"role" yaml:"role"`
	Attributes json.RawMessage `json:"attributes,omitempty" yaml:"-"`
}
