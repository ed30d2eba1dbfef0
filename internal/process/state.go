package process

import "time"

// State is the inferred lifecycle state of a target. It is derived from live
// OS data on every query and never stored.
type State string

const (
	StateNotFound  State = "not_found"
	StateRunning   State = "running"
	StateSuspended State = "suspended"
)

// Status is a point-in-time observation of a target, published to UI
// collaborators.
type Status struct {
	Target    string    `json:"target"`
	State     State     `json:"state"`
	Path      string    `json:"path,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}
