package run

import "time"

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Run is one execution attempt tracked with its own status and metrics.
type Run struct {
	ID           int64              `json:"id"`
	ExperimentID int64              `json:"experiment_id"`
	Name         string             `json:"name"`
	Status       Status             `json:"status"`
	Parameters   map[string]any     `json:"parameters"`
	Tags         []string           `json:"tags"`
	Metrics      map[string]float64 `json:"metrics"`
	Notes        string             `json:"notes,omitempty"`
	Error        string             `json:"error,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	FinishedAt   *time.Time         `json:"finished_at,omitempty"`
}

// ListOptions filters run listings. Results are always in creation order.
type ListOptions struct {
	ExperimentID *int64
	Status       *Status
	Limit        int
	Offset       int
}

// SearchOptions narrows a full-text run search.
type SearchOptions struct {
	ExperimentID *int64
	Limit        int
}

// TransitionOptions carries side data recorded with a status change.
type TransitionOptions struct {
	At     time.Time
	Reason string
}
