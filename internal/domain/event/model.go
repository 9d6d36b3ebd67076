package event

import "time"

// Type represents the kind of run event
type Type string

const (
	TypeRunCreated     Type = "run_created"
	TypeStatusChanged  Type = "status_changed"
	TypeTagsAdded      Type = "tags_added"
	TypeHistoryCleared Type = "history_cleared"
)

// Entry is one line of a run's audit trail
type Entry struct {
	ID        int64     `json:"id"`
	RunID     int64     `json:"run_id"`
	Type      Type      `json:"type"`
	Summary   string    `json:"summary"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
