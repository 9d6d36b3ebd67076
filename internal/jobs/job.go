package jobs

import (
	"errors"
	"time"
)

// State is the lifecycle state of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether the job has finished.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Job is the asynchronous execution that advances one run to a terminal
// status.
type Job struct {
	ID         string     `json:"id"`
	RunID      int64      `json:"run_id"`
	Model      string     `json:"model"`
	Dataset    string     `json:"dataset"`
	State      State      `json:"state"`
	Step       int        `json:"step"`
	Steps      int        `json:"steps"`
	Error      string     `json:"error,omitempty"`
	QueuedAt   time.Time  `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StartRequest describes a training job.
type StartRequest struct {
	ExperimentID    int64
	DatasetFilename string
	Model           string
	Params          map[string]any
}

var (
	// ErrJobNotFound is returned when no job exists for a run.
	ErrJobNotFound = errors.New("job not found")
	// ErrShuttingDown is returned by Start once Shutdown has begun.
	ErrShuttingDown = errors.New("job runner is shutting down")
)

const (
	reasonCleared  = "run cleared"
	reasonShutdown = "interrupted by shutdown"
)
