package experiment

import "time"

// Experiment groups related runs under a name.
type Experiment struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary is an experiment with run counts, used for listing.
type Summary struct {
	Experiment
	RunCount       int `json:"run_count"`
	CompletedRuns  int `json:"completed_runs"`
	InProgressRuns int `json:"in_progress_runs"`
}
