package experiment

import "errors"

var (
	// ErrExperimentNotFound indicates the experiment doesn't exist.
	ErrExperimentNotFound = errors.New("experiment not found")
	// ErrInvalidInput indicates invalid experiment input.
	ErrInvalidInput = errors.New("invalid experiment input")
	// ErrHasRuns indicates the experiment still owns runs and cannot be deleted.
	ErrHasRuns = errors.New("experiment still has runs")
)
