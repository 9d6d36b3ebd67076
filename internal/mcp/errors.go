package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/runledger/internal/domain/dataset"
	"github.com/rpggio/runledger/internal/domain/experiment"
	"github.com/rpggio/runledger/internal/domain/metric"
	"github.com/rpggio/runledger/internal/domain/run"
	"github.com/rpggio/runledger/internal/jobs"
	"github.com/rpggio/runledger/internal/training"
)

// APIError is a tool failure with a stable code and a hint for the caller.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
}

// MapError maps domain errors to tool errors. Unknown errors pass through.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, experiment.ErrExperimentNotFound), errors.Is(err, run.ErrExperimentNotFound):
		return &APIError{Code: "EXPERIMENT_NOT_FOUND", Message: "experiment not found", RecoveryHint: "Call list_experiments or create_experiment"}
	case errors.Is(err, run.ErrRunNotFound), errors.Is(err, metric.ErrRunNotFound):
		return &APIError{Code: "RUN_NOT_FOUND", Message: "run not found", RecoveryHint: "Call list_runs"}
	case errors.Is(err, dataset.ErrDatasetNotFound):
		return &APIError{Code: "DATASET_NOT_FOUND", Message: "dataset not found", RecoveryHint: "Call list_datasets"}
	case errors.Is(err, jobs.ErrJobNotFound):
		return &APIError{Code: "JOB_NOT_FOUND", Message: "no job for run", RecoveryHint: "Only runs started with start_job have jobs"}
	case errors.Is(err, training.ErrUnknownModel):
		return &APIError{Code: "UNKNOWN_MODEL", Message: err.Error(), RecoveryHint: "Use one of the models listed in the start_job description"}
	case errors.Is(err, run.ErrInvalidInput), errors.Is(err, experiment.ErrInvalidInput),
		errors.Is(err, training.ErrInvalidParams):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, jobs.ErrShuttingDown):
		return &APIError{Code: "SHUTTING_DOWN", Message: "server is shutting down", RecoveryHint: "Retry after restart"}
	}
	return err
}
