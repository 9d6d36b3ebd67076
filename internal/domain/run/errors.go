package run

import "errors"

var (
	// ErrRunNotFound indicates the run doesn't exist.
	ErrRunNotFound = errors.New("run not found")
	// ErrExperimentNotFound indicates the owning experiment doesn't exist.
	ErrExperimentNotFound = errors.New("experiment not found")
	// ErrInvalidTransition indicates a status change that breaks pending -> running -> completed|failed.
	ErrInvalidTransition = errors.New("invalid run status transition")
	// ErrInvalidInput indicates invalid run input.
	ErrInvalidInput = errors.New("invalid run input")
)
