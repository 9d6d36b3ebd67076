package run

import "strings"

// rank orders statuses along pending -> running -> {completed|failed}.
func rank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// ValidateTransition checks that a status change only moves forward. Skipping
// a stage (pending -> failed, pending -> completed) keeps the observed history
// a subsequence of the lifecycle and is allowed; terminal states never change.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return ErrInvalidInput
	}
	if from.Terminal() || rank(to) <= rank(from) {
		return ErrInvalidTransition
	}
	return nil
}

// ValidateCreateInput validates fields required to create a run.
func ValidateCreateInput(req CreateRequest) error {
	if req.ExperimentID <= 0 {
		return ErrInvalidInput
	}
	if strings.TrimSpace(req.Name) == "" {
		return ErrInvalidInput
	}
	for _, tag := range req.Tags {
		if strings.TrimSpace(tag) == "" {
			return ErrInvalidInput
		}
	}
	return nil
}
