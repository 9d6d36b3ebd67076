package metric

import "errors"

var (
	// ErrRunNotFound indicates the owning run doesn't exist.
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidInput indicates a malformed sample.
	ErrInvalidInput = errors.New("invalid metric input")
)
