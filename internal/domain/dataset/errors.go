package dataset

import "errors"

var (
	// ErrDatasetNotFound indicates no dataset is stored under the filename.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrInvalidFormat indicates the content is not a header plus rows of CSV.
	ErrInvalidFormat = errors.New("invalid dataset format")
	// ErrInvalidName indicates an unusable filename.
	ErrInvalidName = errors.New("invalid dataset filename")
)
