package training

import "errors"

var (
	// ErrUnknownModel is returned for a model name outside the registry.
	ErrUnknownModel = errors.New("unknown model")
	// ErrInsufficientData is returned when a dataset cannot support a
	// train/validation/test split with at least two classes.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidParams is returned for hyperparameters with unusable values.
	ErrInvalidParams = errors.New("invalid parameters")
	// ErrNumerical is returned when training produces non-finite values.
	ErrNumerical = errors.New("numerical error")
)
