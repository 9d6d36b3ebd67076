package experiment

import "context"

// Repository provides persistence for experiments.
type Repository interface {
	Create(ctx context.Context, exp *Experiment) error
	Get(ctx context.Context, id int64) (*Experiment, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id int64) error
}
