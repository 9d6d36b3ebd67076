package run

import (
	"context"

	"github.com/rpggio/runledger/internal/domain/event"
)

// Repository provides persistence for runs.
type Repository interface {
	Create(ctx context.Context, r *Run) error
	Get(ctx context.Context, id int64) (*Run, error)
	List(ctx context.Context, opts ListOptions) ([]Run, error)
	// Transition moves id from one status to another atomically. It returns
	// repository.ErrConflict when the stored status is no longer from.
	Transition(ctx context.Context, id int64, from, to Status, opts TransitionOptions) error
	SetMetrics(ctx context.Context, id int64, metrics map[string]float64) error
	AddTags(ctx context.Context, id int64, tags []string) ([]string, error)
	SetNotes(ctx context.Context, id int64, notes string) error
	// Search matches query terms against run names, notes and tags, most
	// relevant first.
	Search(ctx context.Context, query string, opts SearchOptions) ([]Run, error)
	// DeleteAll removes every run together with its metric points and events.
	DeleteAll(ctx context.Context) (int64, error)
}

// EventRepository records run lifecycle events.
type EventRepository interface {
	Log(ctx context.Context, entry *event.Entry) error
}
