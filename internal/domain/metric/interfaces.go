package metric

import (
	"context"

	"github.com/rpggio/runledger/internal/domain/event"
)

// Repository provides persistence for metric points.
type Repository interface {
	// Append stores points atomically; all of them or none become visible.
	Append(ctx context.Context, points []Point) error
	// Each replays a run's points in insertion order until fn returns an error.
	Each(ctx context.Context, runID int64, fn func(Point) error) error
	DeleteForRun(ctx context.Context, runID int64) (int64, error)
}

// RunLookup reports whether a run exists.
type RunLookup interface {
	RunExists(ctx context.Context, runID int64) (bool, error)
}

// EventRepository records history-clearing events.
type EventRepository interface {
	Log(ctx context.Context, entry *event.Entry) error
}
