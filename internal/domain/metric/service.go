package metric

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/rpggio/runledger/internal/domain/event"
	"github.com/rpggio/runledger/internal/repository"
)

// Service handles metric ingestion and replay.
type Service struct {
	points Repository
	runs   RunLookup
	events EventRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new metric service. events may be nil.
func NewService(points Repository, runs RunLookup, events EventRepository, logger *slog.Logger) *Service {
	return &Service{
		points: points,
		runs:   runs,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Append records one point. Duplicate (name, step) pairs are kept.
func (s *Service) Append(ctx context.Context, runID int64, name string, value float64, step int64) (*Point, error) {
	points, err := s.AppendBatch(ctx, runID, []Sample{{Name: name, Value: value, Step: step}})
	if err != nil {
		return nil, err
	}
	return &points[0], nil
}

// AppendBatch records several samples sharing one ingestion timestamp, as a
// single atomic write.
func (s *Service) AppendBatch(ctx context.Context, runID int64, samples []Sample) ([]Point, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	ts := s.now()
	points := make([]Point, 0, len(samples))
	for _, sm := range samples {
		if err := validateSample(sm); err != nil {
			return nil, err
		}
		points = append(points, Point{
			RunID:     runID,
			Name:      sm.Name,
			Value:     sm.Value,
			Step:      sm.Step,
			Timestamp: ts,
		})
	}

	if err := s.points.Append(ctx, points); err != nil {
		if errors.Is(err, repository.ErrForeignKeyViolation) || errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("appending metrics: %w", err)
	}
	return points, nil
}

// List returns every point of a run in insertion order.
func (s *Service) List(ctx context.Context, runID int64) ([]Point, error) {
	if err := s.ensureRun(ctx, runID); err != nil {
		return nil, err
	}
	points := []Point{}
	for p, err := range s.All(ctx, runID) {
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// All lazily replays a run's points in insertion order. Each iteration
// re-reads the store from the beginning.
func (s *Service) All(ctx context.Context, runID int64) iter.Seq2[Point, error] {
	return func(yield func(Point, error) bool) {
		errStop := errors.New("stop")
		err := s.points.Each(ctx, runID, func(p Point) error {
			if !yield(p, nil) {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield(Point{}, fmt.Errorf("reading metrics: %w", err))
		}
	}
}

// Latest returns the last recorded value per metric name.
func (s *Service) Latest(ctx context.Context, runID int64) (map[string]float64, error) {
	if err := s.ensureRun(ctx, runID); err != nil {
		return nil, err
	}
	latest := map[string]float64{}
	for p, err := range s.All(ctx, runID) {
		if err != nil {
			return nil, err
		}
		latest[p.Name] = p.Value
	}
	return latest, nil
}

// ClearHistory bulk-deletes a run's points.
func (s *Service) ClearHistory(ctx context.Context, runID int64) (int64, error) {
	if err := s.ensureRun(ctx, runID); err != nil {
		return 0, err
	}
	n, err := s.points.DeleteForRun(ctx, runID)
	if err != nil {
		return 0, fmt.Errorf("clearing metric history: %w", err)
	}
	if s.events != nil {
		if err := s.events.Log(ctx, &event.Entry{
			RunID:   runID,
			Type:    event.TypeHistoryCleared,
			Summary: fmt.Sprintf("deleted %d metric points", n),
		}); err != nil && s.logger != nil {
			s.logger.Warn("failed to log run event", "run_id", runID, "error", err)
		}
	}
	return n, nil
}

func (s *Service) ensureRun(ctx context.Context, runID int64) error {
	ok, err := s.runs.RunExists(ctx, runID)
	if err != nil {
		return fmt.Errorf("checking run: %w", err)
	}
	if !ok {
		return ErrRunNotFound
	}
	return nil
}

func validateSample(sm Sample) error {
	if strings.TrimSpace(sm.Name) == "" {
		return ErrInvalidInput
	}
	if sm.Step < 0 {
		return ErrInvalidInput
	}
	if math.IsNaN(sm.Value) || math.IsInf(sm.Value, 0) {
		return ErrInvalidInput
	}
	return nil
}
