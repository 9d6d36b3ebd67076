package mocks

import (
	"context"

	"github.com/rpggio/runledger/internal/domain/event"
	"github.com/rpggio/runledger/internal/domain/experiment"
	"github.com/rpggio/runledger/internal/domain/metric"
	"github.com/rpggio/runledger/internal/domain/run"
	"github.com/stretchr/testify/mock"
)

// ExperimentRepository is a mock for experiment.Repository.
type ExperimentRepository struct {
	mock.Mock
}

func (m *ExperimentRepository) Create(ctx context.Context, exp *experiment.Experiment) error {
	args := m.Called(ctx, exp)
	return args.Error(0)
}

func (m *ExperimentRepository) Get(ctx context.Context, id int64) (*experiment.Experiment, error) {
	args := m.Called(ctx, id)
	if exp, ok := args.Get(0).(*experiment.Experiment); ok {
		return exp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ExperimentRepository) List(ctx context.Context) ([]experiment.Summary, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]experiment.Summary); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ExperimentRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// RunRepository is a mock for run.Repository.
type RunRepository struct {
	mock.Mock
}

func (m *RunRepository) Create(ctx context.Context, r *run.Run) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *RunRepository) Get(ctx context.Context, id int64) (*run.Run, error) {
	args := m.Called(ctx, id)
	if r, ok := args.Get(0).(*run.Run); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RunRepository) List(ctx context.Context, opts run.ListOptions) ([]run.Run, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]run.Run); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RunRepository) Transition(ctx context.Context, id int64, from, to run.Status, opts run.TransitionOptions) error {
	args := m.Called(ctx, id, from, to, opts)
	return args.Error(0)
}

func (m *RunRepository) SetMetrics(ctx context.Context, id int64, metrics map[string]float64) error {
	args := m.Called(ctx, id, metrics)
	return args.Error(0)
}

func (m *RunRepository) AddTags(ctx context.Context, id int64, tags []string) ([]string, error) {
	args := m.Called(ctx, id, tags)
	if list, ok := args.Get(0).([]string); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RunRepository) SetNotes(ctx context.Context, id int64, notes string) error {
	args := m.Called(ctx, id, notes)
	return args.Error(0)
}

func (m *RunRepository) Search(ctx context.Context, query string, opts run.SearchOptions) ([]run.Run, error) {
	args := m.Called(ctx, query, opts)
	if list, ok := args.Get(0).([]run.Run); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RunRepository) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MetricRepository is a mock for metric.Repository.
type MetricRepository struct {
	mock.Mock
}

func (m *MetricRepository) Append(ctx context.Context, points []metric.Point) error {
	args := m.Called(ctx, points)
	return args.Error(0)
}

// Each feeds the []metric.Point given as the first return value to fn.
func (m *MetricRepository) Each(ctx context.Context, runID int64, fn func(metric.Point) error) error {
	args := m.Called(ctx, runID)
	if points, ok := args.Get(0).([]metric.Point); ok {
		for _, p := range points {
			if err := fn(p); err != nil {
				return err
			}
		}
	}
	return args.Error(1)
}

func (m *MetricRepository) DeleteForRun(ctx context.Context, runID int64) (int64, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(int64), args.Error(1)
}

// RunLookup is a mock for metric.RunLookup.
type RunLookup struct {
	mock.Mock
}

func (m *RunLookup) RunExists(ctx context.Context, runID int64) (bool, error) {
	args := m.Called(ctx, runID)
	return args.Bool(0), args.Error(1)
}

// EventRepository is a mock for event.Repository.
type EventRepository struct {
	mock.Mock
}

func (m *EventRepository) Log(ctx context.Context, entry *event.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *EventRepository) List(ctx context.Context, opts event.ListOptions) ([]event.Entry, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]event.Entry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// BlobStore is a mock for dataset.BlobStore.
type BlobStore struct {
	mock.Mock
}

func (m *BlobStore) Put(ctx context.Context, name string, content []byte) error {
	args := m.Called(ctx, name, content)
	return args.Error(0)
}

func (m *BlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	args := m.Called(ctx, name)
	if b, ok := args.Get(0).([]byte); ok {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *BlobStore) List(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]string); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}
