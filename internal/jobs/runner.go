// Package jobs runs training jobs in the background, one per run, on a
// bounded pool of worker slots.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/rpggio/runledger/internal/domain/dataset"
	"github.com/rpggio/runledger/internal/domain/metric"
	"github.com/rpggio/runledger/internal/domain/run"
	"github.com/rpggio/runledger/internal/training"
)

// RunService is the subset of run operations a job needs.
type RunService interface {
	Create(ctx context.Context, req run.CreateRequest) (*run.Run, error)
	UpdateStatus(ctx context.Context, id int64, to run.Status, reason string) (*run.Run, error)
	SetMetricsSummary(ctx context.Context, id int64, metrics map[string]float64) error
}

// MetricService records per-step measurements.
type MetricService interface {
	AppendBatch(ctx context.Context, runID int64, samples []metric.Sample) ([]metric.Point, error)
}

// DatasetService resolves dataset files.
type DatasetService interface {
	Exists(ctx context.Context, filename string) (bool, error)
	Load(ctx context.Context, filename string) (*dataset.Table, error)
}

// Config tunes the runner.
type Config struct {
	// Workers bounds how many jobs train at once; the rest wait queued.
	Workers int
	// StepDelay paces steps so pollers can watch progress.
	StepDelay time.Duration
	// Timeout caps a single job once it holds a slot. Zero disables it.
	Timeout time.Duration
	// Seed drives the data split and every model's randomness.
	Seed uint64
	// Meter receives job instruments. Nil uses the global provider.
	Meter otelmetric.Meter
}

// Runner owns every job's lifecycle.
type Runner struct {
	cfg      Config
	runs     RunService
	metrics  MetricService
	datasets DatasetService
	logger   *slog.Logger
	inst     *instruments

	slots  *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	jobs   map[int64]*Job
	closed bool

	now func() time.Time
}

// NewRunner creates a runner. Jobs run until Shutdown is called.
func NewRunner(cfg Config, runs RunService, metrics MetricService, datasets DatasetService, logger *slog.Logger) (*Runner, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter("github.com/rpggio/runledger/internal/jobs")
	}
	inst, err := newInstruments(meter)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:      cfg,
		runs:     runs,
		metrics:  metrics,
		datasets: datasets,
		logger:   logger,
		inst:     inst,
		slots:    semaphore.NewWeighted(int64(cfg.Workers)),
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[int64]*Job),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start validates the request, creates a pending run and queues its job. It
// returns as soon as the job is queued. No run is created when the model is
// unknown, the dataset is missing or the params are unusable.
func (r *Runner) Start(ctx context.Context, req StartRequest) (*run.Run, error) {
	if !training.Known(req.Model) {
		return nil, fmt.Errorf("%w: %q", training.ErrUnknownModel, req.Model)
	}
	ok, err := r.datasets.Exists(ctx, req.DatasetFilename)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dataset.ErrDatasetNotFound
	}
	if err := training.ValidateParams(req.Model, req.Params); err != nil {
		return nil, err
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrShuttingDown
	}

	params := make(map[string]any, len(req.Params)+2)
	maps.Copy(params, req.Params)
	params["model"] = req.Model
	params["dataset"] = req.DatasetFilename

	rn, err := r.runs.Create(ctx, run.CreateRequest{
		ExperimentID: req.ExperimentID,
		Name:         fmt.Sprintf("%s on %s", req.Model, req.DatasetFilename),
		Parameters:   params,
		Tags:         []string{"auto-web", req.Model},
	})
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:       uuid.NewString(),
		RunID:    rn.ID,
		Model:    req.Model,
		Dataset:  req.DatasetFilename,
		State:    StateQueued,
		QueuedAt: r.now(),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.markFailed(rn.ID, reasonShutdown)
		return nil, ErrShuttingDown
	}
	r.jobs[rn.ID] = job
	r.wg.Add(1)
	r.mu.Unlock()

	r.inst.started.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("model", req.Model)))
	r.logger.Info("job queued", "job_id", job.ID, "run_id", rn.ID, "model", req.Model, "dataset", req.DatasetFilename)

	go r.execute(job.ID, rn.ID, req)
	return rn, nil
}

// Get returns a snapshot of the job for runID.
func (r *Runner) Get(runID int64) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[runID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

// List returns snapshots of every known job ordered by run ID.
func (r *Runner) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.jobs))
	for _, id := range slices.Sorted(maps.Keys(r.jobs)) {
		out = append(out, *r.jobs[id])
	}
	return out
}

// Forget drops finished jobs, used after all runs are cleared. Running jobs
// are kept so their outcome stays observable.
func (r *Runner) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, job := range r.jobs {
		if job.State.Terminal() {
			delete(r.jobs, id)
		}
	}
}

// Shutdown stops accepting jobs, interrupts running and queued ones and waits
// for them to record their outcome or for ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) execute(jobID string, runID int64, req StartRequest) {
	defer r.wg.Done()

	if err := r.slots.Acquire(r.ctx, 1); err != nil {
		r.finish(runID, req.Model, reasonShutdown, 0)
		r.markFailed(runID, reasonShutdown)
		return
	}
	defer r.slots.Release(1)

	r.inst.active.Add(r.ctx, 1)

	ctx := r.ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(r.ctx, r.cfg.Timeout)
		defer cancel()
	}

	started := r.now()
	r.update(runID, func(j *Job) {
		j.State = StateRunning
		j.StartedAt = &started
	})
	r.logger.Info("job started", "job_id", jobID, "run_id", runID)

	err := r.train(ctx, runID, req)
	r.inst.active.Add(context.Background(), -1)
	elapsed := r.now().Sub(started)
	if err == nil {
		r.finish(runID, req.Model, "", elapsed)
		r.logger.Info("job succeeded", "job_id", jobID, "run_id", runID, "elapsed", elapsed)
		return
	}

	reason := r.failureReason(ctx, err)
	r.finish(runID, req.Model, reason, elapsed)
	if reason == reasonCleared {
		r.logger.Warn("job stopped", "job_id", jobID, "run_id", runID, "reason", reason)
		return
	}
	r.logger.Error("job failed", "job_id", jobID, "run_id", runID, "error", err)
	r.markFailed(runID, reason)
}

func (r *Runner) train(ctx context.Context, runID int64, req StartRequest) error {
	if _, err := r.runs.UpdateStatus(ctx, runID, run.StatusRunning, ""); err != nil {
		return err
	}

	table, err := r.datasets.Load(ctx, req.DatasetFilename)
	if err != nil {
		return err
	}
	split, err := training.Prepare(table, r.cfg.Seed)
	if err != nil {
		return err
	}
	trainer, err := training.New(req.Model, req.Params, split, r.cfg.Seed)
	if err != nil {
		return err
	}

	steps := trainer.Steps()
	r.update(runID, func(j *Job) { j.Steps = steps })

	latest := map[string]float64{}
	for i := 1; i <= steps; i++ {
		measurements, err := trainer.Step(ctx, i)
		if err != nil {
			return err
		}
		r.update(runID, func(j *Job) { j.Step = i })
		if measurements == nil {
			continue
		}

		samples := make([]metric.Sample, len(measurements))
		for k, m := range measurements {
			samples[k] = metric.Sample{Name: m.Name, Value: m.Value, Step: int64(i)}
			latest[m.Name] = m.Value
		}
		if _, err := r.metrics.AppendBatch(ctx, runID, samples); err != nil {
			return err
		}
		if err := r.runs.SetMetricsSummary(ctx, runID, maps.Clone(latest)); err != nil {
			return err
		}
		r.inst.steps.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("model", req.Model)))

		if i < steps {
			if err := sleep(ctx, r.cfg.StepDelay); err != nil {
				return err
			}
		}
	}

	summary, err := trainer.Summary()
	if err != nil {
		return err
	}
	if err := r.runs.SetMetricsSummary(ctx, runID, summary); err != nil {
		return err
	}
	_, err = r.runs.UpdateStatus(ctx, runID, run.StatusCompleted, "")
	return err
}

func (r *Runner) failureReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, run.ErrRunNotFound), errors.Is(err, metric.ErrRunNotFound):
		return reasonCleared
	case r.ctx.Err() != nil:
		return reasonShutdown
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("timed out after %s", r.cfg.Timeout)
	}
	return err.Error()
}

// finish records the terminal job state. An empty reason means success.
func (r *Runner) finish(runID int64, model, reason string, elapsed time.Duration) {
	state := StateSucceeded
	if reason != "" {
		state = StateFailed
	}
	r.inst.recordFinish(context.Background(), model, state, elapsed)
	finished := r.now()
	r.update(runID, func(j *Job) {
		j.State = state
		j.Error = reason
		j.FinishedAt = &finished
	})
}

// markFailed moves the run to failed on a fresh context, since the job's own
// context may already be done.
func (r *Runner) markFailed(runID int64, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := r.runs.UpdateStatus(ctx, runID, run.StatusFailed, reason)
	if err != nil && !errors.Is(err, run.ErrRunNotFound) && !errors.Is(err, run.ErrInvalidTransition) {
		r.logger.Error("failed to mark run failed", "run_id", runID, "error", err)
	}
}

func (r *Runner) update(runID int64, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[runID]; ok {
		fn(job)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
