package jobs

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/rpggio/runledger/internal/blobstore"
	"github.com/rpggio/runledger/internal/domain/dataset"
	"github.com/rpggio/runledger/internal/domain/experiment"
	"github.com/rpggio/runledger/internal/domain/metric"
	"github.com/rpggio/runledger/internal/domain/run"
	"github.com/rpggio/runledger/internal/sqlite"
	"github.com/rpggio/runledger/internal/training"
)

type fixture struct {
	runner      *Runner
	runs        *run.Service
	metrics     *metric.Service
	datasets    *dataset.Service
	experiments *experiment.Service
	reader      *sdkmetric.ManualReader
	expID       int64
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	store, err := blobstore.Open(blobstore.Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	runRepo := sqlite.NewRunRepository(db)
	events := sqlite.NewEventRepository(db)
	f := &fixture{
		runs:        run.NewService(runRepo, events, nil),
		metrics:     metric.NewService(sqlite.NewMetricRepository(db), runRepo, events, nil),
		datasets:    dataset.NewService(store, nil),
		experiments: experiment.NewService(sqlite.NewExperimentRepository(db), nil),
		reader:      sdkmetric.NewManualReader(),
	}

	cfg.Meter = sdkmetric.NewMeterProvider(sdkmetric.WithReader(f.reader)).Meter("test")
	f.runner, err = NewRunner(cfg, f.runs, f.metrics, f.datasets, nil)
	require.NoError(t, err)
	t.Cleanup(func() { f.runner.Shutdown(context.Background()) })

	ctx := context.Background()
	exp, err := f.experiments.Create(ctx, experiment.CreateRequest{Name: "E"})
	require.NoError(t, err)
	f.expID = exp.ID

	_, err = f.datasets.Upload(ctx, "iris.csv", blobCSV(90))
	require.NoError(t, err)
	return f
}

// blobCSV renders n rows of three well separated classes.
func blobCSV(n int) []byte {
	rng := rand.New(rand.NewPCG(3, 5))
	names := []string{"setosa", "versicolor", "virginica"}
	var b strings.Builder
	b.WriteString("sepal_length,sepal_width,petal_length,species\n")
	for i := 0; i < n; i++ {
		c := i % 3
		fmt.Fprintf(&b, "%.3f,%.3f,%.3f,%s\n",
			float64(c*5)+rng.NormFloat64()*0.5,
			float64(c%2*5)+rng.NormFloat64()*0.5,
			rng.NormFloat64(),
			names[c])
	}
	return []byte(b.String())
}

// noiseCSV renders n rows whose labels ignore the features, so trees grow
// until their leaves are pure and every estimator is expensive.
func noiseCSV(n int) []byte {
	rng := rand.New(rand.NewPCG(9, 13))
	var b strings.Builder
	b.WriteString("a,b,c,label\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%.5f,%.5f,%.5f,c%d\n", rng.Float64(), rng.Float64(), rng.Float64(), rng.IntN(3))
	}
	return []byte(b.String())
}

// slowForest starts a forest whose single step takes far longer than the
// interruption under test.
func (f *fixture) slowForest(t *testing.T) *run.Run {
	t.Helper()
	ctx := context.Background()
	_, err := f.datasets.Upload(ctx, "noise.csv", noiseCSV(20000))
	require.NoError(t, err)
	r, err := f.runner.Start(ctx, StartRequest{
		ExperimentID:    f.expID,
		DatasetFilename: "noise.csv",
		Model:           "RandomForest",
		Params:          map[string]any{"n_estimators": 5000, "max_depth": nil, "max_features": "all"},
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) waitStatus(t *testing.T, id int64, want run.Status) *run.Run {
	t.Helper()
	var got *run.Run
	require.Eventually(t, func() bool {
		r, err := f.runs.Get(context.Background(), id)
		if err != nil {
			return false
		}
		got = r
		return r.Status == want
	}, 10*time.Second, 5*time.Millisecond)
	return got
}

func (f *fixture) waitJob(t *testing.T, id int64, cond func(Job) bool) Job {
	t.Helper()
	var got Job
	require.Eventually(t, func() bool {
		j, err := f.runner.Get(id)
		if err != nil {
			return false
		}
		got = j
		return cond(j)
	}, 10*time.Second, 5*time.Millisecond)
	return got
}

func TestRunner_RandomForestCompletes(t *testing.T) {
	f := newFixture(t, Config{Workers: 2})
	ctx := context.Background()

	r, err := f.runner.Start(ctx, StartRequest{
		ExperimentID:    f.expID,
		DatasetFilename: "iris.csv",
		Model:           "RandomForest",
		Params:          map[string]any{"n_estimators": 50, "unknown_knob": true},
	})
	require.NoError(t, err)
	require.Equal(t, run.StatusPending, r.Status)
	require.Equal(t, "RandomForest on iris.csv", r.Name)
	require.Equal(t, []string{"auto-web", "RandomForest"}, r.Tags)
	require.Equal(t, "RandomForest", r.Parameters["model"])
	require.Equal(t, "iris.csv", r.Parameters["dataset"])

	done := f.waitStatus(t, r.ID, run.StatusCompleted)
	require.Contains(t, done.Metrics, "final_accuracy")
	require.Greater(t, done.Metrics["final_accuracy"], 0.8)
	for _, name := range []string{"validation_accuracy", "final_loss", "f1_score", "precision", "recall"} {
		require.Contains(t, done.Metrics, name)
	}
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.FinishedAt)

	points, err := f.metrics.List(ctx, r.ID)
	require.NoError(t, err)
	require.NotEmpty(t, points)
	steps := map[int64]bool{}
	for _, p := range points {
		steps[p.Step] = true
	}
	require.Len(t, steps, 20)

	job := f.waitJob(t, r.ID, func(j Job) bool { return j.State.Terminal() })
	require.Equal(t, StateSucceeded, job.State)
	require.Equal(t, 20, job.Step)
	require.Equal(t, 20, job.Steps)
	require.NotEmpty(t, job.ID)
}

func TestRunner_UnknownModelCreatesNoRun(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})
	ctx := context.Background()

	_, err := f.runner.Start(ctx, StartRequest{ExperimentID: f.expID, DatasetFilename: "iris.csv", Model: "Unicorn"})
	require.ErrorIs(t, err, training.ErrUnknownModel)

	runs, err := f.runs.List(ctx, run.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestRunner_MissingDatasetCreatesNoRun(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})
	ctx := context.Background()

	_, err := f.runner.Start(ctx, StartRequest{ExperimentID: f.expID, DatasetFilename: "nope.csv", Model: "KNN"})
	require.ErrorIs(t, err, dataset.ErrDatasetNotFound)

	runs, err := f.runs.List(ctx, run.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestRunner_MissingExperiment(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})

	_, err := f.runner.Start(context.Background(), StartRequest{ExperimentID: 999, DatasetFilename: "iris.csv", Model: "KNN"})
	require.ErrorIs(t, err, run.ErrExperimentNotFound)
	require.Empty(t, f.runner.List())
}

func TestRunner_ConcurrentStartsAreIndependent(t *testing.T) {
	f := newFixture(t, Config{Workers: 2})
	ctx := context.Background()

	type result struct {
		r   *run.Run
		err error
	}
	results := make(chan result, 2)
	for _, model := range []string{"NaiveBayes", "DecisionTree"} {
		go func() {
			r, err := f.runner.Start(ctx, StartRequest{ExperimentID: f.expID, DatasetFilename: "iris.csv", Model: model})
			results <- result{r, err}
		}()
	}
	a, b := <-results, <-results
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	require.NotEqual(t, a.r.ID, b.r.ID)

	for _, r := range []*run.Run{a.r, b.r} {
		f.waitStatus(t, r.ID, run.StatusCompleted)
		points, err := f.metrics.List(ctx, r.ID)
		require.NoError(t, err)
		require.NotEmpty(t, points)
		for _, p := range points {
			require.Equal(t, r.ID, p.RunID)
		}
	}
}

func TestRunner_WorkerSlotsQueueJobs(t *testing.T) {
	f := newFixture(t, Config{Workers: 1, StepDelay: 20 * time.Millisecond})
	ctx := context.Background()

	first, err := f.runner.Start(ctx, StartRequest{ExperimentID: f.expID, DatasetFilename: "iris.csv", Model: "AdaBoost"})
	require.NoError(t, err)
	second, err := f.runner.Start(ctx, StartRequest{ExperimentID: f.expID, DatasetFilename: "iris.csv", Model: "KNN"})
	require.NoError(t, err)

	f.waitJob(t, first.ID, func(j Job) bool { return j.State == StateRunning })
	job, err := f.runner.Get(second.ID)
	require.NoError(t, err)
	require.Equal(t, StateQueued, job.State)

	r, err := f.runs.Get(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, run.StatusPending, r.Status)

	f.waitStatus(t, second.ID, run.StatusCompleted)
	jobs := f.runner.List()
	require.Len(t, jobs, 2)
	require.Equal(t, first.ID, jobs[0].RunID)
}

func TestRunner_ClearDuringJob(t *testing.T) {
	f := newFixture(t, Config{Workers: 1, StepDelay: 20 * time.Millisecond})
	ctx := context.Background()

	r, err := f.runner.Start(ctx, StartRequest{ExperimentID: f.expID, DatasetFilename: "iris.csv", Model: "LogisticRegression"})
	require.NoError(t, err)
	f.waitJob(t, r.ID, func(j Job) bool { return j.Step >= 1 })

	_, err = f.runs.ClearAll(ctx)
	require.NoError(t, err)

	job := f.waitJob(t, r.ID, func(j Job) bool { return j.State.Terminal() })
	require.Equal(t, StateFailed, job.State)
	require.Equal(t, "run cleared", job.Error)

	runs, err := f.runs.List(ctx, run.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, runs)

	f.runner.Forget()
	_, err = f.runner.Get(r.ID)
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunner_ShutdownFailsInFlightRuns(t *testing.T) {
	f := newFixture(t, Config{Workers: 1, StepDelay: 50 * time.Millisecond})
	ctx := context.Background()

	running, err := f.runner.Start(ctx, StartRequest{ExperimentID: f.expID, DatasetFilename: "iris.csv", Model: "SVM"})
	require.NoError(t, err)
	queued, err := f.runner.Start(ctx, StartRequest{ExperimentID: f.expID, DatasetFilename: "iris.csv", Model: "KNN"})
	require.NoError(t, err)
	f.waitJob(t, running.ID, func(j Job) bool { return j.Step >= 1 })

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Shutdown(shutdownCtx))

	for _, id := range []int64{running.ID, queued.ID} {
		r, err := f.runs.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, run.StatusFailed, r.Status)
		require.Equal(t, "interrupted by shutdown", r.Error)
	}

	_, err = f.runner.Start(ctx, StartRequest{ExperimentID: f.expID, DatasetFilename: "iris.csv", Model: "KNN"})
	require.ErrorIs(t, err, ErrShuttingDown)
}

func TestRunner_TimeoutFailsRun(t *testing.T) {
	f := newFixture(t, Config{Workers: 1, StepDelay: 50 * time.Millisecond, Timeout: 120 * time.Millisecond})

	r, err := f.runner.Start(context.Background(), StartRequest{ExperimentID: f.expID, DatasetFilename: "iris.csv", Model: "NaiveBayes"})
	require.NoError(t, err)

	failed := f.waitStatus(t, r.ID, run.StatusFailed)
	require.Contains(t, failed.Error, "timed out")
}

func TestRunner_TimeoutInterruptsLongStep(t *testing.T) {
	f := newFixture(t, Config{Workers: 1, Timeout: 150 * time.Millisecond})
	r := f.slowForest(t)

	job := f.waitJob(t, r.ID, func(j Job) bool { return j.State.Terminal() })
	require.Equal(t, StateFailed, job.State)
	require.Contains(t, job.Error, "timed out")
	require.Less(t, job.FinishedAt.Sub(*job.StartedAt), 3*time.Second)

	failed := f.waitStatus(t, r.ID, run.StatusFailed)
	require.Contains(t, failed.Error, "timed out")
}

func TestRunner_ShutdownInterruptsLongStep(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})
	r := f.slowForest(t)
	f.waitJob(t, r.ID, func(j Job) bool { return j.State == StateRunning })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Shutdown(ctx))

	failed, err := f.runs.Get(context.Background(), r.ID)
	require.NoError(t, err)
	require.Equal(t, run.StatusFailed, failed.Status)
	require.Equal(t, "interrupted by shutdown", failed.Error)
}

func TestRunner_InvalidParamsCreateNoRun(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})
	ctx := context.Background()

	for _, params := range []map[string]any{
		{"n_estimators": "abc"},
		{"n_estimators": 4_000_000},
		{"max_depth": -1},
	} {
		_, err := f.runner.Start(ctx, StartRequest{
			ExperimentID:    f.expID,
			DatasetFilename: "iris.csv",
			Model:           "RandomForest",
			Params:          params,
		})
		require.ErrorIs(t, err, training.ErrInvalidParams, "%v", params)
	}

	runs, err := f.runs.List(ctx, run.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, runs)
	require.Empty(t, f.runner.List())
}

func TestRunner_BadDataFailsRun(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})
	ctx := context.Background()
	_, err := f.datasets.Upload(ctx, "tiny.csv", []byte("x,label\n1,a\n2,b\n"))
	require.NoError(t, err)

	r, err := f.runner.Start(ctx, StartRequest{ExperimentID: f.expID, DatasetFilename: "tiny.csv", Model: "KNN"})
	require.NoError(t, err)

	failed := f.waitStatus(t, r.ID, run.StatusFailed)
	require.NotEmpty(t, failed.Error)
	job := f.waitJob(t, r.ID, func(j Job) bool { return j.State.Terminal() })
	require.Equal(t, StateFailed, job.State)
}

func TestRunner_RecordsInstruments(t *testing.T) {
	f := newFixture(t, Config{Workers: 1})
	ctx := context.Background()

	r, err := f.runner.Start(ctx, StartRequest{ExperimentID: f.expID, DatasetFilename: "iris.csv", Model: "AdaBoost"})
	require.NoError(t, err)
	f.waitJob(t, r.ID, func(j Job) bool { return j.State.Terminal() })

	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	require.Equal(t, int64(1), sums["runledger_jobs_started_total"])
	require.Equal(t, int64(1), sums["runledger_jobs_finished_total"])
	require.Equal(t, int64(20), sums["runledger_job_steps_total"])
	require.Equal(t, int64(0), sums["runledger_jobs_active"])
}
