package functional_test

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/runledger/internal/domain/dataset"
	"github.com/rpggio/runledger/internal/domain/event"
	"github.com/rpggio/runledger/internal/domain/experiment"
	"github.com/rpggio/runledger/internal/domain/metric"
	"github.com/rpggio/runledger/internal/domain/run"
	"github.com/rpggio/runledger/internal/testserver"
	"github.com/rpggio/runledger/internal/training"
)

func path(parts ...any) string {
	var b strings.Builder
	for _, p := range parts {
		switch v := p.(type) {
		case int64:
			b.WriteString(strconv.FormatInt(v, 10))
		default:
			b.WriteString(v.(string))
		}
	}
	return b.String()
}

func createExperiment(t *testing.T, ts *testserver.TestServer, name string) int64 {
	t.Helper()
	var exp experiment.Experiment
	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodPost, "/experiments/", map[string]any{"name": name}, &exp))
	return exp.ID
}

func startJob(t *testing.T, ts *testserver.TestServer, expID int64, filename, model string, params map[string]any) run.Run {
	t.Helper()
	var started run.Run
	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodPost, "/jobs/start", map[string]any{
		"experiment_id":    expID,
		"dataset_filename": filename,
		"model":            model,
		"params":           params,
	}, &started))
	return started
}

func waitFinished(t *testing.T, ts *testserver.TestServer, id int64) run.Run {
	t.Helper()
	var got run.Run
	require.Eventually(t, func() bool {
		got = run.Run{}
		ts.Do(t, http.MethodGet, path("/runs/", id), nil, &got)
		return got.Status.Terminal()
	}, 20*time.Second, 20*time.Millisecond)
	return got
}

func TestFunctional_RandomForestScenario(t *testing.T) {
	ts := testserver.New(t)
	require.Equal(t, http.StatusOK, ts.Upload(t, "iris.csv", testserver.IrisCSV(90)))
	expID := createExperiment(t, ts, "E")

	started := startJob(t, ts, expID, "iris.csv", "RandomForest", map[string]any{"n_estimators": 50})
	require.Equal(t, run.StatusPending, started.Status)
	require.Equal(t, expID, started.ExperimentID)

	got := waitFinished(t, ts, started.ID)
	require.Equal(t, run.StatusCompleted, got.Status, got.Error)
	require.Contains(t, got.Metrics, "final_accuracy")
	require.GreaterOrEqual(t, got.Metrics["final_accuracy"], 0.0)
	require.LessOrEqual(t, got.Metrics["final_accuracy"], 1.0)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
}

func TestFunctional_StatusTransitionsAreOrdered(t *testing.T) {
	ts := testserver.New(t, testserver.WithStepDelay(time.Millisecond))
	require.Equal(t, http.StatusOK, ts.Upload(t, "iris.csv", testserver.IrisCSV(60)))
	expID := createExperiment(t, ts, "E")

	started := startJob(t, ts, expID, "iris.csv", "GradientBoosting", nil)
	waitFinished(t, ts, started.ID)

	var events []event.Entry
	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodGet, path("/runs/", started.ID, "/events"), nil, &events))

	var transitions []string
	for _, e := range events {
		if e.Type == event.TypeStatusChanged {
			transitions = append(transitions, e.Summary)
		}
	}
	require.Equal(t, []string{"pending -> running", "running -> completed"}, transitions)
}

func TestFunctional_EveryModelCompletes(t *testing.T) {
	ts := testserver.New(t)
	require.Equal(t, http.StatusOK, ts.Upload(t, "iris.csv", testserver.IrisCSV(90)))
	expID := createExperiment(t, ts, "all models")

	ids := make(map[string]int64, len(training.Models))
	for _, model := range training.Models {
		ids[model] = startJob(t, ts, expID, "iris.csv", model, nil).ID
	}
	for model, id := range ids {
		got := waitFinished(t, ts, id)
		require.Equal(t, run.StatusCompleted, got.Status, "%s: %s", model, got.Error)
		require.Contains(t, got.Tags, model)
	}

	var board struct {
		Entries []run.LeaderboardEntry `json:"entries"`
	}
	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodGet,
		path("/experiments/", expID, "/leaderboard?limit=0"), nil, &board))
	require.Len(t, board.Entries, len(training.Models))
	for i := 1; i < len(board.Entries); i++ {
		require.GreaterOrEqual(t, board.Entries[i-1].Value, board.Entries[i].Value)
	}
}

func TestFunctional_ConcurrentStartsKeepStreamsApart(t *testing.T) {
	ts := testserver.New(t)
	require.Equal(t, http.StatusOK, ts.Upload(t, "iris.csv", testserver.IrisCSV(60)))
	expID := createExperiment(t, ts, "E")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started []run.Run
		codes   []int
	)
	for _, model := range []string{"DecisionTree", "NaiveBayes"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var r run.Run
			code := ts.Do(t, http.MethodPost, "/jobs/start", map[string]any{
				"experiment_id": expID, "dataset_filename": "iris.csv", "model": model,
			}, &r)
			mu.Lock()
			codes = append(codes, code)
			started = append(started, r)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)
	require.Len(t, started, 2)
	require.NotEqual(t, started[0].ID, started[1].ID)

	for _, r := range started {
		waitFinished(t, ts, r.ID)
		var points []metric.Point
		require.Equal(t, http.StatusOK, ts.Do(t, http.MethodGet, path("/runs/", r.ID, "/metrics"), nil, &points))
		require.NotEmpty(t, points)
		for _, p := range points {
			require.Equal(t, r.ID, p.RunID)
		}
	}
}

func TestFunctional_MetricRoundTrip(t *testing.T) {
	ts := testserver.New(t)
	expID := createExperiment(t, ts, "manual")

	var created run.Run
	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodPost, "/runs/", map[string]any{"experiment_id": expID, "name": "hand"}, &created))

	sent := []map[string]any{
		{"name": "loss", "value": 0.9, "step": 1},
		{"name": "loss", "value": 0.4, "step": 2},
		{"name": "acc", "value": 0.75, "step": 2},
	}
	for _, p := range sent {
		require.Equal(t, http.StatusOK, ts.Do(t, http.MethodPost, path("/runs/", created.ID, "/metrics"), p, nil))
	}

	var points []metric.Point
	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodGet, path("/runs/", created.ID, "/metrics"), nil, &points))
	require.Len(t, points, len(sent))
	for i, p := range points {
		require.Equal(t, sent[i]["name"], p.Name)
		require.Equal(t, sent[i]["value"], p.Value)
		require.EqualValues(t, sent[i]["step"], p.Step)
	}
}

func TestFunctional_ReuploadReplacesDataset(t *testing.T) {
	ts := testserver.New(t)
	require.Equal(t, http.StatusOK, ts.Upload(t, "data.csv", testserver.IrisCSV(60)))
	require.Equal(t, http.StatusOK, ts.Upload(t, "data.csv", []byte("x,label\n1,a\n2,b\n")))

	var listed struct {
		Datasets []string `json:"datasets"`
	}
	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodGet, "/datasets", nil, &listed))
	require.Equal(t, []string{"data.csv"}, listed.Datasets)

	var info dataset.Dataset
	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodGet, "/datasets/data.csv", nil, &info))
	require.Equal(t, 2, info.Rows)

	expID := createExperiment(t, ts, "E")
	got := waitFinished(t, ts, startJob(t, ts, expID, "data.csv", "KNN", nil).ID)
	require.Equal(t, run.StatusFailed, got.Status)
	require.NotEmpty(t, got.Error)
}

func TestFunctional_StartRejectionsPersistNothing(t *testing.T) {
	ts := testserver.New(t)
	require.Equal(t, http.StatusOK, ts.Upload(t, "iris.csv", testserver.IrisCSV(30)))
	expID := createExperiment(t, ts, "E")

	require.Equal(t, http.StatusBadRequest, ts.Do(t, http.MethodPost, "/jobs/start", map[string]any{
		"experiment_id": expID, "dataset_filename": "iris.csv", "model": "Unicorn",
	}, nil))
	require.Equal(t, http.StatusNotFound, ts.Do(t, http.MethodPost, "/jobs/start", map[string]any{
		"experiment_id": expID, "dataset_filename": "missing.csv", "model": "KNN",
	}, nil))

	var runs []run.Run
	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodGet, "/runs/", nil, &runs))
	require.Empty(t, runs)
}

func TestFunctional_ClearDuringTraining(t *testing.T) {
	ts := testserver.New(t, testserver.WithStepDelay(50*time.Millisecond))
	require.Equal(t, http.StatusOK, ts.Upload(t, "iris.csv", testserver.IrisCSV(60)))
	expID := createExperiment(t, ts, "E")

	started := startJob(t, ts, expID, "iris.csv", "AdaBoost", nil)
	require.Eventually(t, func() bool {
		var points []metric.Point
		ts.Do(t, http.MethodGet, path("/runs/", started.ID, "/metrics"), nil, &points)
		return len(points) > 0
	}, 10*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodDelete, "/clear_data", nil, nil))

	var runs []run.Run
	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodGet, "/runs/", nil, &runs))
	require.Empty(t, runs)
	require.Equal(t, http.StatusNotFound, ts.Do(t, http.MethodGet, path("/runs/", started.ID, "/metrics"), nil, nil))

	// The interrupted job never resurrects the run.
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodGet, "/runs/", nil, &runs))
	require.Empty(t, runs)
}
