package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/rpggio/runledger/internal/blobstore"
	"github.com/rpggio/runledger/internal/domain/dataset"
	"github.com/rpggio/runledger/internal/domain/event"
	"github.com/rpggio/runledger/internal/domain/experiment"
	"github.com/rpggio/runledger/internal/domain/metric"
	"github.com/rpggio/runledger/internal/domain/run"
	"github.com/rpggio/runledger/internal/jobs"
	"github.com/rpggio/runledger/internal/sqlite"
)

const irisCSV = `sepal_length,sepal_width,petal_length,petal_width,species
5.1,3.5,1.4,0.2,setosa
4.9,3.0,1.4,0.2,setosa
4.7,3.2,1.3,0.2,setosa
4.6,3.1,1.5,0.2,setosa
5.0,3.6,1.4,0.2,setosa
5.4,3.9,1.7,0.4,setosa
4.6,3.4,1.4,0.3,setosa
5.0,3.4,1.5,0.2,setosa
4.4,2.9,1.4,0.2,setosa
4.9,3.1,1.5,0.1,setosa
7.0,3.2,4.7,1.4,versicolor
6.4,3.2,4.5,1.5,versicolor
6.9,3.1,4.9,1.5,versicolor
5.5,2.3,4.0,1.3,versicolor
6.5,2.8,4.6,1.5,versicolor
5.7,2.8,4.5,1.3,versicolor
6.3,3.3,4.7,1.6,versicolor
4.9,2.4,3.3,1.0,versicolor
6.6,2.9,4.6,1.3,versicolor
5.2,2.7,3.9,1.4,versicolor
6.3,3.3,6.0,2.5,virginica
5.8,2.7,5.1,1.9,virginica
7.1,3.0,5.9,2.1,virginica
6.3,2.9,5.6,1.8,virginica
6.5,3.0,5.8,2.2,virginica
7.6,3.0,6.6,2.1,virginica
4.9,2.5,4.5,1.7,virginica
7.3,2.9,6.3,1.8,virginica
6.7,2.5,5.8,1.8,virginica
7.2,3.6,6.1,2.5,virginica
`

type testAPI struct {
	url    string
	reader *sdkmetric.ManualReader
	runner *jobs.Runner
}

func newTestAPI(t *testing.T, cfg Config) *testAPI {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	store, err := blobstore.Open(blobstore.Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	runRepo := sqlite.NewRunRepository(db)
	eventRepo := sqlite.NewEventRepository(db)
	runs := run.NewService(runRepo, eventRepo, nil)
	metrics := metric.NewService(sqlite.NewMetricRepository(db), runRepo, eventRepo, nil)
	datasets := dataset.NewService(store, nil)

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	runner, err := jobs.NewRunner(jobs.Config{Workers: 2, Meter: meter}, runs, metrics, datasets, nil)
	require.NoError(t, err)
	t.Cleanup(func() { runner.Shutdown(context.Background()) })

	cfg.Meter = meter
	router, err := NewServer(cfg, Services{
		Experiments: experiment.NewService(sqlite.NewExperimentRepository(db), nil),
		Runs:        runs,
		Metrics:     metrics,
		Events:      event.NewService(eventRepo, nil),
		Datasets:    datasets,
		Jobs:        runner,
	})
	require.NoError(t, err)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testAPI{url: server.URL, reader: reader, runner: runner}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, a.url+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *testAPI) upload(t *testing.T, filename, content string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(a.url+"/upload/", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (a *testAPI) createExperiment(t *testing.T, name string) int64 {
	t.Helper()
	var exp experiment.Experiment
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/experiments/", map[string]string{"name": name}, &exp))
	return exp.ID
}

func TestHTTPServer_Health(t *testing.T) {
	api := newTestAPI(t, Config{})

	resp, err := http.Get(api.url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	req, err := http.NewRequest(http.MethodGet, api.url+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "req-123")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, "req-123", resp2.Header.Get(RequestIDHeader))
}

func TestHTTPServer_Experiments(t *testing.T) {
	api := newTestAPI(t, Config{})

	id := api.createExperiment(t, "E")

	var exp experiment.Experiment
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/experiments/1", nil, &exp))
	require.Equal(t, id, exp.ID)
	require.Equal(t, "E", exp.Name)

	var list []experiment.Summary
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/experiments/", nil, &list))
	require.Len(t, list, 1)

	var body errorBody
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/experiments/42", nil, &body))
	require.Equal(t, "experiment not found", body.Detail)

	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/experiments/", map[string]string{"name": " "}, nil))
	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/experiments/abc", nil, nil))

	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/runs/", map[string]any{"experiment_id": id, "name": "r"}, nil))
	require.Equal(t, http.StatusConflict, api.do(t, http.MethodDelete, "/experiments/1", nil, nil))

	other := api.createExperiment(t, "empty")
	require.Equal(t, http.StatusOK, api.do(t, http.MethodDelete, "/experiments/"+itoa(other), nil, nil))
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, "/experiments/"+itoa(other), nil, nil))
}

func TestHTTPServer_Datasets(t *testing.T) {
	api := newTestAPI(t, Config{UploadMaxBytes: 4096})

	status, info := api.upload(t, "iris.csv", irisCSV)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "iris.csv", info["filename"])
	require.EqualValues(t, 30, info["rows"])

	status, _ = api.upload(t, "iris.csv", "a,label\n1,x\n2,y\n")
	require.Equal(t, http.StatusOK, status)

	var listed struct {
		Datasets []string `json:"datasets"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/datasets/", nil, &listed))
	require.Equal(t, []string{"iris.csv"}, listed.Datasets)

	var ds dataset.Dataset
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/datasets/iris.csv", nil, &ds))
	require.Equal(t, 2, ds.Rows)
	require.Equal(t, []string{"a", "label"}, ds.Columns)
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/datasets/missing.csv", nil, nil))

	status, body := api.upload(t, "bad.csv", "only_header\n")
	require.Equal(t, http.StatusBadRequest, status)
	require.NotEmpty(t, body["detail"])

	status, _ = api.upload(t, "notes.txt", "a,b\n1,2\n")
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = api.upload(t, "big.csv", "a,b\n"+strings.Repeat("1,2\n", 2000))
	require.Equal(t, http.StatusRequestEntityTooLarge, status)

	resp, err := http.Post(api.url+"/upload/", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPServer_UploadTimeout(t *testing.T) {
	api := newTestAPI(t, Config{UploadTimeout: 100 * time.Millisecond})

	var head bytes.Buffer
	mw := multipart.NewWriter(&head)
	fw, err := mw.CreateFormFile("file", "slow.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, err)

	// Send the first part of the body, then stall past the deadline.
	pr, pw := io.Pipe()
	defer pw.Close()
	go pw.Write(head.Bytes())

	req, err := http.NewRequest(http.MethodPost, api.url+"/upload/", pr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	started := time.Now()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusRequestTimeout, resp.StatusCode)
	require.Less(t, time.Since(started), 5*time.Second)

	var names map[string][]string
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/datasets/", nil, &names))
	require.NotContains(t, names["datasets"], "slow.csv")
}

func TestHTTPServer_JobScenario(t *testing.T) {
	api := newTestAPI(t, Config{})
	expID := api.createExperiment(t, "E")
	status, _ := api.upload(t, "iris.csv", irisCSV)
	require.Equal(t, http.StatusOK, status)

	var started run.Run
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/jobs/start", map[string]any{
		"experiment_id":    expID,
		"dataset_filename": "iris.csv",
		"model":            "RandomForest",
		"params":           map[string]any{"n_estimators": 50},
	}, &started))
	require.NotZero(t, started.ID)
	require.Equal(t, "RandomForest on iris.csv", started.Name)

	var got run.Run
	require.Eventually(t, func() bool {
		api.do(t, http.MethodGet, "/runs/"+itoa(started.ID), nil, &got)
		return got.Status == run.StatusCompleted
	}, 10*time.Second, 10*time.Millisecond)
	require.Contains(t, got.Metrics, "final_accuracy")

	var points []metric.Point
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs/"+itoa(started.ID)+"/metrics", nil, &points))
	require.NotEmpty(t, points)

	var job jobs.Job
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/jobs/"+itoa(started.ID), nil, &job))
	require.Equal(t, jobs.StateSucceeded, job.State)
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/jobs/999", nil, nil))

	var board struct {
		Metric  string                 `json:"metric"`
		Entries []run.LeaderboardEntry `json:"entries"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/experiments/"+itoa(expID)+"/leaderboard", nil, &board))
	require.Equal(t, "final_accuracy", board.Metric)
	require.Len(t, board.Entries, 1)
	require.Equal(t, started.ID, board.Entries[0].Run.ID)
}

func TestHTTPServer_StartJobRejections(t *testing.T) {
	api := newTestAPI(t, Config{})
	expID := api.createExperiment(t, "E")
	status, _ := api.upload(t, "iris.csv", irisCSV)
	require.Equal(t, http.StatusOK, status)

	var body errorBody
	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/jobs/start", map[string]any{
		"experiment_id": expID, "dataset_filename": "iris.csv", "model": "Unicorn",
	}, &body))
	require.Contains(t, body.Detail, "Unicorn")

	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/jobs/start", map[string]any{
		"experiment_id": expID, "dataset_filename": "nope.csv", "model": "KNN",
	}, nil))
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/jobs/start", map[string]any{
		"experiment_id": 77, "dataset_filename": "iris.csv", "model": "KNN",
	}, nil))
	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/jobs/start", map[string]any{
		"dataset_filename": "iris.csv", "model": "KNN",
	}, nil))
	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/jobs/start", map[string]any{
		"experiment_id": expID, "dataset_filename": "iris.csv", "model": "RandomForest",
		"params": map[string]any{"n_estimators": "abc"},
	}, &body))
	require.Contains(t, body.Detail, "n_estimators")
	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/jobs/start", map[string]any{
		"experiment_id": expID, "dataset_filename": "iris.csv", "model": "GradientBoosting",
		"params": map[string]any{"n_estimators": 4_000_000},
	}, nil))

	var runs []run.Run
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs/", nil, &runs))
	require.Empty(t, runs)
}

func TestHTTPServer_ManualRunLifecycle(t *testing.T) {
	api := newTestAPI(t, Config{})
	expID := api.createExperiment(t, "E")

	var created run.Run
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/runs/", map[string]any{
		"experiment_id": expID,
		"parameters":    map[string]any{"lr": 0.01},
		"tags":          []string{"demo"},
	}, &created))
	require.Equal(t, "Run", created.Name)
	require.Equal(t, run.StatusPending, created.Status)

	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/runs/", map[string]any{"experiment_id": 99}, nil))

	var updated run.Run
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPut, "/runs/"+itoa(created.ID), map[string]any{
		"status": "running",
		"tags":   []string{"gpu", "demo"},
	}, &updated))
	require.Equal(t, run.StatusRunning, updated.Status)
	require.Equal(t, []string{"demo", "gpu"}, updated.Tags)

	for step := 0; step < 3; step++ {
		require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/runs/"+itoa(created.ID)+"/metrics",
			map[string]any{"name": "loss", "value": 1.0 / float64(step+1), "step": step}, nil))
	}
	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/runs/"+itoa(created.ID)+"/metrics",
		map[string]any{"name": "loss", "value": 1, "step": -1}, nil))
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/runs/404/metrics",
		map[string]any{"name": "loss", "value": 1, "step": 0}, nil))

	var points []metric.Point
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs/"+itoa(created.ID)+"/metrics", nil, &points))
	require.Len(t, points, 3)
	require.Equal(t, int64(2), points[2].Step)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodPut, "/runs/"+itoa(created.ID), map[string]any{
		"status":  "completed",
		"metrics": map[string]float64{"final_accuracy": 0.9},
		"notes":   "done",
	}, &updated))
	require.Equal(t, run.StatusCompleted, updated.Status)
	require.Equal(t, 0.9, updated.Metrics["final_accuracy"])
	require.Equal(t, "done", updated.Notes)

	var body errorBody
	require.Equal(t, http.StatusConflict, api.do(t, http.MethodPut, "/runs/"+itoa(created.ID),
		map[string]any{"status": "running"}, &body))
	require.NotEmpty(t, body.Detail)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPut, "/runs/"+itoa(created.ID),
		map[string]any{"status": "completed"}, nil))

	var events []event.Entry
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs/"+itoa(created.ID)+"/events", nil, &events))
	require.Equal(t, event.TypeRunCreated, events[0].Type)
	require.GreaterOrEqual(t, len(events), 4)
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/runs/404/events", nil, nil))

	var cleared map[string]any
	require.Equal(t, http.StatusOK, api.do(t, http.MethodDelete, "/runs/"+itoa(created.ID)+"/metrics", nil, &cleared))
	require.EqualValues(t, 3, cleared["deleted"])
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs/"+itoa(created.ID)+"/metrics", nil, &points))
	require.Empty(t, points)
}

func TestHTTPServer_ListRunsFilters(t *testing.T) {
	api := newTestAPI(t, Config{})
	a := api.createExperiment(t, "a")
	b := api.createExperiment(t, "b")
	for _, exp := range []int64{a, b, a} {
		require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/runs/", map[string]any{"experiment_id": exp}, nil))
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPut, "/runs/3", map[string]any{"status": "running"}, nil))

	var runs []run.Run
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs", nil, &runs))
	require.Len(t, runs, 3)
	require.Equal(t, int64(1), runs[0].ID)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs/?experiment_id="+itoa(a), nil, &runs))
	require.Len(t, runs, 2)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs/?status=running", nil, &runs))
	require.Len(t, runs, 1)
	require.Equal(t, int64(3), runs[0].ID)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs/?skip=1&limit=1", nil, &runs))
	require.Len(t, runs, 1)
	require.Equal(t, int64(2), runs[0].ID)

	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/runs/?status=exploded", nil, nil))
	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/runs/?limit=-1", nil, nil))
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/runs/12", nil, nil))
}

func TestHTTPServer_SearchRuns(t *testing.T) {
	api := newTestAPI(t, Config{})
	a := api.createExperiment(t, "a")
	b := api.createExperiment(t, "b")
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/runs/", map[string]any{
		"experiment_id": a, "name": "baseline svm", "notes": "default kernel",
	}, nil))
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/runs/", map[string]any{
		"experiment_id": b, "name": "svm sweep", "tags": []string{"kernel-search"},
	}, nil))

	var runs []run.Run
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs/search?q=kernel", nil, &runs))
	require.Len(t, runs, 2)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs/search?q=svm&experiment_id="+itoa(b), nil, &runs))
	require.Len(t, runs, 1)
	require.Equal(t, "svm sweep", runs[0].Name)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs/search?q=nothing", nil, &runs))
	require.Empty(t, runs)

	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/runs/search", nil, nil))
	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/runs/search?q=svm&limit=x", nil, nil))
}

func TestHTTPServer_ClearData(t *testing.T) {
	api := newTestAPI(t, Config{})
	expID := api.createExperiment(t, "E")

	var created run.Run
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/runs/", map[string]any{"experiment_id": expID}, &created))
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/runs/"+itoa(created.ID)+"/metrics",
		map[string]any{"name": "acc", "value": 0.5, "step": 1}, nil))

	var cleared map[string]any
	require.Equal(t, http.StatusOK, api.do(t, http.MethodDelete, "/clear_data", nil, &cleared))
	require.Equal(t, "cleared", cleared["status"])

	var runs []run.Run
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs/", nil, &runs))
	require.Empty(t, runs)
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/runs/"+itoa(created.ID)+"/metrics", nil, nil))

	// Experiments survive a clear.
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/experiments/"+itoa(expID), nil, nil))
}

func TestHTTPServer_NotFoundAndMethod(t *testing.T) {
	api := newTestAPI(t, Config{})

	var body errorBody
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/nope", nil, &body))
	require.Equal(t, "Not Found", body.Detail)
	require.Equal(t, http.StatusMethodNotAllowed, api.do(t, http.MethodPatch, "/runs/1", nil, nil))
	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/experiments/", nil, nil))
}

func TestHTTPServer_CORS(t *testing.T) {
	api := newTestAPI(t, Config{CORSOrigins: []string{"http://localhost:3000"}})

	req, err := http.NewRequest(http.MethodOptions, api.url+"/jobs/start", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")

	req, err = http.NewRequest(http.MethodGet, api.url+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHTTPServer_AuthToken(t *testing.T) {
	api := newTestAPI(t, Config{AuthToken: "s3cret"})

	require.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodPost, "/experiments/", map[string]string{"name": "E"}, nil))
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/experiments/", nil, nil))

	req, err := http.NewRequest(http.MethodPost, api.url+"/experiments/", strings.NewReader(`{"name":"E"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPServer_RecordsRequestMetrics(t *testing.T) {
	api := newTestAPI(t, Config{})
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/runs/", nil, nil))
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/runs/5", nil, nil))

	var rm metricdata.ResourceMetrics
	require.NoError(t, api.reader.Collect(context.Background(), &rm))

	routes := map[string]int64{}
	var ok200 int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "runledger_http_requests_total" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				route, _ := dp.Attributes.Value("route")
				status, _ := dp.Attributes.Value("status")
				routes[route.AsString()+" "+status.AsString()] += dp.Value
				if status.AsString() == "200" {
					ok200 += dp.Value
				}
			}
		}
	}
	require.Equal(t, int64(1), ok200)
	require.Equal(t, int64(1), routes["/runs/{id} 404"])
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
