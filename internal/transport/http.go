package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/rpggio/runledger/internal/domain/dataset"
	"github.com/rpggio/runledger/internal/domain/event"
	"github.com/rpggio/runledger/internal/domain/experiment"
	mdomain "github.com/rpggio/runledger/internal/domain/metric"
	"github.com/rpggio/runledger/internal/domain/run"
	"github.com/rpggio/runledger/internal/jobs"
)

// ExperimentService defines experiment operations needed by the API.
type ExperimentService interface {
	Create(ctx context.Context, req experiment.CreateRequest) (*experiment.Experiment, error)
	Get(ctx context.Context, id int64) (*experiment.Experiment, error)
	List(ctx context.Context) ([]experiment.Summary, error)
	Delete(ctx context.Context, id int64) error
}

// RunService defines run operations needed by the API.
type RunService interface {
	Create(ctx context.Context, req run.CreateRequest) (*run.Run, error)
	Get(ctx context.Context, id int64) (*run.Run, error)
	List(ctx context.Context, opts run.ListOptions) ([]run.Run, error)
	Update(ctx context.Context, id int64, req run.UpdateRequest) (*run.Run, error)
	Leaderboard(ctx context.Context, experimentID int64, metricName string, limit int) ([]run.LeaderboardEntry, error)
	Search(ctx context.Context, query string, opts run.SearchOptions) ([]run.Run, error)
	ClearAll(ctx context.Context) (int64, error)
}

// MetricService defines metric operations needed by the API.
type MetricService interface {
	Append(ctx context.Context, runID int64, name string, value float64, step int64) (*mdomain.Point, error)
	List(ctx context.Context, runID int64) ([]mdomain.Point, error)
	ClearHistory(ctx context.Context, runID int64) (int64, error)
}

// EventService defines run event operations needed by the API.
type EventService interface {
	ForRun(ctx context.Context, runID int64, limit int) ([]event.Entry, error)
}

// DatasetService defines dataset operations needed by the API.
type DatasetService interface {
	Upload(ctx context.Context, filename string, content []byte) (*dataset.Dataset, error)
	List(ctx context.Context) ([]string, error)
	Info(ctx context.Context, filename string) (*dataset.Dataset, error)
}

// JobRunner defines job operations needed by the API.
type JobRunner interface {
	Start(ctx context.Context, req jobs.StartRequest) (*run.Run, error)
	Get(runID int64) (jobs.Job, error)
	List() []jobs.Job
	Forget()
}

// Services contains everything the API binds.
type Services struct {
	Experiments ExperimentService
	Runs        RunService
	Metrics     MetricService
	Events      EventService
	Datasets    DatasetService
	Jobs        JobRunner
}

// Config tunes the HTTP surface.
type Config struct {
	CORSOrigins    []string
	AuthToken      string
	UploadMaxBytes int64
	UploadTimeout  time.Duration
	// MCP, when set, is mounted at /mcp.
	MCP    http.Handler
	Meter  metric.Meter
	Logger *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	svc    Services
	cfg    Config
	logger *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(cfg Config, svc Services) (*chi.Mux, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = discardLogger()
	}
	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter("github.com/rpggio/runledger/internal/transport")
	}
	inst, err := newHTTPInstruments(meter)
	if err != nil {
		return nil, err
	}
	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = 32 << 20
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}

	srv := &Server{svc: svc, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger, inst))
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware(cfg.CORSOrigins))
	r.Use(middleware.StripSlashes)
	r.Use(AuthMiddleware(cfg.AuthToken))

	r.Get("/health", srv.handleHealth)

	r.Get("/datasets", srv.handleListDatasets)
	r.Get("/datasets/{filename}", srv.handleGetDataset)
	r.Post("/upload", srv.handleUpload)

	r.Route("/experiments", func(r chi.Router) {
		r.Post("/", srv.handleCreateExperiment)
		r.Get("/", srv.handleListExperiments)
		r.Get("/{id}", srv.handleGetExperiment)
		r.Delete("/{id}", srv.handleDeleteExperiment)
		r.Get("/{id}/leaderboard", srv.handleLeaderboard)
	})

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", srv.handleCreateRun)
		r.Get("/", srv.handleListRuns)
		r.Get("/search", srv.handleSearchRuns)
		r.Get("/{id}", srv.handleGetRun)
		r.Put("/{id}", srv.handleUpdateRun)
		r.Get("/{id}/metrics", srv.handleListMetrics)
		r.Post("/{id}/metrics", srv.handleLogMetric)
		r.Delete("/{id}/metrics", srv.handleClearMetrics)
		r.Get("/{id}/events", srv.handleListEvents)
	})

	r.Post("/jobs/start", srv.handleStartJob)
	r.Get("/jobs", srv.handleListJobs)
	r.Get("/jobs/{id}", srv.handleGetJob)

	r.Delete("/clear_data", srv.handleClearData)

	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Detail: "Not Found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Detail: "Method Not Allowed"})
	})

	return r, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
