// Package server assembles the storage, services, job runner and HTTP
// surfaces from configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"

	"github.com/rpggio/runledger/internal/blobstore"
	"github.com/rpggio/runledger/internal/config"
	"github.com/rpggio/runledger/internal/domain/dataset"
	"github.com/rpggio/runledger/internal/domain/event"
	"github.com/rpggio/runledger/internal/domain/experiment"
	mdomain "github.com/rpggio/runledger/internal/domain/metric"
	"github.com/rpggio/runledger/internal/domain/run"
	"github.com/rpggio/runledger/internal/jobs"
	"github.com/rpggio/runledger/internal/mcp"
	"github.com/rpggio/runledger/internal/sqlite"
	"github.com/rpggio/runledger/internal/transport"
)

// mcpSessionTimeout closes idle streamable HTTP sessions.
const mcpSessionTimeout = 30 * time.Minute

// Options carries process-level collaborators.
type Options struct {
	Logger  *slog.Logger
	Meter   metric.Meter
	Version string
}

// Server owns every long-lived component of a running instance.
type Server struct {
	DB    *sqlite.DB
	Blobs *blobstore.Store

	Experiments *experiment.Service
	Runs        *run.Service
	Metrics     *mdomain.Service
	Events      *event.Service
	Datasets    *dataset.Service
	Jobs        *jobs.Runner

	MCP     *sdkmcp.Server
	Handler http.Handler

	logger *slog.Logger
}

// New opens storage and wires services. Callers must Close the result.
func New(cfg config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return nil, fmt.Errorf("preparing database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	blobs, err := blobstore.Open(blobstore.Config{
		Path:             cfg.Datasets.Path,
		CompressionLevel: cfg.Datasets.CompressionLevel,
	}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening dataset store: %w", err)
	}

	s := &Server{DB: db, Blobs: blobs, logger: logger}

	experimentRepo := sqlite.NewExperimentRepository(db)
	runRepo := sqlite.NewRunRepository(db)
	metricRepo := sqlite.NewMetricRepository(db)
	eventRepo := sqlite.NewEventRepository(db)

	s.Experiments = experiment.NewService(experimentRepo, logger)
	s.Runs = run.NewService(runRepo, eventRepo, logger)
	s.Metrics = mdomain.NewService(metricRepo, runRepo, eventRepo, logger)
	s.Events = event.NewService(eventRepo, logger)
	s.Datasets = dataset.NewService(blobs, logger)

	s.Jobs, err = jobs.NewRunner(jobs.Config{
		Workers:   cfg.Jobs.Workers,
		StepDelay: cfg.Jobs.StepDelay,
		Timeout:   cfg.Jobs.Timeout,
		Meter:     opts.Meter,
	}, s.Runs, s.Metrics, s.Datasets, logger)
	if err != nil {
		s.closeStores()
		return nil, err
	}

	s.MCP = mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Experiments: s.Experiments,
			Runs:        s.Runs,
			Metrics:     s.Metrics,
			Datasets:    s.Datasets,
			Jobs:        s.Jobs,
		},
		Version: opts.Version,
		Logger:  logger,
	})

	s.Handler, err = transport.NewServer(transport.Config{
		CORSOrigins:    cfg.Server.CORSOrigins,
		AuthToken:      cfg.Server.AuthToken,
		UploadMaxBytes: cfg.Server.UploadMaxBytes,
		UploadTimeout:  cfg.Server.UploadTimeout,
		MCP:            mcp.NewHTTPHandler(s.MCP, mcpSessionTimeout, logger),
		Meter:          opts.Meter,
		Logger:         logger,
	}, transport.Services{
		Experiments: s.Experiments,
		Runs:        s.Runs,
		Metrics:     s.Metrics,
		Events:      s.Events,
		Datasets:    s.Datasets,
		Jobs:        s.Jobs,
	})
	if err != nil {
		s.Jobs.Shutdown(context.Background())
		s.closeStores()
		return nil, err
	}

	return s, nil
}

// Close interrupts running jobs, waiting for them until ctx ends, and then
// closes storage.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if err := s.Jobs.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping jobs: %w", err))
	}
	if err := s.closeStores(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) closeStores() error {
	var errs []error
	if err := s.Blobs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing dataset store: %w", err))
	}
	if err := s.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
