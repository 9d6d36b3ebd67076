// Package mcp exposes experiment tracking and job control as Model Context
// Protocol tools, served over streamable HTTP or stdio.
package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/runledger/internal/domain/experiment"
	"github.com/rpggio/runledger/internal/domain/metric"
	"github.com/rpggio/runledger/internal/domain/run"
	"github.com/rpggio/runledger/internal/jobs"
)

// ExperimentService defines experiment operations needed by MCP.
type ExperimentService interface {
	Create(ctx context.Context, req experiment.CreateRequest) (*experiment.Experiment, error)
	List(ctx context.Context) ([]experiment.Summary, error)
}

// RunService defines run operations needed by MCP.
type RunService interface {
	Get(ctx context.Context, id int64) (*run.Run, error)
	List(ctx context.Context, opts run.ListOptions) ([]run.Run, error)
	Leaderboard(ctx context.Context, experimentID int64, metricName string, limit int) ([]run.LeaderboardEntry, error)
	Search(ctx context.Context, query string, opts run.SearchOptions) ([]run.Run, error)
}

// MetricService defines metric operations needed by MCP.
type MetricService interface {
	List(ctx context.Context, runID int64) ([]metric.Point, error)
}

// DatasetService defines dataset operations needed by MCP.
type DatasetService interface {
	List(ctx context.Context) ([]string, error)
}

// JobRunner defines job operations needed by MCP.
type JobRunner interface {
	Start(ctx context.Context, req jobs.StartRequest) (*run.Run, error)
	Get(runID int64) (jobs.Job, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Experiments ExperimentService
	Runs        RunService
	Metrics     MetricService
	Datasets    DatasetService
	Jobs        JobRunner
}

// Config contains server configuration.
type Config struct {
	Services Services
	Version  string
	Logger   *slog.Logger
}

const serverInstructions = `Runledger tracks machine learning experiments.
Create an experiment, pick a dataset from list_datasets and call start_job with a model name.
start_job returns the new run immediately; poll get_run until its status is completed or failed,
then read get_run_metrics for the per-step history or leaderboard to compare runs.
search_runs finds earlier runs by name, notes or tag.`

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "runledger",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services)

	return server
}
