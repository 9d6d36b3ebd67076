package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/runledger/internal/domain/experiment"
	"github.com/rpggio/runledger/internal/domain/metric"
	"github.com/rpggio/runledger/internal/domain/run"
	"github.com/rpggio/runledger/internal/jobs"
	"github.com/rpggio/runledger/internal/training"
)

type emptyInput struct{}

type createExperimentInput struct {
	Name        string `json:"name" jsonschema:"Experiment display name"`
	Description string `json:"description,omitempty" jsonschema:"Free-form description"`
}

type listRunsInput struct {
	ExperimentID int64  `json:"experiment_id,omitempty" jsonschema:"Only runs of this experiment"`
	Status       string `json:"status,omitempty" jsonschema:"Only runs in this status: pending, running, completed or failed"`
	Limit        int    `json:"limit,omitempty" jsonschema:"Maximum number of runs"`
	Offset       int    `json:"offset,omitempty" jsonschema:"Number of runs to skip"`
}

type searchRunsInput struct {
	Query        string `json:"query" jsonschema:"Words matched as prefixes against run names, notes and tags"`
	ExperimentID int64  `json:"experiment_id,omitempty" jsonschema:"Only runs of this experiment"`
	Limit        int    `json:"limit,omitempty" jsonschema:"Maximum number of runs (default 50)"`
}

type runInput struct {
	RunID int64 `json:"run_id" jsonschema:"Run ID"`
}

type leaderboardInput struct {
	ExperimentID int64  `json:"experiment_id" jsonschema:"Experiment ID"`
	Metric       string `json:"metric,omitempty" jsonschema:"Summary metric to rank by (default final_accuracy)"`
	Limit        int    `json:"limit,omitempty" jsonschema:"Maximum number of entries (default 10)"`
}

type startJobInput struct {
	ExperimentID    int64          `json:"experiment_id" jsonschema:"Experiment that will own the run"`
	DatasetFilename string         `json:"dataset_filename" jsonschema:"Dataset from list_datasets"`
	Model           string         `json:"model" jsonschema:"Model name"`
	Params          map[string]any `json:"params,omitempty" jsonschema:"Model hyperparameters; unknown keys are ignored"`
}

type experimentsOutput struct {
	Experiments []experiment.Summary `json:"experiments"`
}

type runsOutput struct {
	Runs []run.Run `json:"runs"`
}

type runOutput struct {
	Run *run.Run  `json:"run"`
	Job *jobs.Job `json:"job,omitempty"`
}

type metricsOutput struct {
	RunID  int64          `json:"run_id"`
	Points []metric.Point `json:"points"`
	// Latest holds the last value logged per metric name.
	Latest map[string]float64 `json:"latest"`
}

type datasetsOutput struct {
	Datasets []string `json:"datasets"`
}

type leaderboardOutput struct {
	Metric  string                 `json:"metric"`
	Entries []run.LeaderboardEntry `json:"entries"`
}

func registerTools(server *sdkmcp.Server, svc Services) {
	h := &toolHandlers{svc: svc}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_experiments",
		Description: "List experiments with their run counts",
		Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.listExperiments)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_experiment",
		Description: "Create a named experiment to group runs",
	}, h.createExperiment)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_runs",
		Description: "List runs in creation order, optionally filtered by experiment and status",
		Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.listRuns)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "search_runs",
		Description: "Full-text search over run names, notes and tags, most relevant first",
		Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.searchRuns)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_run",
		Description: "Get a run with its parameters, tags, summary metrics and, for started jobs, job progress",
		Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.getRun)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_run_metrics",
		Description: "Get every metric point logged for a run in insertion order",
		Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.getRunMetrics)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_datasets",
		Description: "List uploaded CSV datasets",
		Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.listDatasets)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "leaderboard",
		Description: "Rank an experiment's completed runs by a summary metric",
		Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.leaderboard)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name: "start_job",
		Description: "Train a model on a dataset in the background and track it as a new run. Models: " +
			strings.Join(training.Models, ", "),
	}, h.startJob)
}

type toolHandlers struct {
	svc Services
}

func (h *toolHandlers) listExperiments(ctx context.Context, _ *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, any, error) {
	list, err := h.svc.Experiments.List(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, experimentsOutput{Experiments: list}, nil
}

func (h *toolHandlers) createExperiment(ctx context.Context, _ *sdkmcp.CallToolRequest, in createExperimentInput) (*sdkmcp.CallToolResult, any, error) {
	exp, err := h.svc.Experiments.Create(ctx, experiment.CreateRequest{Name: in.Name, Description: in.Description})
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, exp, nil
}

func (h *toolHandlers) listRuns(ctx context.Context, _ *sdkmcp.CallToolRequest, in listRunsInput) (*sdkmcp.CallToolResult, any, error) {
	opts := run.ListOptions{Limit: in.Limit, Offset: in.Offset}
	if in.ExperimentID != 0 {
		opts.ExperimentID = &in.ExperimentID
	}
	if in.Status != "" {
		status := run.Status(in.Status)
		opts.Status = &status
	}
	runs, err := h.svc.Runs.List(ctx, opts)
	if err != nil {
		return nil, nil, MapError(err)
	}
	if runs == nil {
		runs = []run.Run{}
	}
	return nil, runsOutput{Runs: runs}, nil
}

func (h *toolHandlers) searchRuns(ctx context.Context, _ *sdkmcp.CallToolRequest, in searchRunsInput) (*sdkmcp.CallToolResult, any, error) {
	opts := run.SearchOptions{Limit: in.Limit}
	if in.ExperimentID != 0 {
		opts.ExperimentID = &in.ExperimentID
	}
	runs, err := h.svc.Runs.Search(ctx, in.Query, opts)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, runsOutput{Runs: runs}, nil
}

func (h *toolHandlers) getRun(ctx context.Context, _ *sdkmcp.CallToolRequest, in runInput) (*sdkmcp.CallToolResult, any, error) {
	r, err := h.svc.Runs.Get(ctx, in.RunID)
	if err != nil {
		return nil, nil, MapError(err)
	}
	out := runOutput{Run: r}
	if job, err := h.svc.Jobs.Get(in.RunID); err == nil {
		out.Job = &job
	}
	return nil, out, nil
}

func (h *toolHandlers) getRunMetrics(ctx context.Context, _ *sdkmcp.CallToolRequest, in runInput) (*sdkmcp.CallToolResult, any, error) {
	points, err := h.svc.Metrics.List(ctx, in.RunID)
	if err != nil {
		return nil, nil, MapError(err)
	}
	latest := make(map[string]float64)
	for _, p := range points {
		latest[p.Name] = p.Value
	}
	return nil, metricsOutput{RunID: in.RunID, Points: points, Latest: latest}, nil
}

func (h *toolHandlers) listDatasets(ctx context.Context, _ *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, any, error) {
	names, err := h.svc.Datasets.List(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, datasetsOutput{Datasets: names}, nil
}

func (h *toolHandlers) leaderboard(ctx context.Context, _ *sdkmcp.CallToolRequest, in leaderboardInput) (*sdkmcp.CallToolResult, any, error) {
	name := in.Metric
	if name == "" {
		name = "final_accuracy"
	}
	limit := in.Limit
	if limit == 0 {
		limit = 10
	}
	board, err := h.svc.Runs.Leaderboard(ctx, in.ExperimentID, name, limit)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, leaderboardOutput{Metric: name, Entries: board}, nil
}

func (h *toolHandlers) startJob(ctx context.Context, _ *sdkmcp.CallToolRequest, in startJobInput) (*sdkmcp.CallToolResult, any, error) {
	if in.DatasetFilename == "" || in.Model == "" {
		return nil, nil, fmt.Errorf("dataset_filename and model are required")
	}
	r, err := h.svc.Jobs.Start(ctx, jobs.StartRequest{
		ExperimentID:    in.ExperimentID,
		DatasetFilename: in.DatasetFilename,
		Model:           in.Model,
		Params:          in.Params,
	})
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, r, nil
}
