package transport

import (
	"net/http"
	"strconv"

	"github.com/rpggio/runledger/internal/domain/run"
)

type createRunRequest struct {
	ExperimentID int64          `json:"experiment_id"`
	Name         string         `json:"name"`
	Parameters   map[string]any `json:"parameters"`
	Tags         []string       `json:"tags"`
	Notes        string         `json:"notes"`
}

type updateRunRequest struct {
	Status  *run.Status        `json:"status"`
	Metrics map[string]float64 `json:"metrics"`
	Tags    []string           `json:"tags"`
	Notes   *string            `json:"notes"`
	Reason  string             `json:"reason"`
}

type logMetricRequest struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Step  int64   `json:"step"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		req.Name = "Run"
	}
	created, err := s.svc.Runs.Create(r.Context(), run.CreateRequest{
		ExperimentID: req.ExperimentID,
		Name:         req.Name,
		Parameters:   req.Parameters,
		Tags:         req.Tags,
		Notes:        req.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	var opts run.ListOptions
	q := r.URL.Query()
	if raw := q.Get("experiment_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, badRequest("invalid experiment_id %q", raw))
			return
		}
		opts.ExperimentID = &id
	}
	if raw := q.Get("status"); raw != "" {
		status := run.Status(raw)
		if !status.Valid() {
			s.writeError(w, r, badRequest("invalid status %q", raw))
			return
		}
		opts.Status = &status
	}
	var err error
	if opts.Offset, err = queryInt(r, "skip", 0); err != nil {
		s.writeError(w, r, err)
		return
	}
	if opts.Limit, err = queryInt(r, "limit", 0); err != nil {
		s.writeError(w, r, err)
		return
	}

	runs, err := s.svc.Runs.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []run.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleSearchRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		s.writeError(w, r, badRequest("missing query parameter q"))
		return
	}
	var opts run.SearchOptions
	if raw := q.Get("experiment_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, badRequest("invalid experiment_id %q", raw))
			return
		}
		opts.ExperimentID = &id
	}
	var err error
	if opts.Limit, err = queryInt(r, "limit", 0); err != nil {
		s.writeError(w, r, err)
		return
	}

	runs, err := s.svc.Runs.Search(r.Context(), query, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	got, err := s.svc.Runs.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) handleUpdateRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateRunRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.svc.Runs.Update(r.Context(), id, run.UpdateRequest{
		Status:  req.Status,
		Metrics: req.Metrics,
		Tags:    req.Tags,
		Notes:   req.Notes,
		Reason:  req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	points, err := s.svc.Metrics.List(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleLogMetric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req logMetricRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.svc.Metrics.Append(r.Context(), id, req.Name, req.Value, req.Step); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClearMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.svc.Metrics.ClearHistory(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "deleted": n})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.svc.Runs.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.svc.Events.ForRun(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearData(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Runs.ClearAll(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.svc.Jobs.Forget()
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "runs": n})
}
