package transport

import (
	"net/http"

	"github.com/rpggio/runledger/internal/jobs"
)

type startJobRequest struct {
	ExperimentID    int64          `json:"experiment_id"`
	DatasetFilename string         `json:"dataset_filename"`
	Model           string         `json:"model"`
	Params          map[string]any `json:"params"`
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ExperimentID <= 0 {
		s.writeError(w, r, badRequest("experiment_id is required"))
		return
	}
	if req.DatasetFilename == "" || req.Model == "" {
		s.writeError(w, r, badRequest("dataset_filename and model are required"))
		return
	}

	created, err := s.svc.Jobs.Start(r.Context(), jobs.StartRequest{
		ExperimentID:    req.ExperimentID,
		DatasetFilename: req.DatasetFilename,
		Model:           req.Model,
		Params:          req.Params,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Jobs.List())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.svc.Jobs.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
