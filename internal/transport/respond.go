package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/rpggio/runledger/internal/domain/dataset"
	"github.com/rpggio/runledger/internal/domain/experiment"
	"github.com/rpggio/runledger/internal/domain/metric"
	"github.com/rpggio/runledger/internal/domain/run"
	"github.com/rpggio/runledger/internal/jobs"
	"github.com/rpggio/runledger/internal/training"
)

// errBadRequest marks malformed requests caught in the transport itself.
var errBadRequest = errors.New("bad request")

// errorBody is the error payload, shaped the way the dashboard reads it.
type errorBody struct {
	Detail string `json:"detail"`
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, experiment.ErrExperimentNotFound),
		errors.Is(err, run.ErrExperimentNotFound),
		errors.Is(err, run.ErrRunNotFound),
		errors.Is(err, metric.ErrRunNotFound),
		errors.Is(err, dataset.ErrDatasetNotFound),
		errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, run.ErrInvalidTransition),
		errors.Is(err, experiment.ErrHasRuns):
		return http.StatusConflict
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, os.ErrDeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, errBadRequest),
		errors.Is(err, training.ErrUnknownModel),
		errors.Is(err, training.ErrInvalidParams),
		errors.Is(err, dataset.ErrInvalidFormat),
		errors.Is(err, dataset.ErrInvalidName),
		errors.Is(err, run.ErrInvalidInput),
		errors.Is(err, experiment.ErrInvalidInput),
		errors.Is(err, metric.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrShuttingDown):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError writes err as {"detail": ...}. Internal errors are logged and
// reported without their cause.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		detail = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a JSON body into dst. Unknown fields are ignored.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return badRequest("empty request body")
		}
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
