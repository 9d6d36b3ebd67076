package transport

import (
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
)

// uploadField is the multipart field holding the CSV file.
const uploadField = "file"

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	names, err := s.svc.Datasets.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"datasets": names})
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Datasets.Info(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// The body must arrive within UploadTimeout; reads past it fail with
	// os.ErrDeadlineExceeded.
	rc := http.NewResponseController(w)
	if err := rc.SetReadDeadline(time.Now().Add(s.cfg.UploadTimeout)); err != nil {
		s.logger.Debug("upload read deadline not supported", "error", err)
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.UploadMaxBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, badRequest("expected multipart form: %v", err))
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeError(w, r, badRequest("missing %q file field", uploadField))
			return
		}
		if err != nil {
			s.writeError(w, r, uploadErr(err))
			return
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			part.Close()
			continue
		}

		content, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			s.writeError(w, r, uploadErr(err))
			return
		}
		info, err := s.svc.Datasets.Upload(r.Context(), part.FileName(), content)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
		return
	}
}

func uploadErr(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) || errors.Is(err, os.ErrDeadlineExceeded) {
		return err
	}
	return badRequest("reading upload: %v", err)
}
