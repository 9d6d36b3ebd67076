package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rpggio/runledger/internal/repository"
)

// Service handles experiment operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new experiment service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateRequest defines experiment creation inputs.
type CreateRequest struct {
	Name        string
	Description string
}

// Create creates a new experiment. Names need not be unique.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Experiment, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrInvalidInput
	}

	exp := &Experiment{
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, exp); err != nil {
		return nil, fmt.Errorf("creating experiment: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("experiment created", "experiment_id", exp.ID, "name", exp.Name)
	}
	return exp, nil
}

// Get fetches an experiment by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Experiment, error) {
	exp, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExperimentNotFound
		}
		return nil, fmt.Errorf("getting experiment: %w", err)
	}
	return exp, nil
}

// Exists reports whether the experiment is present.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.Get(ctx, id)
	if errors.Is(err, ErrExperimentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns experiment summaries in creation order.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	return s.repo.List(ctx)
}

// Delete removes an experiment that owns no runs.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.Delete(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrExperimentNotFound
	case errors.Is(err, repository.ErrForeignKeyViolation):
		return ErrHasRuns
	default:
		return fmt.Errorf("deleting experiment: %w", err)
	}
}
