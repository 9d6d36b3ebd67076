package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service handles run event operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new event service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Log records an event with the current timestamp if missing.
func (s *Service) Log(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.RunID <= 0 || entry.Type == "" {
		return ErrInvalidInput
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("logging event: %w", err)
	}
	return nil
}

// ForRun lists a run's events oldest first.
func (s *Service) ForRun(ctx context.Context, runID int64, limit int) ([]Entry, error) {
	return s.repo.List(ctx, ListOptions{RunID: &runID, Limit: limit})
}
