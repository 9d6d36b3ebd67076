package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rpggio/runledger/internal/repository"
)

// Service validates and stores uploaded datasets.
type Service struct {
	store  BlobStore
	logger *slog.Logger
}

// NewService creates a new dataset service.
func NewService(store BlobStore, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Upload validates content as CSV and stores it under filename, replacing any
// previous content with the same name.
func (s *Service) Upload(ctx context.Context, filename string, content []byte) (*Dataset, error) {
	if err := ValidateName(filename); err != nil {
		return nil, err
	}
	table, err := ParseCSV(content)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, filename, content); err != nil {
		return nil, fmt.Errorf("storing dataset: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("dataset stored", "filename", filename, "bytes", len(content), "rows", len(table.Rows))
	}
	return describe(filename, content, table), nil
}

// List returns stored filenames sorted by name.
func (s *Service) List(ctx context.Context) ([]string, error) {
	names, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}
	sort.Strings(names)
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Exists reports whether filename is stored.
func (s *Service) Exists(ctx context.Context, filename string) (bool, error) {
	_, err := s.store.Get(ctx, filename)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking dataset: %w", err)
	}
	return true, nil
}

// Load reads and parses a stored dataset.
func (s *Service) Load(ctx context.Context, filename string) (*Table, error) {
	content, err := s.get(ctx, filename)
	if err != nil {
		return nil, err
	}
	return ParseCSV(content)
}

// Info describes a stored dataset.
func (s *Service) Info(ctx context.Context, filename string) (*Dataset, error) {
	content, err := s.get(ctx, filename)
	if err != nil {
		return nil, err
	}
	table, err := ParseCSV(content)
	if err != nil {
		return nil, err
	}
	return describe(filename, content, table), nil
}

func (s *Service) get(ctx context.Context, filename string) ([]byte, error) {
	if err := ValidateName(filename); err != nil {
		return nil, ErrDatasetNotFound
	}
	content, err := s.store.Get(ctx, filename)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDatasetNotFound
		}
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	return content, nil
}

// ValidateName accepts plain .csv filenames without directory components.
func ValidateName(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return ErrInvalidName
	}
	if filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) || filename == ".." {
		return ErrInvalidName
	}
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return fmt.Errorf("%w: only .csv files are accepted", ErrInvalidFormat)
	}
	return nil
}

func describe(filename string, content []byte, table *Table) *Dataset {
	return &Dataset{
		Filename: filename,
		Size:     len(content),
		Rows:     len(table.Rows),
		Columns:  append([]string(nil), table.Header...),
	}
}
