package run

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/rpggio/runledger/internal/domain/event"
	"github.com/rpggio/runledger/internal/repository"
)

// maxTransitionAttempts bounds the compare-and-set loop in UpdateStatus.
const maxTransitionAttempts = 5

// Service handles run business logic.
type Service struct {
	runs   Repository
	events EventRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new run service. events may be nil.
func NewService(runs Repository, events EventRepository, logger *slog.Logger) *Service {
	return &Service{
		runs:   runs,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest describes a run creation request.
type CreateRequest struct {
	ExperimentID int64
	Name         string
	Parameters   map[string]any
	Tags         []string
	Notes        string
}

// UpdateRequest describes a partial run update. Nil fields are left untouched.
type UpdateRequest struct {
	Status  *Status
	Metrics map[string]float64
	Tags    []string
	Notes   *string
	Reason  string
}

// Create persists a new pending run.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Run, error) {
	if err := ValidateCreateInput(req); err != nil {
		return nil, err
	}

	params := req.Parameters
	if params == nil {
		params = map[string]any{}
	}

	r := &Run{
		ExperimentID: req.ExperimentID,
		Name:         req.Name,
		Status:       StatusPending,
		Parameters:   params,
		Tags:         dedupeTags(req.Tags),
		Notes:        req.Notes,
		CreatedAt:    s.now(),
	}

	if err := s.runs.Create(ctx, r); err != nil {
		if errors.Is(err, repository.ErrForeignKeyViolation) {
			return nil, ErrExperimentNotFound
		}
		return nil, fmt.Errorf("creating run: %w", err)
	}

	s.logEvent(ctx, r.ID, event.TypeRunCreated, fmt.Sprintf("created run %q", r.Name), "")
	return r, nil
}

// Get fetches a run by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Run, error) {
	r, err := s.runs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return r, nil
}

// List returns runs in creation order.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Run, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, ErrInvalidInput
	}
	if opts.Status != nil && !opts.Status.Valid() {
		return nil, ErrInvalidInput
	}
	runs, err := s.runs.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// UpdateStatus moves a run forward in its lifecycle. Concurrent callers are
// serialized by a compare-and-set on the stored status: when another writer
// wins, the request is re-validated against the new status, so the last legal
// transition wins and illegal ones are rejected. Requesting the current status
// is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to Status, reason string) (*Run, error) {
	if !to.Valid() {
		return nil, ErrInvalidInput
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == to {
			return current, nil
		}
		if err := ValidateTransition(current.Status, to); err != nil {
			return nil, err
		}

		at := s.now()
		err = s.runs.Transition(ctx, id, current.Status, to, TransitionOptions{At: at, Reason: reason})
		switch {
		case err == nil:
			s.logEvent(ctx, id, event.TypeStatusChanged,
				fmt.Sprintf("%s -> %s", current.Status, to), reason)
			if s.logger != nil {
				s.logger.Debug("run status changed", "run_id", id, "from", current.Status, "to", to)
			}
			return s.Get(ctx, id)
		case errors.Is(err, repository.ErrConflict):
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrRunNotFound
		default:
			return nil, fmt.Errorf("updating run status: %w", err)
		}
	}
	return nil, ErrInvalidTransition
}

// SetMetricsSummary overwrites the run's summary metrics. Latest write wins.
func (s *Service) SetMetricsSummary(ctx context.Context, id int64, metrics map[string]float64) error {
	if metrics == nil {
		metrics = map[string]float64{}
	}
	if err := s.runs.SetMetrics(ctx, id, metrics); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRunNotFound
		}
		return fmt.Errorf("setting metrics summary: %w", err)
	}
	return nil
}

// AddTags appends tags to a run; tags are never removed.
func (s *Service) AddTags(ctx context.Context, id int64, tags []string) ([]string, error) {
	tags = dedupeTags(tags)
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			return nil, ErrInvalidInput
		}
	}
	all, err := s.runs.AddTags(ctx, id, tags)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("adding tags: %w", err)
	}
	if len(tags) > 0 {
		s.logEvent(ctx, id, event.TypeTagsAdded, strings.Join(tags, ","), "")
	}
	return all, nil
}

// Update applies a partial update: status goes through UpdateStatus, metrics
// replace the summary, tags are appended and notes replaced.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Run, error) {
	if req.Status != nil {
		if _, err := s.UpdateStatus(ctx, id, *req.Status, req.Reason); err != nil {
			return nil, err
		}
	}
	if req.Metrics != nil {
		if err := s.SetMetricsSummary(ctx, id, req.Metrics); err != nil {
			return nil, err
		}
	}
	if len(req.Tags) > 0 {
		if _, err := s.AddTags(ctx, id, req.Tags); err != nil {
			return nil, err
		}
	}
	if req.Notes != nil {
		if err := s.runs.SetNotes(ctx, id, *req.Notes); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrRunNotFound
			}
			return nil, fmt.Errorf("setting notes: %w", err)
		}
	}
	return s.Get(ctx, id)
}

// LeaderboardEntry is a completed run ranked by one summary metric.
type LeaderboardEntry struct {
	Rank  int     `json:"rank"`
	Run   Run     `json:"run"`
	Value float64 `json:"value"`
}

// Leaderboard ranks an experiment's completed runs by a summary metric. Loss
// metrics rank ascending, everything else descending. Runs missing the metric
// are left out. A limit of zero returns every ranked run.
func (s *Service) Leaderboard(ctx context.Context, experimentID int64, metricName string, limit int) ([]LeaderboardEntry, error) {
	if metricName == "" || limit < 0 {
		return nil, ErrInvalidInput
	}
	completed := StatusCompleted
	runs, err := s.List(ctx, ListOptions{ExperimentID: &experimentID, Status: &completed})
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(runs))
	for _, r := range runs {
		v, ok := r.Metrics[metricName]
		if !ok {
			continue
		}
		entries = append(entries, LeaderboardEntry{Run: r, Value: v})
	}

	ascending := strings.Contains(strings.ToLower(metricName), "loss")
	slices.SortStableFunc(entries, func(a, b LeaderboardEntry) int {
		if ascending {
			return cmp.Compare(a.Value, b.Value)
		}
		return cmp.Compare(b.Value, a.Value)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// defaultSearchLimit caps searches that do not set a limit.
const defaultSearchLimit = 50

// Search finds runs whose name, notes or tags match every term of query.
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) ([]Run, error) {
	query = strings.TrimSpace(query)
	if query == "" || opts.Limit < 0 {
		return nil, ErrInvalidInput
	}
	if opts.Limit == 0 {
		opts.Limit = defaultSearchLimit
	}
	runs, err := s.runs.Search(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("searching runs: %w", err)
	}
	return runs, nil
}

// ClearAll deletes every run and its metric points. Writers racing with the
// clear either land before it and are deleted with it, or land after it and
// fail with ErrRunNotFound.
func (s *Service) ClearAll(ctx context.Context) (int64, error) {
	n, err := s.runs.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("clearing runs: %w", err)
	}
	if s.logger != nil {
		s.logger.Warn("all runs cleared", "runs", n)
	}
	return n, nil
}

func (s *Service) logEvent(ctx context.Context, runID int64, typ event.Type, summary, details string) {
	if s.events == nil {
		return
	}
	err := s.events.Log(ctx, &event.Entry{
		RunID:   runID,
		Type:    typ,
		Summary: summary,
		Details: details,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("failed to log run event", "run_id", runID, "type", typ, "error", err)
	}
}

func dedupeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
