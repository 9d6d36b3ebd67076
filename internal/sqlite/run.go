package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rpggio/runledger/internal/domain/run"
	"github.com/rpggio/runledger/internal/repository"
)

// RunRepository implements run.Repository and metric.RunLookup for SQLite
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new RunRepository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `
	id, experiment_id, name, status, parameters, tags, metrics,
	notes, error, created_at, started_at, finished_at
`

// Create inserts a run and assigns its ID
func (r *RunRepository) Create(ctx context.Context, rn *run.Run) error {
	if rn.CreatedAt.IsZero() {
		rn.CreatedAt = time.Now().UTC()
	}
	if rn.Parameters == nil {
		rn.Parameters = map[string]any{}
	}
	if rn.Tags == nil {
		rn.Tags = []string{}
	}
	if rn.Metrics == nil {
		rn.Metrics = map[string]float64{}
	}

	params, err := json.Marshal(rn.Parameters)
	if err != nil {
		return fmt.Errorf("%w: parameters: %v", repository.ErrInvalidInput, err)
	}
	tags, err := json.Marshal(rn.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	metrics, err := json.Marshal(rn.Metrics)
	if err != nil {
		return fmt.Errorf("%w: metrics: %v", repository.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO runs (
			experiment_id, name, status, parameters, tags, metrics,
			notes, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		rn.ExperimentID,
		rn.Name,
		rn.Status,
		string(params),
		string(tags),
		string(metrics),
		rn.Notes,
		rn.Error,
		rn.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		if isCheckViolation(err) {
			return repository.ErrInvalidInput
		}
		return fmt.Errorf("failed to create run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read run id: %w", err)
	}
	rn.ID = id

	return nil
}

// Get retrieves a run by ID
func (r *RunRepository) Get(ctx context.Context, id int64) (*run.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	rn, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return rn, nil
}

// List returns runs matching the filters in creation order
func (r *RunRepository) List(ctx context.Context, opts run.ListOptions) ([]run.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`

	args := []interface{}{}
	conditions := []string{}

	if opts.ExperimentID != nil {
		conditions = append(conditions, "experiment_id = ?")
		args = append(args, *opts.ExperimentID)
	}
	if opts.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *opts.Status)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id ASC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []run.Run{}
	for rows.Next() {
		rn, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *rn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

// Transition changes status only while the stored status still equals from.
// Entering running stamps started_at; entering a terminal status stamps
// finished_at, and failed records the reason as the run error.
func (r *RunRepository) Transition(ctx context.Context, id int64, from, to run.Status, opts run.TransitionOptions) error {
	at := opts.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var startedAt, finishedAt interface{}
	if to == run.StatusRunning {
		startedAt = at
	}
	if to.Terminal() {
		finishedAt = at
	}
	var failure interface{}
	if to == run.StatusFailed {
		failure = opts.Reason
	}

	query := `
		UPDATE runs
		SET status = ?,
		    started_at = COALESCE(?, started_at),
		    finished_at = COALESCE(?, finished_at),
		    error = COALESCE(?, error)
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query, to, startedAt, finishedAt, failure, id, from)
	if err != nil {
		if isCheckViolation(err) {
			return repository.ErrInvalidInput
		}
		return fmt.Errorf("failed to update run status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		exists, err := r.RunExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		// Run exists but another writer moved it first
		return repository.ErrConflict
	}

	return nil
}

// SetMetrics replaces the run's summary metrics
func (r *RunRepository) SetMetrics(ctx context.Context, id int64, metrics map[string]float64) error {
	encoded, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("%w: metrics: %v", repository.ErrInvalidInput, err)
	}
	return r.updateColumn(ctx, id, "metrics", string(encoded))
}

// SetNotes replaces the run's notes
func (r *RunRepository) SetNotes(ctx context.Context, id int64, notes string) error {
	return r.updateColumn(ctx, id, "notes", notes)
}

func (r *RunRepository) updateColumn(ctx context.Context, id int64, column string, value interface{}) error {
	result, err := r.db.ExecContext(ctx, `UPDATE runs SET `+column+` = ? WHERE id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", column, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AddTags appends tags not already present and returns the full tag list
func (r *RunRepository) AddTags(ctx context.Context, id int64, tags []string) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT tags FROM runs WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run tags: %w", err)
	}

	current := []string{}
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return nil, fmt.Errorf("failed to decode run tags: %w", err)
	}

	seen := make(map[string]struct{}, len(current))
	for _, tag := range current {
		seen[tag] = struct{}{}
	}
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		current = append(current, tag)
	}

	encoded, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET tags = ? WHERE id = ?`, string(encoded), id); err != nil {
		return nil, fmt.Errorf("failed to update run tags: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return current, nil
}

// DeleteAll removes every run with its metric points and events in one
// transaction, returning the number of runs removed.
func (r *RunRepository) DeleteAll(ctx context.Context) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM metric_points`); err != nil {
		return 0, fmt.Errorf("failed to delete metric points: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_events`); err != nil {
		return 0, fmt.Errorf("failed to delete run events: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}

// RunExists reports whether a run with the given ID is stored
func (r *RunRepository) RunExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM runs WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check run existence: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*run.Run, error) {
	var rn run.Run
	var params, tags, metrics string
	var startedAt, finishedAt sql.NullTime
	if err := row.Scan(
		&rn.ID,
		&rn.ExperimentID,
		&rn.Name,
		&rn.Status,
		&params,
		&tags,
		&metrics,
		&rn.Notes,
		&rn.Error,
		&rn.CreatedAt,
		&startedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}

	rn.Parameters = map[string]any{}
	if err := json.Unmarshal([]byte(params), &rn.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	rn.Tags = []string{}
	if err := json.Unmarshal([]byte(tags), &rn.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	rn.Metrics = map[string]float64{}
	if err := json.Unmarshal([]byte(metrics), &rn.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	if startedAt.Valid {
		t := startedAt.Time
		rn.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		rn.FinishedAt = &t
	}
	return &rn, nil
}
