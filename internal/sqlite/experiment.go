package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rpggio/runledger/internal/domain/experiment"
	"github.com/rpggio/runledger/internal/repository"
)

// ExperimentRepository implements experiment.Repository for SQLite
type ExperimentRepository struct {
	db *DB
}

// NewExperimentRepository creates a new ExperimentRepository
func NewExperimentRepository(db *DB) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

// Create inserts an experiment and assigns its ID
func (r *ExperimentRepository) Create(ctx context.Context, exp *experiment.Experiment) error {
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO experiments (name, description, created_at)
		VALUES (?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query, exp.Name, exp.Description, exp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create experiment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read experiment id: %w", err)
	}
	exp.ID = id

	return nil
}

// Get retrieves an experiment by ID
func (r *ExperimentRepository) Get(ctx context.Context, id int64) (*experiment.Experiment, error) {
	query := `
		SELECT id, name, description, created_at
		FROM experiments
		WHERE id = ?
	`

	var exp experiment.Experiment
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&exp.ID,
		&exp.Name,
		&exp.Description,
		&exp.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	return &exp, nil
}

// List returns all experiments with run counts, oldest first
func (r *ExperimentRepository) List(ctx context.Context) ([]experiment.Summary, error) {
	query := `
		SELECT
			e.id,
			e.name,
			e.description,
			e.created_at,
			COUNT(r.id) AS run_count,
			COUNT(CASE WHEN r.status = 'completed' THEN 1 END) AS completed_runs,
			COUNT(CASE WHEN r.status IN ('pending', 'running') THEN 1 END) AS in_progress_runs
		FROM experiments e
		LEFT JOIN runs r ON r.experiment_id = e.id
		GROUP BY e.id, e.name, e.description, e.created_at
		ORDER BY e.id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	summaries := []experiment.Summary{}
	for rows.Next() {
		var summary experiment.Summary
		err := rows.Scan(
			&summary.ID,
			&summary.Name,
			&summary.Description,
			&summary.CreatedAt,
			&summary.RunCount,
			&summary.CompletedRuns,
			&summary.InProgressRuns,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment summary: %w", err)
		}
		summaries = append(summaries, summary)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating experiment rows: %w", err)
	}

	return summaries, nil
}

// Delete removes an experiment. It fails with ErrForeignKeyViolation while
// runs still reference it.
func (r *ExperimentRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to delete experiment: %w", err)
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
