package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rpggio/runledger/internal/domain/metric"
	"github.com/rpggio/runledger/internal/repository"
)

// MetricRepository implements metric.Repository for SQLite
type MetricRepository struct {
	db *DB
}

// NewMetricRepository creates a new MetricRepository
func NewMetricRepository(db *DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// Append inserts points in a single transaction
func (r *MetricRepository) Append(ctx context.Context, points []metric.Point) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO metric_points (run_id, name, value, step, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare metric insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		ts := p.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, p.RunID, p.Name, p.Value, p.Step, ts); err != nil {
			if isForeignKeyViolation(err) {
				return repository.ErrForeignKeyViolation
			}
			return fmt.Errorf("failed to insert metric point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Each streams a run's points in insertion order. The connection stays
// busy until fn has seen the last row, so fn must not query the database.
func (r *MetricRepository) Each(ctx context.Context, runID int64, fn func(metric.Point) error) error {
	query := `
		SELECT run_id, name, value, step, created_at
		FROM metric_points
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return fmt.Errorf("failed to query metric points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p metric.Point
		if err := rows.Scan(&p.RunID, &p.Name, &p.Value, &p.Step, &p.Timestamp); err != nil {
			return fmt.Errorf("failed to scan metric point: %w", err)
		}
		if err := fn(p); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating metric rows: %w", err)
	}
	return nil
}

// DeleteForRun removes all points of a run and returns how many were deleted
func (r *MetricRepository) DeleteForRun(ctx context.Context, runID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM metric_points WHERE run_id = ?`, runID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete metric points: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
