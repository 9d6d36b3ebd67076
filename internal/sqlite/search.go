package sqlite

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/rpggio/runledger/internal/domain/run"
)

// Search performs a full-text search over run names, notes and tags. Every
// whitespace-separated term must match, as a prefix, in some field. Results
// are ordered by relevance.
func (r *RunRepository) Search(ctx context.Context, query string, opts run.SearchOptions) ([]run.Run, error) {
	match := ftsQuery(query)
	if match == "" {
		return []run.Run{}, nil
	}

	baseQuery := `
		WITH hits AS (
			SELECT rowid AS run_id, bm25(runs_fts) AS rank
			FROM runs_fts
			WHERE runs_fts MATCH ?
		)
		SELECT ` + runColumns + `
		FROM runs
		JOIN hits ON hits.run_id = runs.id
	`
	args := []interface{}{match}

	if opts.ExperimentID != nil {
		baseQuery += " WHERE experiment_id = ?"
		args = append(args, *opts.ExperimentID)
	}
	baseQuery += " ORDER BY hits.rank, id"

	if opts.Limit > 0 {
		baseQuery += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search runs: %w", err)
	}
	defer rows.Close()

	results := []run.Run{}
	for rows.Next() {
		rn, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, *rn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	return results, nil
}

// ftsQuery quotes each term so FTS5 operators in user input are matched
// literally. Terms without letters or digits would tokenize to nothing and
// are dropped.
func ftsQuery(query string) string {
	var terms []string
	for _, term := range strings.Fields(query) {
		if !strings.ContainsFunc(term, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(term, `"`, `""`)+`"*`)
	}
	return strings.Join(terms, " ")
}
