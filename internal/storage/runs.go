package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/models"
)

// CreateRun persists a new run record with the given id, kind, and params.
func (s *Store) CreateRun(ctx context.Context, run *models.Run) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return apierr.BadRequest("encode run params: %v", err)
	}
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (run_id, kind, params_json) VALUES (?, ?, ?)`,
			run.ID, string(run.Kind), string(paramsJSON))
		return err
	})
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateRunStats records the final stats payload for a completed run.
func (s *Store) UpdateRunStats(ctx context.Context, runID string, stats map[string]interface{}) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return apierr.BadRequest("encode run stats: %v", err)
	}
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE runs SET stats_json = ? WHERE run_id = ?`, string(statsJSON), runID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	if err == sql.ErrNoRows {
		return apierr.NotFound("run %q not found", runID)
	}
	if err != nil {
		return fmt.Errorf("update run stats: %w", err)
	}
	return nil
}

const runSelectCols = `SELECT run_id, kind, params_json, stats_json, created_at FROM runs`

func scanRun(row interface{ Scan(...interface{}) error }) (*models.Run, error) {
	var run models.Run
	var paramsJSON string
	var statsJSON sql.NullString
	if err := row.Scan(&run.ID, &run.Kind, &paramsJSON, &statsJSON, &run.CreatedAt); err != nil {
		return nil, err
	}
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
			return nil, err
		}
	}
	if statsJSON.Valid && statsJSON.String != "" {
		if err := json.Unmarshal([]byte(statsJSON.String), &run.Stats); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

// GetRun fetches one run record by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	var run *models.Run
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		run, err = scanRun(tx.QueryRowContext(ctx, runSelectCols+` WHERE run_id = ?`, runID))
		return err
	})
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("run %q not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest-first, optionally filtered to a single kind.
func (s *Store) ListRuns(ctx context.Context, kind *models.RunKind) ([]*models.Run, error) {
	var runs []*models.Run
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		query := runSelectCols
		var args []interface{}
		if kind != nil {
			query += ` WHERE kind = ?`
			args = append(args, string(*kind))
		}
		query += ` ORDER BY created_at DESC, run_id DESC`
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			run, err := scanRun(rows)
			if err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// RunsByKindCounts returns the number of runs recorded per kind, used by
// diagnostics.
func (s *Store) RunsByKindCounts(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT kind, COUNT(*) FROM runs GROUP BY kind`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var kind string
			var n int
			if err := rows.Scan(&kind, &n); err != nil {
				return err
			}
			counts[kind] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("count runs by kind: %w", err)
	}
	return counts, nil
}
