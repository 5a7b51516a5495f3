package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/models"
)

// CreateAlignmentLinks inserts a batch of links produced by one alignment run.
func (s *Store) CreateAlignmentLinks(ctx context.Context, links []*models.AlignmentLink) error {
	if len(links) == 0 {
		return nil
	}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO alignment_links (run_id, pivot_unit_id, target_unit_id, pivot_doc_id, target_doc_id, external_id, review_status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, l := range links {
			status := l.ReviewStatus
			if status == "" {
				status = models.ReviewUnreviewed
			}
			if _, err := stmt.ExecContext(ctx, l.RunID, l.PivotUnitID, l.TargetUnitID, l.PivotDocID, l.TargetDocID, l.ExternalID, string(status)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create alignment links: %w", err)
	}
	return nil
}

const linkSelectCols = `
	SELECT link_id, run_id, pivot_unit_id, target_unit_id, pivot_doc_id, target_doc_id, external_id, created_at, review_status
	FROM alignment_links`

func scanLink(row interface{ Scan(...interface{}) error }) (*models.AlignmentLink, error) {
	var l models.AlignmentLink
	if err := row.Scan(&l.ID, &l.RunID, &l.PivotUnitID, &l.TargetUnitID, &l.PivotDocID, &l.TargetDocID, &l.ExternalID, &l.CreatedAt, &l.ReviewStatus); err != nil {
		return nil, err
	}
	return &l, nil
}

// ListAlignmentLinks returns links for a pivot<->target document pair,
// newest run first.
func (s *Store) ListAlignmentLinks(ctx context.Context, pivotDocID, targetDocID int64) ([]*models.AlignmentLink, error) {
	var links []*models.AlignmentLink
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, linkSelectCols+`
			WHERE pivot_doc_id = ? AND target_doc_id = ? ORDER BY created_at DESC, link_id`, pivotDocID, targetDocID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			l, err := scanLink(rows)
			if err != nil {
				return err
			}
			links = append(links, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list alignment links: %w", err)
	}
	return links, nil
}

// ListAlignmentLinksByRun returns every link created by a single run.
func (s *Store) ListAlignmentLinksByRun(ctx context.Context, runID string) ([]*models.AlignmentLink, error) {
	var links []*models.AlignmentLink
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, linkSelectCols+` WHERE run_id = ? ORDER BY link_id`, runID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			l, err := scanLink(rows)
			if err != nil {
				return err
			}
			links = append(links, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list alignment links by run: %w", err)
	}
	return links, nil
}

// UpdateLinkReviewStatus sets the review status on one link.
func (s *Store) UpdateLinkReviewStatus(ctx context.Context, linkID int64, status models.ReviewStatus) error {
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE alignment_links SET review_status = ? WHERE link_id = ?`, string(status), linkID)
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
		return apierr.NotFound("alignment link %d not found", linkID)
	}
	if err != nil {
		return fmt.Errorf("update link review status: %w", err)
	}
	return nil
}

// DeleteLink removes a single alignment link (manual correction).
func (s *Store) DeleteLink(ctx context.Context, linkID int64) error {
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM alignment_links WHERE link_id = ?`, linkID)
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
		return apierr.NotFound("alignment link %d not found", linkID)
	}
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}

// RetargetLink repoints an existing link at a new target unit, verifying the
// new target exists and belongs to the link's target document.
func (s *Store) RetargetLink(ctx context.Context, linkID, newTargetUnitID int64) (*models.AlignmentLink, error) {
	var updated *models.AlignmentLink
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var targetDocID int64
		if err := tx.QueryRowContext(ctx, `SELECT target_doc_id FROM alignment_links WHERE link_id = ?`, linkID).Scan(&targetDocID); err != nil {
			return err
		}
		var newUnitDocID int64
		if err := tx.QueryRowContext(ctx, `SELECT doc_id FROM units WHERE unit_id = ?`, newTargetUnitID).Scan(&newUnitDocID); err != nil {
			return err
		}
		if newUnitDocID != targetDocID {
			return apierr.Validation("target unit %d does not belong to document %d", newTargetUnitID, targetDocID)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE alignment_links SET target_unit_id = ? WHERE link_id = ?`, newTargetUnitID, linkID); err != nil {
			return err
		}
		var err error
		updated, err = scanLink(tx.QueryRowContext(ctx, linkSelectCols+` WHERE link_id = ?`, linkID))
		return err
	})
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("alignment link or target unit not found")
	}
	if _, ok := apierr.As(err); ok {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("retarget link: %w", err)
	}
	return updated, nil
}

// CreateManualLink inserts a single human-authored link for manual
// correction; no sidecar route or CLI command calls it. run_id is the
// literal string "manual".
func (s *Store) CreateManualLink(ctx context.Context, pivotUnitID, targetUnitID int64) (*models.AlignmentLink, error) {
	var pivotDocID, targetDocID int64
	var created *models.AlignmentLink
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT doc_id FROM units WHERE unit_id = ?`, pivotUnitID).Scan(&pivotDocID); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `SELECT doc_id FROM units WHERE unit_id = ?`, targetUnitID).Scan(&targetDocID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO alignment_links (run_id, pivot_unit_id, target_unit_id, pivot_doc_id, target_doc_id, review_status)
			VALUES ('manual', ?, ?, ?, ?, ?)`,
			pivotUnitID, targetUnitID, pivotDocID, targetDocID, string(models.ReviewAccepted))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		created, err = scanLink(tx.QueryRowContext(ctx, linkSelectCols+` WHERE link_id = ?`, id))
		return err
	})
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("unit not found")
	}
	if err != nil {
		return nil, fmt.Errorf("create manual link: %w", err)
	}
	return created, nil
}

// CollisionCounts returns, for a pivot<->target pair, how many pivot unit
// IDs have more than one outgoing link (a quality signal, spec.md §4.6).
func (s *Store) CollisionCounts(ctx context.Context, pivotDocID, targetDocID int64) (int, error) {
	var n int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM (
				SELECT pivot_unit_id FROM alignment_links
				WHERE pivot_doc_id = ? AND target_doc_id = ?
				GROUP BY pivot_unit_id HAVING COUNT(*) > 1
			)`, pivotDocID, targetDocID).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count link collisions: %w", err)
	}
	return n, nil
}

// DanglingLinkCount returns links whose pivot or target unit no longer
// exists, a diagnostics integrity signal.
func (s *Store) DanglingLinkCount(ctx context.Context) (int, error) {
	var n int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM alignment_links l
			WHERE NOT EXISTS (SELECT 1 FROM units u WHERE u.unit_id = l.pivot_unit_id)
			   OR NOT EXISTS (SELECT 1 FROM units u WHERE u.unit_id = l.target_unit_id)`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count dangling links: %w", err)
	}
	return n, nil
}
