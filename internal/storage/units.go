package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/models"
)

const unitSelectCols = `
	SELECT unit_id, doc_id, unit_type, n, external_id, text_raw, text_norm, meta_json
	FROM units`

func scanUnitTargets(u *models.Unit) []interface{} {
	return []interface{}{&u.ID, &u.DocID, &u.Kind, &u.N, &u.ExternalID, &u.TextRaw, &u.TextNorm, &unitMetaScanner{u}}
}

type unitMetaScanner struct{ unit *models.Unit }

func (s *unitMetaScanner) Scan(src interface{}) error {
	return scanMetaJSON(src, &s.unit.Metadata)
}

// ReplaceUnits deletes every existing unit for docID and inserts the given
// ordered sequence in its place, keeping fts_units in sync. This is the
// destructive rewrite primitive used by import (spec.md §4.2): it replaces
// the unit sequence of a document wholesale rather than diffing it.
// Resegment uses ReplaceLineUnits instead, which keeps structure units and
// leaves fts_units untouched.
func (s *Store) ReplaceUnits(ctx context.Context, docID int64, units []*models.Unit) ([]*models.Unit, error) {
	var inserted []*models.Unit
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fts_units WHERE rowid IN (SELECT unit_id FROM units WHERE doc_id = ?)`, docID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE doc_id = ?`, docID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO units (doc_id, unit_type, n, external_id, text_raw, text_norm, meta_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		ftsStmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_units (rowid, text_norm) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer ftsStmt.Close()

		for _, u := range units {
			metaJSON, err := marshalMeta(u.Metadata)
			if err != nil {
				return err
			}
			res, err := stmt.ExecContext(ctx, docID, string(u.Kind), u.N, u.ExternalID, u.TextRaw, u.TextNorm, metaJSON)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if u.Kind == models.UnitLine {
				if _, err := ftsStmt.ExecContext(ctx, id, u.TextNorm); err != nil {
					return err
				}
			}
			copy := *u
			copy.ID = id
			copy.DocID = docID
			inserted = append(inserted, &copy)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace units: %w", err)
	}
	return inserted, nil
}

// ReplaceLineUnitsResult reports what ReplaceLineUnits changed.
type ReplaceLineUnitsResult struct {
	Units              []*models.Unit
	AlignmentLinksLost int
}

// ReplaceLineUnits deletes only the "line" units of a document (structure
// units are left untouched) and inserts newUnits in their place, deleting
// any alignment_links that referenced the document first. fts_units is
// deliberately left untouched — the caller's index goes stale and must be
// rebuilt explicitly, matching original_source's resegment_document, whose
// docstring states the FTS index is not rebuilt by this operation.
func (s *Store) ReplaceLineUnits(ctx context.Context, docID int64, newUnits []*models.Unit) (*ReplaceLineUnitsResult, error) {
	result := &ReplaceLineUnitsResult{}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM alignment_links WHERE pivot_doc_id = ? OR target_doc_id = ?`, docID, docID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		result.AlignmentLinksLost = int(n)

		if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE doc_id = ? AND unit_type = 'line'`, docID); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO units (doc_id, unit_type, n, external_id, text_raw, text_norm, meta_json)
			VALUES (?, 'line', ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, u := range newUnits {
			metaJSON, err := marshalMeta(u.Metadata)
			if err != nil {
				return err
			}
			res, err := stmt.ExecContext(ctx, docID, u.N, u.ExternalID, u.TextRaw, u.TextNorm, metaJSON)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			copy := *u
			copy.ID = id
			copy.DocID = docID
			copy.Kind = models.UnitLine
			result.Units = append(result.Units, &copy)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace line units: %w", err)
	}
	return result, nil
}

// GetUnit fetches one unit by ID.
func (s *Store) GetUnit(ctx context.Context, id int64) (*models.Unit, error) {
	var u models.Unit
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, unitSelectCols+` WHERE unit_id = ?`, id).Scan(scanUnitTargets(&u)...)
	})
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("unit %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return &u, nil
}

// ListUnits returns every unit for a document ordered by n, optionally
// filtered to a single kind.
func (s *Store) ListUnits(ctx context.Context, docID int64, kind *models.UnitKind) ([]*models.Unit, error) {
	var units []*models.Unit
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		query := unitSelectCols + ` WHERE doc_id = ?`
		args := []interface{}{docID}
		if kind != nil {
			query += ` AND unit_type = ?`
			args = append(args, string(*kind))
		}
		query += ` ORDER BY n`
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var u models.Unit
			if err := rows.Scan(scanUnitTargets(&u)...); err != nil {
				return err
			}
			units = append(units, &u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return units, nil
}

// CountLineUnits returns the number of "line" units belonging to a document.
func (s *Store) CountLineUnits(ctx context.Context, docID int64) (int, error) {
	var n int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM units WHERE doc_id = ? AND unit_type = 'line'`, docID).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count line units: %w", err)
	}
	return n, nil
}

// MissingFTSUnitIDs returns line-unit IDs for a document that have no
// corresponding fts_units row, the staleness predicate used by the indexer
// (spec.md §4.3) and by diagnostics.
func (s *Store) MissingFTSUnitIDs(ctx context.Context, docID int64) ([]int64, error) {
	var ids []int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT u.unit_id FROM units u
			WHERE u.unit_type = 'line' AND u.doc_id = ?
			AND NOT EXISTS (SELECT 1 FROM fts_units f WHERE f.rowid = u.unit_id)
			ORDER BY u.unit_id`, docID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("find missing fts units: %w", err)
	}
	return ids, nil
}

// OrphanFTSRowIDs returns fts_units rowids that no longer have a backing
// units row (stale after a unit delete that did not clean up the index).
func (s *Store) OrphanFTSRowIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT f.rowid FROM fts_units f
			WHERE NOT EXISTS (SELECT 1 FROM units u WHERE u.unit_id = f.rowid)
			ORDER BY f.rowid`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("find orphan fts rows: %w", err)
	}
	return ids, nil
}

// ReindexUnits inserts fts_units rows for the given unit IDs, used by the
// indexer to repair staleness without a full ReplaceUnits rewrite.
func (s *Store) ReindexUnits(ctx context.Context, unitIDs []int64) (int, error) {
	if len(unitIDs) == 0 {
		return 0, nil
	}
	count := 0
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fts_units (rowid, text_norm)
			SELECT unit_id, text_norm FROM units WHERE unit_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range unitIDs {
			res, err := stmt.ExecContext(ctx, id)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			count += int(n)
		}
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("reindex units: %w", err)
	}
	return count, nil
}

// TextUpdate pairs a unit ID with its replacement text_norm value.
type TextUpdate struct {
	UnitID   int64
	TextNorm string
}

// BatchUpdateTextNorm applies a batch of text_norm updates in one
// transaction, used by the curation engine. fts_units is left untouched
// (stale), matching original_source's curate_document contract.
func (s *Store) BatchUpdateTextNorm(ctx context.Context, updates []TextUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE units SET text_norm = ? WHERE unit_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, u := range updates {
			if _, err := stmt.ExecContext(ctx, u.TextNorm, u.UnitID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("batch update text_norm: %w", err)
	}
	return nil
}

// RebuildFTS clears fts_units entirely and repopulates it from every "line"
// unit across the whole store, matching original_source's build_index.
func (s *Store) RebuildFTS(ctx context.Context) (int, error) {
	var count int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fts_units`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fts_units (rowid, text_norm)
			SELECT unit_id, text_norm FROM units WHERE unit_type = 'line'`); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM units WHERE unit_type = 'line'`).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild fts index: %w", err)
	}
	return count, nil
}

// DeleteOrphanFTSRows removes fts_units rows by rowid, used by diagnostics
// repair to clear entries left behind by an out-of-band delete.
func (s *Store) DeleteOrphanFTSRows(ctx context.Context, rowids []int64) error {
	if len(rowids) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_units WHERE rowid = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range rowids {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}
