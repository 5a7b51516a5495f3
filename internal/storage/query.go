package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// MatchRow is one row of a raw FTS match, joined with its unit and document.
type MatchRow struct {
	UnitID     int64
	DocID      int64
	ExternalID *int
	TextNorm   string
	TextRaw    string
	Language   string
	Title      string
}

// MatchFilters narrows a FTS search to a subset of documents.
type MatchFilters struct {
	Language     string
	DocID        *int64
	ResourceType string
	DocRole      string
}

// SearchFTS runs an FTS5 MATCH query joined against units and documents,
// restricted to "line" units, ordered by (doc_id, n), fetching up to
// limit+1 rows starting at offset so the caller can compute has_more
// without a separate count query. Grounded on original_source's
// run_query's SQL shape.
func (s *Store) SearchFTS(ctx context.Context, query string, filters MatchFilters, limit, offset int) ([]MatchRow, error) {
	clauses := []string{"u.unit_type = 'line'"}
	args := []interface{}{query}

	if filters.Language != "" {
		clauses = append(clauses, "d.language = ?")
		args = append(args, filters.Language)
	}
	if filters.DocID != nil {
		clauses = append(clauses, "u.doc_id = ?")
		args = append(args, *filters.DocID)
	}
	if filters.ResourceType != "" {
		clauses = append(clauses, "d.resource_type = ?")
		args = append(args, filters.ResourceType)
	}
	if filters.DocRole != "" {
		clauses = append(clauses, "d.doc_role = ?")
		args = append(args, filters.DocRole)
	}

	sqlQuery := fmt.Sprintf(`
		SELECT u.unit_id, u.doc_id, u.external_id, u.text_norm, u.text_raw, d.language, d.title
		FROM fts_units f
		JOIN units u ON u.unit_id = f.rowid
		JOIN documents d ON d.doc_id = u.doc_id
		WHERE fts_units MATCH ? AND %s
		ORDER BY u.doc_id, u.n
		LIMIT ? OFFSET ?`, strings.Join(clauses, " AND "))
	args = append(args, limit+1, offset)

	var rows []MatchRow
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			return err
		}
		defer res.Close()
		for res.Next() {
			var r MatchRow
			if err := res.Scan(&r.UnitID, &r.DocID, &r.ExternalID, &r.TextNorm, &r.TextRaw, &r.Language, &r.Title); err != nil {
				return err
			}
			rows = append(rows, r)
		}
		return res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("search fts: %w", err)
	}
	return rows, nil
}

// AlignedTargets returns the units aligned to pivotUnitID as a pivot,
// ordered by (language, target_doc_id), optionally capped. Grounded on
// original_source's _fetch_aligned_units.
func (s *Store) AlignedTargets(ctx context.Context, pivotUnitID int64, cap int) ([]MatchRow, error) {
	query := `
		SELECT al.target_unit_id, al.target_doc_id, al.external_id, u.text_norm, u.text_raw, d.language, d.title
		FROM alignment_links al
		JOIN units u ON u.unit_id = al.target_unit_id
		JOIN documents d ON d.doc_id = u.doc_id
		WHERE al.pivot_unit_id = ?
		ORDER BY d.language, al.target_doc_id`
	args := []interface{}{pivotUnitID}
	if cap > 0 {
		query += ` LIMIT ?`
		args = append(args, cap)
	}

	var rows []MatchRow
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer res.Close()
		for res.Next() {
			var r MatchRow
			if err := res.Scan(&r.UnitID, &r.DocID, &r.ExternalID, &r.TextNorm, &r.TextRaw, &r.Language, &r.Title); err != nil {
				return err
			}
			rows = append(rows, r)
		}
		return res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch aligned units: %w", err)
	}
	return rows, nil
}
