package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hyperjump/agrafes/internal/models"
)

func countOne(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CollectDiagnostics gathers the DB-wide operational health report without
// mutating domain data. Grounded on original_source's collect_diagnostics.
func (s *Store) CollectDiagnostics(ctx context.Context) (*models.DiagnosticsReport, error) {
	var report models.DiagnosticsReport
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var integrity string
		if err := tx.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&integrity); err != nil {
			return err
		}
		report.Integrity.Value = integrity
		report.Integrity.OK = integrity == "ok"

		rows, err := tx.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
		if err != nil {
			return err
		}
		var versions []int
		for rows.Next() {
			var v int
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return err
			}
			versions = append(versions, v)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()
		report.Schema.VersionsApplied = versions
		if len(versions) > 0 {
			current := versions[len(versions)-1]
			report.Schema.CurrentVersion = &current
		}

		counts := []struct {
			dst   *int
			query string
		}{
			{&report.Counts.Documents, `SELECT COUNT(*) FROM documents`},
			{&report.Counts.UnitsTotal, `SELECT COUNT(*) FROM units`},
			{&report.Counts.LineUnits, `SELECT COUNT(*) FROM units WHERE unit_type = 'line'`},
			{&report.Counts.StructureUnits, `SELECT COUNT(*) FROM units WHERE unit_type = 'structure'`},
			{&report.Counts.Runs, `SELECT COUNT(*) FROM runs`},
			{&report.Counts.AlignmentLinks, `SELECT COUNT(*) FROM alignment_links`},
			{&report.Counts.FTSRows, `SELECT COUNT(*) FROM fts_units`},
		}
		for _, c := range counts {
			n, err := countOne(ctx, tx, c.query)
			if err != nil {
				return err
			}
			*c.dst = n
		}

		missingLineUnits, err := countOne(ctx, tx, `
			SELECT COUNT(*) FROM units u
			LEFT JOIN fts_units f ON f.rowid = u.unit_id
			WHERE u.unit_type = 'line' AND f.rowid IS NULL`)
		if err != nil {
			return err
		}
		orphanRows, err := countOne(ctx, tx, `
			SELECT COUNT(*) FROM fts_units f
			LEFT JOIN units u ON u.unit_id = f.rowid
			WHERE u.unit_id IS NULL OR u.unit_type != 'line'`)
		if err != nil {
			return err
		}
		report.FTS.MissingLineUnits = missingLineUnits
		report.FTS.OrphanRows = orphanRows
		report.FTS.RowDeltaVsLineUnits = report.Counts.FTSRows - report.Counts.LineUnits
		report.FTS.Stale = missingLineUnits > 0 || orphanRows > 0 || report.FTS.RowDeltaVsLineUnits != 0

		runsWithoutStats, err := countOne(ctx, tx, `
			SELECT COUNT(*) FROM runs WHERE stats_json IS NULL OR TRIM(stats_json) = ''`)
		if err != nil {
			return err
		}
		report.Runs.WithoutStats = runsWithoutStats

		kindRows, err := tx.QueryContext(ctx, `SELECT kind, COUNT(*) AS n FROM runs GROUP BY kind ORDER BY kind`)
		if err != nil {
			return err
		}
		byKind := map[string]int{}
		for kindRows.Next() {
			var kind string
			var n int
			if err := kindRows.Scan(&kind, &n); err != nil {
				kindRows.Close()
				return err
			}
			byKind[kind] = n
		}
		if err := kindRows.Err(); err != nil {
			return err
		}
		kindRows.Close()
		report.Runs.ByKind = byKind

		pivotDangling, err := countOne(ctx, tx, `
			SELECT COUNT(*) FROM alignment_links a
			LEFT JOIN units u ON u.unit_id = a.pivot_unit_id
			WHERE u.unit_id IS NULL`)
		if err != nil {
			return err
		}
		targetDangling, err := countOne(ctx, tx, `
			SELECT COUNT(*) FROM alignment_links a
			LEFT JOIN units u ON u.unit_id = a.target_unit_id
			WHERE u.unit_id IS NULL`)
		if err != nil {
			return err
		}
		pivotMismatch, err := countOne(ctx, tx, `
			SELECT COUNT(*) FROM alignment_links a
			JOIN units u ON u.unit_id = a.pivot_unit_id
			WHERE u.doc_id != a.pivot_doc_id`)
		if err != nil {
			return err
		}
		targetMismatch, err := countOne(ctx, tx, `
			SELECT COUNT(*) FROM alignment_links a
			JOIN units u ON u.unit_id = a.target_unit_id
			WHERE u.doc_id != a.target_doc_id`)
		if err != nil {
			return err
		}
		selfLinks, err := countOne(ctx, tx, `SELECT COUNT(*) FROM alignment_links WHERE pivot_doc_id = target_doc_id`)
		if err != nil {
			return err
		}
		report.Alignment.DanglingPivotUnits = pivotDangling
		report.Alignment.DanglingTargetUnits = targetDangling
		report.Alignment.PivotDocMismatch = pivotMismatch
		report.Alignment.TargetDocMismatch = targetMismatch
		report.Alignment.SelfLinks = selfLinks

		missingRequired, err := countOne(ctx, tx, `
			SELECT COUNT(*) FROM documents WHERE TRIM(title) = '' OR TRIM(language) = ''`)
		if err != nil {
			return err
		}
		docsWithoutLines, err := countOne(ctx, tx, `
			SELECT COUNT(*) FROM documents d
			WHERE NOT EXISTS (SELECT 1 FROM units u WHERE u.doc_id = d.doc_id AND u.unit_type = 'line')`)
		if err != nil {
			return err
		}
		report.Metadata.MissingRequiredFields = missingRequired
		report.Metadata.DocsWithoutLineUnits = docsWithoutLines

		var issues []string
		if report.Integrity.Value != "ok" {
			issues = append(issues, fmt.Sprintf("SQLite integrity_check returned: %s", report.Integrity.Value))
		}
		if report.FTS.Stale {
			issues = append(issues, "FTS appears stale or inconsistent with line units")
		}
		if runsWithoutStats > 0 {
			issues = append(issues, fmt.Sprintf("%d run(s) have empty stats_json", runsWithoutStats))
		}
		if pivotDangling > 0 || targetDangling > 0 {
			issues = append(issues, fmt.Sprintf("dangling alignment links found (pivot=%d, target=%d)", pivotDangling, targetDangling))
		}
		if pivotMismatch > 0 || targetMismatch > 0 {
			issues = append(issues, fmt.Sprintf("alignment link doc_id mismatch found (pivot=%d, target=%d)", pivotMismatch, targetMismatch))
		}
		if selfLinks > 0 {
			issues = append(issues, fmt.Sprintf("%d self-link(s) detected in alignment_links", selfLinks))
		}
		if missingRequired > 0 {
			issues = append(issues, fmt.Sprintf("%d document(s) have missing required title/language", missingRequired))
		}
		if docsWithoutLines > 0 {
			issues = append(issues, fmt.Sprintf("%d document(s) have no line units", docsWithoutLines))
		}
		report.Issues = issues

		switch {
		case report.Integrity.Value != "ok":
			report.Status = "error"
		case len(issues) > 0:
			report.Status = "warning"
		default:
			report.Status = "ok"
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect diagnostics: %w", err)
	}
	return &report, nil
}
