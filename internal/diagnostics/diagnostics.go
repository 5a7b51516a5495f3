// Package diagnostics exposes the DB-wide health report (spec.md §4.8) to
// the CLI's diagnose command and the sidecar's /diagnostics route. Grounded on
// original_source's db/diagnostics.py; the SQL itself lives in
// storage.CollectDiagnostics since it needs direct transaction access,
// this package is the stable call surface above it.
package diagnostics

import (
	"context"

	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/storage"
)

// Collect returns the current health report for store.
func Collect(ctx context.Context, store *storage.Store) (*models.DiagnosticsReport, error) {
	return store.CollectDiagnostics(ctx)
}

// Repair clears fts_units rows orphaned by an out-of-band delete and
// reindexes any line units missing from fts_units, store-wide. Returns the
// number of rows removed and the number of rows added.
func Repair(ctx context.Context, store *storage.Store) (removed, added int, err error) {
	orphans, err := store.OrphanFTSRowIDs(ctx)
	if err != nil {
		return 0, 0, err
	}
	if err := store.DeleteOrphanFTSRows(ctx, orphans); err != nil {
		return 0, 0, err
	}

	docs, err := store.ListDocuments(ctx)
	if err != nil {
		return 0, 0, err
	}
	var toReindex []int64
	for _, d := range docs {
		missing, err := store.MissingFTSUnitIDs(ctx, d.ID)
		if err != nil {
			return 0, 0, err
		}
		toReindex = append(toReindex, missing...)
	}
	n, err := store.ReindexUnits(ctx, toReindex)
	if err != nil {
		return 0, 0, err
	}
	return len(orphans), n, nil
}
