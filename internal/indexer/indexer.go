// Package indexer manages the FTS5 index over line units (spec.md §4.3).
//
// Grounded on original_source's indexer.py: fts_units is a regular FTS5
// table keyed by unit_id, rebuilt by clearing it and reinserting every
// "line" unit's text_norm in one transaction.
package indexer

import (
	"context"
	"fmt"

	"github.com/hyperjump/agrafes/internal/storage"
)

// Stats reports the outcome of an index operation.
type Stats struct {
	UnitsIndexed int `json:"units_indexed"`
}

// Rebuild clears fts_units entirely and repopulates it from every "line"
// unit in the store. Equivalent to original_source's build_index.
func Rebuild(ctx context.Context, store *storage.Store) (*Stats, error) {
	n, err := store.RebuildFTS(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild index: %w", err)
	}
	return &Stats{UnitsIndexed: n}, nil
}

// Stale reports whether a document's FTS coverage is out of date: it has
// line units with no matching fts_units row. Grounded on
// original_source/db/diagnostics.py's missing_line_units query.
func Stale(ctx context.Context, store *storage.Store, docID int64) (bool, error) {
	missing, err := store.MissingFTSUnitIDs(ctx, docID)
	if err != nil {
		return false, fmt.Errorf("check staleness: %w", err)
	}
	return len(missing) > 0, nil
}

// Repair indexes only the units missing from fts_units for one document,
// an incremental alternative to Rebuild. original_source's update_index
// always does a full rebuild ("Increment 1" placeholder); this port
// implements the targeted version since the storage layer already exposes
// the staleness predicate needed to do it precisely.
func Repair(ctx context.Context, store *storage.Store, docID int64) (*Stats, error) {
	missing, err := store.MissingFTSUnitIDs(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("find missing units: %w", err)
	}
	n, err := store.ReindexUnits(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("reindex units: %w", err)
	}
	return &Stats{UnitsIndexed: n}, nil
}
