// Package runs is a thin ledger wrapper around storage's run CRUD: every
// CLI verb and sidecar job opens one run record at the start of an
// operation and closes it with final stats at the end, giving spec.md's
// run ledger (§4.7) a uniform start/finish call from every caller instead
// of each package hand-rolling CreateRun/UpdateRunStats.
//
// Grounded on the teacher's run-scoped job bookkeeping in
// internal/server, generalized to persist through storage rather than
// stay in-memory.
package runs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/storage"
)

// Start creates a new run record with a fresh uuid, the given kind, and
// params, returning the assigned run id.
func Start(ctx context.Context, store *storage.Store, kind models.RunKind, params map[string]interface{}) (string, error) {
	id := uuid.NewString()
	run := &models.Run{ID: id, Kind: kind, Params: params}
	if err := store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// Finish records the final stats payload for a run.
func Finish(ctx context.Context, store *storage.Store, runID string, stats map[string]interface{}) error {
	if err := store.UpdateRunStats(ctx, runID, stats); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Get fetches one run record.
func Get(ctx context.Context, store *storage.Store, runID string) (*models.Run, error) {
	return store.GetRun(ctx, runID)
}

// List returns runs newest-first, optionally filtered by kind.
func List(ctx context.Context, store *storage.Store, kind *models.RunKind) ([]*models.Run, error) {
	return store.ListRuns(ctx, kind)
}
