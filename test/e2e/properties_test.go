package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/agrafes/internal/align"
	"github.com/hyperjump/agrafes/internal/curation"
	"github.com/hyperjump/agrafes/internal/indexer"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/query"
	"github.com/hyperjump/agrafes/internal/sidecar"
	"github.com/hyperjump/agrafes/internal/storage"
	"github.com/hyperjump/agrafes/internal/textnorm"
)

// --- universal invariants (spec.md §8, items 1-5) ---------------------------

// Property 1: a document's unit n-values form exactly {1..|units|}.
func TestProperty1_UnitNumbersAreDenseFrom1(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, newTestConfig(t, dir))
	ctx := context.Background()

	report := importNumberedLines(t, ctx, store, "P1", "en", "a", "b", "c", "d")
	units, err := store.ListUnits(ctx, report.DocID, nil)
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, u := range units {
		seen[u.N] = true
	}
	for n := 1; n <= len(units); n++ {
		assert.True(t, seen[n], "missing n=%d", n)
	}
	assert.Len(t, seen, len(units))
}

// Property 2: every line unit has exactly one FTS row matching its
// text_norm, except in the window before the next index rebuild, when the
// diagnostic stale flag must be true instead.
func TestProperty2_FTSRowsMatchUnitsUntilStale(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, newTestConfig(t, dir))
	ctx := context.Background()

	report := importNumberedLines(t, ctx, store, "P2", "en", "one", "two")
	missing, err := store.MissingFTSUnitIDs(ctx, report.DocID)
	require.NoError(t, err)
	assert.Len(t, missing, 2, "freshly imported units have no FTS rows yet")

	diagBefore, err := store.CollectDiagnostics(ctx)
	require.NoError(t, err)
	assert.True(t, diagBefore.FTS.Stale)

	_, err = indexer.Rebuild(ctx, store)
	require.NoError(t, err)

	missingAfter, err := store.MissingFTSUnitIDs(ctx, report.DocID)
	require.NoError(t, err)
	assert.Empty(t, missingAfter)

	diagAfter, err := store.CollectDiagnostics(ctx)
	require.NoError(t, err)
	assert.False(t, diagAfter.FTS.Stale)
}

// Property 3: every alignment link's referenced units exist and belong to
// the doc ids recorded on the link.
func TestProperty3_LinkUnitsBelongToRecordedDocs(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, newTestConfig(t, dir))
	ctx := context.Background()

	pivot := importNumberedLines(t, ctx, store, "P3 pivot", "fr", "un", "deux")
	target := importNumberedLines(t, ctx, store, "P3 target", "en", "one", "two")
	_, err := indexer.Rebuild(ctx, store)
	require.NoError(t, err)

	_, err = align.Run(ctx, store, models.StrategyPosition, pivot.DocID, []int64{target.DocID}, align.Options{RunID: "p3"})
	require.NoError(t, err)

	links, err := store.ListAlignmentLinks(ctx, pivot.DocID, target.DocID)
	require.NoError(t, err)
	require.NotEmpty(t, links)

	for _, l := range links {
		pivotUnit, err := store.GetUnit(ctx, l.PivotUnitID)
		require.NoError(t, err)
		assert.Equal(t, l.PivotDocID, pivotUnit.DocID)

		targetUnit, err := store.GetUnit(ctx, l.TargetUnitID)
		require.NoError(t, err)
		assert.Equal(t, l.TargetDocID, targetUnit.DocID)
	}
}

// Property 4: every run has non-empty kind/created_at/params_json, and a
// non-empty stats_json once the producing operation has returned success.
func TestProperty4_RunRecordHasParamsThenStats(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, newTestConfig(t, dir))
	ctx := context.Background()

	runID, err := storageStartIndexRun(ctx, store)
	require.NoError(t, err)

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.NotEmpty(t, run.Kind)
	assert.False(t, run.CreatedAt.IsZero())
	assert.NotEmpty(t, run.Params)
	assert.Empty(t, run.Stats, "stats_json should still be empty before the run finishes")

	require.NoError(t, store.UpdateRunStats(ctx, runID, map[string]interface{}{"units_indexed": 0}))
	run, err = store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.NotEmpty(t, run.Stats)
}

func storageStartIndexRun(ctx context.Context, store *storage.Store) (string, error) {
	run := &models.Run{ID: "p4-run", Kind: models.RunIndex, Params: map[string]interface{}{"triggered_by": "test"}}
	if err := store.CreateRun(ctx, run); err != nil {
		return "", err
	}
	return run.ID, nil
}

// Property 5: normalize is idempotent and strips invisibles/segment
// separators/ASCII controls other than TAB/LF.
func TestProperty5_NormalizeIsIdempotentAndStripsControls(t *testing.T) {
	raw := "Café​ line one\r\nline\ttwo"
	once := textnorm.Normalize(raw)
	twice := textnorm.Normalize(once)
	assert.Equal(t, once, twice)

	for _, r := range once {
		assert.NotEqual(t, rune(0x200b), r, "zero-width space must be stripped")
		assert.NotEqual(t, rune(0x07), r, "ASCII bell must be stripped")
	}
	assert.Contains(t, once, "\t")
}

// --- round-trips and idempotence (items 6-9) --------------------------------

// Property 6: migrating an already-migrated DB applies 0 migrations.
func TestProperty6_ReMigratingAppliesZero(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, newTestConfig(t, dir))
	applied, err := store.ApplyMigrations()
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
}

// Property 7: build_index after build_index yields the same row count.
func TestProperty7_RebuildIndexIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, newTestConfig(t, dir))
	ctx := context.Background()
	importNumberedLines(t, ctx, store, "P7", "en", "one", "two", "three")

	first, err := indexer.Rebuild(ctx, store)
	require.NoError(t, err)
	second, err := indexer.Rebuild(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, first.UnitsIndexed, second.UnitsIndexed)
}

// Property 8: curate(doc, []) is a no-op reporting units_modified=0.
func TestProperty8_CurateWithNoRulesIsNoOp(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, newTestConfig(t, dir))
	ctx := context.Background()
	report := importNumberedLines(t, ctx, store, "P8", "en", "one", "two")

	curateReport, err := curation.CurateDocument(ctx, store, report.DocID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, curateReport.UnitsModified)
}

// Property 9: cancel(job) on a terminal job returns its current status
// unchanged.
func TestProperty9_CancelOnTerminalJobIsUnchanged(t *testing.T) {
	logger := testLogger(t)
	mgr := sidecar.NewJobManager(context.Background(), logger, t.TempDir())

	job := mgr.Submit(models.JobKindIndex, nil, func(ctx context.Context, progress func(int)) (map[string]interface{}, error) {
		progress(100)
		return map[string]interface{}{"units_indexed": 1}, nil
	})
	waitForJobTerminal(t, mgr, job.ID)

	before, ok := mgr.Get(job.ID)
	require.True(t, ok)
	require.Equal(t, models.JobDone, before.Status)

	after, err := mgr.Cancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
}

// --- boundary behaviors (items 10-13) ---------------------------------------

// Property 10: limit=1,offset=0 on N>=2 matches returns exactly one hit
// and has_more=true, next_offset=1.
func TestProperty10_LimitOneReturnsOneHitAndMore(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, newTestConfig(t, dir))
	ctx := context.Background()
	importNumberedLines(t, ctx, store, "P10", "en", "needle one", "needle two", "needle three")
	_, err := indexer.Rebuild(ctx, store)
	require.NoError(t, err)

	resp, err := query.Run(ctx, store, models.QueryRequest{Query: "needle", Limit: 1, Offset: 0}, queryDefaults)
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.True(t, resp.HasMore)
	require.NotNil(t, resp.NextOffset)
	assert.Equal(t, 1, *resp.NextOffset)
}

// Property 11: limit=k,offset=n where n >= total_matches returns zero hits
// and has_more=false.
func TestProperty11_OffsetPastEndReturnsNoHits(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, newTestConfig(t, dir))
	ctx := context.Background()
	importNumberedLines(t, ctx, store, "P11", "en", "needle one", "needle two")
	_, err := indexer.Rebuild(ctx, store)
	require.NoError(t, err)

	resp, err := query.Run(ctx, store, models.QueryRequest{Query: "needle", Limit: 10, Offset: 50}, queryDefaults)
	require.NoError(t, err)
	assert.Empty(t, resp.Hits)
	assert.False(t, resp.HasMore)
}

// Property 12: KWIC with window=0 returns empty left/right and non-empty
// match.
func TestProperty12_KWICWindowZeroHasNoContext(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, newTestConfig(t, dir))
	ctx := context.Background()
	importNumberedLines(t, ctx, store, "P12", "en", "left context needle right context")
	_, err := indexer.Rebuild(ctx, store)
	require.NoError(t, err)

	resp, err := query.Run(ctx, store, models.QueryRequest{Query: "needle", Mode: models.ModeKWIC, Window: 0}, queryDefaults)
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Empty(t, resp.Hits[0].Left)
	assert.Empty(t, resp.Hits[0].Right)
	assert.NotEmpty(t, resp.Hits[0].Match)
}

// Property 13: align by external_id on two documents with no shared
// external_ids yields zero links, no error, and reports missing sets.
func TestProperty13_AlignWithNoSharedExternalIDsYieldsZeroLinks(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, newTestConfig(t, dir))
	ctx := context.Background()

	pivotText := idLines(1, "un", 2, "deux")
	targetText := idLines(3, "three", 4, "four")
	pivot := importText(t, ctx, store, "P13 pivot", "fr", pivotText)
	target := importText(t, ctx, store, "P13 target", "en", targetText)
	_, err := indexer.Rebuild(ctx, store)
	require.NoError(t, err)

	reports, err := align.Run(ctx, store, models.StrategyExternalID, pivot.DocID, []int64{target.DocID}, align.Options{RunID: "p13"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 0, reports[0].LinksCreated)
	assert.Equal(t, []int{1, 2}, reports[0].MissingInTarget)
	assert.Equal(t, []int{3, 4}, reports[0].MissingInPivot)
}

// Property 14: cancelling a queued or running job marks it canceled
// synchronously, under Cancel's own write lock, so the cancel response
// reports "canceled" immediately rather than whatever run() last wrote —
// no dependence on winning a race with the worker goroutine's startup.
func TestProperty14_CancelIsSynchronousAndTerminal(t *testing.T) {
	logger := testLogger(t)
	mgr := sidecar.NewJobManager(context.Background(), logger, t.TempDir())

	job := mgr.Submit(models.JobKindIndex, nil, func(ctx context.Context, progress func(int)) (map[string]interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	canceled, err := mgr.Cancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCanceled, canceled.Status, "Cancel must report canceled immediately, not whatever run() last wrote")
	require.NotNil(t, canceled.FinishedAt, "Cancel sets the terminal timestamp itself rather than waiting for the worker")

	// The worker's own ctx.Done() path must not overwrite the terminal
	// state finish() already holds; the job stays canceled once settled.
	final := waitForJobTerminal(t, mgr, job.ID)
	assert.Equal(t, models.JobCanceled, final.Status)
	assert.Equal(t, canceled.FinishedAt, final.FinishedAt, "finish() must not overwrite Cancel's terminal timestamp")
}
