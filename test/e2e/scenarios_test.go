package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/agrafes/internal/align"
	"github.com/hyperjump/agrafes/internal/indexer"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/query"
	"github.com/hyperjump/agrafes/internal/segment"
	"github.com/hyperjump/agrafes/internal/sidecar"
)

var queryDefaults = query.Defaults{DefaultLimit: 20, MaxLimit: 200, DefaultWindow: 10}

// TestE2E_S1_IngestAndQuery covers spec.md S1: three numbered lines, two
// of which contain "needle", must round-trip through import -> index ->
// query(segment mode) as exactly two <<needle>> hits.
func TestE2E_S1_IngestAndQuery(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	store := openTestStore(t, cfg)
	ctx := context.Background()

	report := importNumberedLines(t, ctx, store, "S1", "fr", "Bonjour needle.", "Salut.", "Encore needle.")
	require.Equal(t, 3, report.UnitsLine)

	_, err := indexer.Rebuild(ctx, store)
	require.NoError(t, err)

	resp, err := query.Run(ctx, store, models.QueryRequest{Query: "needle", Mode: models.ModeSegment}, queryDefaults)
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)
	for _, hit := range resp.Hits {
		assert.Contains(t, hit.Text, "<<needle>>")
	}
}

// TestE2E_S2_Pagination covers spec.md S2: a 12-line document where every
// line matches, paginated in pages of 5.
func TestE2E_S2_Pagination(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	store := openTestStore(t, cfg)
	ctx := context.Background()

	lines := make([]string, 12)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d has needle in it.", i+1)
	}
	importNumberedLines(t, ctx, store, "S2", "en", lines...)
	_, err := indexer.Rebuild(ctx, store)
	require.NoError(t, err)

	page1, err := query.Run(ctx, store, models.QueryRequest{Query: "needle", Limit: 5, Offset: 0}, queryDefaults)
	require.NoError(t, err)
	assert.Len(t, page1.Hits, 5)
	assert.True(t, page1.HasMore)
	require.NotNil(t, page1.NextOffset)
	assert.Equal(t, 5, *page1.NextOffset)

	page2, err := query.Run(ctx, store, models.QueryRequest{Query: "needle", Limit: 5, Offset: 5}, queryDefaults)
	require.NoError(t, err)
	assert.Len(t, page2.Hits, 5)
	assert.True(t, page2.HasMore)
	require.NotNil(t, page2.NextOffset)
	assert.Equal(t, 10, *page2.NextOffset)

	page3, err := query.Run(ctx, store, models.QueryRequest{Query: "needle", Limit: 5, Offset: 10}, queryDefaults)
	require.NoError(t, err)
	assert.Len(t, page3.Hits, 2)
	assert.False(t, page3.HasMore)
	assert.Nil(t, page3.NextOffset)
}

func TestE2E_S3_CrossLanguageAlignmentAndParallelView(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	store := openTestStore(t, cfg)
	ctx := context.Background()

	frText := idLines(
		1, "Bonjour le monde.",
		2, "Il fait beau.",
		3, "Le chat joue.",
		4, "Seulement FR.",
	)
	enText := idLines(
		1, "Hello world.",
		2, "The weather is nice.",
		3, "The cat plays.",
		5, "Only EN.",
	)
	frReport := importText(t, ctx, store, "FR", "fr", frText)
	enReport := importText(t, ctx, store, "EN", "en", enText)
	_, err := indexer.Rebuild(ctx, store)
	require.NoError(t, err)

	reports, err := align.Run(ctx, store, models.StrategyExternalID, frReport.DocID, []int64{enReport.DocID}, align.Options{RunID: "test-s3"})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	r := reports[0]
	assert.Equal(t, 3, r.LinksCreated)
	assert.InDelta(t, 75.0, r.CoveragePct(), 0.01)
	assert.Equal(t, []int{4}, r.MissingInTarget)
	assert.Equal(t, []int{5}, r.MissingInPivot)

	resp, err := query.Run(ctx, store, models.QueryRequest{
		Query: "Bonjour", IncludeAligned: true, AlignedCap: 5,
	}, queryDefaults)
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	require.Len(t, resp.Hits[0].Aligned, 1)
	aligned := resp.Hits[0].Aligned[0]
	assert.Equal(t, "en", aligned.Language)
	assert.Contains(t, aligned.TextNorm, "Hello")
}

// TestE2E_S4_DestructiveResegmentInvalidatesLinks covers spec.md S4: the
// S3 corpus plus its alignment links, then a destructive resegment of the
// FR document must invalidate its links and flag FTS stale.
func TestE2E_S4_DestructiveResegmentInvalidatesLinks(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	store := openTestStore(t, cfg)
	ctx := context.Background()

	frText := idLines(
		1, "Bonjour le monde.",
		2, "Il fait beau.",
		3, "Le chat joue.",
		4, "Seulement FR.",
	)
	enText := idLines(
		1, "Hello world.",
		2, "The weather is nice.",
		3, "The cat plays.",
		5, "Only EN.",
	)
	frReport := importText(t, ctx, store, "FR", "fr", frText)
	enReport := importText(t, ctx, store, "EN", "en", enText)
	_, err := indexer.Rebuild(ctx, store)
	require.NoError(t, err)

	_, err = align.Run(ctx, store, models.StrategyExternalID, frReport.DocID, []int64{enReport.DocID}, align.Options{RunID: "test-s4"})
	require.NoError(t, err)

	before, err := store.ListAlignmentLinks(ctx, frReport.DocID, enReport.DocID)
	require.NoError(t, err)
	require.Len(t, before, 3)

	segReport, err := segment.Resegment(ctx, store, frReport.DocID, "fr", "fr_strict")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, segReport.UnitsOutput, segReport.UnitsInput)
	assert.NotEmpty(t, segReport.Warnings)

	after, err := store.ListAlignmentLinks(ctx, frReport.DocID, enReport.DocID)
	require.NoError(t, err)
	assert.Len(t, after, 0)

	diag, err := store.CollectDiagnostics(ctx)
	require.NoError(t, err)
	assert.True(t, diag.FTS.Stale)
}

// TestE2E_S5_SidecarAuth covers spec.md S5: token=auto requires the header
// on writes, accepts it once presented, and shutdown tears the instance
// down so a subsequent inspect reports it missing.
func TestE2E_S5_SidecarAuth(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	store := openTestStore(t, cfg)
	logger := testLogger(t)

	srv, err := sidecar.NewServer(store, cfg, logger, cfg.Storage.DatabasePath)
	require.NoError(t, err)
	info, err := srv.Start()
	require.NoError(t, err)
	require.NotEmpty(t, info.Token)

	base := fmt.Sprintf("http://%s:%d", info.Host, info.Port)
	client := &http.Client{Timeout: 5 * time.Second}

	importBody := map[string]interface{}{"path": "/nonexistent.txt", "title": "x", "language": "en"}
	buf, _ := json.Marshal(importBody)

	reqNoAuth, _ := http.NewRequest(http.MethodPost, base+"/import", bytes.NewReader(buf))
	reqNoAuth.Header.Set("Content-Type", "application/json")
	respNoAuth, err := client.Do(reqNoAuth)
	require.NoError(t, err)
	respNoAuth.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, respNoAuth.StatusCode)

	reqAuth, _ := http.NewRequest(http.MethodPost, base+"/import", bytes.NewReader(buf))
	reqAuth.Header.Set("Content-Type", "application/json")
	reqAuth.Header.Set("X-Agrafes-Token", info.Token)
	respAuth, err := client.Do(reqAuth)
	require.NoError(t, err)
	var importOut map[string]interface{}
	json.NewDecoder(respAuth.Body).Decode(&importOut)
	respAuth.Body.Close()
	// the file doesn't exist, so this legitimately fails at 400/500, not 401 -
	// what matters for S5 is that auth was accepted (no 401).
	assert.NotEqual(t, http.StatusUnauthorized, respAuth.StatusCode)

	reqShutdown, _ := http.NewRequest(http.MethodPost, base+"/shutdown", bytes.NewReader([]byte("{}")))
	reqShutdown.Header.Set("Content-Type", "application/json")
	reqShutdown.Header.Set("X-Agrafes-Token", info.Token)
	respShutdown, err := client.Do(reqShutdown)
	require.NoError(t, err)
	var shutdownOut map[string]interface{}
	json.NewDecoder(respShutdown.Body).Decode(&shutdownOut)
	respShutdown.Body.Close()
	assert.Equal(t, http.StatusOK, respShutdown.StatusCode)
	data, _ := shutdownOut["data"].(map[string]interface{})
	assert.Equal(t, true, data["shutting_down"])

	// give the server's own goroutine time to finish tearing itself down
	// and remove the portfile before we inspect.
	time.Sleep(200 * time.Millisecond)
	state, _, err := sidecar.InspectState(cfg.Storage.DatabasePath)
	require.NoError(t, err)
	assert.Equal(t, sidecar.StateMissing, state)
}

// TestE2E_S6_JobLifecycle covers spec.md S6: enqueueing an index job
// returns 202/accepted, it reaches done with units_indexed >= 1, and
// cancelling a terminal job is idempotent.
func TestE2E_S6_JobLifecycle(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	store := openTestStore(t, cfg)
	ctx := context.Background()
	importNumberedLines(t, ctx, store, "S6", "en", "one", "two")

	logger := testLogger(t)
	srv, err := sidecar.NewServer(store, cfg, logger, cfg.Storage.DatabasePath)
	require.NoError(t, err)
	info, err := srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(stopCtx)
	})

	base := fmt.Sprintf("http://%s:%d", info.Host, info.Port)
	client := &http.Client{Timeout: 5 * time.Second}

	enqueueBody, _ := json.Marshal(map[string]interface{}{"kind": "index"})
	reqEnqueue, _ := http.NewRequest(http.MethodPost, base+"/jobs/enqueue", bytes.NewReader(enqueueBody))
	reqEnqueue.Header.Set("Content-Type", "application/json")
	reqEnqueue.Header.Set("X-Agrafes-Token", info.Token)
	respEnqueue, err := client.Do(reqEnqueue)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, respEnqueue.StatusCode)
	var enqueueOut map[string]interface{}
	json.NewDecoder(respEnqueue.Body).Decode(&enqueueOut)
	respEnqueue.Body.Close()
	assert.Equal(t, "accepted", enqueueOut["status"], "the envelope's own status field must carry accepted, not a nested data field")
	data := enqueueOut["data"].(map[string]interface{})
	job := data["job"].(map[string]interface{})
	jobID := job["id"].(string)
	require.NotEmpty(t, jobID)

	var finalJob map[string]interface{}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(base + "/jobs/" + jobID)
		require.NoError(t, err)
		var out map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		polled := out["data"].(map[string]interface{})["job"].(map[string]interface{})
		status := polled["status"].(string)
		if status == "done" || status == "error" {
			finalJob = polled
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NotNil(t, finalJob, "job did not reach a terminal state in time")
	assert.Equal(t, "done", finalJob["status"])
	assert.Equal(t, float64(100), finalJob["progress_pct"])
	result := finalJob["result"].(map[string]interface{})
	assert.GreaterOrEqual(t, result["units_indexed"].(float64), float64(1))

	reqCancel, _ := http.NewRequest(http.MethodPost, base+"/jobs/"+jobID+"/cancel", bytes.NewReader(nil))
	reqCancel.Header.Set("X-Agrafes-Token", info.Token)
	respCancel, err := client.Do(reqCancel)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, respCancel.StatusCode)
	var cancelOut map[string]interface{}
	json.NewDecoder(respCancel.Body).Decode(&cancelOut)
	respCancel.Body.Close()
	cancelJob := cancelOut["data"].(map[string]interface{})["job"].(map[string]interface{})
	assert.Equal(t, "done", cancelJob["status"])
}
