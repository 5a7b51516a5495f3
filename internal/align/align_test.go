package align

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func extID(n int) *int { return &n }

func seedPair(t *testing.T, s *storage.Store, pivotExt, targetExt []*int) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	pivot, err := s.CreateDocument(ctx, &models.Document{Title: "Pivot", Language: "en", Role: models.RoleOriginal})
	require.NoError(t, err)
	target, err := s.CreateDocument(ctx, &models.Document{Title: "Target", Language: "fr", Role: models.RoleTranslation})
	require.NoError(t, err)

	pivotUnits := make([]*models.Unit, len(pivotExt))
	for i, eid := range pivotExt {
		pivotUnits[i] = &models.Unit{Kind: models.UnitLine, N: i + 1, ExternalID: eid, TextRaw: "p", TextNorm: "p"}
	}
	_, err = s.ReplaceUnits(ctx, pivot.ID, pivotUnits)
	require.NoError(t, err)

	targetUnits := make([]*models.Unit, len(targetExt))
	for i, eid := range targetExt {
		targetUnits[i] = &models.Unit{Kind: models.UnitLine, N: i + 1, ExternalID: eid, TextRaw: "t", TextNorm: "t"}
	}
	_, err = s.ReplaceUnits(ctx, target.ID, targetUnits)
	require.NoError(t, err)

	return pivot.ID, target.ID
}

func TestAlignPair_ExternalID_MatchesAndReportsMissing(t *testing.T) {
	s := openTestStore(t)
	pivotID, targetID := seedPair(t, s, []*int{extID(1), extID(2), extID(3)}, []*int{extID(1), extID(3), extID(4)})

	report, err := AlignPair(context.Background(), s, pivotID, targetID, Options{RunID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.LinksCreated)
	assert.Equal(t, []int{1, 3}, report.Matched)
	assert.Equal(t, []int{2}, report.MissingInTarget)
	assert.Equal(t, []int{4}, report.MissingInPivot)
	assert.NotEmpty(t, report.Warnings)

	links, err := s.ListAlignmentLinksByRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestAlignPair_ExternalID_DuplicatesUseFirstUnit(t *testing.T) {
	s := openTestStore(t)
	pivotID, targetID := seedPair(t, s, []*int{extID(1), extID(1)}, []*int{extID(1)})

	report, err := AlignPair(context.Background(), s, pivotID, targetID, Options{RunID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.LinksCreated)
	assert.Equal(t, []int{1}, report.DuplicatesPivot)
}

func TestAlignPairByPosition_MatchesOnNIgnoringExternalID(t *testing.T) {
	s := openTestStore(t)
	pivotID, targetID := seedPair(t, s, []*int{nil, nil, nil}, []*int{extID(9), extID(8)})

	report, err := AlignPairByPosition(context.Background(), s, pivotID, targetID, Options{RunID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.LinksCreated)
	assert.Equal(t, []int{1, 2}, report.Matched)
	assert.Equal(t, []int{3}, report.MissingInTarget)
}

func TestAlignPairExternalIDThenPosition_HybridFallback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	pivot, err := s.CreateDocument(ctx, &models.Document{Title: "Pivot", Language: "en", Role: models.RoleOriginal})
	require.NoError(t, err)
	target, err := s.CreateDocument(ctx, &models.Document{Title: "Target", Language: "fr", Role: models.RoleTranslation})
	require.NoError(t, err)

	_, err = s.ReplaceUnits(ctx, pivot.ID, []*models.Unit{
		{Kind: models.UnitLine, N: 1, ExternalID: extID(5), TextRaw: "a", TextNorm: "a"},
		{Kind: models.UnitLine, N: 2, ExternalID: nil, TextRaw: "b", TextNorm: "b"},
	})
	require.NoError(t, err)
	_, err = s.ReplaceUnits(ctx, target.ID, []*models.Unit{
		{Kind: models.UnitLine, N: 1, ExternalID: extID(5), TextRaw: "x", TextNorm: "x"},
		{Kind: models.UnitLine, N: 2, ExternalID: nil, TextRaw: "y", TextNorm: "y"},
	})
	require.NoError(t, err)

	report, err := AlignPairExternalIDThenPosition(ctx, s, pivot.ID, target.ID, Options{RunID: "r1", Debug: true})
	require.NoError(t, err)
	assert.Equal(t, 2, report.LinksCreated)
	assert.Equal(t, "external_id_then_position", report.Debug["strategy"])
	sources := report.Debug["link_sources"].(map[string]int)
	assert.Equal(t, 1, sources["external_id"])
	assert.Equal(t, 1, sources["position"])
}

func TestAlignPairBySimilarity_ThresholdGating(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	pivot, err := s.CreateDocument(ctx, &models.Document{Title: "Pivot", Language: "en", Role: models.RoleOriginal})
	require.NoError(t, err)
	target, err := s.CreateDocument(ctx, &models.Document{Title: "Target", Language: "en", Role: models.RoleTranslation})
	require.NoError(t, err)

	_, err = s.ReplaceUnits(ctx, pivot.ID, []*models.Unit{
		{Kind: models.UnitLine, N: 1, TextRaw: "the quick fox", TextNorm: "the quick fox"},
		{Kind: models.UnitLine, N: 2, TextRaw: "completely unrelated sentence", TextNorm: "completely unrelated sentence"},
	})
	require.NoError(t, err)
	_, err = s.ReplaceUnits(ctx, target.ID, []*models.Unit{
		{Kind: models.UnitLine, N: 1, TextRaw: "the quick fox", TextNorm: "the quick fox"},
		{Kind: models.UnitLine, N: 2, TextRaw: "xyz", TextNorm: "xyz"},
	})
	require.NoError(t, err)

	report, err := AlignPairBySimilarity(ctx, s, pivot.ID, target.ID, Options{RunID: "r1", SimilarityThreshold: 0.8})
	require.NoError(t, err)
	assert.Equal(t, 1, report.LinksCreated)
	assert.NotEmpty(t, report.Warnings)
}

func TestSimilarity_IdenticalIsOne(t *testing.T) {
	assert.Equal(t, 1.0, similarity("hello", "hello"))
	assert.Equal(t, 1.0, similarity("", ""))
}

func TestEditDistance_Basic(t *testing.T) {
	assert.Equal(t, 0, editDistance("abc", "abc"))
	assert.Equal(t, 3, editDistance("abc", ""))
	assert.Equal(t, 1, editDistance("cat", "cats"))
}

func TestRun_UnknownStrategy(t *testing.T) {
	s := openTestStore(t)
	_, err := Run(context.Background(), s, models.AlignmentStrategy("bogus"), 1, []int64{2}, Options{RunID: "r1"})
	require.Error(t, err)
}

func TestQuality_ReportsOrphansAndCoverage(t *testing.T) {
	s := openTestStore(t)
	pivotID, targetID := seedPair(t, s, []*int{extID(1), extID(2)}, []*int{extID(1)})
	ctx := context.Background()

	_, err := AlignPair(ctx, s, pivotID, targetID, Options{RunID: "r1"})
	require.NoError(t, err)

	q, err := Quality(ctx, s, pivotID, targetID)
	require.NoError(t, err)
	assert.Equal(t, 2, q.TotalPivotUnits)
	assert.Equal(t, 1, q.CoveredPivotUnits)
	assert.Equal(t, 1, q.OrphanPivotCount)
}

func TestAudit_ReturnsTextForEachLink(t *testing.T) {
	s := openTestStore(t)
	pivotID, targetID := seedPair(t, s, []*int{extID(1)}, []*int{extID(1)})
	ctx := context.Background()
	_, err := AlignPair(ctx, s, pivotID, targetID, Options{RunID: "r1"})
	require.NoError(t, err)

	entries, err := Audit(ctx, s, pivotID, targetID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "p", entries[0].PivotText)
	assert.Equal(t, "t", entries[0].TargetText)
}

func TestAddDocRelation_RejectsUnknownType(t *testing.T) {
	s := openTestStore(t)
	err := AddDocRelation(context.Background(), s, 1, "bogus", 2)
	require.Error(t, err)
}
