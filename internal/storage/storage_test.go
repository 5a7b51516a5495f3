package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/agrafes/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_AppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.ApplyMigrations()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "re-applying migrations on an up-to-date db should be a no-op")
}

func TestCreateAndGetDocument(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, &models.Document{
		Title:    "Les Misérables",
		Language: "fr",
		Role:     models.RoleOriginal,
		Metadata: map[string]interface{}{"volume": 1},
	})
	require.NoError(t, err)
	assert.NotZero(t, doc.ID)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Les Misérables", got.Title)
	assert.Equal(t, float64(1), got.Metadata["volume"])
}

func TestGetDocument_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetDocument(context.Background(), 999)
	require.Error(t, err)
}

func TestUpdateDocument_PartialUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, &models.Document{Title: "Original", Language: "en", Role: models.RoleOriginal})
	require.NoError(t, err)

	newTitle := "Updated"
	updated, err := s.UpdateDocument(ctx, &models.DocumentUpdate{ID: doc.ID, Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, "Updated", updated.Title)
	assert.Equal(t, "en", updated.Language, "unset fields must be left unchanged")
}

func TestReplaceUnits_PopulatesFTS(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, &models.Document{Title: "Doc", Language: "en", Role: models.RoleOriginal})
	require.NoError(t, err)

	units := []*models.Unit{
		{Kind: models.UnitLine, N: 1, TextRaw: "hello world", TextNorm: "hello world"},
		{Kind: models.UnitLine, N: 2, TextRaw: "goodbye world", TextNorm: "goodbye world"},
	}
	inserted, err := s.ReplaceUnits(ctx, doc.ID, units)
	require.NoError(t, err)
	require.Len(t, inserted, 2)

	missing, err := s.MissingFTSUnitIDs(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, missing, "ReplaceUnits should populate fts_units for every line unit")

	count, err := s.CountLineUnits(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestReplaceUnits_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, &models.Document{Title: "Doc", Language: "en", Role: models.RoleOriginal})
	require.NoError(t, err)

	first := []*models.Unit{{Kind: models.UnitLine, N: 1, TextRaw: "a", TextNorm: "a"}}
	_, err = s.ReplaceUnits(ctx, doc.ID, first)
	require.NoError(t, err)

	second := []*models.Unit{
		{Kind: models.UnitLine, N: 1, TextRaw: "b", TextNorm: "b"},
		{Kind: models.UnitLine, N: 2, TextRaw: "c", TextNorm: "c"},
	}
	inserted, err := s.ReplaceUnits(ctx, doc.ID, second)
	require.NoError(t, err)
	assert.Len(t, inserted, 2, "replace must fully supersede the prior unit sequence")

	count, err := s.CountLineUnits(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDeleteDocument_CascadesUnitsAndFTS(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, &models.Document{Title: "Doc", Language: "en", Role: models.RoleOriginal})
	require.NoError(t, err)
	_, err = s.ReplaceUnits(ctx, doc.ID, []*models.Unit{{Kind: models.UnitLine, N: 1, TextRaw: "x", TextNorm: "x"}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	_, err = s.GetDocument(ctx, doc.ID)
	require.Error(t, err)

	units, err := s.ListUnits(ctx, doc.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, units)

	orphans, err := s.OrphanFTSRowIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans, "deleting a document must also remove its fts_units rows")
}

func TestAlignmentLinks_CreateListReview(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pivot, err := s.CreateDocument(ctx, &models.Document{Title: "Pivot", Language: "en", Role: models.RoleOriginal})
	require.NoError(t, err)
	target, err := s.CreateDocument(ctx, &models.Document{Title: "Target", Language: "fr", Role: models.RoleTranslation})
	require.NoError(t, err)

	pivotUnits, err := s.ReplaceUnits(ctx, pivot.ID, []*models.Unit{{Kind: models.UnitLine, N: 1, TextRaw: "a", TextNorm: "a"}})
	require.NoError(t, err)
	targetUnits, err := s.ReplaceUnits(ctx, target.ID, []*models.Unit{{Kind: models.UnitLine, N: 1, TextRaw: "b", TextNorm: "b"}})
	require.NoError(t, err)

	err = s.CreateAlignmentLinks(ctx, []*models.AlignmentLink{{
		RunID: "run-1", PivotUnitID: pivotUnits[0].ID, TargetUnitID: targetUnits[0].ID,
		PivotDocID: pivot.ID, TargetDocID: target.ID,
	}})
	require.NoError(t, err)

	links, err := s.ListAlignmentLinks(ctx, pivot.ID, target.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.ReviewUnreviewed, links[0].ReviewStatus)

	require.NoError(t, s.UpdateLinkReviewStatus(ctx, links[0].ID, models.ReviewAccepted))
	links, err = s.ListAlignmentLinks(ctx, pivot.ID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewAccepted, links[0].ReviewStatus)
}

func TestRuns_CreateAndUpdateStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := &models.Run{ID: "run-abc", Kind: models.RunIndex, Params: map[string]interface{}{"doc_id": float64(1)}}
	require.NoError(t, s.CreateRun(ctx, run))

	require.NoError(t, s.UpdateRunStats(ctx, "run-abc", map[string]interface{}{"indexed": float64(3)}))

	got, err := s.GetRun(ctx, "run-abc")
	require.NoError(t, err)
	assert.Equal(t, float64(3), got.Stats["indexed"])
}
