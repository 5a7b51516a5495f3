package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/agrafes/internal/align"
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

func TestTEI_WritesOneSegPerLineUnit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	doc, err := s.CreateDocument(ctx, &models.Document{Title: "Doc", Language: "fr", Role: models.RoleOriginal})
	require.NoError(t, err)
	_, err = s.ReplaceUnits(ctx, doc.ID, []*models.Unit{
		{Kind: models.UnitLine, N: 1, TextRaw: "Bonjour.", TextNorm: "bonjour."},
		{Kind: models.UnitLine, N: 2, TextRaw: "Au revoir.", TextNorm: "au revoir."},
	})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.tei.xml")
	stats, err := TEI(ctx, s, doc.ID, out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RowCount)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bonjour.")
	assert.Contains(t, string(data), "<seg")
}

func TestAlignCSV_WritesHeaderAndOneRowPerLink(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	pivot, err := s.CreateDocument(ctx, &models.Document{Title: "FR", Language: "fr", Role: models.RoleOriginal})
	require.NoError(t, err)
	target, err := s.CreateDocument(ctx, &models.Document{Title: "EN", Language: "en", Role: models.RoleTranslation})
	require.NoError(t, err)
	one := 1
	_, err = s.ReplaceUnits(ctx, pivot.ID, []*models.Unit{{Kind: models.UnitLine, N: 1, ExternalID: &one, TextRaw: "Bonjour.", TextNorm: "bonjour."}})
	require.NoError(t, err)
	_, err = s.ReplaceUnits(ctx, target.ID, []*models.Unit{{Kind: models.UnitLine, N: 1, ExternalID: &one, TextRaw: "Hello.", TextNorm: "hello."}})
	require.NoError(t, err)

	_, err = align.Run(ctx, s, models.StrategyExternalID, pivot.ID, []int64{target.ID}, align.Options{RunID: "run-1"})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.csv")
	stats, err := AlignCSV(ctx, s, pivot.ID, target.ID, out, ',')
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowCount)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "link_id,pivot_unit_id")
	assert.Contains(t, string(data), "bonjour.")
	assert.Contains(t, string(data), "hello.")
}

func TestRunReport_IncludesAlignmentLinksForAlignRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	err := s.CreateRun(ctx, &models.Run{ID: "run-2", Kind: models.RunAlign, Params: map[string]interface{}{"strategy": "position"}})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "report.json")
	stats, err := RunReport(ctx, s, "run-2", out)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowCount)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "alignment_links")
}
