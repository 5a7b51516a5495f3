package segment

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/storage"
)

func TestResolveSegmentPack_Auto(t *testing.T) {
	pack, err := ResolveSegmentPack("auto", "fr-FR")
	require.NoError(t, err)
	assert.Equal(t, PackFRStrict, pack)

	pack, err = ResolveSegmentPack("", "en")
	require.NoError(t, err)
	assert.Equal(t, PackENStrict, pack)

	pack, err = ResolveSegmentPack("", "de")
	require.NoError(t, err)
	assert.Equal(t, PackDefault, pack)
}

func TestResolveSegmentPack_Unknown(t *testing.T) {
	_, err := ResolveSegmentPack("klingon", "en")
	require.Error(t, err)
}

func TestSegmentText_SplitsOnSentenceBoundary(t *testing.T) {
	sentences, err := SegmentText("Hello world. How are you? Fine, thanks!", "en", "default")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello world.", "How are you?", "Fine, thanks!"}, sentences)
}

func TestSegmentText_ProtectsAbbreviations(t *testing.T) {
	sentences, err := SegmentText("Mme. Dupont est arrivée. Elle a 3.14 raisons.", "fr", "default")
	require.NoError(t, err)
	require.Len(t, sentences, 2)
	assert.Equal(t, "Mme. Dupont est arrivée.", sentences[0])
	assert.Equal(t, "Elle a 3.14 raisons.", sentences[1])
}

func TestSegmentText_PackExtraAbbreviation(t *testing.T) {
	sentences, err := SegmentText("Voir chap. Suivant pour plus de détails.", "fr", "fr_strict")
	require.NoError(t, err)
	assert.Len(t, sentences, 1, "chap. is protected only by fr_strict")

	sentences, err = SegmentText("Voir chap. Suivant pour plus de détails.", "fr", "default")
	require.NoError(t, err)
	assert.Len(t, sentences, 2, "default pack has no extra abbreviations so chap. still splits")
}

func TestSegmentText_EmptyAndWhitespace(t *testing.T) {
	sentences, err := SegmentText("", "en", "default")
	require.NoError(t, err)
	assert.Empty(t, sentences)

	sentences, err = SegmentText("   ", "en", "default")
	require.NoError(t, err)
	assert.Equal(t, []string{"   "}, sentences)
}

func TestSegmentText_NoSplitFound(t *testing.T) {
	sentences, err := SegmentText("no terminal punctuation here", "en", "default")
	require.NoError(t, err)
	assert.Equal(t, []string{"no terminal punctuation here"}, sentences)
}

func TestResegment_SplitsAndDeletesStaleLinks(t *testing.T) {
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	pivot, err := s.CreateDocument(ctx, &models.Document{Title: "Pivot", Language: "en", Role: models.RoleOriginal})
	require.NoError(t, err)
	target, err := s.CreateDocument(ctx, &models.Document{Title: "Target", Language: "en", Role: models.RoleTranslation})
	require.NoError(t, err)

	pivotUnits, err := s.ReplaceUnits(ctx, pivot.ID, []*models.Unit{
		{Kind: models.UnitLine, N: 1, TextRaw: "Hello world. How are you?", TextNorm: "Hello world. How are you?"},
	})
	require.NoError(t, err)
	targetUnits, err := s.ReplaceUnits(ctx, target.ID, []*models.Unit{
		{Kind: models.UnitLine, N: 1, TextRaw: "x", TextNorm: "x"},
	})
	require.NoError(t, err)
	require.NoError(t, s.CreateAlignmentLinks(ctx, []*models.AlignmentLink{{
		RunID: "r1", PivotUnitID: pivotUnits[0].ID, TargetUnitID: targetUnits[0].ID,
		PivotDocID: pivot.ID, TargetDocID: target.ID,
	}}))

	report, err := Resegment(ctx, s, pivot.ID, "en", "auto")
	require.NoError(t, err)
	assert.Equal(t, 1, report.UnitsInput)
	assert.Equal(t, 2, report.UnitsOutput)
	assert.NotEmpty(t, report.Warnings)

	links, err := s.ListAlignmentLinks(ctx, pivot.ID, target.ID)
	require.NoError(t, err)
	assert.Empty(t, links, "resegmenting the pivot must invalidate its alignment links")

	units, err := s.ListUnits(ctx, pivot.ID, nil)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "Hello world.", units[0].TextNorm)
	assert.Equal(t, "How are you?", units[1].TextNorm)
}

func TestResegment_NoLineUnits(t *testing.T) {
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, &models.Document{Title: "Empty", Language: "en", Role: models.RoleOriginal})
	require.NoError(t, err)

	report, err := Resegment(ctx, s, doc.ID, "en", "auto")
	require.NoError(t, err)
	assert.Equal(t, 0, report.UnitsOutput)
	assert.NotEmpty(t, report.Warnings)
}
