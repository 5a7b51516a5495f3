package metadata

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

func TestValidateDocument_FlagsMissingRequiredAndRecommendedFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	doc, err := s.CreateDocument(ctx, &models.Document{Title: "T", Language: "en"})
	require.NoError(t, err)

	r, err := ValidateDocument(ctx, s, doc.ID)
	require.NoError(t, err)
	assert.True(t, r.IsValid)
	assert.Contains(t, r.Warnings, "recommended field 'source_path' is empty")
	assert.Contains(t, r.Warnings, "document has no line units (nothing indexed in FTS)")
}

func TestValidateDocument_UnknownDocIsInvalidWithoutError(t *testing.T) {
	s := openTestStore(t)
	r, err := ValidateDocument(context.Background(), s, 999)
	require.NoError(t, err)
	assert.False(t, r.IsValid)
	assert.NotEmpty(t, r.Warnings)
}

func TestValidateAllDocuments_CoversEveryDocument(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.CreateDocument(ctx, &models.Document{Title: "A", Language: "en"})
	require.NoError(t, err)
	_, err = s.CreateDocument(ctx, &models.Document{Title: "", Language: ""})
	require.NoError(t, err)

	results, err := ValidateAllDocuments(ctx, s)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[1].IsValid)
}
