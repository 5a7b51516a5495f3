package runs

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

func TestStartAndFinish_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := Start(ctx, s, models.RunImport, map[string]interface{}{"source_path": "doc.txt"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NoError(t, Finish(ctx, s, id, map[string]interface{}{"units_total": 12}))

	run, err := Get(ctx, s, id)
	require.NoError(t, err)
	assert.Equal(t, models.RunImport, run.Kind)
	assert.Equal(t, "doc.txt", run.Params["source_path"])
	assert.EqualValues(t, 12, run.Stats["units_total"])
}

func TestList_FiltersByKind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := Start(ctx, s, models.RunImport, nil)
	require.NoError(t, err)
	_, err = Start(ctx, s, models.RunIndex, nil)
	require.NoError(t, err)

	kind := models.RunImport
	list, err := List(ctx, s, &kind)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.RunImport, list[0].Kind)
}
