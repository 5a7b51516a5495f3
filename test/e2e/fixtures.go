// Package e2e exercises the full agrafes stack (ingest, index, query,
// align, segment, sidecar) together against a real SQLite store, grounded
// on spec.md §8's scenario list and the teacher's test/e2e fixture style.
package e2e

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/agrafes/internal/config"
	"github.com/hyperjump/agrafes/internal/ingest"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/sidecar"
	"github.com/hyperjump/agrafes/internal/storage"
)

// numberedLines joins lines like "Bonjour needle." into the
// "[1] Bonjour needle.\n[2] ...\n" wire format PlainTextImporter expects,
// numbering sequentially from 1.
func numberedLines(lines ...string) string {
	var b strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, l)
	}
	return b.String()
}

// idLines pairs explicit external ids with text, for fixtures that need
// gaps in the numbering (spec.md S3's "missing" external ids).
func idLines(pairs ...interface{}) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(&b, "[%d] %s\n", pairs[i].(int), pairs[i+1].(string))
	}
	return b.String()
}

func newTestConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0, TokenMode: "auto"},
		Storage: config.StorageConfig{
			DatabasePath: filepath.Join(dir, "agrafes.db"),
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func openTestStore(t *testing.T, cfg *config.Config) *storage.Store {
	t.Helper()
	store, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testLogger(t *testing.T) *zap.Logger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Sync() })
	return logger
}

// importNumberedLines imports text built from numberedLines under the
// given title/language and returns the import report (its DocID field
// names the created document).
func importNumberedLines(t *testing.T, ctx context.Context, store *storage.Store, title, language string, lines ...string) *ingest.Report {
	t.Helper()
	return importText(t, ctx, store, title, language, numberedLines(lines...))
}

// importText imports raw numbered-line text verbatim, for fixtures built
// with idLines.
func importText(t *testing.T, ctx context.Context, store *storage.Store, title, language, text string) *ingest.Report {
	t.Helper()
	report, err := ingest.Run(ctx, store, ingest.PlainTextImporter{}, strings.NewReader(text), ingest.Params{
		Title:    title,
		Language: language,
		DocRole:  models.RoleUnknown,
	})
	if err != nil {
		t.Fatalf("import %s: %v", title, err)
	}
	return report
}

// waitForJobTerminal polls the job manager until jobID reaches done, error,
// or canceled, or the deadline expires.
func waitForJobTerminal(t *testing.T, mgr *sidecar.JobManager, jobID string) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := mgr.Get(jobID)
		if !ok {
			t.Fatalf("job %s not found", jobID)
		}
		switch job.Status {
		case models.JobDone, models.JobError, models.JobCanceled:
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state in time", jobID)
	return nil
}
