package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewRunLogger builds a logger that writes every entry both to the process-wide
// core and to a dedicated file at <dbDir>/runs/<runID>/run.log, so each run's
// log is individually recoverable (spec.md §6). The returned close func must be
// called once the run finishes to flush and close the file.
func NewRunLogger(base *zap.Logger, dbDir, runID string) (*zap.Logger, func() error, error) {
	runDir := filepath.Join(dbDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return base, func() error { return nil }, fmt.Errorf("create run log dir: %w", err)
	}
	logPath := filepath.Join(runDir, "run.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return base, func() error { return nil }, fmt.Errorf("open run log: %w", err)
	}

	fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	fileCore := zapcore.NewCore(fileEncoder, zapcore.AddSync(f), zapcore.DebugLevel)

	var combined *zap.Logger
	if base != nil {
		combined = zap.New(zapcore.NewTee(base.Core(), fileCore))
	} else {
		combined = zap.New(fileCore)
	}
	combined = combined.With(zap.String("run_id", runID))

	closeFn := func() error { return f.Close() }
	return combined, closeFn, nil
}
