package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperjump/agrafes/internal/ingest"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/runs"
)

var (
	importPath         string
	importTitle        string
	importLanguage     string
	importDocRole      string
	importResourceType string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Ingest a plain-text source as a new document",
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&importPath, "path", "", "source file path (required)")
	importCmd.Flags().StringVar(&importTitle, "title", "", "document title (required)")
	importCmd.Flags().StringVar(&importLanguage, "language", "", "document language (required)")
	importCmd.Flags().StringVar(&importDocRole, "doc-role", "", "original|translation|excerpt|standalone|unknown")
	importCmd.Flags().StringVar(&importResourceType, "resource-type", "", "free-form resource type label")
	importCmd.MarkFlagRequired("path")
	importCmd.MarkFlagRequired("title")
	importCmd.MarkFlagRequired("language")
}

func runImport(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		emitError(err)
		return nil
	}
	defer store.Close()

	f, err := os.Open(importPath)
	if err != nil {
		emitError(fmt.Errorf("open source file: %w", err))
		return nil
	}
	defer f.Close()

	ctx := cmd.Context()
	runID, err := runs.Start(ctx, store, models.RunImport, map[string]interface{}{"path": importPath, "title": importTitle})
	if err != nil {
		emitError(err)
		return nil
	}
	report, err := ingest.Run(ctx, store, ingest.PlainTextImporter{}, f, ingest.Params{
		Title:        importTitle,
		Language:     importLanguage,
		DocRole:      models.DocRole(importDocRole),
		ResourceType: importResourceType,
		SourcePath:   importPath,
	})
	if err != nil {
		emitError(err)
		return nil
	}
	_ = runs.Finish(ctx, store, runID, map[string]interface{}{"units_total": report.UnitsTotal})
	emitSuccess(map[string]interface{}{"run_id": runID, "result": report})
	return nil
}
