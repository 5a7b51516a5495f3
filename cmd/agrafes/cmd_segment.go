package main

import (
	"github.com/spf13/cobra"

	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/runs"
	"github.com/hyperjump/agrafes/internal/segment"
)

var (
	segmentDocID   int64
	segmentLang    string
	segmentPack    string
)

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Destructively resegment a document's line units into sentences",
	RunE:  runSegment,
}

func init() {
	segmentCmd.Flags().Int64Var(&segmentDocID, "doc-id", 0, "document id (required)")
	segmentCmd.Flags().StringVar(&segmentLang, "language", "", "language override (default: the document's own)")
	segmentCmd.Flags().StringVar(&segmentPack, "pack", "", "segmentation pack name (default: language-derived)")
	segmentCmd.MarkFlagRequired("doc-id")
}

func runSegment(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		emitError(err)
		return nil
	}
	defer store.Close()

	ctx := cmd.Context()
	runID, err := runs.Start(ctx, store, models.RunSegment, map[string]interface{}{"doc_id": segmentDocID, "pack": segmentPack})
	if err != nil {
		emitError(err)
		return nil
	}
	report, err := segment.Resegment(ctx, store, segmentDocID, segmentLang, segmentPack)
	if err != nil {
		emitError(err)
		return nil
	}
	_ = runs.Finish(ctx, store, runID, map[string]interface{}{"units_output": report.UnitsOutput})
	emitSuccess(map[string]interface{}{"run_id": runID, "result": report})
	return nil
}
