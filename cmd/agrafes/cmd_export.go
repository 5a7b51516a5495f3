package main

import (
	"github.com/spf13/cobra"

	"github.com/hyperjump/agrafes/internal/export"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/runs"
)

var (
	exportDocID      int64
	exportOutputPath string

	exportPivotDocID  int64
	exportTargetDocID int64
	exportDelimiter   string

	exportRunID string
)

// exportCmd is the parent for the three /export/* write operations.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write TEI, alignment CSV, or run-report export files",
}

var exportTEICmd = &cobra.Command{
	Use:   "tei",
	Short: "Export a document as TEI XML",
	RunE:  runExportTEI,
}

var exportAlignCSVCmd = &cobra.Command{
	Use:   "align-csv",
	Short: "Export an alignment link set between a pivot and target document as CSV",
	RunE:  runExportAlignCSV,
}

var exportRunReportCmd = &cobra.Command{
	Use:   "run-report",
	Short: "Export one run's record as JSON",
	RunE:  runExportRunReport,
}

func init() {
	exportTEICmd.Flags().Int64Var(&exportDocID, "doc-id", 0, "document id (required)")
	exportTEICmd.Flags().StringVar(&exportOutputPath, "output", "", "output file path (required)")
	exportTEICmd.MarkFlagRequired("doc-id")
	exportTEICmd.MarkFlagRequired("output")

	exportAlignCSVCmd.Flags().Int64Var(&exportPivotDocID, "pivot-doc-id", 0, "pivot document id (required)")
	exportAlignCSVCmd.Flags().Int64Var(&exportTargetDocID, "target-doc-id", 0, "target document id (required)")
	exportAlignCSVCmd.Flags().StringVar(&exportOutputPath, "output", "", "output file path (required)")
	exportAlignCSVCmd.Flags().StringVar(&exportDelimiter, "delimiter", ",", "field delimiter: , or \\t")
	exportAlignCSVCmd.MarkFlagRequired("pivot-doc-id")
	exportAlignCSVCmd.MarkFlagRequired("target-doc-id")
	exportAlignCSVCmd.MarkFlagRequired("output")

	exportRunReportCmd.Flags().StringVar(&exportRunID, "run-id", "", "run id (required)")
	exportRunReportCmd.Flags().StringVar(&exportOutputPath, "output", "", "output file path (required)")
	exportRunReportCmd.MarkFlagRequired("run-id")
	exportRunReportCmd.MarkFlagRequired("output")

	exportCmd.AddCommand(exportTEICmd, exportAlignCSVCmd, exportRunReportCmd)
}

func runExportTEI(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		emitError(err)
		return nil
	}
	defer store.Close()

	ctx := cmd.Context()
	runID, err := runs.Start(ctx, store, models.RunExport, map[string]interface{}{"kind": "tei", "doc_id": exportDocID})
	if err != nil {
		emitError(err)
		return nil
	}
	stats, err := export.TEI(ctx, store, exportDocID, exportOutputPath)
	if err != nil {
		emitError(err)
		return nil
	}
	_ = runs.Finish(ctx, store, runID, map[string]interface{}{"row_count": stats.RowCount})
	emitSuccess(map[string]interface{}{"run_id": runID, "result": stats})
	return nil
}

func runExportAlignCSV(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		emitError(err)
		return nil
	}
	defer store.Close()

	delim := ','
	if exportDelimiter == "\t" {
		delim = '\t'
	}

	ctx := cmd.Context()
	runID, err := runs.Start(ctx, store, models.RunExport, map[string]interface{}{
		"kind": "align_csv", "pivot_doc_id": exportPivotDocID, "target_doc_id": exportTargetDocID,
	})
	if err != nil {
		emitError(err)
		return nil
	}
	stats, err := export.AlignCSV(ctx, store, exportPivotDocID, exportTargetDocID, exportOutputPath, delim)
	if err != nil {
		emitError(err)
		return nil
	}
	_ = runs.Finish(ctx, store, runID, map[string]interface{}{"row_count": stats.RowCount})
	emitSuccess(map[string]interface{}{"run_id": runID, "result": stats})
	return nil
}

func runExportRunReport(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		emitError(err)
		return nil
	}
	defer store.Close()

	stats, err := export.RunReport(cmd.Context(), store, exportRunID, exportOutputPath)
	if err != nil {
		emitError(err)
		return nil
	}
	emitSuccess(map[string]interface{}{"result": stats})
	return nil
}
