package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperjump/agrafes/internal/curation"
	"github.com/hyperjump/agrafes/internal/metadata"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/runs"
)

var (
	curateDocID      int64
	curateRulesPath  string
	curatePreview    bool
	curateMaxExample int

	validateMetaDocID int64
)

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Apply (or preview) regex curation rules against a document's normalized text",
	RunE:  runCurate,
}

var validateMetaCmd = &cobra.Command{
	Use:   "validate-meta",
	Short: "Advisory metadata completeness report (never blocks)",
	RunE:  runValidateMeta,
}

func init() {
	curateCmd.Flags().Int64Var(&curateDocID, "doc-id", 0, "document id (0 = every document)")
	curateCmd.Flags().StringVar(&curateRulesPath, "rules", "", "path to a JSON array of curation rules (required)")
	curateCmd.Flags().BoolVar(&curatePreview, "preview", false, "dry run: report changes without writing them (requires --doc-id)")
	curateCmd.Flags().IntVar(&curateMaxExample, "max-examples", 0, "preview: max before/after samples (0 = default 10, capped 50)")
	curateCmd.MarkFlagRequired("rules")

	validateMetaCmd.Flags().Int64Var(&validateMetaDocID, "doc-id", 0, "document id (0 = every document)")
}

func loadRules(path string) ([]*curation.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var specs []curation.Rule
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	return curation.RulesFromList(specs)
}

func runCurate(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		emitError(err)
		return nil
	}
	defer store.Close()

	rules, err := loadRules(curateRulesPath)
	if err != nil {
		emitError(err)
		return nil
	}

	ctx := cmd.Context()

	if curatePreview {
		if curateDocID == 0 {
			emitError(fmt.Errorf("--preview requires --doc-id"))
			return nil
		}
		report, err := curation.PreviewDocument(ctx, store, curateDocID, rules, curateMaxExample)
		if err != nil {
			emitError(err)
			return nil
		}
		emitSuccess(map[string]interface{}{"result": report})
		return nil
	}

	runID, err := runs.Start(ctx, store, models.RunCurate, map[string]interface{}{"doc_id": curateDocID})
	if err != nil {
		emitError(err)
		return nil
	}
	if curateDocID != 0 {
		report, err := curation.CurateDocument(ctx, store, curateDocID, rules)
		if err != nil {
			emitError(err)
			return nil
		}
		_ = runs.Finish(ctx, store, runID, map[string]interface{}{"units_modified": report.UnitsModified})
		emitSuccess(map[string]interface{}{"run_id": runID, "result": report})
		return nil
	}
	reports, err := curation.CurateAllDocuments(ctx, store, rules)
	if err != nil {
		emitError(err)
		return nil
	}
	_ = runs.Finish(ctx, store, runID, map[string]interface{}{"documents_curated": len(reports)})
	emitSuccess(map[string]interface{}{"run_id": runID, "result": reports})
	return nil
}

// validateMetaStatus maps a metadata validation outcome onto the CLI's
// envelope status field, mirroring the sidecar's handleValidateMeta
// (spec.md §6): advisory warnings never fail the command, but are
// surfaced at the top level rather than buried in "result".
func validateMetaStatus(anyWarnings bool) string {
	if anyWarnings {
		return "warnings"
	}
	return "ok"
}

func runValidateMeta(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		emitError(err)
		return nil
	}
	defer store.Close()

	ctx := cmd.Context()
	if validateMetaDocID != 0 {
		result, err := metadata.ValidateDocument(ctx, store, validateMetaDocID)
		if err != nil {
			emitError(err)
			return nil
		}
		emitSuccessStatus(validateMetaStatus(len(result.Warnings) > 0), map[string]interface{}{"result": result})
		return nil
	}
	results, err := metadata.ValidateAllDocuments(ctx, store)
	if err != nil {
		emitError(err)
		return nil
	}
	anyWarnings := false
	for _, res := range results {
		if len(res.Warnings) > 0 {
			anyWarnings = true
			break
		}
	}
	emitSuccessStatus(validateMetaStatus(anyWarnings), map[string]interface{}{"result": results})
	return nil
}
