package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/agrafes/internal/align"
	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/runs"
)

var (
	alignStrategy    string
	alignPivotDocID  int64
	alignTargetDocs  string
	alignThreshold   float64
	alignDebug       bool
)

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Run the alignment engine for a pivot document against one or more targets",
	RunE:  runAlign,
}

func init() {
	alignCmd.Flags().StringVar(&alignStrategy, "strategy", "", "external_id | position | similarity | external_id_then_position (required)")
	alignCmd.Flags().Int64Var(&alignPivotDocID, "pivot-doc-id", 0, "pivot document id (required)")
	alignCmd.Flags().StringVar(&alignTargetDocs, "target-doc-ids", "", "comma-separated target document ids (required)")
	alignCmd.Flags().Float64Var(&alignThreshold, "similarity-threshold", 0, "similarity threshold (0 = config default)")
	alignCmd.Flags().BoolVar(&alignDebug, "debug", false, "include scoring debug info in the report")
	alignCmd.MarkFlagRequired("strategy")
	alignCmd.MarkFlagRequired("pivot-doc-id")
	alignCmd.MarkFlagRequired("target-doc-ids")
}

func parseTargetDocIDs(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, apierr.BadRequest("invalid target-doc-ids entry %q: %v", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runAlign(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		emitError(err)
		return nil
	}
	defer store.Close()

	targetDocIDs, err := parseTargetDocIDs(alignTargetDocs)
	if err != nil {
		emitError(err)
		return nil
	}

	threshold := alignThreshold
	if threshold == 0 {
		threshold = cfg.Align.DefaultSimilarityThreshold
	}

	ctx := cmd.Context()
	runID, err := runs.Start(ctx, store, models.RunAlign, map[string]interface{}{
		"strategy": alignStrategy, "pivot_doc_id": alignPivotDocID, "target_doc_ids": targetDocIDs,
	})
	if err != nil {
		emitError(err)
		return nil
	}
	reports, err := align.Run(ctx, store, models.AlignmentStrategy(alignStrategy), alignPivotDocID, targetDocIDs, align.Options{
		RunID:               runID,
		Debug:               alignDebug,
		SimilarityThreshold: threshold,
	})
	if err != nil {
		emitError(err)
		return nil
	}
	total := 0
	for _, rep := range reports {
		total += rep.LinksCreated
	}
	_ = runs.Finish(ctx, store, runID, map[string]interface{}{"links_created": total})
	emitSuccess(map[string]interface{}{"run_id": runID, "result": reports})
	return nil
}
