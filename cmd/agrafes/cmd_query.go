package main

import (
	"github.com/spf13/cobra"

	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/query"
	"github.com/hyperjump/agrafes/internal/runs"
)

var (
	queryText           string
	queryMode           string
	queryLanguage       string
	queryDocID          int64
	queryResourceType   string
	queryDocRole        string
	queryIncludeAligned bool
	queryAlignedCap     int
	queryAllOccurrences bool
	queryWindow         int
	queryLimit          int
	queryOffset         int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a query against the unit index",
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryText, "query", "", "query text (required)")
	queryCmd.Flags().StringVar(&queryMode, "mode", "segment", "segment | kwic")
	queryCmd.Flags().StringVar(&queryLanguage, "language", "", "restrict to documents in this language")
	queryCmd.Flags().Int64Var(&queryDocID, "doc-id", 0, "restrict to one document id (0 = all)")
	queryCmd.Flags().StringVar(&queryResourceType, "resource-type", "", "restrict to a resource type")
	queryCmd.Flags().StringVar(&queryDocRole, "doc-role", "", "restrict to a doc role")
	queryCmd.Flags().BoolVar(&queryIncludeAligned, "include-aligned", false, "include the parallel-view aligned list")
	queryCmd.Flags().IntVar(&queryAlignedCap, "aligned-cap", 0, "max aligned entries per hit")
	queryCmd.Flags().BoolVar(&queryAllOccurrences, "all-occurrences", false, "return every occurrence per unit, not just the first")
	queryCmd.Flags().IntVar(&queryWindow, "window", -1, "KWIC context window (-1 = config default, 0 = no context)")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "page size (0 = config default)")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 0, "page offset")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		emitError(err)
		return nil
	}
	defer store.Close()

	req := models.QueryRequest{
		Query:          queryText,
		Mode:           models.QueryMode(queryMode),
		Language:       queryLanguage,
		ResourceType:   queryResourceType,
		DocRole:        queryDocRole,
		IncludeAligned: queryIncludeAligned,
		AlignedCap:     queryAlignedCap,
		AllOccurrences: queryAllOccurrences,
		Window:         queryWindow,
		Limit:          queryLimit,
		Offset:         queryOffset,
	}
	if queryDocID != 0 {
		req.DocID = &queryDocID
	}

	ctx := cmd.Context()
	runID, err := runs.Start(ctx, store, models.RunQuery, map[string]interface{}{"query": req.Query, "mode": string(req.Mode)})
	if err != nil {
		emitError(err)
		return nil
	}
	resp, err := query.Run(ctx, store, req, query.Defaults{
		DefaultLimit:  cfg.Query.DefaultLimit,
		MaxLimit:      cfg.Query.MaxLimit,
		DefaultWindow: cfg.Query.DefaultWindow,
	})
	if err != nil {
		emitError(err)
		return nil
	}
	_ = runs.Finish(ctx, store, runID, map[string]interface{}{"hits": len(resp.Hits)})
	emitSuccess(map[string]interface{}{"run_id": runID, "result": resp})
	return nil
}
