package main

import (
	"github.com/spf13/cobra"

	"github.com/hyperjump/agrafes/internal/indexer"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/runs"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the FTS index from every line unit in the store",
	RunE:  runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		emitError(err)
		return nil
	}
	defer store.Close()

	ctx := cmd.Context()
	runID, err := runs.Start(ctx, store, models.RunIndex, nil)
	if err != nil {
		emitError(err)
		return nil
	}
	stats, err := indexer.Rebuild(ctx, store)
	if err != nil {
		emitError(err)
		return nil
	}
	_ = runs.Finish(ctx, store, runID, map[string]interface{}{"units_indexed": stats.UnitsIndexed})
	emitSuccess(map[string]interface{}{"run_id": runID, "result": stats})
	return nil
}
