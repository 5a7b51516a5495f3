package main

import (
	"github.com/spf13/cobra"

	"github.com/hyperjump/agrafes/internal/diagnostics"
)

var diagnoseRepair bool

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Report (and optionally repair) the database's operational health",
	RunE:  runDiagnose,
}

func init() {
	diagnoseCmd.Flags().BoolVar(&diagnoseRepair, "repair", false, "reindex missing FTS rows and drop orphaned ones before reporting")
	rootCmd.AddCommand(diagnoseCmd)
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		emitError(err)
		return nil
	}
	defer store.Close()

	ctx := cmd.Context()
	if diagnoseRepair {
		removed, added, err := diagnostics.Repair(ctx, store)
		if err != nil {
			emitError(err)
			return nil
		}
		report, err := diagnostics.Collect(ctx, store)
		if err != nil {
			emitError(err)
			return nil
		}
		emitSuccess(map[string]interface{}{"repaired": map[string]interface{}{"fts_rows_removed": removed, "fts_rows_added": added}, "report": report})
		return nil
	}

	report, err := diagnostics.Collect(ctx, store)
	if err != nil {
		emitError(err)
		return nil
	}
	emitSuccess(map[string]interface{}{"report": report})
	return nil
}
