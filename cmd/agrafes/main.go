// Package main is the agrafes CLI entry point: a batch façade over the
// same domain packages the sidecar server drives, per spec.md §6's "each
// subcommand emits exactly one JSON object to stdout" contract.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/config"
	"github.com/hyperjump/agrafes/internal/storage"
	"github.com/hyperjump/agrafes/pkg/utils"
)

var version = "dev"

var (
	configPath string
	dbPathFlag string
	logger     *zap.Logger
)

// rootCmd is the agrafes CLI's entry point.
var rootCmd = &cobra.Command{
	Use:     "agrafes",
	Short:   "agrafes — corpus ingestion, indexing, alignment, and curation",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debug := false
		if cfg, err := config.Load(configPath); err == nil {
			debug = cfg.Debug
		}
		l, err := utils.NewLogger(debug)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "override the configured database path")

	rootCmd.AddCommand(initProjectCmd, importCmd, indexCmd, queryCmd, alignCmd,
		exportCmd, validateMetaCmd, curateCmd, segmentCmd, serveCmd, statusCmd, shutdownCmd)
}

// loadConfig reads config.yaml at configPath, applying the --db override
// if given. Commands other than init-project require the file to exist.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPathFlag != "" {
		cfg.Storage.DatabasePath = dbPathFlag
	}
	return cfg, nil
}

// openStore loads config and opens (and migrates) the database it names.
func openStore() (*storage.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return store, cfg, nil
}

// successEnvelope mirrors the sidecar's okEnvelope shape so CLI and HTTP
// output are structurally identical, per spec.md §6.
type successEnvelope struct {
	OK         bool        `json:"ok"`
	APIVersion string      `json:"api_version"`
	Status     string      `json:"status"`
	Data       interface{} `json:"data,omitempty"`
}

// emitSuccess writes one success JSON object to stdout with the ordinary
// "ok" status and exits 0. Commands whose own outcome belongs in a
// different envelope status (listening, already_running, warnings) use
// emitSuccessStatus instead.
func emitSuccess(data interface{}) {
	emitSuccessStatus("ok", data)
}

// emitSuccessStatus writes one success JSON object to stdout with an
// explicit envelope status (ok | listening | already_running | warnings)
// and exits 0.
func emitSuccessStatus(status string, data interface{}) {
	_ = json.NewEncoder(os.Stdout).Encode(successEnvelope{
		OK: true, APIVersion: apierr.APIVersion, Status: status, Data: data,
	})
}

// emitError writes one error JSON object to stdout and exits 1, mirroring
// the HTTP error envelope so CLI and sidecar failures are equally
// machine-parseable. Never writes to stderr on a domain error — spec.md
// §6 requires stdout-only output and a CLI parse/runtime failure alike
// produces a single JSON object.
func emitError(err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Internal("%v", err)
	}
	_ = json.NewEncoder(os.Stdout).Encode(apierr.ToEnvelope(apierr.APIVersion, apiErr))
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		emitError(err)
	}
}
