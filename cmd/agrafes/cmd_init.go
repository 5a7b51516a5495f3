package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperjump/agrafes/internal/config"
	"github.com/hyperjump/agrafes/internal/storage"
)

var (
	initForce     bool
	initTokenMode string
)

var initProjectCmd = &cobra.Command{
	Use:   "init-project",
	Short: "Create a config.yaml and an empty, migrated database",
	RunE:  runInitProject,
}

func init() {
	initProjectCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config.yaml")
	initProjectCmd.Flags().StringVar(&initTokenMode, "token-mode", "", "off | auto | explicit (default: auto)")
}

func runInitProject(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !initForce {
		emitError(fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath))
		return nil
	}

	cfg := &config.Config{}
	if dbPathFlag != "" {
		cfg.Storage.DatabasePath = dbPathFlag
	}
	if initTokenMode != "" {
		cfg.Server.TokenMode = initTokenMode
	}
	config.ApplyDefaults(cfg)

	if err := config.Save(configPath, cfg); err != nil {
		emitError(fmt.Errorf("write config: %w", err))
		return nil
	}

	store, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		emitError(fmt.Errorf("create database: %w", err))
		return nil
	}
	defer store.Close()

	emitSuccess(map[string]interface{}{
		"config_path": configPath,
		"db_path":     cfg.Storage.DatabasePath,
	})
	return nil
}
