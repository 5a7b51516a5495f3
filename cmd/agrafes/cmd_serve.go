package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperjump/agrafes/internal/sidecar"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sidecar HTTP server and block until signaled",
	RunE:  runServe,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a sidecar instance is running for this database",
	RunE:  runStatus,
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask a running sidecar instance to shut down gracefully",
	RunE:  runShutdown,
}

func runServe(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		emitError(err)
		return nil
	}

	state, _, err := sidecar.InspectState(cfg.Storage.DatabasePath)
	if err != nil {
		store.Close()
		emitError(err)
		return nil
	}
	if state == sidecar.StateRunning {
		store.Close()
		emitSuccessStatus("already_running", map[string]interface{}{})
		return nil
	}

	srv, err := sidecar.NewServer(store, cfg, logger, cfg.Storage.DatabasePath)
	if err != nil {
		store.Close()
		emitError(err)
		return nil
	}
	info, err := srv.Start()
	if err != nil {
		store.Close()
		emitError(err)
		return nil
	}
	emitSuccessStatus("listening", map[string]interface{}{"host": info.Host, "port": info.Port, "pid": info.PID, "token": info.Token})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		emitError(err)
		return nil
	}
	state, pf, err := sidecar.InspectState(cfg.Storage.DatabasePath)
	if err != nil {
		emitError(err)
		return nil
	}
	data := map[string]interface{}{"state": string(state)}
	if pf != nil {
		data["host"] = pf.Host
		data["port"] = pf.Port
		data["pid"] = pf.PID
	}
	emitSuccess(data)
	return nil
}

func runShutdown(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		emitError(err)
		return nil
	}
	state, pf, err := sidecar.InspectState(cfg.Storage.DatabasePath)
	if err != nil {
		emitError(err)
		return nil
	}
	if state != sidecar.StateRunning {
		emitError(fmt.Errorf("no running sidecar instance found for %s", cfg.Storage.DatabasePath))
		return nil
	}

	url := fmt.Sprintf("http://%s:%d/shutdown", pf.Host, pf.Port)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader([]byte("{}")))
	if err != nil {
		emitError(err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if pf.Token != "" {
		req.Header.Set("X-Agrafes-Token", pf.Token)
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		emitError(fmt.Errorf("send shutdown request: %w", err))
		return nil
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK {
		emitError(fmt.Errorf("sidecar rejected shutdown request: status %d", resp.StatusCode))
		return nil
	}
	emitSuccess(body["data"])
	return nil
}
