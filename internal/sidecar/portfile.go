package sidecar

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// portfileName is the fixed filename written next to the DB during the
// sidecar's lifetime (spec.md §4.8/§6).
const portfileName = ".agrafes_sidecar.json"

// Portfile is the JSON document written at <db-parent>/.agrafes_sidecar.json.
type Portfile struct {
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	DBPath    string    `json:"db_path"`
	Token     string    `json:"token,omitempty"`
}

// portfilePath returns the portfile location for a given database path.
func portfilePath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), portfileName)
}

// writePortfile persists pf next to dbPath.
func writePortfile(dbPath string, pf *Portfile) error {
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(portfilePath(dbPath), data, 0600)
}

// removePortfile deletes the portfile for dbPath, tolerating its absence.
func removePortfile(dbPath string) error {
	err := os.Remove(portfilePath(dbPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// readPortfile loads and parses the portfile for dbPath.
func readPortfile(dbPath string) (*Portfile, error) {
	data, err := os.ReadFile(portfilePath(dbPath))
	if err != nil {
		return nil, err
	}
	var pf Portfile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, err
	}
	return &pf, nil
}

// InstanceState classifies the outcome of InspectState.
type InstanceState string

const (
	StateMissing InstanceState = "missing"
	StateRunning InstanceState = "running"
	StateStale   InstanceState = "stale"
)

// healthCheckTimeout bounds the /health poll used during discovery
// (spec.md §5: "~600 ms timeout").
const healthCheckTimeout = 600 * time.Millisecond

// InspectState classifies the sidecar instance for dbPath: missing (no
// portfile), running (portfile valid, process alive, /health answers OK),
// or stale (portfile present but invalid/dead/unreachable). Grounded on
// spec.md §4.8's inspect_state.
func InspectState(dbPath string) (InstanceState, *Portfile, error) {
	pf, err := readPortfile(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return StateMissing, nil, nil
		}
		return StateStale, nil, nil
	}
	if pf.Port < 1 || pf.Port > 65535 || pf.PID <= 0 {
		return StateStale, pf, nil
	}
	if !processAlive(pf.PID) {
		return StateStale, pf, nil
	}
	if !healthOK(pf.Host, pf.Port) {
		return StateStale, pf, nil
	}
	return StateRunning, pf, nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes liveness
	// without actually delivering a signal.
	return proc.Signal(syscall.Signal(0)) == nil
}

func healthOK(host string, port int) bool {
	client := http.Client{Timeout: healthCheckTimeout}
	resp, err := client.Get(fmt.Sprintf("http://%s:%d/health", host, port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
