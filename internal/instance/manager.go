// Package instance implements the PID-file-backed instance management
// teacher's cmd/cliaimonitor carries (internal/instance/manager.go):
// enough bookkeeping for an operator CLI running in a different process to
// find, health-check, and stop a long-lived agentworker without talking to
// its store. Adapted from one HTTP-server-per-machine to one
// agentworker-per-agent: the PID file is keyed by agent ID rather than by a
// single well-known path.
package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Info is the JSON shape written to the PID file at startup and read back
// by coordctl's status/stop/force-stop verbs, adapted from teacher's
// PIDFileData.
type Info struct {
	PID       int       `json:"pid"`
	AgentID   string    `json:"agentId"`
	AgentType string    `json:"agentType"`
	HTTPAddr  string    `json:"httpAddr"`
	StartedAt time.Time `json:"startedAt"`
	Hostname  string    `json:"hostname"`
}

// Manager owns one PID file's lifecycle.
type Manager struct {
	path string
}

// NewManager returns a Manager for the PID file at path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Write records the running process's info, overwriting any stale file
// left behind by a previous unclean shutdown.
func (m *Manager) Write(agentID, agentType, httpAddr string) error {
	hostname, _ := os.Hostname()
	info := Info{
		PID:       os.Getpid(),
		AgentID:   agentID,
		AgentType: agentType,
		HTTPAddr:  httpAddr,
		StartedAt: time.Now(),
		Hostname:  hostname,
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pid file: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write pid file %s: %w", m.path, err)
	}
	return nil
}

// Read loads the PID file's contents. A missing file is reported via
// os.IsNotExist on the returned error, matching teacher's
// ReadPIDFile/CheckExistingInstance convention.
func (m *Manager) Read() (*Info, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse pid file %s: %w", m.path, err)
	}
	return &info, nil
}

// Remove deletes the PID file. Removing an already-absent file is not an
// error, since both graceful and force shutdown call this unconditionally.
func (m *Manager) Remove() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file %s: %w", m.path, err)
	}
	return nil
}
