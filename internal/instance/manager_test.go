package instance

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadRemove(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "worker.pid")
	mgr := NewManager(pidPath)

	if err := mgr.Write("agent-1", "coder", "localhost:8080"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(pidPath); os.IsNotExist(err) {
		t.Fatal("pid file was not created")
	}

	info, err := mgr.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if info.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", info.PID, os.Getpid())
	}
	if info.AgentID != "agent-1" || info.AgentType != "coder" {
		t.Errorf("got agentId=%s agentType=%s", info.AgentID, info.AgentType)
	}
	if info.HTTPAddr != "localhost:8080" {
		t.Errorf("HTTPAddr = %s, want localhost:8080", info.HTTPAddr)
	}
	if time.Since(info.StartedAt) > 5*time.Second {
		t.Error("StartedAt timestamp is too old")
	}

	if err := mgr.Remove(); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatal("pid file was not removed")
	}
}

func TestReadNonExistent(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "missing.pid")
	mgr := NewManager(pidPath)

	_, err := mgr.Read()
	if err == nil {
		t.Fatal("Read should error on a missing file")
	}
	if !os.IsNotExist(err) {
		t.Errorf("expected IsNotExist, got: %v", err)
	}
}

func TestReadInvalidJSON(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "invalid.pid")
	if err := os.WriteFile(pidPath, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	mgr := NewManager(pidPath)

	if _, err := mgr.Read(); err == nil {
		t.Error("Read should error on invalid JSON")
	}
}

func TestRemoveNonExistent(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "missing.pid")
	mgr := NewManager(pidPath)

	if err := mgr.Remove(); err != nil {
		t.Errorf("Remove should not error on a missing file, got: %v", err)
	}
}

func TestIsAliveCurrentProcess(t *testing.T) {
	if !IsAlive(os.Getpid()) {
		t.Error("IsAlive should report true for the current process")
	}
}

func TestIsAliveUnusedPID(t *testing.T) {
	if IsAlive(999999) {
		t.Error("IsAlive should report false for a PID that almost certainly isn't running")
	}
}
