package daemonctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nfewatch/internal/testsupport"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nfewatch.pid")

	if _, err := ReadPID(path, 0); err == nil {
		t.Fatal("expected error for missing pid file without fallback")
	}
	if pid, err := ReadPID(path, 42); err != nil || pid != 42 {
		t.Fatalf("expected fallback pid 42, got %d (%v)", pid, err)
	}

	if err := os.WriteFile(path, []byte("1234\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pid, err := ReadPID(path, 42); err != nil || pid != 1234 {
		t.Fatalf("expected pid 1234, got %d (%v)", pid, err)
	}

	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPID(path, 0); err == nil {
		t.Fatal("expected error for invalid pid file")
	}
}

func TestForceKillRefusesCurrentProcess(t *testing.T) {
	if err := ForceKillProcess(filepath.Join(t.TempDir(), "pid"), "", os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill current process")
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := StopAndTerminate(filepath.Join(t.TempDir(), "missing.sock"), cfg, 100*time.Millisecond)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestProcessInfoWithoutSocket(t *testing.T) {
	alive, pid, err := ProcessInfo(filepath.Join(t.TempDir(), "missing.sock"))
	if err != nil || alive || pid != 0 {
		t.Fatalf("expected unreachable daemon, got alive=%v pid=%d err=%v", alive, pid, err)
	}
}

func TestBuildStatusSnapshotFallsBackToPreflight(t *testing.T) {
	fake := testsupport.NewFakeStore(t)
	cfg := testsupport.NewConfig(t, testsupport.WithStoreURL(fake.URL()))

	snap, err := BuildStatusSnapshot(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snap.Reachable || snap.Status != nil {
		t.Fatalf("expected offline snapshot, got %+v", snap)
	}
	if len(snap.Checks) == 0 {
		t.Fatal("expected preflight checks in offline snapshot")
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := Launch("  ", LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}
