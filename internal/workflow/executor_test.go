package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"nfewatch/internal/journal"
	"nfewatch/internal/notifications"
	"nfewatch/internal/recordstore"
	"nfewatch/internal/testsupport"
)

func TestExecuteTaskRelocatesArtifactAndRegistersWatch(t *testing.T) {
	h := newHarness(t)
	key := testsupport.AccessKey("12345678000199", 1)
	testsupport.WriteArtifact(t, h.cfg.Paths.SourceDir, key, "<nfe/>")

	result := h.exec.ExecuteTask(context.Background(), pending(7, key))
	if !result.Success || !result.Awaiting || result.AlreadyWatching {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Attempts != 1 || result.RecordID != 7 {
		t.Fatalf("unexpected attempts/id: %+v", result)
	}

	entityDir := filepath.Join(h.cfg.Paths.EntityBaseDir, "12345678000199")
	if _, err := os.Stat(filepath.Join(entityDir, key+".xml")); err != nil {
		t.Fatalf("expected artifact in entity folder: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.SourceDir, key+".xml")); !os.IsNotExist(err) {
		t.Fatalf("expected source artifact to be moved, stat err=%v", err)
	}
	if info, err := os.Stat(filepath.Join(entityDir, "processed")); err != nil || !info.IsDir() {
		t.Fatalf("expected processed folder, err=%v", err)
	}

	waiting := h.exec.WaitingFiles()
	if len(waiting) != 1 {
		t.Fatalf("expected one watch entry, got %d", len(waiting))
	}
	if want := filepath.Join(entityDir, "processed", key+".xml"); waiting[0].ExpectedPath != want {
		t.Fatalf("expected path %q, got %q", want, waiting[0].ExpectedPath)
	}
	if !h.exec.Watching() {
		t.Fatal("expected watch loop to be running")
	}
	if h.exec.RunningTaskCount() != 0 {
		t.Fatalf("expected running task to be cleared, got %d", h.exec.RunningTaskCount())
	}
	if len(h.store.completed()) != 0 {
		t.Fatal("relocation alone must not complete the record")
	}
}

func TestExecuteTaskAlreadyWatchingIsNoop(t *testing.T) {
	h := newHarness(t)
	key := testsupport.AccessKey("12345678000199", 2)
	testsupport.WriteArtifact(t, h.cfg.Paths.SourceDir, key, "<nfe/>")

	if first := h.exec.ExecuteTask(context.Background(), pending(8, key)); !first.Success {
		t.Fatalf("first run failed: %+v", first)
	}
	second := h.exec.ExecuteTask(context.Background(), pending(8, key))
	if !second.Success || !second.AlreadyWatching || !second.Awaiting {
		t.Fatalf("expected already-watching success, got %+v", second)
	}
	if got := len(h.exec.WaitingFiles()); got != 1 {
		t.Fatalf("expected single watch entry, got %d", got)
	}
}

func TestExecuteTaskMalformedKeyFailsWithoutRetry(t *testing.T) {
	h := newHarness(t, testsupport.WithRetry(3, 5))
	result := h.exec.ExecuteTask(context.Background(), pending(9, "not-a-key"))
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", result.Attempts)
	}
	if !strings.Contains(result.Error, "malformed access key") {
		t.Fatalf("unexpected error: %q", result.Error)
	}
	if got := h.recorder.kinds(); !slices.Equal(got, []journal.Kind{journal.KindMalformed}) {
		t.Fatalf("unexpected journal kinds: %v", got)
	}
	if got := h.notifier.list(); !slices.Equal(got, []notifications.Event{notifications.EventMalformedKey}) {
		t.Fatalf("unexpected notifications: %v", got)
	}
	entries, err := os.ReadDir(h.cfg.Paths.EntityBaseDir)
	if err == nil && len(entries) != 0 {
		t.Fatalf("malformed key must not touch the filesystem, found %d entries", len(entries))
	}
}

func TestExecuteTaskRetriesMissingArtifactUntilCeiling(t *testing.T) {
	h := newHarness(t, testsupport.WithRetry(3, 5))
	key := testsupport.AccessKey("12345678000199", 3)

	start := time.Now()
	result := h.exec.ExecuteTask(context.Background(), pending(10, key))
	if result.Success {
		t.Fatal("expected failure for missing artifact")
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("expected retry delay between attempts, elapsed %s", elapsed)
	}
	if !strings.Contains(result.Error, "source artifact not found") {
		t.Fatalf("unexpected error: %q", result.Error)
	}
	if got := h.recorder.kinds(); !slices.Equal(got, []journal.Kind{journal.KindFailed}) {
		t.Fatalf("unexpected journal kinds: %v", got)
	}
	if got := h.notifier.list(); !slices.Equal(got, []notifications.Event{notifications.EventRetriesExhausted}) {
		t.Fatalf("unexpected notifications: %v", got)
	}

	// The counter is cleared, so a later run gets a full set of attempts.
	testsupport.WriteArtifact(t, h.cfg.Paths.SourceDir, key, "<nfe/>")
	if again := h.exec.ExecuteTask(context.Background(), pending(10, key)); !again.Success || again.Attempts != 1 {
		t.Fatalf("expected success after artifact arrived, got %+v", again)
	}
}

func TestExecuteTaskRecoversWhenArtifactArrivesBetweenAttempts(t *testing.T) {
	h := newHarness(t, testsupport.WithRetry(5, 40))
	key := testsupport.AccessKey("12345678000199", 4)

	go func() {
		time.Sleep(20 * time.Millisecond)
		testsupport.WriteArtifact(t, h.cfg.Paths.SourceDir, key, "<nfe/>")
	}()
	result := h.exec.ExecuteTask(context.Background(), pending(11, key))
	if !result.Success {
		t.Fatalf("expected eventual success, got %+v", result)
	}
	if result.Attempts < 2 {
		t.Fatalf("expected at least one retry, got %d attempts", result.Attempts)
	}
}

func TestExecuteTaskStopsRetryingOnCancel(t *testing.T) {
	h := newHarness(t, testsupport.WithRetry(5, 10_000))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	result := h.exec.ExecuteTask(ctx, pending(12, testsupport.AccessKey("12345678000199", 5)))
	if result.Success || result.Attempts != 1 {
		t.Fatalf("expected abandoned first attempt, got %+v", result)
	}
	if !strings.Contains(result.Error, context.Canceled.Error()) {
		t.Fatalf("expected cancellation error, got %q", result.Error)
	}
}

func TestExecuteTaskNonPendingIsNoop(t *testing.T) {
	h := newHarness(t)
	record := recordstore.Record{ID: 13, ExternalKey: "whatever", Status: recordstore.StatusCompleted}
	result := h.exec.ExecuteTask(context.Background(), record)
	if !result.Success || result.Awaiting {
		t.Fatalf("expected plain success, got %+v", result)
	}
	if len(h.exec.WaitingFiles()) != 0 {
		t.Fatal("non-pending record must not register a watch")
	}
}

func TestExecuteTaskJournalFailureDoesNotFailRun(t *testing.T) {
	h := newHarness(t, testsupport.WithRetry(1, 1))
	h.recorder.err = errors.New("disk full")
	result := h.exec.ExecuteTask(context.Background(), pending(14, "short"))
	if result.Success || result.Attempts != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRepeatedTerminalFailureIsReportedOnce(t *testing.T) {
	h := newHarness(t, testsupport.WithRetry(1, 1))

	for i := 0; i < 3; i++ {
		if result := h.exec.ExecuteTask(context.Background(), pending(40, "bad-key")); result.Success {
			t.Fatalf("run %d: expected failure", i+1)
		}
	}
	if got := h.recorder.kinds(); !slices.Equal(got, []journal.Kind{journal.KindMalformed}) {
		t.Fatalf("expected a single malformed outcome, got %v", got)
	}
	if got := h.notifier.list(); !slices.Equal(got, []notifications.Event{notifications.EventMalformedKey}) {
		t.Fatalf("expected a single malformed notification, got %v", got)
	}

	// Fixing the key changes the failure: the missing artifact is a new report.
	key := testsupport.AccessKey("12345678000199", 40)
	for i := 0; i < 2; i++ {
		h.exec.ExecuteTask(context.Background(), pending(40, key))
	}
	wantKinds := []journal.Kind{journal.KindMalformed, journal.KindFailed}
	if got := h.recorder.kinds(); !slices.Equal(got, wantKinds) {
		t.Fatalf("unexpected journal kinds: %v", got)
	}

	// Success clears the report, so a later failure is announced again.
	testsupport.WriteArtifact(t, h.cfg.Paths.SourceDir, key, "<nfe/>")
	if result := h.exec.ExecuteTask(context.Background(), pending(40, key)); !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	h.exec.ExecuteTask(context.Background(), pending(40, "bad-key"))
	wantEvents := []notifications.Event{
		notifications.EventMalformedKey,
		notifications.EventRetriesExhausted,
		notifications.EventMalformedKey,
	}
	if got := h.notifier.list(); !slices.Equal(got, wantEvents) {
		t.Fatalf("unexpected notifications: %v", got)
	}
}
