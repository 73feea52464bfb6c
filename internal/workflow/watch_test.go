package workflow_test

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"nfewatch/internal/journal"
	"nfewatch/internal/logging"
	"nfewatch/internal/notifications"
	"nfewatch/internal/testsupport"
	"nfewatch/internal/workflow"
)

func relocate(t *testing.T, h *harness, id int64, key string) workflow.WatchEntry {
	t.Helper()
	testsupport.WriteArtifact(t, h.cfg.Paths.SourceDir, key, "<nfe/>")
	if result := h.exec.ExecuteTask(context.Background(), pending(id, key)); !result.Success {
		t.Fatalf("ExecuteTask: %+v", result)
	}
	entry, ok := h.exec.Registry().Get(id)
	if !ok {
		t.Fatalf("expected watch entry for %d", id)
	}
	return entry
}

func TestCheckProcessedFilesCompletesAuthorizedArtifact(t *testing.T) {
	h := newHarness(t)
	key := testsupport.AccessKey("11222333000181", 1)
	entry := relocate(t, h, 21, key)

	testsupport.WriteArtifact(t, filepath.Dir(entry.ExpectedPath), key, testsupport.AuthorizedXML(key))
	h.exec.CheckProcessedFiles(context.Background())

	if got := h.store.completed(); !slices.Equal(got, []int64{21}) {
		t.Fatalf("expected record 21 completed once, got %v", got)
	}
	if len(h.exec.WaitingFiles()) != 0 {
		t.Fatal("expected watch entry removed")
	}
	if got := h.recorder.kinds(); !slices.Equal(got, []journal.Kind{journal.KindCompleted}) {
		t.Fatalf("unexpected journal kinds: %v", got)
	}
	if got := h.notifier.list(); !slices.Equal(got, []notifications.Event{notifications.EventRecordCompleted}) {
		t.Fatalf("unexpected notifications: %v", got)
	}

	h.exec.CheckProcessedFiles(context.Background())
	if got := len(h.store.completed()); got != 1 {
		t.Fatalf("expected no further completions, got %d", got)
	}
}

func TestCheckProcessedFilesKeepsUnauthorizedArtifact(t *testing.T) {
	h := newHarness(t)
	key := testsupport.AccessKey("11222333000181", 2)
	entry := relocate(t, h, 22, key)

	testsupport.WriteArtifact(t, filepath.Dir(entry.ExpectedPath), key, testsupport.RejectedXML(key))
	h.exec.CheckProcessedFiles(context.Background())
	h.exec.CheckProcessedFiles(context.Background())

	if len(h.store.completed()) != 0 {
		t.Fatal("unauthorized artifact must not complete the record")
	}
	waiting := h.exec.WaitingFiles()
	if len(waiting) != 1 || waiting[0].Rejections != 2 {
		t.Fatalf("expected entry kept with two rejections, got %+v", waiting)
	}
}

func TestCheckProcessedFilesRetriesFailedCompletion(t *testing.T) {
	h := newHarness(t)
	key := testsupport.AccessKey("11222333000181", 3)
	entry := relocate(t, h, 23, key)
	testsupport.WriteArtifact(t, filepath.Dir(entry.ExpectedPath), key, testsupport.AuthorizedXML(key))

	h.store.setMarkErr(errStoreDown)
	h.exec.CheckProcessedFiles(context.Background())
	if len(h.exec.WaitingFiles()) != 1 {
		t.Fatal("expected entry kept after completion failure")
	}

	h.store.setMarkErr(nil)
	h.exec.CheckProcessedFiles(context.Background())
	if got := h.store.completed(); !slices.Equal(got, []int64{23}) {
		t.Fatalf("expected completion on next scan, got %v", got)
	}
}

func TestCheckProcessedFilesDropsEntryAfterTimeout(t *testing.T) {
	h := newHarness(t, testsupport.WithProcessingTimeout(60_000))
	relocate(t, h, 24, testsupport.AccessKey("11222333000181", 4))

	h.clock.Advance(59 * time.Second)
	h.exec.CheckProcessedFiles(context.Background())
	if len(h.exec.WaitingFiles()) != 1 {
		t.Fatal("entry must survive until the timeout elapses")
	}

	h.clock.Advance(2 * time.Second)
	h.exec.CheckProcessedFiles(context.Background())
	if len(h.exec.WaitingFiles()) != 0 {
		t.Fatal("expected entry dropped after timeout")
	}
	if len(h.store.completed()) != 0 {
		t.Fatal("timeout must not complete the record")
	}
	timedOut := h.exec.TimedOut()
	if len(timedOut) != 1 || timedOut[0].RecordID != 24 {
		t.Fatalf("unexpected timed out entries: %+v", timedOut)
	}
	if got := h.recorder.kinds(); !slices.Equal(got, []journal.Kind{journal.KindTimedOut}) {
		t.Fatalf("unexpected journal kinds: %v", got)
	}
	if got := h.notifier.list(); !slices.Equal(got, []notifications.Event{notifications.EventWatchTimeout}) {
		t.Fatalf("unexpected notifications: %v", got)
	}
}

func TestWatchLoopCompletesInBackground(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := &stubStore{}
	exec := workflow.NewExecutor(cfg, store, logging.NewNop())
	exec.EnsureWatching(context.Background())
	t.Cleanup(exec.StopWatching)

	key := testsupport.AccessKey("11222333000181", 5)
	testsupport.WriteArtifact(t, cfg.Paths.SourceDir, key, "<nfe/>")
	if result := exec.ExecuteTask(context.Background(), pending(25, key)); !result.Success {
		t.Fatalf("ExecuteTask: %+v", result)
	}
	processed := filepath.Join(cfg.Paths.EntityBaseDir, "11222333000181", cfg.Paths.ProcessedSubdir)
	testsupport.WriteArtifact(t, processed, key, testsupport.AuthorizedXML(key))

	deadline := time.Now().Add(2 * time.Second)
	for len(store.completed()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watch loop did not complete the record")
		}
		time.Sleep(5 * time.Millisecond)
	}

	exec.StopWatching()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := exec.WaitWatching(ctx); err != nil {
		t.Fatalf("WaitWatching: %v", err)
	}
	if exec.Watching() {
		t.Fatal("expected watch loop stopped")
	}
}

func TestWatchLoopFollowsEnsureWatchingContext(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	exec := workflow.NewExecutor(cfg, &stubStore{}, logging.NewNop())
	t.Cleanup(exec.StopWatching)

	first := testsupport.AccessKey("11222333000181", 6)
	testsupport.WriteArtifact(t, cfg.Paths.SourceDir, first, "<nfe/>")
	if result := exec.ExecuteTask(context.Background(), pending(26, first)); !result.Success {
		t.Fatalf("ExecuteTask: %+v", result)
	}
	if exec.Watching() {
		t.Fatal("a relocation must not start the watch loop before EnsureWatching")
	}
	if len(exec.WaitingFiles()) != 1 {
		t.Fatal("expected the entry to be registered anyway")
	}

	ctx, cancel := context.WithCancel(context.Background())
	exec.EnsureWatching(ctx)
	if !exec.Watching() {
		t.Fatal("expected EnsureWatching to start the loop")
	}

	cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	if err := exec.WaitWatching(waitCtx); err != nil {
		t.Fatalf("WaitWatching: %v", err)
	}
	if exec.Watching() {
		t.Fatal("expected the loop to end with its context")
	}

	second := testsupport.AccessKey("11222333000181", 7)
	testsupport.WriteArtifact(t, cfg.Paths.SourceDir, second, "<nfe/>")
	if result := exec.ExecuteTask(context.Background(), pending(27, second)); !result.Success {
		t.Fatalf("ExecuteTask: %+v", result)
	}
	if exec.Watching() {
		t.Fatal("a cancelled watch context must not be restarted")
	}
}

func TestStopWatchingIsNotUndoneByRelocation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	exec := workflow.NewExecutor(cfg, &stubStore{}, logging.NewNop())
	exec.EnsureWatching(context.Background())
	exec.StopWatching()
	t.Cleanup(exec.StopWatching)

	key := testsupport.AccessKey("11222333000181", 8)
	testsupport.WriteArtifact(t, cfg.Paths.SourceDir, key, "<nfe/>")
	if result := exec.ExecuteTask(context.Background(), pending(28, key)); !result.Success {
		t.Fatalf("ExecuteTask: %+v", result)
	}
	if exec.Watching() {
		t.Fatal("expected the watch loop to stay stopped")
	}
}
