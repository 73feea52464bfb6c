package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"nfewatch/internal/journal"
	"nfewatch/internal/recordstore"
	"nfewatch/internal/services"
	"nfewatch/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	d := newTestDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || !status.Monitor.Running || !status.Watching {
		t.Fatalf("expected daemon, monitor and watch running, got %+v", status)
	}
	if d.APIAddress() == "" {
		t.Fatal("expected api server to be listening")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running || status.Monitor.Running {
		t.Fatalf("expected daemon stopped, got %+v", status)
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	d := newTestDaemon(t)
	other := flock.New(d.cfg.LockPath())
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("expected to take the lock first: ok=%v err=%v", ok, err)
	}
	defer other.Unlock()

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail while another instance holds the lock")
	}
}

func TestControlsRequireRunningDaemon(t *testing.T) {
	d := newTestDaemon(t)
	if _, err := d.StartMonitor(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if _, err := d.StopMonitor(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if err := d.RestartMonitor(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestMonitorControls(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if started, err := d.StartMonitor(); err != nil || started {
		t.Fatalf("expected start to be a no-op while running: started=%v err=%v", started, err)
	}
	if stopped, err := d.StopMonitor(); err != nil || !stopped {
		t.Fatalf("expected stop: stopped=%v err=%v", stopped, err)
	}
	if stopped, _ := d.StopMonitor(); stopped {
		t.Fatal("second stop must be a no-op")
	}
	if err := d.RestartMonitor(); err != nil {
		t.Fatalf("RestartMonitor: %v", err)
	}
	if !d.Status(context.Background()).Monitor.Running {
		t.Fatal("expected monitor running after restart")
	}
}

func TestUpdateIntervalValidatesRange(t *testing.T) {
	d := newTestDaemon(t)
	for _, ms := range []int{9999, 3600001, 0} {
		err := d.UpdateInterval(ms)
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %d, got %v", ms, err)
		}
	}
	if err := d.UpdateInterval(15000); err != nil {
		t.Fatalf("UpdateInterval: %v", err)
	}
	if got := d.Status(context.Background()).Monitor.Interval; got != 15*time.Second {
		t.Fatalf("expected 15s interval, got %s", got)
	}
}

func TestInsertTestRecord(t *testing.T) {
	d := newTestDaemon(t)
	key := testsupport.AccessKey("12345678000199", 9)

	rec, err := d.InsertTestRecord(context.Background(), key)
	if err != nil {
		t.Fatalf("InsertTestRecord: %v", err)
	}
	if rec.ExternalKey != key || rec.Status != recordstore.StatusPending {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, err := d.InsertTestRecord(context.Background(), "bad"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad key, got %v", err)
	}
	stats, err := d.StoreStats(context.Background())
	if err != nil || stats.Pending != 1 {
		t.Fatalf("unexpected store stats %+v err=%v", stats, err)
	}
}

func TestDaemonProcessesRecordEndToEnd(t *testing.T) {
	d := newTestDaemon(t)
	key := testsupport.AccessKey("44555666000177", 1)
	id := d.fake.Add(key, recordstore.StatusPending)
	testsupport.WriteArtifact(t, d.cfg.Paths.SourceDir, key, "<nfe/>")

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return len(d.WaitingFiles()) == 1 })

	entry := d.WaitingFiles()[0]
	testsupport.WriteArtifact(t, filepath.Dir(entry.ExpectedPath), key, testsupport.AuthorizedXML(key))
	waitFor(t, func() bool {
		rec, _ := d.fake.Record(id)
		return rec.Status == recordstore.StatusCompleted
	})
	waitFor(t, func() bool { return len(d.WaitingFiles()) == 0 })

	outcomes, err := d.RecentOutcomes(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentOutcomes: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Kind != journal.KindCompleted || outcomes[0].RecordID != id {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
	if d.Status(context.Background()).OutcomeCounts[journal.KindCompleted] != 1 {
		t.Fatal("expected completed count in status")
	}
}

func TestShutdownStopsLoops(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if remaining := d.Shutdown(context.Background()); remaining != 0 {
		t.Fatalf("expected no running tasks, got %d", remaining)
	}
	if d.Running() || d.exec.Watching() {
		t.Fatal("expected everything stopped after shutdown")
	}
	// The lock is released, so a fresh start succeeds.
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart after shutdown: %v", err)
	}
}

func TestShutdownWaitsForInFlightCheck(t *testing.T) {
	d := newTestDaemon(t)
	key := testsupport.AccessKey("44555666000177", 2)
	d.fake.Add(key, recordstore.StatusPending)
	testsupport.WriteArtifact(t, d.cfg.Paths.SourceDir, key, "<nfe/>")
	d.fake.SetFetchDelay(200 * time.Millisecond)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// The immediate check is now blocked in the pending fetch with no
	// executor task running yet.
	waitFor(t, func() bool { return d.fake.HeldFetches() == 1 })
	if d.exec.RunningTaskCount() != 0 {
		t.Fatal("expected no executor task while the fetch is held")
	}

	if remaining := d.Shutdown(context.Background()); remaining != 0 {
		t.Fatalf("expected the check to drain, %d tasks left", remaining)
	}
	if got := len(d.WaitingFiles()); got != 1 {
		t.Fatalf("expected the fetched record to be relocated before shutdown returned, got %d waiting", got)
	}
	if d.exec.Watching() {
		t.Fatal("relocation during shutdown must not restart the watch loop")
	}
}

func TestJournalPrunedWhileRunning(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()
	old := journal.Outcome{RecordID: 1, ExternalKey: "old", Kind: journal.KindFailed,
		CreatedAt: time.Now().AddDate(0, 0, -(d.cfg.Journal.RetentionDays + 1))}
	fresh := journal.Outcome{RecordID: 2, ExternalKey: "fresh", Kind: journal.KindCompleted}
	for _, outcome := range []journal.Outcome{old, fresh} {
		if _, err := d.journal.Append(ctx, outcome); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool {
		counts, err := d.journal.Counts(ctx)
		return err == nil && counts[journal.KindFailed] == 0
	})
	counts, err := d.journal.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[journal.KindCompleted] != 1 {
		t.Fatalf("expected the recent outcome to survive, got %v", counts)
	}
	if d.pruner == nil || !d.pruner.Running() {
		t.Fatal("expected the prune task to keep running")
	}
}
