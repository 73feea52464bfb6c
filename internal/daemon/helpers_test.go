package daemon

import (
	"testing"
	"time"

	"nfewatch/internal/config"
	"nfewatch/internal/logging"
	"nfewatch/internal/monitor"
	"nfewatch/internal/recordstore"
	"nfewatch/internal/testsupport"
	"nfewatch/internal/workflow"
)

type testDaemon struct {
	*Daemon
	cfg  *config.Config
	fake *testsupport.FakeStore
	exec *workflow.Executor
}

func newTestDaemon(t *testing.T, opts ...testsupport.ConfigOption) *testDaemon {
	t.Helper()
	fake := testsupport.NewFakeStore(t)
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithStoreURL(fake.URL())}, opts...)...)

	client, err := recordstore.New(cfg.Store.BaseURL, recordstore.WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("recordstore.New: %v", err)
	}
	logger := logging.NewNop()
	journalStore := testsupport.MustOpenJournal(t, cfg)
	exec := workflow.NewExecutor(cfg, client, logger, workflow.WithRecorder(journalStore))
	sched := monitor.New(cfg, client, exec, logger)

	d, err := New(cfg, logger, Dependencies{
		Store:     client,
		Executor:  exec,
		Scheduler: sched,
		Journal:   journalStore,
		LogPath:   "/tmp/nfewatch.log",
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return &testDaemon{Daemon: d, cfg: cfg, fake: fake, exec: exec}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
