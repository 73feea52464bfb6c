package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nfewatch/internal/config"
	"nfewatch/internal/journal"
	"nfewatch/internal/logging"
	"nfewatch/internal/notifications"
	"nfewatch/internal/recordstore"
	"nfewatch/internal/testsupport"
	"nfewatch/internal/workflow"
)

type stubStore struct {
	mu          sync.Mutex
	completions []int64
	markErr     error
}

func (s *stubStore) FetchPending(context.Context, int) ([]recordstore.Record, error) {
	return nil, nil
}

func (s *stubStore) MarkCompleted(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.completions = append(s.completions, id)
	return nil
}

func (s *stubStore) setMarkErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markErr = err
}

func (s *stubStore) completed() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.completions...)
}

type stubRecorder struct {
	mu       sync.Mutex
	outcomes []journal.Outcome
	err      error
}

func (r *stubRecorder) Append(_ context.Context, outcome journal.Outcome) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.outcomes = append(r.outcomes, outcome)
	return int64(len(r.outcomes)), nil
}

func (r *stubRecorder) kinds() []journal.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]journal.Kind, 0, len(r.outcomes))
	for _, o := range r.outcomes {
		out = append(out, o.Kind)
	}
	return out
}

type stubNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (s *stubNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *stubNotifier) list() []notifications.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notifications.Event(nil), s.events...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	cfg      *config.Config
	store    *stubStore
	recorder *stubRecorder
	notifier *stubNotifier
	clock    *fakeClock
	exec     *workflow.Executor
}

// newHarness builds an executor whose scan loop effectively never fires on
// its own, so tests drive CheckProcessedFiles directly.
func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Workflow.ScanIntervalMS = int(time.Hour / time.Millisecond)

	h := &harness{
		cfg:      cfg,
		store:    &stubStore{},
		recorder: &stubRecorder{},
		notifier: &stubNotifier{},
		clock:    newFakeClock(),
	}
	h.exec = workflow.NewExecutor(cfg, h.store, logging.NewNop(),
		workflow.WithRecorder(h.recorder),
		workflow.WithNotifier(h.notifier),
		workflow.WithClock(h.clock.Now),
	)
	h.exec.EnsureWatching(context.Background())
	t.Cleanup(h.exec.StopWatching)
	return h
}

func pending(id int64, key string) recordstore.Record {
	return recordstore.Record{ID: id, ExternalKey: key, Status: recordstore.StatusPending}
}

var errStoreDown = errors.New("store down")
