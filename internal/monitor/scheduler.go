package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"nfewatch/internal/config"
	"nfewatch/internal/logging"
	"nfewatch/internal/periodic"
	"nfewatch/internal/recordstore"
	"nfewatch/internal/services"
	"nfewatch/internal/workflow"
)

// Executor is the workflow surface the scheduler drives.
type Executor interface {
	ExecuteTask(ctx context.Context, record recordstore.Record) workflow.Result
	RunningTaskCount() int
	WaitingFiles() []workflow.WatchEntry
}

// Connector is implemented by stores that need an explicit connection step.
// When the store is disconnected each tick tries to connect before fetching.
type Connector interface {
	Connect(ctx context.Context) error
	Connected() bool
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Running      bool          `json:"running"`
	LastCheck    time.Time     `json:"last_check,omitzero"`
	Processed    int64         `json:"processed"`
	Interval     time.Duration `json:"interval"`
	RunningTasks int           `json:"running_tasks"`
	WaitingFiles int           `json:"waiting_files"`
	LastError    string        `json:"last_error,omitempty"`
}

// Scheduler polls the record store and executes pending records.
type Scheduler struct {
	store        recordstore.Store
	exec         Executor
	logger       *slog.Logger
	fetchLimit   int
	restartDelay time.Duration
	now          func() time.Time

	task   *periodic.Task
	tickMu sync.Mutex

	mu        sync.Mutex
	lastCheck time.Time
	processed int64
	lastErr   error
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source for LastCheck.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a stopped scheduler.
func New(cfg *config.Config, store recordstore.Store, exec Executor, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:        store,
		exec:         exec,
		logger:       logging.NewComponentLogger(logger, "monitor"),
		fetchLimit:   cfg.Store.FetchLimit,
		restartDelay: cfg.RestartDelay(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.task = periodic.New(cfg.CheckInterval(), func(ctx context.Context) {
		_, _ = s.Tick(ctx)
	}, periodic.Immediate())
	return s
}

// Start begins polling: one check immediately, then one per interval. It
// returns false when the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	if s.task.Running() {
		logging.WarnWithContext(s.logger, "monitor already running; start ignored", "monitor_start_ignored",
			logging.String(logging.FieldErrorHint, "use restart to re-arm the monitor"),
			logging.String(logging.FieldImpact, "none"),
		)
		return false
	}
	s.mu.Lock()
	s.lastCheck = s.now()
	s.mu.Unlock()
	if !s.task.Start(ctx) {
		return false
	}
	s.logger.Info("monitor started",
		logging.Duration("interval", s.task.Interval()),
		logging.Int("fetch_limit", s.fetchLimit),
		logging.String(logging.FieldEventType, "monitor_started"),
	)
	return true
}

// Stop prevents further checks. A check in progress runs to completion. It
// returns false when the scheduler was not running.
func (s *Scheduler) Stop() bool {
	if !s.task.Stop() {
		logging.WarnWithContext(s.logger, "monitor not running; stop ignored", "monitor_stop_ignored",
			logging.String(logging.FieldErrorHint, "start the monitor first"),
			logging.String(logging.FieldImpact, "none"),
		)
		return false
	}
	s.logger.Info("monitor stopped", logging.String(logging.FieldEventType, "monitor_stopped"))
	return true
}

// Restart stops the scheduler, waits the restart delay and starts it again.
func (s *Scheduler) Restart(ctx context.Context) error {
	s.Stop()
	timer := time.NewTimer(s.restartDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	s.Start(ctx)
	return nil
}

// UpdateInterval changes the polling period. A running scheduler is re-armed
// so the next check happens one new interval from now.
func (s *Scheduler) UpdateInterval(interval time.Duration) {
	s.task.Reset(interval)
	s.logger.Info("monitor interval updated",
		logging.Duration("interval", interval),
		logging.String(logging.FieldEventType, "monitor_interval_updated"),
	)
}

// Running reports whether polling is active.
func (s *Scheduler) Running() bool {
	return s.task.Running()
}

// Wait blocks until a stopped scheduler's last check has finished.
func (s *Scheduler) Wait(ctx context.Context) error {
	return s.task.Wait(ctx)
}

// Stats returns the current scheduler view.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	stats := Stats{
		LastCheck: s.lastCheck,
		Processed: s.processed,
	}
	if s.lastErr != nil {
		stats.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()
	stats.Running = s.task.Running()
	stats.Interval = s.task.Interval()
	stats.RunningTasks = s.exec.RunningTaskCount()
	stats.WaitingFiles = len(s.exec.WaitingFiles())
	return stats
}

// Tick runs one check: fetch pending records and execute them in order. A
// fetch failure abandons the tick; a failed record does not stop the batch.
// It returns how many records were newly processed.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, s.logger)
	s.mu.Lock()
	s.lastCheck = s.now()
	s.mu.Unlock()

	if err := s.ensureConnected(ctx); err != nil {
		s.setLastError(err)
		logging.WarnWithContext(logger, "record store unreachable; skipping check", "store_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check store.base_url and that the record store is running"),
			logging.String(logging.FieldImpact, "pending records wait for the next check"),
		)
		return 0, err
	}

	records, err := s.store.FetchPending(ctx, s.fetchLimit)
	if err != nil {
		s.setLastError(err)
		logging.ErrorWithContext(logger, "fetch pending records failed", "store_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.ErrorKind(err)),
			logging.String(logging.FieldErrorHint, "check record store health"),
		)
		return 0, err
	}
	s.setLastError(nil)
	if len(records) == 0 {
		logger.Debug("no pending records")
		return 0, nil
	}
	logger.Info("pending records fetched", logging.Int("count", len(records)))

	processed := 0
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		if s.processOne(ctx, logger, record) {
			processed++
		}
	}
	if processed > 0 {
		s.mu.Lock()
		s.processed += int64(processed)
		s.mu.Unlock()
	}
	return processed, nil
}

func (s *Scheduler) processOne(ctx context.Context, logger *slog.Logger, record recordstore.Record) bool {
	result := s.exec.ExecuteTask(ctx, record)
	recLogger := logger.With(
		logging.Int64(logging.FieldRecordID, record.ID),
		logging.String(logging.FieldExternalKey, record.ExternalKey),
	)
	if !result.Success {
		logging.WarnWithContext(recLogger, "record run failed; continuing batch", "record_failed",
			logging.String("error", result.Error),
			logging.Int("attempts", result.Attempts),
			logging.String(logging.FieldErrorHint, "see the workflow log lines for this record"),
			logging.String(logging.FieldImpact, "record stays pending and is retried on a later check"),
		)
		return false
	}
	if !result.Awaiting {
		if err := s.store.MarkCompleted(ctx, record.ID); err != nil {
			logging.WarnWithContext(recLogger, "mark completed failed", "mark_completed_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check record store connectivity"),
				logging.String(logging.FieldImpact, "record stays pending and is retried on a later check"),
			)
			return false
		}
	}
	if result.AlreadyWatching {
		return false
	}
	recLogger.Info("record processed",
		logging.Bool("awaiting", result.Awaiting),
		logging.Int("attempts", result.Attempts),
		logging.String(logging.FieldEventType, "record_processed"),
	)
	return true
}

func (s *Scheduler) ensureConnected(ctx context.Context) error {
	conn, ok := s.store.(Connector)
	if !ok || conn.Connected() {
		return nil
	}
	return conn.Connect(ctx)
}

func (s *Scheduler) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
