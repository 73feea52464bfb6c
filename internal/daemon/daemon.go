package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"nfewatch/internal/config"
	"nfewatch/internal/journal"
	"nfewatch/internal/logging"
	"nfewatch/internal/monitor"
	"nfewatch/internal/notifications"
	"nfewatch/internal/periodic"
	"nfewatch/internal/recordstore"
	"nfewatch/internal/services"
	"nfewatch/internal/workflow"
)

// ErrNotRunning is returned by controls that need a started daemon.
var ErrNotRunning = errors.New("daemon not running")

const (
	drainPollInterval    = 100 * time.Millisecond
	journalPruneInterval = 24 * time.Hour
)

// RecordStore is the record store surface the facade needs.
type RecordStore interface {
	recordstore.Store
	Connected() bool
	InsertTestRecord(ctx context.Context, req recordstore.TestRecordRequest) (recordstore.Record, error)
	Stats(ctx context.Context) (recordstore.Stats, error)
}

// Dependencies groups the components a Daemon coordinates. Journal may be nil.
type Dependencies struct {
	Store     RecordStore
	Executor  *workflow.Executor
	Scheduler *monitor.Scheduler
	Journal   *journal.Store
	Notifier  notifications.Service
	LogPath   string
}

// Daemon owns the process lifecycle and serves as the management facade.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     RecordStore
	exec      *workflow.Executor
	scheduler *monitor.Scheduler
	journal   *journal.Store
	notifier  notifications.Service
	logPath   string

	lockPath string
	lock     *flock.Flock
	api      *apiServer
	pruner   *periodic.Task

	running atomic.Bool
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	PID            int
	LockFilePath   string
	JournalPath    string
	LogPath        string
	Watching       bool
	Monitor        monitor.Stats
	StoreURL       string
	StoreConnected bool
	OutcomeCounts  map[journal.Kind]int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, deps Dependencies) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Executor == nil || deps.Scheduler == nil {
		return nil, errors.New("daemon requires config, record store, executor, and scheduler")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     deps.Store,
		exec:      deps.Executor,
		scheduler: deps.Scheduler,
		journal:   deps.Journal,
		notifier:  notifier,
		logPath:   deps.LogPath,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	if d.journal != nil && cfg.Journal.RetentionDays > 0 {
		d.pruner = periodic.New(journalPruneInterval, d.pruneJournal, periodic.Immediate())
	}
	return d, nil
}

// Start acquires the daemon lock, starts the HTTP API and begins polling.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another nfewatch daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	d.mu.Lock()
	d.ctx, d.cancel = runCtx, cancel
	d.mu.Unlock()
	d.running.Store(true)
	if d.pruner != nil {
		d.pruner.Start(runCtx)
	}
	d.exec.EnsureWatching(runCtx)
	d.scheduler.Start(runCtx)
	d.logger.Info("nfewatch daemon started",
		logging.String("lock", d.lockPath),
		logging.String("source_dir", d.cfg.Paths.SourceDir),
		logging.String("entity_base_dir", d.cfg.Paths.EntityBaseDir),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Shutdown stops polling and the processed-file watch, waits up to the
// configured shutdown timeout for the check and scan in progress to finish,
// then stops the daemon. It returns the number of tasks still running when it
// gave up.
func (d *Daemon) Shutdown(ctx context.Context) int {
	if !d.running.Load() {
		return 0
	}
	d.scheduler.Stop()
	d.exec.StopWatching()

	drainCtx, cancel := context.WithTimeout(ctx, d.cfg.ShutdownTimeout())
	defer cancel()
	if n := d.exec.RunningTaskCount(); n > 0 {
		d.logger.Info("waiting for running tasks", logging.Int("running_tasks", n))
	}
	drainErr := d.scheduler.Wait(drainCtx)
	if drainErr == nil {
		drainErr = d.exec.WaitWatching(drainCtx)
	}
	remaining := d.exec.RunningTaskCount()
	if remaining > 0 && drainErr == nil {
		ticker := time.NewTicker(drainPollInterval)
	wait:
		for remaining > 0 {
			select {
			case <-drainCtx.Done():
				break wait
			case <-ticker.C:
				remaining = d.exec.RunningTaskCount()
			}
		}
		ticker.Stop()
	}
	if drainErr != nil && remaining == 0 {
		logging.WarnWithContext(d.logger, "shutdown timeout reached; cancelling in-flight check", "shutdown_timeout",
			logging.Duration("shutdown_timeout", d.cfg.ShutdownTimeout()),
			logging.String(logging.FieldErrorHint, "check record store latency"),
			logging.String(logging.FieldImpact, "records fetched by the interrupted check run again on the next start"),
		)
	}
	if remaining > 0 {
		logging.WarnWithContext(d.logger, "shutdown timeout reached; cancelling running tasks", "shutdown_timeout",
			logging.Int("running_tasks", remaining),
			logging.Duration("shutdown_timeout", d.cfg.ShutdownTimeout()),
			logging.String(logging.FieldErrorHint, "raise monitor.shutdown_timeout_ms if tasks need longer"),
			logging.String(logging.FieldImpact, "interrupted records stay pending and run again on the next start"),
		)
	}
	d.Stop()
	return remaining
}

// Stop cancels background work immediately and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.scheduler.Stop()
	d.exec.StopWatching()
	if d.pruner != nil {
		d.pruner.Stop()
	}

	d.mu.Lock()
	cancel := d.cancel
	d.ctx, d.cancel = nil, nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("nfewatch daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.journal != nil {
		return d.journal.Close()
	}
	return nil
}

// Running reports whether the daemon is started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress returns the bound HTTP API address, or "" when disabled.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		LockFilePath:   d.lockPath,
		LogPath:        d.logPath,
		Watching:       d.exec.Watching(),
		Monitor:        d.scheduler.Stats(),
		StoreURL:       d.cfg.Store.BaseURL,
		StoreConnected: d.store.Connected(),
	}
	if d.journal != nil {
		status.JournalPath = d.journal.Path()
		counts, err := d.journal.Counts(ctx)
		if err != nil {
			d.logger.Warn("failed to read outcome counts", logging.Error(err))
		} else {
			status.OutcomeCounts = counts
		}
	}
	return status
}

// StartMonitor starts polling. It returns false when already polling.
func (d *Daemon) StartMonitor() (bool, error) {
	ctx, err := d.runContext()
	if err != nil {
		return false, err
	}
	return d.scheduler.Start(ctx), nil
}

// StopMonitor stops polling. It returns false when polling was already off.
func (d *Daemon) StopMonitor() (bool, error) {
	if !d.running.Load() {
		return false, ErrNotRunning
	}
	return d.scheduler.Stop(), nil
}

// RestartMonitor stops polling, waits the restart delay, and starts again.
func (d *Daemon) RestartMonitor() error {
	ctx, err := d.runContext()
	if err != nil {
		return err
	}
	return d.scheduler.Restart(ctx)
}

// UpdateInterval changes the polling period after range validation.
func (d *Daemon) UpdateInterval(ms int) error {
	if err := config.ValidateCheckInterval(ms); err != nil {
		return services.Wrap(services.ErrValidation, "daemon", "update interval", err.Error(), nil)
	}
	d.scheduler.UpdateInterval(time.Duration(ms) * time.Millisecond)
	return nil
}

// InsertTestRecord asks the store to create a pending diagnostic record. An
// empty key lets the store generate one.
func (d *Daemon) InsertTestRecord(ctx context.Context, key string) (recordstore.Record, error) {
	key = strings.TrimSpace(key)
	if key != "" {
		if _, err := workflow.DeriveSubIdentifier(key); err != nil {
			return recordstore.Record{}, err
		}
	}
	rec, err := d.store.InsertTestRecord(ctx, recordstore.TestRecordRequest{ExternalKey: key})
	if err != nil {
		return recordstore.Record{}, err
	}
	d.logger.Info("test record inserted",
		logging.Int64(logging.FieldRecordID, rec.ID),
		logging.String(logging.FieldExternalKey, rec.ExternalKey),
	)
	return rec, nil
}

// RunningTasks lists executor runs in progress.
func (d *Daemon) RunningTasks() []workflow.RunningTask {
	return d.exec.RunningTasks()
}

// WaitingFiles lists awaited processed artifacts.
func (d *Daemon) WaitingFiles() []workflow.WatchEntry {
	return d.exec.WaitingFiles()
}

// TimedOutFiles lists watch entries recently dropped after the processing timeout.
func (d *Daemon) TimedOutFiles() []workflow.WatchEntry {
	return d.exec.TimedOut()
}

// RecentOutcomes returns journaled outcomes, newest first.
func (d *Daemon) RecentOutcomes(ctx context.Context, limit int, kinds ...journal.Kind) ([]journal.Outcome, error) {
	if d.journal == nil {
		return nil, nil
	}
	return d.journal.Recent(ctx, limit, kinds...)
}

// StoreStats returns record counts from the store.
func (d *Daemon) StoreStats(ctx context.Context) (recordstore.Stats, error) {
	return d.store.Stats(ctx)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func (d *Daemon) runContext() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil, ErrNotRunning
	}
	return d.ctx, nil
}

func (d *Daemon) pruneJournal(ctx context.Context) {
	retention := d.cfg.Journal.RetentionDays
	removed, err := d.journal.Prune(ctx, time.Now().AddDate(0, 0, -retention))
	if err != nil {
		logging.WarnWithContext(d.logger, "journal prune failed", "journal_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state directory permissions"),
			logging.String(logging.FieldImpact, "old outcomes kept until the next prune"),
		)
		return
	}
	if removed > 0 {
		d.logger.Info("pruned journal outcomes",
			logging.Int64("removed", removed),
			logging.Int("retention_days", retention),
			logging.String(logging.FieldEventType, "journal_pruned"),
		)
	}
}
