package workflow

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"nfewatch/internal/config"
	"nfewatch/internal/fileutil"
	"nfewatch/internal/journal"
	"nfewatch/internal/logging"
	"nfewatch/internal/notifications"
	"nfewatch/internal/periodic"
	"nfewatch/internal/recordstore"
	"nfewatch/internal/services"
)

// OutcomeRecorder persists terminal outcomes. *journal.Store satisfies it.
type OutcomeRecorder interface {
	Append(ctx context.Context, outcome journal.Outcome) (int64, error)
}

// Result is the outcome of one ExecuteTask call.
type Result struct {
	Success  bool   `json:"success"`
	RecordID int64  `json:"record_id"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts"`
	// Awaiting is set when completion was deferred to the processed-file watch.
	Awaiting bool `json:"awaiting,omitempty"`
	// AlreadyWatching is set when the record was already relocated by an
	// earlier run and is still waiting for its processed artifact.
	AlreadyWatching bool `json:"already_watching,omitempty"`
}

type stepResult struct {
	awaiting        bool
	alreadyWatching bool
}

// Executor runs the per-record workflow: derive the entity folder, relocate
// the artifact, register a watch entry, and later complete the record once
// the processed artifact is authorized.
type Executor struct {
	store    recordstore.Store
	logger   *slog.Logger
	recorder OutcomeRecorder
	notifier notifications.Service
	now      func() time.Time

	sourceDir         string
	baseDir           string
	processedSubdir   string
	maxAttempts       int
	retryDelay        time.Duration
	processingTimeout time.Duration

	registry *Registry
	tasks    *taskTracker
	watch    *periodic.Task

	watchMu  sync.Mutex
	watchCtx context.Context

	retryMu  sync.Mutex
	retries  map[int64]int
	reported map[int64]reportedFailure
}

// reportedFailure is the last terminal failure journaled and announced for a
// record. A pending record that keeps failing the same way is reported once.
type reportedFailure struct {
	key  string
	kind journal.Kind
}

// ExecutorOption configures optional Executor collaborators.
type ExecutorOption func(*Executor)

// WithRecorder journals terminal outcomes.
func WithRecorder(recorder OutcomeRecorder) ExecutorOption {
	return func(e *Executor) {
		e.recorder = recorder
	}
}

// WithNotifier publishes outcome notifications.
func WithNotifier(notifier notifications.Service) ExecutorOption {
	return func(e *Executor) {
		if notifier != nil {
			e.notifier = notifier
		}
	}
}

// WithClock overrides the time source used for registration and timeouts.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor constructs an executor from configuration.
func NewExecutor(cfg *config.Config, store recordstore.Store, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:             store,
		logger:            logging.NewComponentLogger(logger, "workflow"),
		notifier:          notifications.NewService(cfg),
		now:               time.Now,
		sourceDir:         cfg.Paths.SourceDir,
		baseDir:           cfg.Paths.EntityBaseDir,
		processedSubdir:   cfg.Paths.ProcessedSubdir,
		maxAttempts:       cfg.Workflow.RetryAttempts,
		retryDelay:        cfg.RetryDelay(),
		processingTimeout: cfg.ProcessingTimeout(),
		registry:          NewRegistry(),
		tasks:             newTaskTracker(),
		retries:           make(map[int64]int),
		reported:          make(map[int64]reportedFailure),
	}
	if e.maxAttempts < 1 {
		e.maxAttempts = 1
	}
	for _, opt := range opts {
		opt(e)
	}
	e.watch = periodic.New(cfg.ScanInterval(), e.CheckProcessedFiles)
	return e
}

// ExecuteTask runs the workflow for one record, retrying failures up to the
// configured attempt ceiling with a fixed delay between attempts. Malformed
// keys fail immediately. The returned Result never carries a Go error; the
// failure text is in Result.Error.
func (e *Executor) ExecuteTask(ctx context.Context, record recordstore.Record) Result {
	correlationID := uuid.NewString()
	ctx = services.WithRecordID(ctx, record.ID)
	ctx = services.WithRequestID(ctx, correlationID)
	logger := logging.WithContext(ctx, e.logger).With(logging.String(logging.FieldExternalKey, record.ExternalKey))

	taskID := e.tasks.add(record.ID, record.ExternalKey, e.now())
	defer e.tasks.remove(taskID)

	for attempt := 1; ; attempt++ {
		e.tasks.setAttempt(taskID, attempt)
		step, err := e.processRecord(ctx, logger, record)
		if err == nil {
			e.clearRetries(record.ID)
			e.clearReported(record.ID)
			return Result{
				Success:         true,
				RecordID:        record.ID,
				Attempts:        attempt,
				Awaiting:        step.awaiting,
				AlreadyWatching: step.alreadyWatching,
			}
		}

		var malformed *MalformedKeyError
		if errors.As(err, &malformed) {
			e.clearRetries(record.ID)
			logging.ErrorWithContext(logger, "record has malformed access key; skipping", "record_malformed_key",
				logging.Error(err),
				logging.String(logging.FieldErrorKind, services.ErrorKind(err)),
				logging.String(logging.FieldErrorHint, "fix the access key in the record store"),
				logging.Alert("malformed_key"),
			)
			if e.markReported(record, journal.KindMalformed) {
				e.recordOutcome(ctx, logger, journal.Outcome{
					RecordID: record.ID, ExternalKey: record.ExternalKey, Kind: journal.KindMalformed,
					Attempts: attempt, Message: err.Error(), CorrelationID: correlationID,
				})
				e.publish(ctx, logger, notifications.EventMalformedKey, notifications.Payload{
					"recordID": record.ID, "externalKey": record.ExternalKey, "error": malformed.Reason,
				})
			}
			return Result{RecordID: record.ID, Error: err.Error(), Attempts: attempt}
		}

		failures := e.bumpRetries(record.ID)
		if failures >= e.maxAttempts {
			e.clearRetries(record.ID)
			logging.ErrorWithContext(logger, "record failed; retries exhausted", "record_retries_exhausted",
				logging.Int("attempts", attempt),
				logging.Error(err),
				logging.String(logging.FieldErrorKind, services.ErrorKind(err)),
				logging.String(logging.FieldErrorHint, hintFor(err)),
				logging.Alert("retries_exhausted"),
			)
			if e.markReported(record, journal.KindFailed) {
				e.recordOutcome(ctx, logger, journal.Outcome{
					RecordID: record.ID, ExternalKey: record.ExternalKey, Kind: journal.KindFailed,
					Attempts: attempt, Message: err.Error(), CorrelationID: correlationID,
				})
				e.publish(ctx, logger, notifications.EventRetriesExhausted, notifications.Payload{
					"recordID": record.ID, "externalKey": record.ExternalKey, "attempts": attempt, "error": err.Error(),
				})
			}
			return Result{RecordID: record.ID, Error: err.Error(), Attempts: attempt}
		}

		logging.WarnWithContext(logger, "record attempt failed; retrying", "record_retry",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", e.maxAttempts),
			logging.Duration("retry_delay", e.retryDelay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hintFor(err)),
			logging.String(logging.FieldImpact, "record stays pending until an attempt succeeds"),
		)
		if err := sleep(ctx, e.retryDelay); err != nil {
			e.clearRetries(record.ID)
			logger.Info("record retry abandoned; shutting down", logging.Int("attempt", attempt))
			return Result{RecordID: record.ID, Error: err.Error(), Attempts: attempt}
		}
	}
}

func (e *Executor) processRecord(ctx context.Context, logger *slog.Logger, record recordstore.Record) (stepResult, error) {
	switch record.Status {
	case recordstore.StatusPending:
		return e.handlePending(services.WithStage(ctx, "relocate"), logger, record)
	default:
		logger.Info("record not pending; nothing to do", logging.String("status", string(record.Status)))
		return stepResult{}, nil
	}
}

func (e *Executor) handlePending(ctx context.Context, logger *slog.Logger, record recordstore.Record) (stepResult, error) {
	if entry, ok := e.registry.Get(record.ID); ok && entry.ExternalKey == record.ExternalKey {
		e.resumeWatching()
		logger.Debug("record already awaiting processed artifact", logging.String("expected_path", entry.ExpectedPath))
		return stepResult{awaiting: true, alreadyWatching: true}, nil
	}

	sub, err := DeriveSubIdentifier(record.ExternalKey)
	if err != nil {
		return stepResult{}, err
	}

	entityDir := filepath.Join(e.baseDir, sub)
	expected, err := e.relocate(record.ExternalKey, entityDir)
	if err != nil {
		return stepResult{}, err
	}

	e.registry.Register(WatchEntry{
		RecordID:      record.ID,
		ExternalKey:   record.ExternalKey,
		SubIdentifier: sub,
		ExpectedPath:  expected,
		RegisteredAt:  e.now(),
	})
	e.resumeWatching()
	logging.WithContext(ctx, logger).Info("artifact relocated; awaiting processed artifact",
		logging.String("entity_dir", entityDir),
		logging.String("expected_path", expected),
		logging.String(logging.FieldEventType, "artifact_relocated"),
	)
	return stepResult{awaiting: true}, nil
}

// relocate moves <source>/<key>.xml into entityDir, creating entityDir and its
// processed subfolder, and returns the processed artifact path to watch.
func (e *Executor) relocate(key, entityDir string) (string, error) {
	name := key + ".xml"
	src := filepath.Join(e.sourceDir, name)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &ArtifactMissingError{Path: src}
		}
		return "", services.Wrap(services.ErrTransient, "relocate", "stat source", src, err)
	}

	processedDir := filepath.Join(entityDir, e.processedSubdir)
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "relocate", "create entity folder", processedDir, err)
	}

	dst := filepath.Join(entityDir, name)
	if err := fileutil.MoveFile(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &ArtifactMissingError{Path: src}
		}
		return "", services.Wrap(services.ErrTransient, "relocate", "move artifact", dst, err)
	}
	return filepath.Join(processedDir, name), nil
}

// RunningTasks lists executor runs in progress.
func (e *Executor) RunningTasks() []RunningTask {
	return e.tasks.list()
}

// RunningTaskCount returns the number of executor runs in progress.
func (e *Executor) RunningTaskCount() int {
	return e.tasks.count()
}

// WaitingFiles lists watch entries ordered by registration time.
func (e *Executor) WaitingFiles() []WatchEntry {
	return e.registry.Snapshot()
}

// TimedOut lists recently expired watch entries.
func (e *Executor) TimedOut() []WatchEntry {
	return e.registry.TimedOut()
}

// Registry exposes the processing registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

func (e *Executor) bumpRetries(id int64) int {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	e.retries[id]++
	return e.retries[id]
}

func (e *Executor) clearRetries(id int64) {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	delete(e.retries, id)
}

// markReported notes a terminal failure for record and reports whether it is
// new. The same kind for the same key is reported once until the record
// succeeds.
func (e *Executor) markReported(record recordstore.Record, kind journal.Kind) bool {
	next := reportedFailure{key: record.ExternalKey, kind: kind}
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	if e.reported[record.ID] == next {
		return false
	}
	e.reported[record.ID] = next
	return true
}

func (e *Executor) clearReported(id int64) {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	delete(e.reported, id)
}

func (e *Executor) recordOutcome(ctx context.Context, logger *slog.Logger, outcome journal.Outcome) {
	if e.recorder == nil {
		return
	}
	outcome.CreatedAt = e.now()
	if _, err := e.recorder.Append(context.WithoutCancel(ctx), outcome); err != nil {
		logging.WarnWithContext(logger, "journal write failed; outcome only in logs", "journal_write_failed",
			logging.String("outcome", string(outcome.Kind)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.state_dir permissions and disk space"),
			logging.String(logging.FieldImpact, "outcome missing from status history"),
		)
	}
}

func (e *Executor) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := e.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "operator was not alerted"),
		)
	}
}

func hintFor(err error) string {
	var missing *ArtifactMissingError
	switch {
	case errors.As(err, &missing):
		return "confirm the artifact was delivered to paths.source_dir"
	case errors.Is(err, services.ErrTransient):
		return "check filesystem permissions and free space"
	default:
		return "check logs for details"
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
