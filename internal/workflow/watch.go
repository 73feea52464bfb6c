package workflow

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"nfewatch/internal/journal"
	"nfewatch/internal/logging"
	"nfewatch/internal/notifications"
	"nfewatch/internal/services"
)

// EnsureWatching starts the processed-file scan loop under ctx if it is not
// running. ctx becomes the loop's lifetime: relocations that register a watch
// entry restart the loop with it until StopWatching is called.
func (e *Executor) EnsureWatching(ctx context.Context) {
	e.watchMu.Lock()
	e.watchCtx = ctx
	e.watchMu.Unlock()
	e.startWatch(ctx)
}

// StopWatching stops the scan loop. Entries stay registered and are picked
// up again by the next EnsureWatching.
func (e *Executor) StopWatching() {
	e.watchMu.Lock()
	e.watchCtx = nil
	e.watchMu.Unlock()
	if e.watch.Stop() {
		e.logger.Info("processed-file watch stopped", logging.String(logging.FieldEventType, "watch_stopped"))
	}
}

// resumeWatching restarts the scan loop with the context handed to
// EnsureWatching. It does nothing before EnsureWatching or after StopWatching.
func (e *Executor) resumeWatching() {
	e.watchMu.Lock()
	ctx := e.watchCtx
	e.watchMu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	e.startWatch(ctx)
}

func (e *Executor) startWatch(ctx context.Context) {
	if e.watch.Start(ctx) {
		e.logger.Info("processed-file watch started",
			logging.Duration("scan_interval", e.watch.Interval()),
			logging.String(logging.FieldEventType, "watch_started"),
		)
	}
}

// Watching reports whether the scan loop is active.
func (e *Executor) Watching() bool {
	return e.watch.Running()
}

// WaitWatching blocks until a stopped scan loop has finished its last pass.
func (e *Executor) WaitWatching(ctx context.Context) error {
	return e.watch.Wait(ctx)
}

// CheckProcessedFiles runs one scan pass over every watch entry.
func (e *Executor) CheckProcessedFiles(ctx context.Context) {
	for _, entry := range e.registry.Snapshot() {
		if ctx.Err() != nil {
			return
		}
		e.checkEntry(ctx, entry)
	}
}

func (e *Executor) checkEntry(ctx context.Context, entry WatchEntry) {
	ctx = services.WithRecordID(ctx, entry.RecordID)
	ctx = services.WithStage(ctx, "watch")
	logger := logging.WithContext(ctx, e.logger).With(
		logging.String(logging.FieldExternalKey, entry.ExternalKey),
		logging.String("expected_path", entry.ExpectedPath),
	)

	content, err := os.ReadFile(entry.ExpectedPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		waited := e.now().Sub(entry.RegisteredAt)
		if waited <= e.processingTimeout {
			return
		}
		if !e.registry.Expire(entry) {
			return
		}
		logging.WarnWithContext(logger, "processed artifact never appeared; watch dropped", "watch_timeout",
			logging.Duration("waited", waited),
			logging.Duration("processing_timeout", e.processingTimeout),
			logging.String(logging.FieldErrorHint, "check the downstream processor for this entity folder"),
			logging.String(logging.FieldImpact, "record stays pending and is not retried automatically"),
			logging.Alert("watch_timeout"),
		)
		e.recordOutcome(ctx, logger, journal.Outcome{
			RecordID: entry.RecordID, ExternalKey: entry.ExternalKey, Kind: journal.KindTimedOut,
			Message: "processed artifact not found", ArtifactPath: entry.ExpectedPath,
		})
		e.publish(ctx, logger, notifications.EventWatchTimeout, notifications.Payload{
			"recordID": entry.RecordID, "externalKey": entry.ExternalKey,
			"path": entry.ExpectedPath, "waited": waited.Round(time.Second).String(),
		})
		return
	default:
		logging.WarnWithContext(logger, "processed artifact unreadable; will retry", "watch_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the processed folder"),
			logging.String(logging.FieldImpact, "completion delayed until the file can be read"),
		)
		return
	}

	if !IsAuthorized(content) {
		if n := e.registry.noteRejection(entry.RecordID); n == 1 {
			logging.WarnWithContext(logger, "processed artifact lacks authorization marker", "artifact_not_authorized",
				logging.String(logging.FieldErrorHint, "inspect the processed artifact status"),
				logging.String(logging.FieldImpact, "record stays pending while the artifact is unauthorized"),
			)
		} else {
			logger.Debug("processed artifact still unauthorized", logging.Int("checks", n))
		}
		return
	}

	if err := e.store.MarkCompleted(ctx, entry.RecordID); err != nil {
		logging.WarnWithContext(logger, "mark completed failed; will retry next scan", "mark_completed_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.ErrorKind(err)),
			logging.String(logging.FieldErrorHint, "check record store connectivity"),
			logging.String(logging.FieldImpact, "record stays pending until the store accepts the update"),
		)
		return
	}
	if !e.registry.Remove(entry) {
		return
	}
	logger.Info("record completed from authorized artifact",
		logging.Duration("elapsed", e.now().Sub(entry.RegisteredAt)),
		logging.String(logging.FieldEventType, "record_completed"),
	)
	e.recordOutcome(ctx, logger, journal.Outcome{
		RecordID: entry.RecordID, ExternalKey: entry.ExternalKey, Kind: journal.KindCompleted,
		Message: "authorized", ArtifactPath: entry.ExpectedPath,
	})
	e.publish(ctx, logger, notifications.EventRecordCompleted, notifications.Payload{
		"recordID": entry.RecordID, "externalKey": entry.ExternalKey, "path": entry.ExpectedPath,
	})
}
