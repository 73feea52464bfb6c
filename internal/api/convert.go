package api

import (
	"time"

	"nfewatch/internal/journal"
	"nfewatch/internal/monitor"
	"nfewatch/internal/recordstore"
	"nfewatch/internal/workflow"
)

// FromMonitorStats converts scheduler stats to the API representation.
func FromMonitorStats(stats monitor.Stats) MonitorStatus {
	return MonitorStatus{
		Running:      stats.Running,
		LastCheck:    formatTime(stats.LastCheck),
		Processed:    stats.Processed,
		IntervalMS:   stats.Interval.Milliseconds(),
		RunningTasks: stats.RunningTasks,
		WaitingFiles: stats.WaitingFiles,
		LastError:    stats.LastError,
	}
}

// FromRunningTasks converts executor runs, computing elapsed time against now.
func FromRunningTasks(tasks []workflow.RunningTask, now time.Time) []RunningTask {
	out := make([]RunningTask, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, RunningTask{
			ID:          task.ID,
			RecordID:    task.RecordID,
			ExternalKey: task.ExternalKey,
			StartedAt:   formatTime(task.StartedAt),
			ElapsedMS:   now.Sub(task.StartedAt).Milliseconds(),
			Attempt:     task.Attempt,
		})
	}
	return out
}

// FromWatchEntries converts watch entries, computing wait time against now.
func FromWatchEntries(entries []workflow.WatchEntry, now time.Time) []WaitingFile {
	out := make([]WaitingFile, 0, len(entries))
	for _, entry := range entries {
		out = append(out, WaitingFile{
			RecordID:      entry.RecordID,
			ExternalKey:   entry.ExternalKey,
			SubIdentifier: entry.SubIdentifier,
			ExpectedPath:  entry.ExpectedPath,
			RegisteredAt:  formatTime(entry.RegisteredAt),
			WaitingMS:     now.Sub(entry.RegisteredAt).Milliseconds(),
			Rejections:    entry.Rejections,
		})
	}
	return out
}

// FromOutcomes converts journal rows.
func FromOutcomes(outcomes []journal.Outcome) []Outcome {
	out := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, Outcome{
			ID:            o.ID,
			RecordID:      o.RecordID,
			ExternalKey:   o.ExternalKey,
			Kind:          string(o.Kind),
			Attempts:      o.Attempts,
			Message:       o.Message,
			ArtifactPath:  o.ArtifactPath,
			CorrelationID: o.CorrelationID,
			CreatedAt:     formatTime(o.CreatedAt),
		})
	}
	return out
}

// FromOutcomeCounts converts per-kind counts, keeping zero entries for every
// known kind.
func FromOutcomeCounts(counts map[journal.Kind]int) map[string]int {
	out := make(map[string]int, len(journal.Kinds))
	for _, kind := range journal.Kinds {
		out[string(kind)] = counts[kind]
	}
	return out
}

// FromRecord converts a record store entry.
func FromRecord(rec recordstore.Record) Record {
	return Record{
		ID:          rec.ID,
		ExternalKey: rec.ExternalKey,
		Status:      string(rec.Status),
		CreatedAt:   formatTime(rec.CreatedAt),
		UpdatedAt:   formatTime(rec.UpdatedAt),
	}
}

// FromStoreStats converts record store counts.
func FromStoreStats(stats recordstore.Stats) StoreStats {
	return StoreStats{
		Total:     stats.Total,
		Pending:   stats.Pending,
		Completed: stats.Completed,
		Cancelled: stats.Cancelled,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
