package workflow

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// RunningTask describes an executor run in progress.
type RunningTask struct {
	ID          string    `json:"id"`
	RecordID    int64     `json:"record_id"`
	ExternalKey string    `json:"external_key"`
	StartedAt   time.Time `json:"started_at"`
	Attempt     int       `json:"attempt"`
}

type taskTracker struct {
	mu    sync.Mutex
	tasks map[string]RunningTask
}

func newTaskTracker() *taskTracker {
	return &taskTracker{tasks: make(map[string]RunningTask)}
}

func (t *taskTracker) add(recordID int64, key string, now time.Time) string {
	id := strconv.FormatInt(recordID, 10) + "-" + strconv.FormatInt(now.UnixMilli(), 10)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks[id] = RunningTask{ID: id, RecordID: recordID, ExternalKey: key, StartedAt: now, Attempt: 1}
	return id
}

func (t *taskTracker) setAttempt(id string, attempt int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if task, ok := t.tasks[id]; ok {
		task.Attempt = attempt
		t.tasks[id] = task
	}
}

func (t *taskTracker) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tasks, id)
}

func (t *taskTracker) list() []RunningTask {
	t.mu.Lock()
	out := make([]RunningTask, 0, len(t.tasks))
	for _, task := range t.tasks {
		out = append(out, task)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (t *taskTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}
