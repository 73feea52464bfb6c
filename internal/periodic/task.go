package periodic

import (
	"context"
	"sync"
	"time"
)

// Option configures a Task.
type Option func(*Task)

// Immediate runs the function once as soon as the task starts, before the
// first interval elapses.
func Immediate() Option {
	return func(t *Task) {
		t.immediate = true
	}
}

// Task repeatedly invokes a function on a fixed interval until stopped.
// Invocations never overlap: a run that outlasts the interval delays the next
// one instead of stacking up. Stop prevents future runs but never interrupts
// the run in progress.
type Task struct {
	fn        func(context.Context)
	immediate bool

	mu       sync.Mutex
	interval time.Duration
	ticker   *time.Ticker
	stop     chan struct{}
	done     chan struct{}
}

// New creates a stopped task.
func New(interval time.Duration, fn func(context.Context), opts ...Option) *Task {
	if interval <= 0 {
		interval = time.Second
	}
	t := &Task{fn: fn, interval: interval}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the loop. It returns false when the task is already running.
// The loop also ends when ctx is cancelled.
func (t *Task) Start(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return false
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	ticker := time.NewTicker(t.interval)
	t.stop, t.done, t.ticker = stop, done, ticker
	go t.loop(ctx, ticker, stop, done)
	return true
}

// Stop ends the loop after any in-progress run. It returns false when the task
// was not running. Use Wait to block until the loop has exited.
func (t *Task) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop == nil {
		return false
	}
	close(t.stop)
	t.ticker.Stop()
	t.stop, t.ticker = nil, nil
	return true
}

// Wait blocks until the most recently started loop has exited or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the loop is active.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

// Interval returns the current period.
func (t *Task) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Reset changes the period. A running loop is re-armed so the next run
// happens one new interval from now; an in-progress run is not affected.
func (t *Task) Reset(interval time.Duration) {
	if interval <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = interval
	if t.ticker != nil {
		t.ticker.Reset(interval)
	}
}

func (t *Task) loop(ctx context.Context, ticker *time.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer t.release(stop)

	if t.immediate {
		t.fn(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			t.fn(ctx)
		}
	}
}

// release clears state when the loop exits on its own (context cancelled).
func (t *Task) release(stop chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop == stop {
		t.ticker.Stop()
		t.stop, t.ticker = nil, nil
	}
}
