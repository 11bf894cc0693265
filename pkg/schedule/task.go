package schedule

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is a cancellable repeating task. The callback runs once per tick of
// the underlying clock until Stop is called. Ticks are never concurrent: a
// slow callback delays the next tick rather than overlapping with it.
type Task struct {
	name     string
	interval time.Duration
	fn       func()
	logger   *slog.Logger

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// Repeat starts a repeating task that invokes fn every interval on the given
// clock. The returned Task is already running.
func Repeat(name string, interval time.Duration, clock Clock, fn func()) (*Task, error) {
	if name == "" {
		return nil, fmt.Errorf("task name cannot be empty")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("task %q: interval must be positive, got %v", name, interval)
	}
	if clock == nil {
		clock = NewRealClock()
	}
	if fn == nil {
		return nil, fmt.Errorf("task %q: callback cannot be nil", name)
	}

	t := &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   slog.Default().With("component", "schedule", "task", name),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	// The ticker is created before the loop goroutine starts so that a
	// caller advancing a fake clock immediately after Repeat returns is
	// guaranteed to reach it.
	ticker := clock.NewTicker(interval)

	go t.loop(ticker)
	return t, nil
}

// Stop cancels the task and waits for the task loop to exit. After Stop
// returns, no further callback invocations occur. Stop is idempotent.
func (t *Task) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
	<-t.doneCh
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.name
}

// Interval returns the tick interval.
func (t *Task) Interval() time.Duration {
	return t.interval
}

func (t *Task) loop(ticker Ticker) {
	defer close(t.doneCh)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.Chan():
			t.runOnce()
		}
	}
}

// runOnce invokes the callback, containing panics so a misbehaving tick does
// not kill the loop.
func (t *Task) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("task panicked", "panic", r)
		}
	}()
	t.fn()
}
