package job

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// record is the execution state of one scheduled job. The registry holds one
// record per key; a reschedule replaces the record instead of mutating it.
//
// Lifecycle of the single-flight marker:
//
//	idle (current == nil) -> claimed (run queued on a pool) -> started -> idle
//	                                \-> abandoned (Stop/Unschedule) -> idle
type record struct {
	key      Key
	job      Job
	schedule Schedule
	task     Task
	pool     Executor

	current atomic.Pointer[Run]
	paused  atomic.Bool

	runCount atomic.Int64

	mu           sync.Mutex
	timer        Timer
	stopped      bool
	lastRunAt    time.Time
	lastRunDur   time.Duration
	lastErr      string
	lastErrCount int64
}

// arm attaches the timer of the record. A record that was already stopped
// (raced by a concurrent reschedule or unschedule) cancels it right away.
func (r *record) arm(t Timer) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		t.Cancel()
		return
	}
	r.timer = t
	r.mu.Unlock()
}

// cancel stops future ticks. It reports whether the record was still armed.
func (r *record) cancel() bool {
	r.mu.Lock()
	wasStopped := r.stopped
	r.stopped = true
	t := r.timer
	r.timer = nil
	r.mu.Unlock()
	if t != nil {
		t.Cancel()
	}
	return !wasStopped
}

// abandonQueued drops a claimed run whose body has not started yet.
func (r *record) abandonQueued() bool {
	run := r.current.Load()
	if run == nil || !run.abandon() {
		return false
	}
	r.current.CompareAndSwap(run, nil)
	run.finish(ErrAbandoned)
	return true
}

func (r *record) noteStart(at time.Time) {
	r.runCount.Add(1)
	r.mu.Lock()
	r.lastRunAt = at
	r.mu.Unlock()
}

func (r *record) noteResult(took time.Duration, err error) {
	r.mu.Lock()
	r.lastRunDur = took
	if err != nil {
		r.lastErr = err.Error()
		r.lastErrCount++
	} else {
		r.lastErr = ""
		r.lastErrCount = 0
	}
	r.mu.Unlock()
}

// invoke runs the decorated task, converting a panic into a failure.
func (r *record) invoke(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: string(debug.Stack())}
		}
	}()
	if r.task == nil {
		return fmt.Errorf("job %s has no task", r.key)
	}
	return r.task(ctx)
}
