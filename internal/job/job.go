package job

import (
	"context"
	"time"
)

// Task is the unit of work a job performs. A returned error (or a panic) is
// recorded as a failure of that run; it never stops future ticks.
type Task func(ctx context.Context) error

// Job is the capability a schedulable unit must provide.
//
// Valid reports whether the subject of the job still exists; an invalid job is
// unscheduled the next time it is about to fire. Disabled is a job-level pause
// driven by the job's own data, independent of Scheduler.PauseJob.
type Job interface {
	Key() Key
	Task() Task
	Disabled() bool
	Valid() bool
}

// Describer is implemented by jobs that carry a human readable description.
type Describer interface {
	Description() string
}

// Decorator wraps a job's raw task with cross-cutting behavior. Decorators are
// applied once, at schedule time.
type Decorator func(j Job, task Task) Task

// Chain composes decorators; the first decorator is the outermost wrapper.
func Chain(decorators ...Decorator) Decorator {
	return func(j Job, task Task) Task {
		for i := len(decorators) - 1; i >= 0; i-- {
			if decorators[i] != nil {
				task = decorators[i](j, task)
			}
		}
		return task
	}
}

// SkipReason says why a tick or an on-demand fire did not start a run.
type SkipReason string

const (
	SkipSchedulerPaused SkipReason = "scheduler_paused"
	SkipJobPaused       SkipReason = "job_paused"
	SkipDisabled        SkipReason = "disabled"
	SkipRunning         SkipReason = "already_running"
	SkipRejected        SkipReason = "rejected"
)

// Listener observes executions. The scheduler never consults it; calls happen
// on the goroutine that produced the event and must not block for long.
type Listener interface {
	OnStart(key Key)
	OnSuccess(key Key, took time.Duration)
	OnFailure(key Key, err error, took time.Duration)
	OnSkip(key Key, reason SkipReason)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) OnStart(Key)                         {}
func (NopListener) OnSuccess(Key, time.Duration)        {}
func (NopListener) OnFailure(Key, error, time.Duration) {}
func (NopListener) OnSkip(Key, SkipReason)              {}

// Listeners fans events out to several listeners, in order.
type Listeners []Listener

func (ls Listeners) OnStart(key Key) {
	for _, l := range ls {
		l.OnStart(key)
	}
}

func (ls Listeners) OnSuccess(key Key, took time.Duration) {
	for _, l := range ls {
		l.OnSuccess(key, took)
	}
}

func (ls Listeners) OnFailure(key Key, err error, took time.Duration) {
	for _, l := range ls {
		l.OnFailure(key, err, took)
	}
}

func (ls Listeners) OnSkip(key Key, reason SkipReason) {
	for _, l := range ls {
		l.OnSkip(key, reason)
	}
}

// Executor is a worker pool. Submit must not block: it either accepts fn for
// asynchronous execution or returns an error.
type Executor interface {
	Submit(name string, fn func(ctx context.Context)) error
}

// PoolSelector picks the worker pool a job runs on.
type PoolSelector func(def Executor, j Job) Executor

// Timers is the scheduling pool. It owns the clock and fires lightweight tick
// callbacks; it never runs task bodies.
type Timers interface {
	// Schedule calls fn after initial, then period after every invocation.
	Schedule(initial, period time.Duration, fn func()) Timer
	Now() time.Time
}

// Timer is a handle to an armed periodic callback.
type Timer interface {
	Cancel()
	// Next returns the next fire time, or the zero time when unknown or cancelled.
	Next() time.Time
}
