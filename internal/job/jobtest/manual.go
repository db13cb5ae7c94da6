// Package jobtest provides deterministic scheduling and worker pools for
// tests: time only moves when the test ticks it, and queued task bodies only
// run when the test drains the executor.
package jobtest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"jobsched/internal/job"
)

// Epoch is the start time of a fresh ManualTimers clock.
var Epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// ManualTimers is a job.Timers driven by Tick.
type ManualTimers struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	entries map[uint64]*entry
}

type entry struct {
	seq    uint64
	next   time.Time
	period time.Duration
	fn     func()
	t      *manualTimer
}

func NewManualTimers() *ManualTimers {
	return &ManualTimers{now: Epoch, entries: map[uint64]*entry{}}
}

func (m *ManualTimers) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualTimers) Schedule(initial, period time.Duration, fn func()) job.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	e := &entry{seq: m.seq, next: m.now.Add(initial), period: period, fn: fn}
	e.t = &manualTimer{m: m, seq: e.seq}
	m.entries[e.seq] = e
	return e.t
}

// Len returns the number of armed timers.
func (m *ManualTimers) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Tick advances the clock by d, firing every callback due on the way in time
// order. A callback is rescheduled one period after the time it fired.
func (m *ManualTimers) Tick(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	for m.fireNext(target) {
	}
	m.mu.Lock()
	if m.now.Before(target) {
		m.now = target
	}
	m.mu.Unlock()
}

func (m *ManualTimers) fireNext(target time.Time) bool {
	m.mu.Lock()
	var due *entry
	for _, e := range m.entries {
		if e.next.After(target) {
			continue
		}
		if due == nil || e.next.Before(due.next) || (e.next.Equal(due.next) && e.seq < due.seq) {
			due = e
		}
	}
	if due == nil {
		m.mu.Unlock()
		return false
	}
	if due.next.After(m.now) {
		m.now = due.next
	}
	due.next = m.now.Add(due.period)
	if due.period <= 0 {
		delete(m.entries, due.seq)
	}
	fn := due.fn
	m.mu.Unlock()

	fn()
	return true
}

type manualTimer struct {
	m   *ManualTimers
	seq uint64
}

func (t *manualTimer) Cancel() {
	t.m.mu.Lock()
	delete(t.m.entries, t.seq)
	t.m.mu.Unlock()
}

func (t *manualTimer) Next() time.Time {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if e, ok := t.m.entries[t.seq]; ok {
		return e.next
	}
	return time.Time{}
}

// ErrRejected is returned by Submit once the executor is closed or full.
var ErrRejected = errors.New("jobtest: submission rejected")

// ManualExecutor is a job.Executor that queues submissions until RunNext or
// RunUntilIdle is called.
type ManualExecutor struct {
	mu       sync.Mutex
	queue    []queued
	capacity int
	closed   bool
}

type queued struct {
	name string
	fn   func(ctx context.Context)
}

// NewManualExecutor returns an executor with an unbounded queue.
func NewManualExecutor() *ManualExecutor { return &ManualExecutor{} }

// NewBoundedExecutor returns an executor rejecting submissions beyond capacity.
func NewBoundedExecutor(capacity int) *ManualExecutor {
	return &ManualExecutor{capacity: capacity}
}

func (x *ManualExecutor) Submit(name string, fn func(ctx context.Context)) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed || (x.capacity > 0 && len(x.queue) >= x.capacity) {
		return ErrRejected
	}
	x.queue = append(x.queue, queued{name: name, fn: fn})
	return nil
}

// Close makes every further Submit fail.
func (x *ManualExecutor) Close() {
	x.mu.Lock()
	x.closed = true
	x.mu.Unlock()
}

func (x *ManualExecutor) Pending() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.queue)
}

// PendingNames returns the names of queued submissions, sorted.
func (x *ManualExecutor) PendingNames() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]string, 0, len(x.queue))
	for _, q := range x.queue {
		out = append(out, q.name)
	}
	sort.Strings(out)
	return out
}

// RunNext runs the oldest queued submission and reports whether there was one.
func (x *ManualExecutor) RunNext() bool {
	x.mu.Lock()
	if len(x.queue) == 0 {
		x.mu.Unlock()
		return false
	}
	q := x.queue[0]
	x.queue = x.queue[1:]
	x.mu.Unlock()

	q.fn(context.Background())
	return true
}

// RunUntilIdle runs queued submissions, including the ones they enqueue,
// and returns how many ran.
func (x *ManualExecutor) RunUntilIdle() int {
	n := 0
	for x.RunNext() {
		n++
	}
	return n
}

// Harness ticks timers in fixed steps and drains the executor after every
// step, so each tick's dispatched runs complete before the next tick.
type Harness struct {
	Timers   *ManualTimers
	Executor *ManualExecutor
	Step     time.Duration
}

func NewHarness() *Harness {
	return &Harness{
		Timers:   NewManualTimers(),
		Executor: NewManualExecutor(),
		Step:     500 * time.Millisecond,
	}
}

// Advance moves simulated time forward by d.
func (h *Harness) Advance(d time.Duration) {
	for d > 0 {
		step := h.Step
		if step <= 0 || step > d {
			step = d
		}
		h.Timers.Tick(step)
		h.Executor.RunUntilIdle()
		d -= step
	}
}

// Seconds is Advance(n * time.Second).
func (h *Harness) Seconds(n int) { h.Advance(time.Duration(n) * time.Second) }
