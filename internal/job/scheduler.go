package job

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	logx "jobsched/pkg/logx"
)

// Scheduler is the registry and execution driver of jobs.
//
// Ticks are fired by the Timers (scheduling pool) and task bodies run on an
// Executor (worker pool). Per key, at most one run is in flight; a tick that
// finds a run in flight is skipped rather than queued.
type Scheduler struct {
	log      logx.Logger
	timers   Timers
	pool     Executor
	selector PoolSelector
	decorate Decorator
	listener Listener

	paused  atomic.Bool
	records sync.Map // Key -> *record
}

type Option func(*Scheduler)

func WithLogger(log logx.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithDecorators installs the decorator chain applied to every task at
// schedule time.
func WithDecorators(decorators ...Decorator) Option {
	return func(s *Scheduler) { s.decorate = Chain(decorators...) }
}

func WithListener(l Listener) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.listener = l
		}
	}
}

func WithPoolSelector(sel PoolSelector) Option {
	return func(s *Scheduler) { s.selector = sel }
}

// WithPaused creates the scheduler in the paused state.
func WithPaused(paused bool) Option {
	return func(s *Scheduler) { s.paused.Store(paused) }
}

func New(timers Timers, pool Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		timers:   timers,
		pool:     pool,
		listener: NopListener{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "scheduler"))
	return s
}

// Schedule registers j with schedule sch, replacing any existing registration
// for the same key. A replaced registration stops ticking; a run it already
// started finishes on its own. Counters start from zero.
func (s *Scheduler) Schedule(j Job, sch Schedule) {
	key := j.Key()
	task := j.Task()
	if s.decorate != nil {
		task = s.decorate(j, task)
	}
	pool := s.pool
	if s.selector != nil {
		if p := s.selector(s.pool, j); p != nil {
			pool = p
		}
	}
	r := &record{key: key, job: j, schedule: sch, task: task, pool: pool}

	if prev, loaded := s.records.Swap(key, r); loaded {
		prev.(*record).cancel()
		s.log.Info("job rescheduled", logx.Stringer("job", key), logx.Stringer("schedule", sch))
	} else {
		s.log.Info("job scheduled", logx.Stringer("job", key), logx.Stringer("schedule", sch))
	}

	if !sch.IsNone() {
		r.arm(s.timers.Schedule(sch.InitialDelay(), sch.Period(), func() { s.tick(r) }))
	}
}

// Unschedule removes the job. A run queued but not started is abandoned; a
// running body completes without affecting the registry.
func (s *Scheduler) Unschedule(key Key) bool {
	v, ok := s.records.LoadAndDelete(key)
	if !ok {
		return false
	}
	r := v.(*record)
	r.cancel()
	r.abandonQueued()
	s.log.Info("job unscheduled", logx.Stringer("job", key))
	return true
}

// FireImmediately starts a run now. It fails with ErrNotScheduled for an
// unknown key. It returns a nil Run without error when nothing was started:
// the job is disabled, invalid (and then purged), paused, already running or
// rejected by its worker pool.
func (s *Scheduler) FireImmediately(key Key) (*Run, error) {
	r, ok := s.load(key)
	if !ok {
		return nil, notScheduled(key)
	}
	if !r.job.Valid() {
		s.purge(r)
		return nil, nil
	}
	if reason, skip := s.gate(r); skip {
		s.listener.OnSkip(key, reason)
		return nil, nil
	}
	return s.dispatch(r), nil
}

// Pause stops every job from starting new runs. Runs in flight continue.
func (s *Scheduler) Pause() {
	if !s.paused.Swap(true) {
		s.log.Info("scheduler paused")
	}
}

func (s *Scheduler) Resume() {
	if s.paused.Swap(false) {
		s.log.Info("scheduler resumed")
	}
}

func (s *Scheduler) Paused() bool { return s.paused.Load() }

// PauseJob pauses one job: ticks are skipped and FireImmediately starts
// nothing until ResumeJob. This holds for None jobs too.
func (s *Scheduler) PauseJob(key Key) error {
	r, ok := s.load(key)
	if !ok {
		return notScheduled(key)
	}
	if !r.paused.Swap(true) {
		s.log.Info("job paused", logx.Stringer("job", key))
	}
	return nil
}

func (s *Scheduler) ResumeJob(key Key) error {
	r, ok := s.load(key)
	if !ok {
		return notScheduled(key)
	}
	if r.paused.Swap(false) {
		s.log.Info("job resumed", logx.Stringer("job", key))
	}
	return nil
}

// Stop cancels the timer of the job but keeps its record queryable. A run
// queued but not started is abandoned so the job reports as not running.
func (s *Scheduler) Stop(key Key) bool {
	r, ok := s.load(key)
	if !ok {
		return false
	}
	r.cancel()
	r.abandonQueued()
	s.log.Info("job stopped", logx.Stringer("job", key))
	return true
}

// Shutdown cancels all timers and empties the registry.
func (s *Scheduler) Shutdown() {
	n := 0
	s.records.Range(func(k, v any) bool {
		if _, ok := s.records.LoadAndDelete(k); ok {
			r := v.(*record)
			r.cancel()
			r.abandonQueued()
			n++
		}
		return true
	})
	s.log.Info("scheduler shut down", logx.Int("jobs", n))
}

func (s *Scheduler) JobStatus(key Key) (Status, bool) {
	r, ok := s.load(key)
	if !ok {
		return Status{}, false
	}
	return s.status(r), true
}

// JobStatuses returns the status of every registered job, ordered by key.
func (s *Scheduler) JobStatuses() []Status {
	var out []Status
	s.records.Range(func(_, v any) bool {
		out = append(out, s.status(v.(*record)))
		return true
	})
	slices.SortFunc(out, func(a, b Status) int { return a.Key.Compare(b.Key) })
	return out
}

func (s *Scheduler) AllJobKeys() []Key {
	return s.keys(func(Key) bool { return true })
}

func (s *Scheduler) JobKeysOfCategory(c Category) []Key {
	return s.keys(func(k Key) bool { return k.Category() == c })
}

func (s *Scheduler) keys(match func(Key) bool) []Key {
	var out []Key
	s.records.Range(func(k, _ any) bool {
		if key := k.(Key); match(key) {
			out = append(out, key)
		}
		return true
	})
	slices.SortFunc(out, Key.Compare)
	return out
}

func (s *Scheduler) load(key Key) (*record, bool) {
	v, ok := s.records.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*record), true
}

// tick is the timer callback of a record.
func (s *Scheduler) tick(r *record) {
	if cur, ok := s.load(r.key); !ok || cur != r {
		// Dangling timer of a replaced or removed record.
		r.cancel()
		return
	}
	if !r.job.Valid() {
		s.purge(r)
		return
	}
	if reason, skip := s.gate(r); skip {
		s.log.Trace("tick skipped", logx.Stringer("job", r.key), logx.String("reason", string(reason)))
		s.listener.OnSkip(r.key, reason)
		return
	}
	s.dispatch(r)
}

func (s *Scheduler) gate(r *record) (SkipReason, bool) {
	switch {
	case s.paused.Load():
		return SkipSchedulerPaused, true
	case r.paused.Load():
		return SkipJobPaused, true
	case r.job.Disabled():
		return SkipDisabled, true
	}
	return "", false
}

// purge removes an invalid job, unless the record was already replaced.
func (s *Scheduler) purge(r *record) {
	if !s.records.CompareAndDelete(r.key, r) {
		return
	}
	r.cancel()
	r.abandonQueued()
	s.log.Info("invalid job unscheduled", logx.Stringer("job", r.key))
}

// dispatch claims the single-flight marker and hands the run to the pool.
func (s *Scheduler) dispatch(r *record) *Run {
	run := newRun(r.key)
	if !r.current.CompareAndSwap(nil, run) {
		s.listener.OnSkip(r.key, SkipRunning)
		return nil
	}
	err := r.pool.Submit(r.key.String(), func(ctx context.Context) { s.execute(ctx, r, run) })
	if err != nil {
		run.abandon()
		r.current.CompareAndSwap(run, nil)
		run.finish(err)
		s.log.Warn("job run rejected by pool", logx.Stringer("job", r.key), logx.Err(err))
		s.listener.OnSkip(r.key, SkipRejected)
		return nil
	}
	s.log.Debug("job run dispatched", logx.Stringer("job", r.key), logx.String("run", run.ID()))
	return run
}

// execute runs on a worker. The marker is cleared before Done is closed so a
// caller woken by Done can fire the job again.
func (s *Scheduler) execute(ctx context.Context, r *record, run *Run) {
	if !run.start() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	started := s.timers.Now()
	r.noteStart(started)
	s.listener.OnStart(r.key)

	err := r.invoke(WithKey(ctx, r.key))
	took := s.timers.Now().Sub(started)
	r.noteResult(took, err)

	r.current.CompareAndSwap(run, nil)
	run.finish(err)

	if err != nil {
		var pe *PanicError
		if errors.As(err, &pe) {
			s.log.Error("job panicked", logx.Stringer("job", r.key), logx.Any("panic", pe.Value), logx.Stack(pe.Stack))
		}
		s.listener.OnFailure(r.key, err, took)
		return
	}
	s.listener.OnSuccess(r.key, took)
}

func (s *Scheduler) status(r *record) Status {
	valid := r.job.Valid()
	disabled := r.job.Disabled()

	r.mu.Lock()
	timer := r.timer
	stopped := r.stopped
	st := Status{
		Key:             r.key,
		Schedule:        r.schedule,
		LastRunAt:       r.lastRunAt,
		LastRunDuration: r.lastRunDur,
		LastError:       r.lastErr,
		LastErrorCount:  r.lastErrCount,
	}
	r.mu.Unlock()

	none := r.schedule.IsNone()
	if d, ok := r.job.(Describer); ok {
		st.Description = d.Description()
	}
	st.Running = r.current.Load() != nil
	st.Paused = r.paused.Load() || s.paused.Load()
	st.Disabled = disabled
	st.Valid = valid
	st.Stopped = !none && stopped
	st.RunCount = r.runCount.Load()
	if valid && !disabled && !st.Paused && !none && !stopped && timer != nil {
		st.NextRunAt = timer.Next()
	}
	return st
}
