package job_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jobsched/internal/job"
	"jobsched/internal/job/jobtest"
)

var testCategory = job.Category("test")

type testJob struct {
	key         job.Key
	description string

	runs      atomic.Int64
	successes atomic.Int64
	fail      atomic.Bool
	panics    atomic.Bool
	disabled  atomic.Bool
	invalid   atomic.Bool

	mu      sync.Mutex
	ctxKeys []job.Key
}

func newTestJob(id string) *testJob {
	return &testJob{key: testCategory.Type("counter").Key(id), description: "counter " + id}
}

func (j *testJob) Key() job.Key        { return j.key }
func (j *testJob) Disabled() bool      { return j.disabled.Load() }
func (j *testJob) Valid() bool         { return !j.invalid.Load() }
func (j *testJob) Description() string { return j.description }

func (j *testJob) Task() job.Task {
	return func(ctx context.Context) error {
		j.runs.Add(1)
		if k, ok := job.KeyFromContext(ctx); ok {
			j.mu.Lock()
			j.ctxKeys = append(j.ctxKeys, k)
			j.mu.Unlock()
		}
		if j.panics.Load() {
			panic("boom")
		}
		if j.fail.Load() {
			return errors.New("Task failure")
		}
		j.successes.Add(1)
		return nil
	}
}

type event struct {
	kind   string
	key    job.Key
	reason job.SkipReason
}

type recordingListener struct {
	mu     sync.Mutex
	events []event
}

func (l *recordingListener) add(e event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *recordingListener) OnStart(key job.Key) { l.add(event{kind: "start", key: key}) }
func (l *recordingListener) OnSuccess(key job.Key, _ time.Duration) {
	l.add(event{kind: "success", key: key})
}
func (l *recordingListener) OnFailure(key job.Key, _ error, _ time.Duration) {
	l.add(event{kind: "failure", key: key})
}
func (l *recordingListener) OnSkip(key job.Key, reason job.SkipReason) {
	l.add(event{kind: "skip", key: key, reason: reason})
}

func (l *recordingListener) kinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		if e.kind == "skip" {
			out = append(out, "skip:"+string(e.reason))
			continue
		}
		out = append(out, e.kind)
	}
	return out
}

func newScheduler(t *testing.T, opts ...job.Option) (*job.Scheduler, *jobtest.Harness) {
	t.Helper()
	h := jobtest.NewHarness()
	return job.New(h.Timers, h.Executor, opts...), h
}

func mustStatus(t *testing.T, s *job.Scheduler, key job.Key) job.Status {
	t.Helper()
	st, ok := s.JobStatus(key)
	if !ok {
		t.Fatalf("no status for %s", key)
	}
	return st
}

func TestScheduleEverySecond(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t)
	j := newTestJob("1")

	s.Schedule(j, job.EverySecond)
	h.Seconds(3)

	if got := j.runs.Load(); got != 4 {
		t.Fatalf("runs = %d, want 4", got)
	}
	st := mustStatus(t, s, j.Key())
	if st.RunCount != 4 {
		t.Fatalf("RunCount = %d, want 4", st.RunCount)
	}
	if st.Running || st.Paused || st.Disabled || !st.Valid || st.Stopped {
		t.Fatalf("unexpected flags: %+v", st)
	}
	if st.Description != "counter 1" {
		t.Fatalf("Description = %q", st.Description)
	}
	if want := jobtest.Epoch.Add(4 * time.Second); !st.NextRunAt.Equal(want) {
		t.Fatalf("NextRunAt = %v, want %v", st.NextRunAt, want)
	}
	if want := jobtest.Epoch.Add(3 * time.Second); !st.LastRunAt.Equal(want) {
		t.Fatalf("LastRunAt = %v, want %v", st.LastRunAt, want)
	}
}

func TestScheduleWithInitialDelay(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t)
	j := newTestJob("1")

	s.Schedule(j, job.EverySecond.After(time.Second))
	if st := mustStatus(t, s, j.Key()); !st.NextRunAt.Equal(jobtest.Epoch.Add(time.Second)) {
		t.Fatalf("NextRunAt = %v", st.NextRunAt)
	}
	h.Seconds(3)

	if got := j.runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestSchedulerPausedAtStartup(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t, job.WithPaused(true))
	j := newTestJob("1")

	s.Schedule(j, job.EverySecond)
	h.Seconds(3)
	if got := j.runs.Load(); got != 0 {
		t.Fatalf("runs while paused = %d, want 0", got)
	}
	st := mustStatus(t, s, j.Key())
	if !st.Paused || !st.NextRunAt.IsZero() {
		t.Fatalf("paused status = %+v", st)
	}

	s.Resume()
	if s.Paused() {
		t.Fatal("scheduler still paused")
	}
	h.Seconds(2)
	if got := j.runs.Load(); got != 2 {
		t.Fatalf("runs after resume = %d, want 2", got)
	}
}

func TestReschedule(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t)
	j := newTestJob("1")

	s.Schedule(j, job.EverySecond)
	h.Seconds(2)
	if got := j.runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}

	s.Schedule(j, job.EveryMinute.After(time.Minute))
	h.Seconds(3)
	if got := j.runs.Load(); got != 3 {
		t.Fatalf("runs after reschedule = %d, want 3", got)
	}
	st := mustStatus(t, s, j.Key())
	if st.Schedule != job.EveryMinute.After(time.Minute) {
		t.Fatalf("Schedule = %v", st.Schedule)
	}
	if st.RunCount != 0 {
		t.Fatalf("RunCount = %d, want reset to 0", st.RunCount)
	}
	if h.Timers.Len() != 1 {
		t.Fatalf("armed timers = %d, want 1", h.Timers.Len())
	}
}

func TestFailuresAreRecordedAndCleared(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t)
	j := newTestJob("1")
	j.fail.Store(true)

	s.Schedule(j, job.EverySecond)
	h.Seconds(3)

	st := mustStatus(t, s, j.Key())
	if st.LastErrorCount != 4 {
		t.Fatalf("LastErrorCount = %d, want 4", st.LastErrorCount)
	}
	if st.LastError != "Task failure" {
		t.Fatalf("LastError = %q", st.LastError)
	}

	j.fail.Store(false)
	h.Seconds(2)

	st = mustStatus(t, s, j.Key())
	if st.LastErrorCount != 0 || st.LastError != "" {
		t.Fatalf("error not cleared: count=%d msg=%q", st.LastErrorCount, st.LastError)
	}
	if got := j.successes.Load(); got != 2 {
		t.Fatalf("successes = %d, want 2", got)
	}
	if st.RunCount != 6 {
		t.Fatalf("RunCount = %d, want 6", st.RunCount)
	}
}

func TestPanicIsRecordedAsFailure(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t)
	j := newTestJob("1")
	j.panics.Store(true)

	s.Schedule(j, job.EverySecond)
	h.Seconds(1)

	st := mustStatus(t, s, j.Key())
	if st.LastErrorCount != 2 {
		t.Fatalf("LastErrorCount = %d, want 2", st.LastErrorCount)
	}
	if !strings.HasPrefix(st.LastError, "panic: boom") {
		t.Fatalf("LastError = %q", st.LastError)
	}
	if st.Running {
		t.Fatal("marker must be released after a panic")
	}
}

func TestInvalidJobIsPurgedOnNextTick(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t)
	j := newTestJob("1")

	s.Schedule(j, job.EverySecond)
	h.Seconds(1)
	if got := j.runs.Load(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}

	j.invalid.Store(true)
	st := mustStatus(t, s, j.Key())
	if st.Valid || !st.NextRunAt.IsZero() {
		t.Fatalf("invalid status = %+v", st)
	}

	h.Seconds(1)
	if _, ok := s.JobStatus(j.Key()); ok {
		t.Fatal("invalid job still scheduled")
	}
	if got := j.runs.Load(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
	if h.Timers.Len() != 0 {
		t.Fatalf("armed timers = %d, want 0", h.Timers.Len())
	}
}

func TestStopAbandonsQueuedRun(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t)
	j := newTestJob("1")

	s.Schedule(j, job.EverySecond)
	h.Timers.Tick(500 * time.Millisecond)
	if st := mustStatus(t, s, j.Key()); !st.Running {
		t.Fatal("queued run must report running")
	}

	if !s.Stop(j.Key()) {
		t.Fatal("Stop returned false")
	}
	st := mustStatus(t, s, j.Key())
	if st.Running {
		t.Fatal("stopped job still running")
	}
	if !st.Stopped || !st.NextRunAt.IsZero() {
		t.Fatalf("stopped status = %+v", st)
	}

	h.Seconds(3)
	if got := j.runs.Load(); got != 0 {
		t.Fatalf("runs = %d, want 0", got)
	}
	if s.Stop(testCategory.Type("counter").Key("missing")) {
		t.Fatal("Stop of unknown key returned true")
	}
}

func TestStopNoneJobResolvesRun(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t)
	j := newTestJob("1")

	s.Schedule(j, job.None)
	run, err := s.FireImmediately(j.Key())
	if err != nil || run == nil {
		t.Fatalf("FireImmediately = %v, %v", run, err)
	}
	s.Stop(j.Key())

	select {
	case <-run.Done():
	default:
		t.Fatal("abandoned run not done")
	}
	if !errors.Is(run.Err(), job.ErrAbandoned) {
		t.Fatalf("Err = %v, want ErrAbandoned", run.Err())
	}
	h.Executor.RunUntilIdle()
	if got := j.runs.Load(); got != 0 {
		t.Fatalf("runs = %d, want 0", got)
	}
	if st := mustStatus(t, s, j.Key()); st.Stopped || st.Running {
		t.Fatalf("None job status = %+v", st)
	}
}

func TestUnscheduleQueuedRunNeverStarts(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t)
	j := newTestJob("1")

	s.Schedule(j, job.EverySecond.After(time.Hour))
	run, err := s.FireImmediately(j.Key())
	if err != nil || run == nil {
		t.Fatalf("FireImmediately = %v, %v", run, err)
	}
	if !s.Unschedule(j.Key()) {
		t.Fatal("Unschedule returned false")
	}
	h.Executor.RunUntilIdle()

	if got := j.runs.Load(); got != 0 {
		t.Fatalf("runs = %d, want 0", got)
	}
	if _, ok := s.JobStatus(j.Key()); ok {
		t.Fatal("job still registered")
	}
	if err := run.Wait(context.Background()); !errors.Is(err, job.ErrAbandoned) {
		t.Fatalf("Wait = %v, want ErrAbandoned", err)
	}
	if h.Timers.Len() != 0 {
		t.Fatalf("armed timers = %d, want 0", h.Timers.Len())
	}
	if s.Unschedule(j.Key()) {
		t.Fatal("second Unschedule returned true")
	}
}

func TestUnscheduleDoesNotInterruptStartedRun(t *testing.T) {
	t.Parallel()
	h := jobtest.NewHarness()
	var s *job.Scheduler
	var unscheduled bool
	j := newTestJob("1")
	s = job.New(h.Timers, h.Executor, job.WithDecorators(func(_ job.Job, next job.Task) job.Task {
		return func(ctx context.Context) error {
			unscheduled = s.Unschedule(j.Key())
			return next(ctx)
		}
	}))

	s.Schedule(j, job.None)
	run, _ := s.FireImmediately(j.Key())
	h.Executor.RunUntilIdle()

	if !unscheduled {
		t.Fatal("Unschedule from inside the run failed")
	}
	if got := j.runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
	if err := run.Err(); err != nil {
		t.Fatalf("run err = %v", err)
	}
}

func TestPauseJob(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t)
	j := newTestJob("1")

	s.Schedule(j, job.EverySecond)
	h.Seconds(1)

	if err := s.PauseJob(j.Key()); err != nil {
		t.Fatalf("PauseJob error: %v", err)
	}
	st := mustStatus(t, s, j.Key())
	if !st.Paused || !st.NextRunAt.IsZero() {
		t.Fatalf("paused status = %+v", st)
	}
	h.Seconds(2)
	if got := j.runs.Load(); got != 2 {
		t.Fatalf("runs while paused = %d, want 2", got)
	}
	if run, err := s.FireImmediately(j.Key()); run != nil || err != nil {
		t.Fatalf("FireImmediately on paused job = %v, %v", run, err)
	}

	if err := s.ResumeJob(j.Key()); err != nil {
		t.Fatalf("ResumeJob error: %v", err)
	}
	h.Seconds(1)
	if got := j.runs.Load(); got != 3 {
		t.Fatalf("runs after resume = %d, want 3", got)
	}

	missing := testCategory.Type("counter").Key("missing")
	if err := s.PauseJob(missing); !errors.Is(err, job.ErrNotScheduled) {
		t.Fatalf("PauseJob(missing) = %v", err)
	}
	if err := s.ResumeJob(missing); !errors.Is(err, job.ErrNotScheduled) {
		t.Fatalf("ResumeJob(missing) = %v", err)
	}
}

func TestPauseNoneJob(t *testing.T) {
	t.Parallel()
	s, _ := newScheduler(t)
	j := newTestJob("1")

	s.Schedule(j, job.None)
	if err := s.PauseJob(j.Key()); err != nil {
		t.Fatalf("PauseJob error: %v", err)
	}
	st := mustStatus(t, s, j.Key())
	if !st.Paused || !st.NextRunAt.IsZero() {
		t.Fatalf("status = %+v, want paused without next run", st)
	}
	if run, err := s.FireImmediately(j.Key()); run != nil || err != nil {
		t.Fatalf("FireImmediately on paused None job = %v, %v", run, err)
	}

	if err := s.ResumeJob(j.Key()); err != nil {
		t.Fatalf("ResumeJob error: %v", err)
	}
	if st := mustStatus(t, s, j.Key()); st.Paused {
		t.Fatal("None job still paused after resume")
	}
	if run, err := s.FireImmediately(j.Key()); run == nil || err != nil {
		t.Fatalf("FireImmediately after resume = %v, %v", run, err)
	}
}

func TestSchedulerPauseReportedForNoneJob(t *testing.T) {
	t.Parallel()
	s, _ := newScheduler(t, job.WithPaused(true))
	j := newTestJob("1")

	s.Schedule(j, job.None)
	if st := mustStatus(t, s, j.Key()); !st.Paused {
		t.Fatalf("status = %+v, want paused while the scheduler is paused", st)
	}
	if run, err := s.FireImmediately(j.Key()); run != nil || err != nil {
		t.Fatalf("FireImmediately while paused = %v, %v", run, err)
	}

	s.Resume()
	if st := mustStatus(t, s, j.Key()); st.Paused {
		t.Fatal("None job still reported paused after Resume")
	}
}

func TestFireImmediately(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t)
	j := newTestJob("1")

	s.Schedule(j, job.None)
	run, err := s.FireImmediately(j.Key())
	if err != nil || run == nil {
		t.Fatalf("FireImmediately = %v, %v", run, err)
	}
	if run.Key() != j.Key() || run.ID() == "" {
		t.Fatalf("run handle = %s %q", run.Key(), run.ID())
	}
	if st := mustStatus(t, s, j.Key()); !st.Running {
		t.Fatal("dispatched run must report running")
	}
	if second, err := s.FireImmediately(j.Key()); second != nil || err != nil {
		t.Fatalf("overlapping fire = %v, %v", second, err)
	}
	if run.Err() != nil {
		t.Fatal("Err must be nil before completion")
	}

	h.Executor.RunUntilIdle()
	if err := run.Wait(context.Background()); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if got := j.runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
	st := mustStatus(t, s, j.Key())
	if st.Running || st.RunCount != 1 || !st.NextRunAt.IsZero() {
		t.Fatalf("status = %+v", st)
	}

	again, err := s.FireImmediately(j.Key())
	if err != nil || again == nil {
		t.Fatalf("FireImmediately after completion = %v, %v", again, err)
	}
	if again.ID() == run.ID() {
		t.Fatal("run ids must be unique")
	}
}

func TestFireImmediatelyUnknownKey(t *testing.T) {
	t.Parallel()
	s, _ := newScheduler(t)
	key := testCategory.Type("counter").Key("missing")

	run, err := s.FireImmediately(key)
	if run != nil {
		t.Fatal("unexpected run")
	}
	if !errors.Is(err, job.ErrNotScheduled) {
		t.Fatalf("err = %v, want ErrNotScheduled", err)
	}
	var nse *job.NotScheduledError
	if !errors.As(err, &nse) || nse.Key != key {
		t.Fatalf("err = %#v", err)
	}
}

func TestFireImmediatelyGates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		setup  func(s *job.Scheduler, j *testJob)
		purged bool
	}{
		{name: "disabled", setup: func(_ *job.Scheduler, j *testJob) { j.disabled.Store(true) }},
		{name: "invalid", setup: func(_ *job.Scheduler, j *testJob) { j.invalid.Store(true) }, purged: true},
		{name: "scheduler paused", setup: func(s *job.Scheduler, _ *testJob) { s.Pause() }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, h := newScheduler(t)
			j := newTestJob("1")
			s.Schedule(j, job.EveryHour.After(time.Hour))
			tt.setup(s, j)

			run, err := s.FireImmediately(j.Key())
			if run != nil || err != nil {
				t.Fatalf("FireImmediately = %v, %v", run, err)
			}
			h.Executor.RunUntilIdle()
			if got := j.runs.Load(); got != 0 {
				t.Fatalf("runs = %d, want 0", got)
			}
			_, ok := s.JobStatus(j.Key())
			if ok == tt.purged {
				t.Fatalf("registered = %v, want %v", ok, !tt.purged)
			}
		})
	}
}

func TestDisabledJobSkipsTicks(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t)
	j := newTestJob("1")
	j.disabled.Store(true)

	s.Schedule(j, job.EverySecond)
	h.Seconds(2)
	if got := j.runs.Load(); got != 0 {
		t.Fatalf("runs = %d, want 0", got)
	}
	st := mustStatus(t, s, j.Key())
	if !st.Disabled || st.Paused || !st.NextRunAt.IsZero() {
		t.Fatalf("disabled status = %+v", st)
	}

	j.disabled.Store(false)
	h.Seconds(1)
	if got := j.runs.Load(); got != 1 {
		t.Fatalf("runs after enabling = %d, want 1", got)
	}
}

func TestPoolRejectionReleasesMarker(t *testing.T) {
	t.Parallel()
	l := &recordingListener{}
	s, h := newScheduler(t, job.WithListener(l))
	j := newTestJob("1")
	s.Schedule(j, job.None)

	h.Executor.Close()
	run, err := s.FireImmediately(j.Key())
	if run != nil || err != nil {
		t.Fatalf("FireImmediately = %v, %v", run, err)
	}
	if st := mustStatus(t, s, j.Key()); st.Running {
		t.Fatal("rejected run left the marker set")
	}
	if got := l.kinds(); !slices.Equal(got, []string{"skip:" + string(job.SkipRejected)}) {
		t.Fatalf("events = %v", got)
	}
}

func TestTickSkipsWhileRunning(t *testing.T) {
	t.Parallel()
	l := &recordingListener{}
	s, h := newScheduler(t, job.WithListener(l))
	j := newTestJob("1")

	s.Schedule(j, job.EverySecond)
	// Two ticks without draining the worker pool: the second finds the first in flight.
	h.Timers.Tick(1500 * time.Millisecond)
	if got := h.Executor.Pending(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
	h.Executor.RunUntilIdle()
	if got := j.runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
	want := []string{"skip:" + string(job.SkipRunning), "start", "success"}
	if got := l.kinds(); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestListenerEvents(t *testing.T) {
	t.Parallel()
	l := &recordingListener{}
	s, h := newScheduler(t, job.WithListener(l))
	j := newTestJob("1")

	s.Schedule(j, job.EverySecond)
	h.Advance(500 * time.Millisecond)
	j.fail.Store(true)
	h.Advance(500 * time.Millisecond)
	s.Pause()
	h.Seconds(1)

	want := []string{"start", "success", "start", "failure", "skip:" + string(job.SkipSchedulerPaused)}
	if got := l.kinds(); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestDecoratorsAndContextKey(t *testing.T) {
	t.Parallel()
	var decorated []job.Key
	deco := func(j job.Job, next job.Task) job.Task {
		decorated = append(decorated, j.Key())
		return next
	}
	s, h := newScheduler(t, job.WithDecorators(deco))
	j := newTestJob("1")

	s.Schedule(j, job.EverySecond)
	h.Seconds(1)

	if len(decorated) != 1 || decorated[0] != j.Key() {
		t.Fatalf("decorated = %v, want once at schedule time", decorated)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.ctxKeys) != 2 || j.ctxKeys[0] != j.Key() {
		t.Fatalf("context keys = %v", j.ctxKeys)
	}
}

func TestPoolSelector(t *testing.T) {
	t.Parallel()
	h := jobtest.NewHarness()
	slow := jobtest.NewManualExecutor()
	slowCat := job.Category("slow")
	s := job.New(h.Timers, h.Executor, job.WithPoolSelector(func(def job.Executor, j job.Job) job.Executor {
		if j.Key().Category() == slowCat {
			return slow
		}
		return def
	}))

	fast := newTestJob("fast")
	heavy := &testJob{key: slowCat.Type("counter").Key("heavy")}
	s.Schedule(fast, job.None)
	s.Schedule(heavy, job.None)
	if _, err := s.FireImmediately(fast.Key()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FireImmediately(heavy.Key()); err != nil {
		t.Fatal(err)
	}

	if got := h.Executor.PendingNames(); !slices.Equal(got, []string{fast.Key().String()}) {
		t.Fatalf("default pool = %v", got)
	}
	if got := slow.PendingNames(); !slices.Equal(got, []string{heavy.Key().String()}) {
		t.Fatalf("slow pool = %v", got)
	}
}

func TestJobKeysAndStatuses(t *testing.T) {
	t.Parallel()
	s, _ := newScheduler(t)
	other := job.Category("other")

	for _, id := range []string{"3", "1", "2"} {
		s.Schedule(newTestJob(id), job.None)
	}
	s.Schedule(&testJob{key: other.Type("x").Key("a")}, job.EveryHour)

	all := s.AllJobKeys()
	if len(all) != 4 {
		t.Fatalf("AllJobKeys = %v", all)
	}
	if all[0].Category() != other {
		t.Fatalf("keys not sorted: %v", all)
	}

	got := s.JobKeysOfCategory(testCategory)
	var ids []string
	for _, k := range got {
		ids = append(ids, k.ID)
	}
	if !slices.Equal(ids, []string{"1", "2", "3"}) {
		t.Fatalf("JobKeysOfCategory = %v", ids)
	}
	if keys := s.JobKeysOfCategory("nope"); len(keys) != 0 {
		t.Fatalf("unexpected keys %v", keys)
	}

	statuses := s.JobStatuses()
	if len(statuses) != 4 {
		t.Fatalf("JobStatuses = %d entries", len(statuses))
	}
	for i, st := range statuses {
		if st.Key != all[i] {
			t.Fatalf("status %d key = %s, want %s", i, st.Key, all[i])
		}
	}
}

func TestShutdown(t *testing.T) {
	t.Parallel()
	s, h := newScheduler(t)
	for i := 0; i < 3; i++ {
		s.Schedule(newTestJob(fmt.Sprint(i)), job.EverySecond)
	}
	s.Shutdown()

	if keys := s.AllJobKeys(); len(keys) != 0 {
		t.Fatalf("keys after shutdown = %v", keys)
	}
	if h.Timers.Len() != 0 {
		t.Fatalf("armed timers = %d, want 0", h.Timers.Len())
	}
}
