package job

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	logx "jobsched/pkg/logx"

	"github.com/robfig/cron/v3"
)

// CronTimers is the production scheduling pool. Ticks are driven by a
// robfig/cron runner using fixed-delay schedules; each tick callback runs on
// its own goroutine and must stay lightweight.
type CronTimers struct {
	c   *cron.Cron
	loc *time.Location
	log logx.Logger
}

func NewCronTimers(loc *time.Location, log logx.Logger) *CronTimers {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "timers"))
	cl := cronLogger{log: log}
	return &CronTimers{
		c: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		loc: loc,
		log: log,
	}
}

func (t *CronTimers) Start() {
	t.c.Start()
	t.log.Debug("timers started", logx.String("tz", t.loc.String()))
}

// Stop stops triggering and waits for tick callbacks in progress, or ctx.
func (t *CronTimers) Stop(ctx context.Context) {
	select {
	case <-t.c.Stop().Done():
	case <-ctx.Done():
	}
	t.log.Debug("timers stopped")
}

func (t *CronTimers) Now() time.Time { return time.Now().In(t.loc) }

func (t *CronTimers) Schedule(initial, period time.Duration, fn func()) Timer {
	id := t.c.Schedule(&fixedDelay{initial: initial, period: period}, cron.FuncJob(fn))
	return &cronTimer{c: t.c, id: id}
}

// fixedDelay fires once after the initial delay, then period after each
// invocation. cron calls Next with the time the previous tick was launched.
type fixedDelay struct {
	initial time.Duration
	period  time.Duration
	armed   atomic.Bool
}

func (s *fixedDelay) Next(t time.Time) time.Time {
	if !s.armed.Swap(true) {
		return t.Add(s.initial)
	}
	return t.Add(s.period)
}

type cronTimer struct {
	c         *cron.Cron
	id        cron.EntryID
	cancelled atomic.Bool
}

func (t *cronTimer) Cancel() {
	if t.cancelled.Swap(true) {
		return
	}
	t.c.Remove(t.id)
}

func (t *cronTimer) Next() time.Time {
	if t.cancelled.Load() {
		return time.Time{}
	}
	return t.c.Entry(t.id).Next
}

// cronLogger adapts logx to cron.Logger. cron reports every wake-up at info
// level, which is trace noise for a scheduler host.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
