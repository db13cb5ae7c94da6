// Package observe turns scheduler executions into log lines and bus events.
package observe

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"jobsched/internal/eventbus"
	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

// JobEvent is the payload of the job.* bus events.
type JobEvent struct {
	Key    string        `json:"key"`
	At     time.Time     `json:"at"`
	Took   time.Duration `json:"took,omitempty"`
	Error  string        `json:"error,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// BusListener publishes every execution event on a bus.
type BusListener struct {
	bus eventbus.Bus
	now func() time.Time
}

func NewBusListener(bus eventbus.Bus, now func() time.Time) *BusListener {
	if now == nil {
		now = time.Now
	}
	return &BusListener{bus: bus, now: now}
}

func (l *BusListener) publish(typ string, e JobEvent) {
	e.At = l.now()
	l.bus.Publish(eventbus.Event{Type: typ, Time: e.At, Data: e})
}

func (l *BusListener) OnStart(key job.Key) {
	l.publish(eventbus.JobStarted, JobEvent{Key: key.String()})
}

func (l *BusListener) OnSuccess(key job.Key, took time.Duration) {
	l.publish(eventbus.JobSucceeded, JobEvent{Key: key.String(), Took: took})
}

func (l *BusListener) OnFailure(key job.Key, err error, took time.Duration) {
	l.publish(eventbus.JobFailed, JobEvent{Key: key.String(), Took: took, Error: err.Error()})
}

func (l *BusListener) OnSkip(key job.Key, reason job.SkipReason) {
	l.publish(eventbus.JobSkipped, JobEvent{Key: key.String(), Reason: string(reason)})
}

// LogListener logs executions. Failures log at warn level, at most burst
// lines per key per interval; the rest go to debug with a suppressed count.
type LogListener struct {
	log      logx.Logger
	every    time.Duration
	burst    int
	slowRun  time.Duration
	mu       sync.Mutex
	limiters map[job.Key]*keyLimiter
}

// maxLimiters bounds the per-key failure limiters kept for jobs that never
// recovered (unscheduled while failing).
const maxLimiters = 1024

type keyLimiter struct {
	lim        *rate.Limiter
	suppressed int
}

type LogOption func(*LogListener)

// WithFailureRate allows burst warnings per key, refilled one per every.
func WithFailureRate(every time.Duration, burst int) LogOption {
	return func(l *LogListener) {
		if every > 0 {
			l.every = every
		}
		if burst > 0 {
			l.burst = burst
		}
	}
}

// WithSlowRun logs successful runs taking at least d at info level.
func WithSlowRun(d time.Duration) LogOption {
	return func(l *LogListener) { l.slowRun = d }
}

func NewLogListener(log logx.Logger, opts ...LogOption) *LogListener {
	if log.IsZero() {
		log = logx.Nop()
	}
	l := &LogListener{
		log:      log.With(logx.String("comp", "jobs")),
		every:    time.Minute,
		burst:    3,
		slowRun:  750 * time.Millisecond,
		limiters: map[job.Key]*keyLimiter{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *LogListener) OnStart(key job.Key) {
	l.log.Debug("job.started", logx.Stringer("job", key))
}

func (l *LogListener) OnSuccess(key job.Key, took time.Duration) {
	if suppressed, failing := l.forget(key); failing && suppressed > 0 {
		l.log.Info("job.recovered", logx.Stringer("job", key), logx.Int("suppressed", suppressed))
	}
	if l.slowRun > 0 && took >= l.slowRun {
		l.log.Info("job.completed", logx.Stringer("job", key), logx.Duration("dur", took))
		return
	}
	l.log.Debug("job.completed", logx.Stringer("job", key), logx.Duration("dur", took))
}

func (l *LogListener) OnFailure(key job.Key, err error, took time.Duration) {
	allowed, suppressed := l.allow(key)
	if !allowed {
		l.log.Debug("job.failed", logx.Stringer("job", key), logx.Err(err), logx.Duration("dur", took))
		return
	}
	fields := []logx.Field{logx.Stringer("job", key), logx.Err(err), logx.Duration("dur", took)}
	if suppressed > 0 {
		fields = append(fields, logx.Int("suppressed", suppressed))
	}
	l.log.Warn("job.failed", fields...)
}

func (l *LogListener) OnSkip(key job.Key, reason job.SkipReason) {
	if reason == job.SkipRejected {
		l.log.Warn("job.skipped", logx.Stringer("job", key), logx.String("reason", string(reason)))
		return
	}
	l.log.Trace("job.skipped", logx.Stringer("job", key), logx.String("reason", string(reason)))
}

// allow reports whether a warning for key may be logged, and how many were
// suppressed since the last one that was.
func (l *LogListener) allow(key job.Key) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl := l.limiters[key]
	if kl == nil {
		if len(l.limiters) >= maxLimiters {
			l.evictLocked(time.Now())
		}
		kl = &keyLimiter{lim: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.limiters[key] = kl
	}
	if !kl.lim.Allow() {
		kl.suppressed++
		return false, 0
	}
	n := kl.suppressed
	kl.suppressed = 0
	return true, n
}

// forget drops the limiter of key once it succeeds again. It reports the
// failures suppressed since the last warning and whether key was failing.
func (l *LogListener) forget(key job.Key) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.limiters[key]
	if !ok {
		return 0, false
	}
	delete(l.limiters, key)
	return kl.suppressed, true
}

// evictLocked drops limiters that are fully refilled with nothing
// suppressed; they carry no state a fresh limiter would not. If every key is
// still throttled, the whole set is dropped.
func (l *LogListener) evictLocked(now time.Time) {
	for k, kl := range l.limiters {
		if kl.suppressed == 0 && kl.lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, k)
		}
	}
	if len(l.limiters) >= maxLimiters {
		clear(l.limiters)
	}
}

func (l *LogListener) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
