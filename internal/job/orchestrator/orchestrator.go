// Package orchestrator provides a job that reconciles the set of scheduled
// jobs with a desired set computed from sources on every firing.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

// Category holds the orchestrator jobs themselves.
const Category job.Category = "core"

var orchestratorType = Category.Type("orchestrator")

// Registration is a job the orchestrator should keep scheduled.
type Registration struct {
	Job      job.Job
	Schedule job.Schedule
}

// Source yields the desired registrations. An error makes the orchestrator
// keep every currently scheduled job for this firing.
type Source interface {
	Registrations(ctx context.Context) ([]Registration, error)
}

type SourceFunc func(ctx context.Context) ([]Registration, error)

func (f SourceFunc) Registrations(ctx context.Context) ([]Registration, error) { return f(ctx) }

// Static is a source returning a fixed list.
func Static(regs ...Registration) Source {
	return SourceFunc(func(context.Context) ([]Registration, error) { return regs, nil })
}

// Scheduler is the part of job.Scheduler the orchestrator drives.
type Scheduler interface {
	Schedule(j job.Job, sch job.Schedule)
	Unschedule(key job.Key) bool
	JobStatus(key job.Key) (job.Status, bool)
	JobKeysOfCategory(c job.Category) []job.Key
}

// ReschedulePolicy decides whether an already scheduled job is scheduled
// again with the registration. The default never reschedules.
type ReschedulePolicy func(current job.Status, desired Registration) bool

// Never is the default reschedule policy.
func Never(job.Status, Registration) bool { return false }

// ScheduleChanged reschedules when the declared schedule differs from the
// scheduled one.
func ScheduleChanged(current job.Status, desired Registration) bool {
	return current.Schedule != desired.Schedule
}

// Result summarizes one reconciliation.
type Result struct {
	Scheduled   []job.Key
	Rescheduled []job.Key
	Unscheduled []job.Key
	Kept        int
}

type Option func(*Orchestrator)

// WithCategories adds categories whose every job is managed: a key in one of
// them that no source declares gets unscheduled.
func WithCategories(cs ...job.Category) Option {
	return func(o *Orchestrator) { o.categories = append(o.categories, cs...) }
}

func WithReschedulePolicy(p ReschedulePolicy) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.policy = p
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

func WithDescription(d string) Option {
	return func(o *Orchestrator) { o.description = d }
}

// Orchestrator is a job whose task reconciles the scheduler with its sources.
type Orchestrator struct {
	key         job.Key
	description string
	sched       Scheduler
	sources     []Source
	categories  []job.Category
	policy      ReschedulePolicy
	log         logx.Logger

	mu      sync.Mutex
	managed map[job.Key]struct{}
	last    Result
}

func New(id string, sched Scheduler, sources []Source, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		key:         orchestratorType.Key(id),
		description: "Orchestrator " + id,
		sched:       sched,
		sources:     sources,
		policy:      Never,
		managed:     map[job.Key]struct{}{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}
	o.log = o.log.With(logx.String("comp", "orchestrator"), logx.Stringer("job", o.key))
	return o
}

func (o *Orchestrator) Key() job.Key        { return o.key }
func (o *Orchestrator) Description() string { return o.description }
func (o *Orchestrator) Disabled() bool      { return false }
func (o *Orchestrator) Valid() bool         { return true }

func (o *Orchestrator) Task() job.Task {
	return func(ctx context.Context) error {
		_, err := o.Reconcile(ctx)
		return err
	}
}

// LastResult returns the outcome of the latest reconciliation.
func (o *Orchestrator) LastResult() Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Reconcile collects registrations from every source, schedules the missing
// ones and unschedules managed keys no longer declared. When a source fails
// nothing is unscheduled and the joined source errors are returned.
func (o *Orchestrator) Reconcile(ctx context.Context) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var (
		res     Result
		errs    []error
		desired = map[job.Key]struct{}{}
	)
	for i, src := range o.sources {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		regs, err := src.Registrations(ctx)
		if err != nil {
			o.log.Warn("orchestration source failed", logx.Int("source", i), logx.Err(err))
			errs = append(errs, fmt.Errorf("source %d: %w", i, err))
			continue
		}
		for _, reg := range regs {
			if reg.Job == nil {
				continue
			}
			key := reg.Job.Key()
			if key == o.key {
				continue
			}
			if _, dup := desired[key]; dup {
				o.log.Warn("duplicate registration ignored", logx.Stringer("key", key))
				continue
			}
			desired[key] = struct{}{}
			o.apply(reg, &res)
		}
	}

	if len(errs) > 0 {
		// Keys of the failed sources are unknown; keep managing everything seen so far.
		for k := range desired {
			o.managed[k] = struct{}{}
		}
		o.last = res
		o.log.Warn("reconciliation incomplete, unscheduling skipped", logx.Int("scheduled", len(res.Scheduled)))
		return res, errors.Join(errs...)
	}

	for _, k := range o.managedKeys() {
		if _, ok := desired[k]; ok {
			continue
		}
		if o.sched.Unschedule(k) {
			res.Unscheduled = append(res.Unscheduled, k)
		}
	}
	o.managed = desired
	o.last = res

	if len(res.Scheduled)+len(res.Rescheduled)+len(res.Unscheduled) > 0 {
		o.log.Info("reconciled",
			logx.Int("scheduled", len(res.Scheduled)),
			logx.Int("rescheduled", len(res.Rescheduled)),
			logx.Int("unscheduled", len(res.Unscheduled)),
			logx.Int("kept", res.Kept),
		)
	} else {
		o.log.Debug("reconciled, no changes", logx.Int("kept", res.Kept))
	}
	return res, nil
}

func (o *Orchestrator) apply(reg Registration, res *Result) {
	key := reg.Job.Key()
	st, ok := o.sched.JobStatus(key)
	switch {
	case !ok:
		o.sched.Schedule(reg.Job, reg.Schedule)
		res.Scheduled = append(res.Scheduled, key)
	case o.policy(st, reg):
		o.sched.Schedule(reg.Job, reg.Schedule)
		res.Rescheduled = append(res.Rescheduled, key)
	default:
		res.Kept++
	}
}

// managedKeys is the previous desired set plus every key of the managed
// categories, without the orchestrator itself.
func (o *Orchestrator) managedKeys() []job.Key {
	seen := make(map[job.Key]struct{}, len(o.managed))
	out := make([]job.Key, 0, len(o.managed))
	add := func(k job.Key) {
		if k == o.key {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for k := range o.managed {
		add(k)
	}
	for _, c := range o.categories {
		for _, k := range o.sched.JobKeysOfCategory(c) {
			add(k)
		}
	}
	slices.SortFunc(out, job.Key.Compare)
	return out
}
