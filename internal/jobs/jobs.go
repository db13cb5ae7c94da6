// Package jobs turns the jobs declared in the config file into schedulable
// jobs and provides the built-in host jobs.
package jobs

import (
	"context"
	"fmt"

	"jobsched/internal/config"
	"jobsched/internal/job"
)

// Provider yields the current config. *config.Manager implements it.
type Provider interface {
	Get() *config.Config
}

// ConfigJob is a job whose definition lives in the config. Every call reads
// the current definition, so a reload takes effect without rescheduling.
type ConfigJob struct {
	key     job.Key
	cfgs    Provider
	runners Runners
}

func NewConfigJob(key job.Key, cfgs Provider, runners Runners) *ConfigJob {
	return &ConfigJob{key: key, cfgs: cfgs, runners: runners}
}

func (j *ConfigJob) Key() job.Key { return j.key }

func (j *ConfigJob) decl() (config.JobConfig, bool) {
	return j.cfgs.Get().JobByKey(j.key.String())
}

// Valid reports whether the job is still declared.
func (j *ConfigJob) Valid() bool {
	_, ok := j.decl()
	return ok
}

func (j *ConfigJob) Disabled() bool {
	d, ok := j.decl()
	return ok && d.Disabled
}

func (j *ConfigJob) Description() string {
	d, ok := j.decl()
	if !ok || d.Description == "" {
		return j.key.String()
	}
	return d.Description
}

func (j *ConfigJob) Task() job.Task {
	return func(ctx context.Context) error {
		d, ok := j.decl()
		if !ok {
			return fmt.Errorf("%s: %w", j.key, ErrNotDeclared)
		}
		r, ok := j.runners[d.Type]
		if !ok {
			return fmt.Errorf("%s: %w %q", j.key, ErrUnknownKind, d.Type)
		}
		return r.Run(ctx, d)
	}
}
