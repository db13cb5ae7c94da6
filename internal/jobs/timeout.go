package jobs

import (
	"context"

	"jobsched/internal/job"
)

// Timeout bounds every run of a declared job by its configured timeout, read
// at run time. Jobs without a declaration or a timeout run unbounded.
func Timeout(cfgs Provider) job.Decorator {
	return func(j job.Job, task job.Task) job.Task {
		key := j.Key().String()
		return func(ctx context.Context) error {
			d, ok := cfgs.Get().JobByKey(key)
			if !ok {
				return task(ctx)
			}
			if t := d.TimeoutDuration(); t > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, t)
				defer cancel()
			}
			return task(ctx)
		}
	}
}
