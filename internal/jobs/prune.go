package jobs

import (
	"context"
	"time"

	"jobsched/internal/history"
	"jobsched/internal/job"
	"jobsched/internal/job/orchestrator"
	logx "jobsched/pkg/logx"
)

// PruneKey identifies the history retention job.
var PruneKey = orchestrator.Category.Type("history").Key("prune")

// PruneJob deletes history entries older than the retention.
type PruneJob struct {
	store     history.Store
	retention func() time.Duration
	now       func() time.Time
	log       logx.Logger
}

// NewPruneJob builds the job. retention is read on every run; now defaults to
// time.Now.
func NewPruneJob(store history.Store, retention func() time.Duration, now func() time.Time, log logx.Logger) *PruneJob {
	if now == nil {
		now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &PruneJob{store: store, retention: retention, now: now, log: log.With(logx.String("comp", "history"))}
}

func (p *PruneJob) Key() job.Key        { return PruneKey }
func (p *PruneJob) Description() string { return "History retention" }
func (p *PruneJob) Disabled() bool      { return false }
func (p *PruneJob) Valid() bool         { return true }

func (p *PruneJob) Task() job.Task {
	return func(ctx context.Context) error {
		keep := p.retention()
		if keep <= 0 {
			return nil
		}
		before := p.now().Add(-keep)
		n, err := p.store.Prune(ctx, before)
		if err != nil {
			return err
		}
		if n > 0 {
			p.log.Info("history pruned", logx.Int64("removed", n), logx.Time("before", before))
		}
		return nil
	}
}
