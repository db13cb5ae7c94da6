package app

import (
	"context"
	"reflect"
	"slices"
	"strings"

	"jobsched/internal/config"
	logx "jobsched/pkg/logx"
)

// reloadLoop applies published configs until ctx ends. Bursts collapse to
// the newest config.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) error {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-sub:
			if !ok {
				return nil
			}
			next = newest(sub, next)
			a.applyConfig(last, next)
			last = next
		}
	}
}

func newest(sub chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-sub:
			if !ok || newer == nil {
				return cfg
			}
			cfg = newer
		default:
			return cfg
		}
	}
}

func (a *App) applyConfig(old, next *config.Config) {
	sections, attrs, changedJobs := config.SummarizeConfigChange(old, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.notify.reloading()
	defer a.notify.reloaded()

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if slices.Contains(sections, "logging") {
		a.logs.Apply(next.Logging.Logx())
	}

	if slices.Contains(sections, "scheduler") {
		switch {
		case next.Scheduler.Paused && !a.sched.Paused():
			a.sched.Pause()
		case !next.Scheduler.Paused && a.sched.Paused():
			a.sched.Resume()
		}
		if schedulerNeedsRestart(old.Scheduler, next.Scheduler) {
			a.log.Warn("scheduler pools or timezone changed; restart required for changes to take effect")
		}
	}

	if slices.Contains(sections, "orchestrator") {
		if sch, err := next.Orchestrator.ParsedSchedule(); err == nil {
			if st, ok := a.sched.JobStatus(a.orch.Key()); !ok || st.Schedule != sch {
				a.sched.Schedule(a.orch, sch)
			}
		}
	}

	if slices.Contains(sections, "debug") {
		_ = a.debug.Apply(context.Background(), mapDebugConfig(next))
	}

	if slices.Contains(sections, "history") {
		if historyNeedsRestart(old.History, next.History) {
			a.log.Warn("history storage changed; restart required for changes to take effect")
		}
		if a.prune != nil && next.History != nil {
			if sch, err := next.History.ParsedPruneSchedule(); err == nil {
				if st, ok := a.sched.JobStatus(a.prune.Key()); !ok || st.Schedule != sch {
					a.sched.Schedule(a.prune, sch)
				}
			}
		}
	}

	if len(changedJobs) > 0 {
		a.log.Debug("job declarations changed", logx.Any("jobs", changedJobs))
		// Reconcile now instead of waiting for the next orchestrator tick.
		if _, err := a.sched.FireImmediately(a.orch.Key()); err != nil {
			a.log.Warn("orchestrator fire failed", logx.Err(err))
		}
	}

	a.log.Info("config reloaded", fields...)
}

func schedulerNeedsRestart(old, next config.SchedulerConfig) bool {
	old.Paused, next.Paused = false, false
	return !reflect.DeepEqual(old, next)
}

func historyNeedsRestart(old, next *config.HistoryConfig) bool {
	var o, n config.HistoryConfig
	if old != nil {
		o = *old
	}
	if next != nil {
		n = *next
	}
	return !strings.EqualFold(o.Driver, n.Driver) || o.Path != n.Path || o.BusyTimeout != n.BusyTimeout
}
