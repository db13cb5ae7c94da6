package config

import (
	"reflect"
	"sort"
	"strings"

	logx "jobsched/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) structured attrs for logging, and (3) the keys of jobs that were
// added, removed or changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.paused", newCfg.Scheduler.Paused),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.Int("scheduler.pool_count", len(newCfg.Scheduler.Pools)),
		)
	}

	if strings.TrimSpace(oldCfg.Orchestrator.Schedule) != strings.TrimSpace(newCfg.Orchestrator.Schedule) {
		changed = append(changed, "orchestrator")
		attrs = append(attrs, logx.String("orchestrator.schedule", strings.TrimSpace(newCfg.Orchestrator.Schedule)))
	}

	// Nil means disabled.
	oldH, newH := derefHistory(oldCfg.History), derefHistory(newCfg.History)
	if oldH != newH {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", newH.Driver),
			logx.Bool("history.path_set", strings.TrimSpace(newH.Path) != ""),
			logx.String("history.retention", newH.Retention),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.AddrOrDefault()),
		)
	}

	jobChanged := diffJobs(oldCfg.Jobs, newCfg.Jobs)
	if len(jobChanged) > 0 {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.changed_count", len(jobChanged)),
			logx.Int("jobs.count", len(newCfg.Jobs)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, jobChanged
}

func derefHistory(h *HistoryConfig) HistoryConfig {
	if h == nil {
		return HistoryConfig{}
	}
	return *h
}

func diffJobs(oldJ, newJ []JobConfig) []string {
	index := func(js []JobConfig) map[string]JobConfig {
		m := make(map[string]JobConfig, len(js))
		for _, j := range js {
			m[j.Key()] = j
		}
		return m
	}
	om, nm := index(oldJ), index(newJ)

	out := make([]string, 0, 4)
	for k, o := range om {
		n, ok := nm[k]
		if !ok || !reflect.DeepEqual(o, n) {
			out = append(out, k)
		}
	}
	for k := range nm {
		if _, ok := om[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
