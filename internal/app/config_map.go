package app

import (
	"sort"
	"strings"

	"jobsched/internal/config"
	"jobsched/internal/debugserver"
	"jobsched/internal/history"
	"jobsched/internal/pool"
)

// mapHistoryConfig reports false when history is disabled.
func mapHistoryConfig(cfg *config.Config) (history.Config, bool) {
	if cfg == nil || cfg.History == nil {
		return history.Config{}, false
	}
	hc := cfg.History
	driver := strings.ToLower(strings.TrimSpace(hc.Driver))
	if driver == "" || driver == "none" {
		return history.Config{}, false
	}
	return history.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(hc.Path),
		BusyTimeout: hc.BusyTimeoutDuration(),
	}, true
}

// mapPoolConfigs returns the default pool config and the named extras,
// sorted by name.
func mapPoolConfigs(cfg *config.Config) (pool.Config, []pool.Config) {
	def := pool.Config{
		Name:      pool.DefaultName,
		Workers:   cfg.Scheduler.WorkersOrDefault(),
		QueueSize: cfg.Scheduler.QueueSizeOrDefault(),
	}
	names := make([]string, 0, len(cfg.Scheduler.Pools))
	for n := range cfg.Scheduler.Pools {
		names = append(names, n)
	}
	sort.Strings(names)
	extra := make([]pool.Config, 0, len(names))
	for _, n := range names {
		p := cfg.Scheduler.Pools[n]
		extra = append(extra, pool.Config{Name: n, Workers: p.Workers, QueueSize: p.QueueSize})
	}
	return def, extra
}

func mapDebugConfig(cfg *config.Config) debugserver.Config {
	d := cfg.Debug
	return debugserver.Config{
		Enabled:              d.Enabled,
		Addr:                 d.AddrOrDefault(),
		BlockProfileRate:     d.BlockProfileRate,
		MutexProfileFraction: d.MutexProfileFraction,
	}
}
