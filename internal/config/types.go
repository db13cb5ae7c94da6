package config

import (
	logx "jobsched/pkg/logx"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Scheduler controls the engine: startup pause flag, timezone and the
	// executor pools jobs are dispatched to.
	Scheduler SchedulerConfig `json:"scheduler"`

	// Orchestrator controls the reconciliation job that keeps the scheduled
	// set in line with the declared jobs.
	Orchestrator OrchestratorConfig `json:"orchestrator"`

	History *HistoryConfig `json:"history,omitempty"`

	Debug DebugConfig `json:"debug"`

	Jobs []JobConfig `json:"jobs"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Logx converts the section into the logging service config.
func (c LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

// SchedulerConfig configures the engine and its pools.
//
// Defaults (when fields are omitted/zero):
//   - paused: false
//   - timezone: "Local"
//   - workers: 4
//   - queue_size: 64
type SchedulerConfig struct {
	Paused   bool   `json:"paused"`
	Timezone string `json:"timezone,omitempty"`

	// Workers and QueueSize size the default pool.
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	// Pools declares extra named pools.
	Pools map[string]PoolConfig `json:"pools,omitempty"`

	// CategoryPools routes every job of a category to a named pool.
	CategoryPools map[string]string `json:"category_pools,omitempty"`
}

type PoolConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
}

// OrchestratorConfig.Schedule uses the job schedule syntax ("10s", "00:05",
// "@every 1m", "none"). Defaults to "30s".
type OrchestratorConfig struct {
	Schedule string `json:"schedule,omitempty"`
}

// HistoryConfig enables the run history store.
//
// Defaults (when fields are omitted/zero):
//   - driver: "none"
//   - retention: "168h"
//   - busy_timeout: "5s" (sqlite only)
//   - prune_schedule: "1h"
type HistoryConfig struct {
	Driver        string `json:"driver"`
	Path          string `json:"path,omitempty"`
	Retention     string `json:"retention,omitempty"`
	BusyTimeout   string `json:"busy_timeout,omitempty"`
	PruneSchedule string `json:"prune_schedule,omitempty"`
}

// DebugConfig controls the optional debug HTTP listener (pprof and job
// statuses). Defaults to 127.0.0.1:6060 when enabled.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`

	// AllowPublic permits a non-loopback addr.
	AllowPublic bool `json:"allow_public,omitempty"`

	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
}

// Job kinds understood by the host.
const (
	KindHeartbeat = "heartbeat"
	KindHTTP      = "http"
	KindCommand   = "command"
	KindUnit      = "unit"
)

// JobConfig declares one job. Its key is category/type/id.
type JobConfig struct {
	Category     string `json:"category"`
	Type         string `json:"type"`
	ID           string `json:"id"`
	Schedule     string `json:"schedule"`
	InitialDelay string `json:"initial_delay,omitempty"`
	Timeout      string `json:"timeout,omitempty"`
	Disabled     bool   `json:"disabled,omitempty"`
	Description  string `json:"description,omitempty"`

	HTTP    *HTTPJobConfig    `json:"http,omitempty"`
	Command *CommandJobConfig `json:"command,omitempty"`
	Unit    *UnitJobConfig    `json:"unit,omitempty"`
}

// Key renders the job key in its string form.
func (j JobConfig) Key() string { return j.Category + "/" + j.Type + "/" + j.ID }

type HTTPJobConfig struct {
	URL    string `json:"url"`
	Method string `json:"method,omitempty"`
	// ExpectStatus defaults to any 2xx.
	ExpectStatus int `json:"expect_status,omitempty"`
}

type CommandJobConfig struct {
	Run string `json:"run"`
	Dir string `json:"dir,omitempty"`
}

// UnitJobConfig checks that a systemd unit is active. With Restart set, an
// inactive unit is restarted.
type UnitJobConfig struct {
	Name    string `json:"name"`
	Restart bool   `json:"restart,omitempty"`
}

// JobByKey returns the declared job with the given key.
func (c *Config) JobByKey(key string) (JobConfig, bool) {
	if c == nil {
		return JobConfig{}, false
	}
	for _, j := range c.Jobs {
		if j.Key() == key {
			return j, true
		}
	}
	return JobConfig{}, false
}
