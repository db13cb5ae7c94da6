package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"jobsched/internal/job"
)

const (
	DefaultWorkers              = 4
	DefaultQueueSize            = 64
	DefaultOrchestratorSchedule = "30s"
	DefaultRetention            = 7 * 24 * time.Hour
	DefaultPruneSchedule        = "1h"
	DefaultDebugAddr            = "127.0.0.1:6060"

	defaultPoolName = "default"
)

// Validate reports every problem found in cfg, joined.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := c.Scheduler.Location(); err != nil {
		add(err)
	}
	if c.Scheduler.Workers < 0 || c.Scheduler.QueueSize < 0 {
		add(errors.New("scheduler: workers and queue_size must be >= 0"))
	}
	for name, p := range c.Scheduler.Pools {
		if strings.TrimSpace(name) == "" || name == defaultPoolName {
			add(fmt.Errorf("scheduler.pools: invalid pool name %q", name))
		}
		if p.Workers < 0 || p.QueueSize < 0 {
			add(fmt.Errorf("scheduler.pools.%s: workers and queue_size must be >= 0", name))
		}
	}
	for cat, pool := range c.Scheduler.CategoryPools {
		if pool == defaultPoolName {
			continue
		}
		if _, ok := c.Scheduler.Pools[pool]; !ok {
			add(fmt.Errorf("scheduler.category_pools.%s: unknown pool %q", cat, pool))
		}
	}

	if _, err := c.Orchestrator.ParsedSchedule(); err != nil {
		add(fmt.Errorf("orchestrator.schedule: %w", err))
	}

	if h := c.History; h != nil {
		switch strings.ToLower(strings.TrimSpace(h.Driver)) {
		case "", "none":
		case "file", "jsonl", "sqlite", "sqlite3":
			if strings.TrimSpace(h.Path) == "" {
				add(errors.New("history.path is required"))
			}
		default:
			add(fmt.Errorf("history.driver: unknown driver %q", h.Driver))
		}
		if _, err := ParseDurationField("history.retention", h.Retention); err != nil {
			add(err)
		}
		if _, err := ParseDurationField("history.busy_timeout", h.BusyTimeout); err != nil {
			add(err)
		}
		if _, err := h.ParsedPruneSchedule(); err != nil {
			add(fmt.Errorf("history.prune_schedule: %w", err))
		}
	}

	add(c.Debug.validate())

	seen := make(map[string]struct{}, len(c.Jobs))
	for i, j := range c.Jobs {
		if err := j.Validate(); err != nil {
			add(fmt.Errorf("jobs[%d]: %w", i, err))
			continue
		}
		k := j.Key()
		if _, dup := seen[k]; dup {
			add(fmt.Errorf("jobs[%d]: duplicate key %s", i, k))
		}
		seen[k] = struct{}{}
	}

	return errors.Join(errs...)
}

// Validate checks a single job declaration.
func (j JobConfig) Validate() error {
	if _, err := j.ParsedKey(); err != nil {
		return err
	}
	if _, err := j.ParsedSchedule(); err != nil {
		return fmt.Errorf("%s: %w", j.Key(), err)
	}
	if _, err := ParseDurationField(j.Key()+": timeout", j.Timeout); err != nil {
		return err
	}

	switch j.Type {
	case KindHeartbeat:
	case KindHTTP:
		if j.HTTP == nil || strings.TrimSpace(j.HTTP.URL) == "" {
			return fmt.Errorf("%s: http.url is required", j.Key())
		}
		u, err := url.Parse(j.HTTP.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s: invalid http.url %q", j.Key(), j.HTTP.URL)
		}
		switch strings.ToUpper(strings.TrimSpace(j.HTTP.Method)) {
		case "", "GET", "HEAD":
		default:
			return fmt.Errorf("%s: http.method must be GET or HEAD", j.Key())
		}
	case KindCommand:
		if j.Command == nil || strings.TrimSpace(j.Command.Run) == "" {
			return fmt.Errorf("%s: command.run is required", j.Key())
		}
		argv, err := shellquote.Split(j.Command.Run)
		if err != nil {
			return fmt.Errorf("%s: command.run: %w", j.Key(), err)
		}
		if len(argv) == 0 {
			return fmt.Errorf("%s: command.run is empty", j.Key())
		}
	case KindUnit:
		if j.Unit == nil || strings.TrimSpace(j.Unit.Name) == "" {
			return fmt.Errorf("%s: unit.name is required", j.Key())
		}
	default:
		return fmt.Errorf("%s: unknown type %q (want heartbeat, http, command or unit)", j.Key(), j.Type)
	}
	return nil
}

// ParsedKey returns the job key; every part must be non-empty.
func (j JobConfig) ParsedKey() (job.Key, error) {
	if strings.TrimSpace(j.Category) == "" || strings.TrimSpace(j.Type) == "" || strings.TrimSpace(j.ID) == "" {
		return job.Key{}, fmt.Errorf("job %q: category, type and id are required", j.Key())
	}
	if strings.Contains(j.Category, "/") || strings.Contains(j.Type, "/") {
		return job.Key{}, fmt.Errorf("job %q: category and type must not contain '/'", j.Key())
	}
	return job.Category(j.Category).Type(j.Type).Key(j.ID), nil
}

// ParsedSchedule combines schedule and initial_delay.
func (j JobConfig) ParsedSchedule() (job.Schedule, error) {
	s, err := job.ParseSchedule(j.Schedule)
	if err != nil {
		return job.None, err
	}
	d, err := ParseDurationField("initial_delay", j.InitialDelay)
	if err != nil {
		return job.None, err
	}
	return s.After(d), nil
}

// TimeoutDuration is zero when no timeout is set.
func (j JobConfig) TimeoutDuration() time.Duration {
	d, _ := ParseDurationField("timeout", j.Timeout)
	return d
}

// Location resolves the timezone, defaulting to time.Local.
func (c SchedulerConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

func (c SchedulerConfig) WorkersOrDefault() int {
	if c.Workers <= 0 {
		return DefaultWorkers
	}
	return c.Workers
}

func (c SchedulerConfig) QueueSizeOrDefault() int {
	if c.QueueSize <= 0 {
		return DefaultQueueSize
	}
	return c.QueueSize
}

func (c OrchestratorConfig) ParsedSchedule() (job.Schedule, error) {
	raw := strings.TrimSpace(c.Schedule)
	if raw == "" {
		raw = DefaultOrchestratorSchedule
	}
	return job.ParseSchedule(raw)
}

// RetentionOrDefault returns how long history entries are kept.
func (h HistoryConfig) RetentionOrDefault() time.Duration {
	d, err := ParseDurationOrDefault("history.retention", h.Retention, DefaultRetention)
	if err != nil {
		return DefaultRetention
	}
	return d
}

func (h HistoryConfig) BusyTimeoutDuration() time.Duration {
	d, _ := ParseDurationField("history.busy_timeout", h.BusyTimeout)
	return d
}

func (h HistoryConfig) ParsedPruneSchedule() (job.Schedule, error) {
	raw := strings.TrimSpace(h.PruneSchedule)
	if raw == "" {
		raw = DefaultPruneSchedule
	}
	return job.ParseSchedule(raw)
}

// AddrOrDefault returns the listen address.
func (d DebugConfig) AddrOrDefault() string {
	if a := strings.TrimSpace(d.Addr); a != "" {
		return a
	}
	return DefaultDebugAddr
}

func (d DebugConfig) validate() error {
	if d.BlockProfileRate < 0 || d.MutexProfileFraction < 0 {
		return errors.New("debug: block_profile_rate and mutex_profile_fraction must be >= 0")
	}
	if !d.Enabled {
		return nil
	}
	addr := d.AddrOrDefault()
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("debug.addr: invalid %q (expected host:port): %w", addr, err)
	}
	if !d.AllowPublic && !isLoopbackAddr(addr) {
		return fmt.Errorf("debug.addr: binding to non-loopback %q requires allow_public=true", addr)
	}
	return nil
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
