package jobs

import (
	"context"
	"fmt"
	"sync"

	"jobsched/internal/job"
	"jobsched/internal/job/orchestrator"
)

// Source yields a registration for every job declared in the config. Job
// values are reused across calls for a key that stays declared.
type Source struct {
	cfgs    Provider
	runners Runners

	mu   sync.Mutex
	jobs map[job.Key]*ConfigJob
}

func NewSource(cfgs Provider, runners Runners) *Source {
	return &Source{cfgs: cfgs, runners: runners, jobs: map[job.Key]*ConfigJob{}}
}

func (s *Source) Registrations(context.Context) ([]orchestrator.Registration, error) {
	cfg := s.cfgs.Get()
	if cfg == nil {
		return nil, ErrNoConfig
	}

	regs := make([]orchestrator.Registration, 0, len(cfg.Jobs))
	seen := make(map[job.Key]struct{}, len(cfg.Jobs))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range cfg.Jobs {
		key, err := d.ParsedKey()
		if err != nil {
			return nil, err
		}
		sch, err := d.ParsedSchedule()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		j, ok := s.jobs[key]
		if !ok {
			j = NewConfigJob(key, s.cfgs, s.runners)
			s.jobs[key] = j
		}
		seen[key] = struct{}{}
		regs = append(regs, orchestrator.Registration{Job: j, Schedule: sch})
	}
	for k := range s.jobs {
		if _, ok := seen[k]; !ok {
			delete(s.jobs, k)
		}
	}
	return regs, nil
}
