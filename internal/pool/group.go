package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

// DefaultName is the pool used by jobs whose category has no dedicated pool.
const DefaultName = "default"

// Group owns the named worker pools of a host.
type Group struct {
	pools map[string]*Pool
}

// NewGroup builds one pool per config. A pool named DefaultName is added
// with def sizing when cfgs lack one.
func NewGroup(def Config, cfgs []Config, log logx.Logger) (*Group, error) {
	g := &Group{pools: map[string]*Pool{}}
	def.Name = DefaultName
	g.pools[DefaultName] = New(def, log)
	for _, c := range cfgs {
		if c.Name == "" {
			return nil, fmt.Errorf("pool name is required")
		}
		if c.Name == DefaultName {
			g.pools[DefaultName] = New(c, log)
			continue
		}
		if _, dup := g.pools[c.Name]; dup {
			return nil, fmt.Errorf("duplicate pool %q", c.Name)
		}
		g.pools[c.Name] = New(c, log)
	}
	return g, nil
}

func (g *Group) Default() *Pool { return g.pools[DefaultName] }

func (g *Group) Get(name string) (*Pool, bool) {
	p, ok := g.pools[name]
	return p, ok
}

func (g *Group) Start(ctx context.Context) {
	for _, p := range g.pools {
		p.Start(ctx)
	}
}

func (g *Group) Stop(ctx context.Context) error {
	var errs []error
	for _, name := range g.names() {
		if err := g.pools[name].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (g *Group) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(g.pools))
	for _, name := range g.names() {
		out = append(out, g.pools[name].Snapshot())
	}
	return out
}

// Selector routes jobs of the mapped categories to their named pool. It fails
// when a mapping names an unknown pool.
func (g *Group) Selector(categoryPools map[string]string) (job.PoolSelector, error) {
	m := make(map[job.Category]job.Executor, len(categoryPools))
	for c, name := range categoryPools {
		p, ok := g.pools[name]
		if !ok {
			return nil, fmt.Errorf("category %q: unknown pool %q", c, name)
		}
		m[job.Category(c)] = p
	}
	return ByCategory(m), nil
}

func (g *Group) names() []string {
	out := make([]string, 0, len(g.pools))
	for n := range g.pools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ByCategory selects a pool by the category of the job key, falling back to
// the scheduler's default pool.
func ByCategory(pools map[job.Category]job.Executor) job.PoolSelector {
	return func(def job.Executor, j job.Job) job.Executor {
		if p, ok := pools[j.Key().Category()]; ok && p != nil {
			return p
		}
		return def
	}
}
