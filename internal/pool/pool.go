package pool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	rtsup "jobsched/internal/runtime/supervisor"
	logx "jobsched/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

const (
	defaultWorkers   = 4
	defaultQueueSize = 64
)

// Config sizes a worker pool.
type Config struct {
	Name      string
	Workers   int
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	return c
}

// Snapshot is a diagnostic view of a pool.
type Snapshot struct {
	Name      string
	Running   bool
	Workers   int
	QueueLen  int
	QueueCap  int
	InFlight  int64
	Completed uint64
	Dropped   uint64
	Panics    uint64
}

type item struct {
	name       string
	fn         func(ctx context.Context)
	enqueuedAt time.Time
}

// Pool is a fixed set of supervised workers behind a bounded queue. Submit
// never blocks: a full queue rejects the submission with ErrQueueFull.
type Pool struct {
	cfg Config
	log logx.Logger

	mu       sync.RWMutex
	q        chan item
	sup      *rtsup.Supervisor
	running  bool
	stopping bool

	inFlight  atomic.Int64
	completed atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64

	lastFullWarnAt atomic.Int64
}

func New(cfg Config, log logx.Logger) *Pool {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pool{
		cfg: cfg,
		log: log.With(logx.String("comp", "pool"), logx.String("pool", cfg.Name)),
	}
}

func (p *Pool) Name() string { return p.cfg.Name }

// Start launches the workers. It is idempotent; a stopped pool can be
// started again.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	cfg := p.cfg
	q := make(chan item, cfg.QueueSize)
	sup := rtsup.New(ctx, rtsup.WithLogger(p.log))
	for i := 0; i < cfg.Workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			p.worker(c, q)
			return nil
		})
	}
	p.q, p.sup, p.running, p.stopping = q, sup, true, false
	p.log.Info("pool started", logx.Int("workers", cfg.Workers), logx.Int("queue", cfg.QueueSize))
}

// Stop rejects new submissions and lets the workers drain the queue. When
// ctx ends first, the context passed to running tasks is cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running || p.stopping {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	close(p.q)
	sup := p.sup
	p.mu.Unlock()

	start := time.Now()
	err := sup.Wait(ctx)
	if err != nil {
		sup.Cancel()
		p.log.Warn("pool stop timed out", logx.Err(err), logx.Int64("in_flight", p.inFlight.Load()))
	} else {
		p.log.Info("pool stopped", logx.Duration("took", time.Since(start)))
	}

	p.mu.Lock()
	p.running, p.stopping = false, false
	p.q, p.sup = nil, nil
	p.mu.Unlock()
	return err
}

// Submit queues fn without blocking.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) error {
	if fn == nil {
		return ErrNilFunc
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running || p.stopping {
		return ErrStopped
	}
	select {
	case p.q <- item{name: name, fn: fn, enqueuedAt: time.Now()}:
		return nil
	default:
		p.dropped.Add(1)
		if p.shouldWarn(time.Now()) {
			p.log.Warn("submission dropped: queue full",
				logx.String("task", name),
				logx.Int("queue_cap", cap(p.q)),
				logx.Uint64("dropped", p.dropped.Load()),
			)
		}
		return ErrQueueFull
	}
}

func (p *Pool) Snapshot() Snapshot {
	p.mu.RLock()
	s := Snapshot{Name: p.cfg.Name, Running: p.running && !p.stopping, Workers: p.cfg.Workers}
	if p.q != nil {
		s.QueueLen, s.QueueCap = len(p.q), cap(p.q)
	}
	p.mu.RUnlock()
	s.InFlight = p.inFlight.Load()
	s.Completed = p.completed.Load()
	s.Dropped = p.dropped.Load()
	s.Panics = p.panics.Load()
	return s
}

func (p *Pool) worker(ctx context.Context, q <-chan item) {
	for it := range q {
		p.run(ctx, it)
	}
}

func (p *Pool) run(ctx context.Context, it item) {
	p.inFlight.Add(1)
	defer func() {
		p.inFlight.Add(-1)
		p.completed.Add(1)
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.log.Error("task panicked", logx.String("task", it.name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	if delay := time.Since(it.enqueuedAt); delay >= time.Second {
		p.log.Debug("task waited in queue", logx.String("task", it.name), logx.Duration("queue_delay", delay))
	}
	it.fn(ctx)
}

func (p *Pool) shouldWarn(now time.Time) bool {
	prev := p.lastFullWarnAt.Load()
	n := now.UnixNano()
	if prev != 0 && n-prev < int64(warnThrottleEvery) {
		return false
	}
	return p.lastFullWarnAt.CompareAndSwap(prev, n)
}
