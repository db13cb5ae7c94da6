package app

import (
	"context"
	"fmt"
	"time"

	"jobsched/internal/config"
	"jobsched/internal/debugserver"
	"jobsched/internal/eventbus"
	"jobsched/internal/history"
	"jobsched/internal/job"
	"jobsched/internal/job/orchestrator"
	"jobsched/internal/jobs"
	"jobsched/internal/observe"
	"jobsched/internal/pool"
	"jobsched/internal/runtime/supervisor"
	logx "jobsched/pkg/logx"
	"jobsched/pkg/systemdmanager"
)

const (
	orchestratorID = "config"
	recorderBuffer = 256
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	bus      eventbus.Bus
	store    history.Store
	recorder *history.Recorder
	prune    *jobs.PruneJob

	pools  *pool.Group
	timers *job.CronTimers
	sched  *job.Scheduler
	orch   *orchestrator.Orchestrator
	units  *systemdmanager.Manager
	debug  *debugserver.Server

	sup    *supervisor.Supervisor
	notify *notifier
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.NewService(cfg.Logging.Logx())
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root)

	bus := eventbus.New()

	var (
		store    history.Store
		recorder *history.Recorder
		prune    *jobs.PruneJob
	)
	if hc, enabled := mapHistoryConfig(cfg); enabled {
		st, err := history.Open(hc, root)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		store = st
		recorder = history.NewRecorder(store, bus, recorderBuffer, root)
		prune = jobs.NewPruneJob(store, func() time.Duration {
			if c := cfgm.Get(); c != nil && c.History != nil {
				return c.History.RetentionOrDefault()
			}
			return config.DefaultRetention
		}, nil, root)
		log.Info("history enabled", logx.String("driver", hc.Driver))
	}

	def, extra := mapPoolConfigs(cfg)
	pools, err := pool.NewGroup(def, extra, root)
	if err != nil {
		return nil, err
	}
	selector, err := pools.Selector(cfg.Scheduler.CategoryPools)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}
	timers := job.NewCronTimers(loc, root)

	sched := job.New(timers, pools.Default(),
		job.WithLogger(root),
		job.WithPaused(cfg.Scheduler.Paused),
		job.WithPoolSelector(selector),
		job.WithDecorators(jobs.Timeout(cfgm)),
		job.WithListener(job.Listeners{
			observe.NewLogListener(root),
			observe.NewBusListener(bus, timers.Now),
		}),
	)

	units := systemdmanager.New()
	runners := jobs.DefaultRunners(jobs.Deps{Log: root, Units: units})
	orch := orchestrator.New(orchestratorID, sched,
		[]orchestrator.Source{jobs.NewSource(cfgm, runners)},
		orchestrator.WithReschedulePolicy(orchestrator.ScheduleChanged),
		orchestrator.WithDescription("Jobs declared in "+cfgPath),
		orchestrator.WithLogger(root),
	)

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		recorder: recorder,
		prune:    prune,
		pools:    pools,
		timers:   timers,
		sched:    sched,
		orch:     orch,
		units:    units,
		debug:    debugserver.New(sched, root),
		notify:   newNotifier(root),
	}, nil
}

func (a *App) Scheduler() *job.Scheduler { return a.sched }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetValidator(a.validateReload)

	cfg := a.cfgm.Get()
	orchSchedule, err := cfg.Orchestrator.ParsedSchedule()
	if err != nil {
		return err
	}

	a.pools.Start(a.sup.Context())
	if a.recorder != nil {
		a.sup.Go("history.recorder", a.recorder.Run)
	}
	a.timers.Start()

	a.sched.Schedule(a.orch, orchSchedule)
	if a.prune != nil {
		pruneSchedule, err := cfg.History.ParsedPruneSchedule()
		if err != nil {
			return err
		}
		a.sched.Schedule(a.prune, pruneSchedule)
	}

	// A debug listener that cannot bind is not fatal.
	_ = a.debug.Apply(a.sup.Context(), mapDebugConfig(cfg))

	a.notify.ready(a.sup)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error { return a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.String("config", a.cfgPath),
		logx.Int("jobs", len(cfg.Jobs)),
		logx.Bool("paused", a.sched.Paused()),
	)
	return nil
}

// validateReload rejects configs the running process cannot apply.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	for cat, name := range cfg.Scheduler.CategoryPools {
		if _, ok := a.pools.Get(name); !ok {
			return fmt.Errorf("scheduler.category_pools.%s: pool %q is not running (restart required)", cat, name)
		}
	}
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notify.stopping()

	a.sup.Cancel()

	a.step(ctx, "debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	a.step(ctx, "scheduler", time.Second, func(context.Context) error { a.sched.Shutdown(); return nil })
	a.step(ctx, "timers", 2*time.Second, func(c context.Context) error { a.timers.Stop(c); return nil })
	a.step(ctx, "pools", 5*time.Second, a.pools.Stop)
	a.step(ctx, "units", time.Second, func(context.Context) error { return a.units.Close() })
	if a.recorder != nil {
		a.step(ctx, "history.recorder", time.Second, func(context.Context) error { a.recorder.Close(); return nil })
	}

	// Wait for supervised goroutines (recorder, config watch/reload, watchdog).
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	if a.store != nil {
		a.step(ctx, "history.store", time.Second, func(context.Context) error { return a.store.Close() })
	}

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// step runs fn bounded by max and the remaining ctx deadline. fn must honor
// its context; a step that overruns is logged and left running.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped: no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Warn("stop step finished after deadline",
				logx.String("name", name),
				logx.Err(err),
				logx.Duration("took", time.Since(start)),
			)
		}()
	}
}
