package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/sony/gobreaker"

	"jobsched/internal/config"
	logx "jobsched/pkg/logx"
	"jobsched/pkg/systemdmanager"
)

const (
	outputTail       = 4 << 10
	commandWaitDelay = 5 * time.Second
	httpDrainLimit   = 64 << 10

	// A unit whose restart failed this many times in a row is left alone
	// for restartCooldown before the next attempt.
	restartTrips    = 3
	restartCooldown = 5 * time.Minute
)

// Runner executes one kind of declared job.
type Runner interface {
	Run(ctx context.Context, decl config.JobConfig) error
}

type RunnerFunc func(ctx context.Context, decl config.JobConfig) error

func (f RunnerFunc) Run(ctx context.Context, decl config.JobConfig) error { return f(ctx, decl) }

// Runners maps a job type to its runner.
type Runners map[string]Runner

// UnitController is the part of systemdmanager.Manager the unit kind uses.
type UnitController interface {
	Status(ctx context.Context, unit string) (systemdmanager.UnitStatus, error)
	Restart(ctx context.Context, unit string) error
}

type Deps struct {
	Log    logx.Logger
	Client *http.Client
	Units  UnitController
}

// DefaultRunners returns the runners for every built-in kind. The unit kind is
// only present when deps carries a controller.
func DefaultRunners(d Deps) Runners {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	log := d.Log.With(logx.String("comp", "jobs"))
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	rs := Runners{
		config.KindHeartbeat: heartbeat{log: log},
		config.KindHTTP:      httpProbe{log: log, client: client},
		config.KindCommand:   command{log: log},
	}
	if d.Units != nil {
		rs[config.KindUnit] = newUnitCheck(log, d.Units, restartCooldown)
	}
	return rs
}

type heartbeat struct{ log logx.Logger }

func (h heartbeat) Run(_ context.Context, d config.JobConfig) error {
	h.log.Info("heartbeat", logx.String("job", d.Key()), logx.String("desc", d.Description))
	return nil
}

type httpProbe struct {
	log    logx.Logger
	client *http.Client
}

func (p httpProbe) Run(ctx context.Context, d config.JobConfig) error {
	method := strings.ToUpper(strings.TrimSpace(d.HTTP.Method))
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, d.HTTP.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "jobsched")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, d.HTTP.URL, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, httpDrainLimit))
	_ = resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if d.HTTP.ExpectStatus > 0 {
		ok = resp.StatusCode == d.HTTP.ExpectStatus
	}
	if !ok {
		return fmt.Errorf("%s %s: %w %d", method, d.HTTP.URL, ErrUnexpectedStatus, resp.StatusCode)
	}
	p.log.Debug("http probe ok",
		logx.String("job", d.Key()),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}

type command struct{ log logx.Logger }

func (c command) Run(ctx context.Context, d config.JobConfig) error {
	argv, err := shellquote.Split(d.Command.Run)
	if err != nil {
		return fmt.Errorf("command.run: %w", err)
	}
	if len(argv) == 0 {
		return fmt.Errorf("command.run is empty")
	}

	var out tailBuffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = d.Command.Dir
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = commandWaitDelay

	if err := cmd.Run(); err != nil {
		if msg := out.String(); msg != "" {
			return fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	c.log.Debug("command finished", logx.String("job", d.Key()), logx.String("output", out.String()))
	return nil
}

// tailBuffer keeps the last outputTail bytes written to it.
type tailBuffer struct{ b bytes.Buffer }

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > outputTail {
		p = p[len(p)-outputTail:]
	}
	if over := t.b.Len() + len(p) - outputTail; over > 0 {
		t.b.Next(over)
	}
	t.b.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string { return strings.TrimSpace(t.b.String()) }

type unitCheck struct {
	log      logx.Logger
	units    UnitController
	cooldown time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newUnitCheck(log logx.Logger, units UnitController, cooldown time.Duration) *unitCheck {
	return &unitCheck{
		log:      log,
		units:    units,
		cooldown: cooldown,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (u *unitCheck) Run(ctx context.Context, d config.JobConfig) error {
	st, err := u.units.Status(ctx, d.Unit.Name)
	if err != nil {
		return err
	}
	if !st.Found() {
		return fmt.Errorf("%w: %s not found", ErrUnitInactive, st.Name)
	}
	if st.Running() {
		return nil
	}
	if !d.Unit.Restart {
		return fmt.Errorf("%w: %s is %s/%s", ErrUnitInactive, st.Name, st.Active, st.SubState)
	}

	_, err = u.breaker(st.Name).Execute(func() (any, error) {
		return nil, u.units.Restart(ctx, d.Unit.Name)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %s restart suppressed after repeated failures: %w", ErrUnitInactive, st.Name, err)
	case err != nil:
		return err
	}
	u.log.Warn("unit restarted",
		logx.String("job", d.Key()),
		logx.String("unit", st.Name),
		logx.String("was", st.Active+"/"+st.SubState),
	)
	return nil
}

// breaker returns the restart breaker of a unit, shared by every job that
// watches it.
func (u *unitCheck) breaker(unit string) *gobreaker.CircuitBreaker {
	u.mu.Lock()
	defer u.mu.Unlock()
	if cb, ok := u.breakers[unit]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        unit,
		MaxRequests: 1,
		Timeout:     u.cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= restartTrips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			u.log.Warn("unit restart breaker",
				logx.String("unit", name),
				logx.String("from", from.String()),
				logx.String("to", to.String()),
			)
		},
	})
	u.breakers[unit] = cb
	return cb
}
