package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"jobsched/internal/runtime/supervisor"
	logx "jobsched/pkg/logx"
)

// notifier reports lifecycle state to systemd. Outside a systemd unit every
// call is a no-op.
type notifier struct {
	log    logx.Logger
	active bool
}

func newNotifier(log logx.Logger) *notifier {
	return &notifier{log: log.With(logx.String("comp", "systemd"))}
}

// ready sends READY=1 and, when the unit sets WatchdogSec, keeps the
// watchdog fed from a supervised goroutine.
func (n *notifier) ready(sup *supervisor.Supervisor) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		n.log.Warn("sd_notify ready failed", logx.Err(err))
		return
	}
	if !sent {
		n.log.Debug("not running under systemd; notifications disabled")
		return
	}
	n.active = true

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.log.Warn("watchdog settings invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	n.log.Debug("watchdog enabled", logx.Duration("interval", interval))
	sup.Go("systemd.watchdog", func(ctx context.Context) error {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					n.log.Warn("watchdog ping failed", logx.Err(err))
				}
			}
		}
	})
}

func (n *notifier) reloading() { n.send(daemon.SdNotifyReloading) }
func (n *notifier) reloaded()  { n.send(daemon.SdNotifyReady) }
func (n *notifier) stopping()  { n.send(daemon.SdNotifyStopping) }

func (n *notifier) send(state string) {
	if !n.active {
		return
	}
	if _, err := daemon.SdNotify(false, state); err != nil {
		n.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
}
