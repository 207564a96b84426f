// Package svc is the Service Glue (spec §4.7): it turns the Poll Loop, the
// Action Coordinator and their shared Client/Config into a long-running
// process with systemd readiness/watchdog notification, signal-driven
// shutdown and an optional journal log sink.
package svc

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/edgefleet/hawkbit-agent/cmn/log"
)

// Notifier wraps sd_notify so the rest of the agent never calls daemon
// directly. All methods are no-ops (not errors) when NOTIFY_SOCKET is
// unset, matching systemd's own "ignore it outside a unit" behavior.
type Notifier struct {
	logger      *log.Named
	watchdogSec time.Duration
}

// NewNotifier inspects WATCHDOG_USEC via daemon.SdWatchdogEnabled so the
// caller knows whether to start the heartbeat goroutine at all.
func NewNotifier(logger *log.Named) *Notifier {
	n := &Notifier{logger: logger}
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		n.watchdogSec = interval / 2
	}
	return n
}

// Ready sends READY=1, logging (not failing) when it cannot be delivered.
func (n *Notifier) Ready() {
	n.notify(daemon.SdNotifyReady, "READY")
}

// Stopping sends STOPPING=1 ahead of graceful shutdown.
func (n *Notifier) Stopping() {
	n.notify(daemon.SdNotifyStopping, "STOPPING")
}

// WatchdogInterval is the heartbeat period, half the unit's WatchdogSec, or
// zero when the unit has no WatchdogSec configured.
func (n *Notifier) WatchdogInterval() time.Duration {
	return n.watchdogSec
}

// Heartbeat sends WATCHDOG=1; the caller is expected to call it on its own
// ticker at least every WatchdogInterval — RunWatchdog below does this.
func (n *Notifier) Heartbeat() {
	n.notify(daemon.SdNotifyWatchdog, "WATCHDOG")
}

// RunWatchdog blocks, sending a heartbeat on the configured interval, until
// stop is closed. It is a no-op loop (returns immediately) if the unit has
// no watchdog configured.
func (n *Notifier) RunWatchdog(stop <-chan struct{}) {
	if n.watchdogSec <= 0 {
		return
	}
	ticker := time.NewTicker(n.watchdogSec)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.Heartbeat()
		case <-stop:
			return
		}
	}
}

func (n *Notifier) notify(state, label string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.logger.Warn("sd_notify " + label + " failed: " + err.Error())
		return
	}
	if !sent {
		n.logger.Debug("sd_notify " + label + " skipped (NOTIFY_SOCKET not set)")
	}
}
