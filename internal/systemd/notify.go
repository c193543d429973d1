// Package systemd integrates the monitor with the service manager: readiness
// and watchdog notifications plus alert delivery to the journal.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/ngenohkevin/hivedeck-monitor/internal/logging"
)

// Ready tells systemd the monitor has started. It is a no-op outside a
// Type=notify unit.
func Ready() {
	notify(daemon.SdNotifyReady)
}

// Stopping tells systemd shutdown has begun
func Stopping() {
	notify(daemon.SdNotifyStopping)
}

// Watchdog pings the systemd watchdog at half the configured interval until
// ctx is done. alive reports whether the sampling loop is still making
// progress; a ping is skipped when it returns false.
func Watchdog(ctx context.Context, alive func() bool) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logging.Warn("systemd: watchdog settings invalid: %v", err)
		return
	}
	if interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if alive == nil || alive() {
				notify(daemon.SdNotifyWatchdog)
			}
		}
	}
}

func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn("systemd: notify %q failed: %v", state, err)
		return
	}
	if sent {
		logging.Debug("systemd: sent %s", state)
	}
}
