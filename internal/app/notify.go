package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"tileboard/pkg/logx"
)

// sdNotify reports state to systemd. Outside systemd it is a no-op.
var sdNotify = func(state string) (bool, error) { return daemon.SdNotify(false, state) }

func (a *App) notify(state string) {
	sent, err := sdNotify(state)
	if err != nil {
		a.log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("systemd notified", logx.String("state", state))
	}
}

// watchdog pings the systemd watchdog at half its interval until ctx ends.
// It returns at once when the watchdog is not enabled for this unit.
func (a *App) watchdog(ctx context.Context) error {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil || every <= 0 {
		return err
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if a.sup.Err() == nil {
				a.notify(daemon.SdNotifyWatchdog)
			}
		}
	}
}
