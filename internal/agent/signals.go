package agent

import (
	"context"

	"github.com/jmylchreest/chatnotify/internal/dbus"
)

// Listen dispatches notification server signals until ctx ends or the
// channel closes. Signals are handled in the order the server sent them:
// servers commonly follow ActionInvoked with NotificationClosed for the same
// id, and the click must see the notification before the close forgets it.
func (a *Agent) Listen(ctx context.Context, signals <-chan dbus.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			ev, err := EventFromSignal(sig)
			if err != nil {
				a.logger.Debug("ignoring signal", "error", err)
				continue
			}
			if err := a.Dispatch(ctx, ev); err != nil {
				a.logger.Warn("event handler failed", "event", ev.eventName(), "id", sig.ID, "error", err)
			}
		}
	}
}
