package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/chatnotify/internal/dbus"
	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/notify"
)

// displayTimeout bounds a push display once it no longer follows the
// caller's context.
const displayTimeout = 30 * time.Second

// handlePush shows the pushed message. Missing or malformed fields fall
// back to the push defaults; the handler completes once display does.
// Display outlives the caller: a dropped request or shutdown does not stop
// a notification that is already being shown.
func (a *Agent) handlePush(ctx context.Context, e PushEvent) error {
	p, err := model.DecodePush(e.Data)
	if err != nil {
		a.logger.Warn("malformed push payload, defaulting bad fields", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), displayTimeout)
	defer cancel()
	res, err := a.notifier.Display(ctx, notify.PolicyAlways, model.KindPush, p)
	if err != nil {
		return fmt.Errorf("display push: %w", err)
	}
	if res.Suppressed != "" {
		a.logger.Debug("push not shown", "reason", res.Suppressed, "tag", p.Tag)
	}
	return nil
}

// handleClick closes the clicked notification and, unless the action was
// close, routes the user to the notification's URL. The body click and a
// missing action both mean open.
func (a *Agent) handleClick(ctx context.Context, e ClickEvent) error {
	entry, ok := a.notifier.Lookup(e.ID)
	if !ok {
		a.logger.Debug("click on untracked notification", "id", e.ID, "action", e.Action)
		return nil
	}

	action := e.Action
	if action == "" || action == dbus.ActionDefault {
		action = model.ActionOpen
	}

	if err := a.notifier.CloseID(ctx, e.ID); err != nil {
		a.logger.Debug("close after click failed", "id", e.ID, "error", err)
	}
	a.recordClick(entry, action)

	if action == model.ActionClose {
		a.logger.Debug("notification dismissed via action", "id", e.ID, "tag", entry.Tag)
		return nil
	}

	data := entry.Payload.Data
	res, err := a.router.Route(ctx, data.URL, data.RoomID)
	if err != nil {
		return fmt.Errorf("route click: %w", err)
	}
	a.logger.Debug("click routed", "id", e.ID, "action", action, "outcome", res.Outcome, "url", res.URL)
	return nil
}

func (a *Agent) recordClick(entry notify.Entry, action string) {
	if a.history == nil || entry.HistoryID == "" {
		return
	}
	if err := a.history.MarkClicked(entry.HistoryID, action); err != nil {
		a.logger.Warn("failed to record click", "id", entry.HistoryID, "error", err)
	}
}

// handleClose forgets a closed notification. User dismissals are recorded
// in history; nothing is routed.
func (a *Agent) handleClose(e CloseEvent) error {
	entry, ok := a.notifier.Forget(e.ID)
	if !ok {
		return nil
	}
	a.logger.Debug("notification closed", "id", e.ID, "tag", entry.Tag, "reason", e.Reason)

	if e.Reason != dbus.CloseReasonDismissed || a.history == nil || entry.HistoryID == "" {
		return nil
	}
	if err := a.history.Dismiss(entry.HistoryID); err != nil {
		a.logger.Warn("failed to record dismissal", "id", entry.HistoryID, "error", err)
	}
	return nil
}

func (a *Agent) handleSync(ctx context.Context, e SyncEvent) error {
	if e.Tag != SyncTagMessages {
		a.logger.Debug("ignoring sync", "tag", e.Tag)
		return nil
	}
	if a.syncer == nil {
		a.logger.Debug("no outbox configured, nothing to sync")
		return nil
	}

	report, err := a.syncer.Drain(ctx)
	if err != nil {
		return fmt.Errorf("sync messages: %w", err)
	}
	a.logger.Debug("messages synced", "sent", report.Sent, "failed", report.Failed)
	return nil
}
