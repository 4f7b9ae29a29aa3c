package permission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/chatnotify/internal/dbus"
	"github.com/jmylchreest/chatnotify/internal/model"
)

// Consent prompt action keys.
const (
	ActionAllow = "allow"
	ActionBlock = "block"
)

// StaticPrompter answers every prompt with a fixed decision.
type StaticPrompter struct {
	Grant bool
}

// Prompt implements Prompter.
func (p StaticPrompter) Prompt(context.Context) (model.PermissionState, error) {
	if p.Grant {
		return model.PermissionGranted, nil
	}
	return model.PermissionDenied, nil
}

// NotificationServer is the part of the D-Bus client the consent prompt needs.
type NotificationServer interface {
	Notify(ctx context.Context, n dbus.Notification) (uint32, error)
	CloseNotification(ctx context.Context, id uint32) error
	Subscribe(ctx context.Context) (<-chan dbus.Signal, error)
}

// DBusPrompter asks for consent with a notification carrying Allow and
// Block actions.
type DBusPrompter struct {
	server  NotificationServer
	appName string
	timeout time.Duration
	logger  *slog.Logger
}

// NewDBusPrompter creates a DBusPrompter. A zero timeout waits until the
// context is done.
func NewDBusPrompter(server NotificationServer, appName string, timeout time.Duration, logger *slog.Logger) *DBusPrompter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBusPrompter{
		server:  server,
		appName: appName,
		timeout: timeout,
		logger:  logger,
	}
}

// Prompt shows the consent notification and waits for an answer. Closing
// the notification or timing out leaves the decision at default.
func (p *DBusPrompter) Prompt(ctx context.Context) (model.PermissionState, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	// Subscribe before showing so an early answer is not missed.
	subCtx, stop := context.WithCancel(ctx)
	defer stop()
	signals, err := p.server.Subscribe(subCtx)
	if err != nil {
		return model.PermissionDefault, fmt.Errorf("subscribe to notification signals: %w", err)
	}

	id, err := p.server.Notify(ctx, dbus.Notification{
		AppName: p.appName,
		Summary: fmt.Sprintf("Allow %s to show notifications?", p.appName),
		Body:    "You will be notified about new chat messages and payments.",
		Actions: []string{ActionAllow, "Allow", ActionBlock, "Block"},
		Hints: dbus.FromPayload(model.Payload{
			Tag:                "permission",
			RequireInteraction: true,
		}, dbus.NotifyOptions{}).Hints,
		ExpireTimeout: 0,
	})
	if err != nil {
		return model.PermissionDefault, fmt.Errorf("show consent prompt: %w", err)
	}

	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				return model.PermissionDefault, p.expire(id, ctx.Err())
			}
			if sig.ID != id {
				continue
			}
			switch sig.Kind {
			case dbus.SignalActionInvoked:
				switch sig.Action {
				case ActionAllow:
					p.close(id)
					return model.PermissionGranted, nil
				case ActionBlock:
					p.close(id)
					return model.PermissionDenied, nil
				}
				p.logger.Debug("ignoring consent prompt action", "action", sig.Action)
			case dbus.SignalClosed:
				p.logger.Debug("consent prompt closed without answer", "reason", sig.Reason.String())
				return model.PermissionDefault, nil
			}
		case <-ctx.Done():
			return model.PermissionDefault, p.expire(id, ctx.Err())
		}
	}
}

// expire closes an unanswered prompt. A timeout is not an error: the
// decision simply stays at default.
func (p *DBusPrompter) expire(id uint32, cause error) error {
	p.close(id)
	if cause == context.DeadlineExceeded {
		p.logger.Info("consent prompt timed out")
		return nil
	}
	return cause
}

func (p *DBusPrompter) close(id uint32) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.server.CloseNotification(ctx, id); err != nil {
		p.logger.Debug("failed to close consent prompt", "id", id, "error", err)
	}
}
