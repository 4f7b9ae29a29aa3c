package notify

import (
	"context"
	"time"

	"github.com/jmylchreest/chatnotify/internal/dbus"
	"github.com/jmylchreest/chatnotify/internal/model"
)

// NotificationServer is the part of the D-Bus client used for display.
type NotificationServer interface {
	Notify(ctx context.Context, n dbus.Notification) (uint32, error)
	CloseNotification(ctx context.Context, id uint32) error
}

// DBusBackend displays payloads on the desktop notification server.
type DBusBackend struct {
	server      NotificationServer
	appName     string
	timeout     time.Duration
	resolveIcon func(string) string
}

// NewDBusBackend creates a DBusBackend. resolveIcon turns application
// icon paths into URLs or files the server can load; it may be nil.
func NewDBusBackend(server NotificationServer, appName string, timeout time.Duration, resolveIcon func(string) string) *DBusBackend {
	return &DBusBackend{
		server:      server,
		appName:     appName,
		timeout:     timeout,
		resolveIcon: resolveIcon,
	}
}

// Notify implements Backend.
func (b *DBusBackend) Notify(ctx context.Context, p model.Payload, kind model.Kind, replacesID uint32) (uint32, error) {
	n := dbus.FromPayload(p, dbus.NotifyOptions{
		AppName:       b.appName,
		DesktopEntry:  b.appName,
		ReplacesID:    replacesID,
		ExpireTimeout: int32(b.timeout.Milliseconds()),
		ResolveIcon:   b.resolveIcon,
		Category:      categoryFor(kind),
	})
	return b.server.Notify(ctx, n)
}

// Close implements Backend.
func (b *DBusBackend) Close(ctx context.Context, id uint32) error {
	return b.server.CloseNotification(ctx, id)
}

// categoryFor maps kinds to freedesktop notification categories.
func categoryFor(kind model.Kind) string {
	switch kind {
	case model.KindChat, model.KindPush:
		return "im.received"
	case model.KindPayment:
		return "transfer.complete"
	case model.KindInternal:
		return "device"
	default:
		return ""
	}
}
