package dbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	// NotificationsInterface is the freedesktop notification interface name.
	NotificationsInterface = "org.freedesktop.Notifications"
	// NotificationsPath is the notification object path.
	NotificationsPath = "/org/freedesktop/Notifications"
	// NotificationsBusName is the bus name owned by the notification server.
	NotificationsBusName = "org.freedesktop.Notifications"
)

// ErrNoServer is returned when no notification server owns the bus name.
var ErrNoServer = errors.New("no notification server on the session bus")

// SignalKind identifies a notification server signal.
type SignalKind int

const (
	// SignalActionInvoked is emitted when the user invokes an action.
	SignalActionInvoked SignalKind = iota
	// SignalClosed is emitted when a notification is closed.
	SignalClosed
)

// Signal is a decoded ActionInvoked or NotificationClosed signal.
type Signal struct {
	Kind   SignalKind
	ID     uint32
	Action string      // SignalActionInvoked only
	Reason CloseReason // SignalClosed only
}

// ParseSignal decodes a raw D-Bus signal from the notification server.
// The second return is false for signals of any other kind.
func ParseSignal(sig *dbus.Signal) (Signal, bool) {
	if sig == nil || len(sig.Body) < 2 {
		return Signal{}, false
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return Signal{}, false
	}

	switch sig.Name {
	case NotificationsInterface + ".ActionInvoked":
		action, ok := sig.Body[1].(string)
		if !ok {
			return Signal{}, false
		}
		return Signal{Kind: SignalActionInvoked, ID: id, Action: action}, true
	case NotificationsInterface + ".NotificationClosed":
		reason, ok := sig.Body[1].(uint32)
		if !ok {
			return Signal{}, false
		}
		return Signal{Kind: SignalClosed, ID: id, Reason: CloseReason(reason)}, true
	}
	return Signal{}, false
}

// Client talks to the desktop notification server.
type Client struct {
	conn   *dbus.Conn
	obj    dbus.BusObject
	logger *slog.Logger

	mu          sync.Mutex
	subscribers []chan Signal
	listening   bool
}

// NewClient creates a client on an existing bus connection.
func NewClient(conn *dbus.Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:   conn,
		obj:    conn.Object(NotificationsBusName, NotificationsPath),
		logger: logger,
	}
}

// ConnectSession creates a client on the shared session bus connection.
func ConnectSession(logger *slog.Logger) (*Client, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return NewClient(conn, logger), nil
}

// Conn returns the underlying bus connection.
func (c *Client) Conn() *dbus.Conn {
	return c.conn
}

// Available reports whether a notification server currently owns the bus name.
func (c *Client) Available(ctx context.Context) bool {
	var hasOwner bool
	err := c.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, NotificationsBusName).Store(&hasOwner)
	if err != nil {
		c.logger.Debug("NameHasOwner failed", "error", err)
		return false
	}
	return hasOwner
}

// Capabilities returns the server capabilities.
// D-Bus method: GetCapabilities() -> as
func (c *Client) Capabilities(ctx context.Context) (Capabilities, error) {
	var caps []string
	if err := c.obj.CallWithContext(ctx, NotificationsInterface+".GetCapabilities", 0).Store(&caps); err != nil {
		return nil, fmt.Errorf("GetCapabilities: %w", err)
	}
	return Capabilities(caps), nil
}

// ServerInformation returns the server's name, vendor and versions.
// D-Bus method: GetServerInformation() -> (ssss)
func (c *Client) ServerInformation(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	err := c.obj.CallWithContext(ctx, NotificationsInterface+".GetServerInformation", 0).
		Store(&info.Name, &info.Vendor, &info.Version, &info.SpecVersion)
	if err != nil {
		return ServerInfo{}, fmt.Errorf("GetServerInformation: %w", err)
	}
	return info, nil
}

// Notify shows a notification and returns the id assigned by the server.
// D-Bus method: Notify(susssasa{sv}i) -> u
func (c *Client) Notify(ctx context.Context, n Notification) (uint32, error) {
	actions := n.Actions
	if actions == nil {
		actions = []string{}
	}
	hints := n.Hints
	if hints == nil {
		hints = map[string]dbus.Variant{}
	}

	var id uint32
	err := c.obj.CallWithContext(ctx, NotificationsInterface+".Notify", 0,
		n.AppName, n.ReplacesID, n.AppIcon, n.Summary, n.Body, actions, hints, n.ExpireTimeout,
	).Store(&id)
	if err != nil {
		return 0, fmt.Errorf("Notify: %w", err)
	}

	c.logger.Debug("Notify sent", "id", id, "replaces_id", n.ReplacesID, "summary", n.Summary)
	return id, nil
}

// CloseNotification asks the server to close a notification.
// D-Bus method: CloseNotification(u) -> nothing
func (c *Client) CloseNotification(ctx context.Context, id uint32) error {
	if err := c.obj.CallWithContext(ctx, NotificationsInterface+".CloseNotification", 0, id).Err; err != nil {
		return fmt.Errorf("CloseNotification %d: %w", id, err)
	}
	return nil
}

// Subscribe returns a channel that receives every ActionInvoked and
// NotificationClosed signal. The channel is closed when ctx is done.
// Signals are dropped for subscribers that fall behind.
func (c *Client) Subscribe(ctx context.Context) (<-chan Signal, error) {
	if err := c.listen(); err != nil {
		return nil, err
	}

	ch := make(chan Signal, 32)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.subscribers {
			if sub == ch {
				c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
				close(ch)
				return
			}
		}
	}()

	return ch, nil
}

// listen installs the match rules and starts the fan-out loop once.
func (c *Client) listen() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listening {
		return nil
	}

	for _, member := range []string{"ActionInvoked", "NotificationClosed"} {
		if err := c.conn.AddMatchSignal(
			dbus.WithMatchInterface(NotificationsInterface),
			dbus.WithMatchMember(member),
			dbus.WithMatchObjectPath(NotificationsPath),
		); err != nil {
			return fmt.Errorf("failed to add match for %s: %w", member, err)
		}
	}

	raw := make(chan *dbus.Signal, 64)
	c.conn.Signal(raw)
	c.listening = true

	go c.fanOut(raw)
	return nil
}

func (c *Client) fanOut(raw <-chan *dbus.Signal) {
	for sig := range raw {
		parsed, ok := ParseSignal(sig)
		if !ok {
			continue
		}

		c.mu.Lock()
		for _, sub := range c.subscribers {
			select {
			case sub <- parsed:
			default:
				c.logger.Warn("dropping notification signal, subscriber is slow", "id", parsed.ID)
			}
		}
		c.mu.Unlock()
	}
}
