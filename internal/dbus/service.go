package dbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/chatnotify/internal/model"
)

const (
	// ServiceInterface is the chatnotify D-Bus interface name.
	ServiceInterface = "io.github.jmylchreest.ChatNotify"
	// ServicePath is the chatnotify object path.
	ServicePath = "/io/github/jmylchreest/ChatNotify"
	// ServiceBusName is the bus name claimed by chatnotifyd.
	ServiceBusName = "io.github.jmylchreest.ChatNotify"
)

// Handler performs the work behind the service methods.
type Handler interface {
	RequestPermission(ctx context.Context) bool
	Permission() model.PermissionState
	Show(ctx context.Context, title string, opts model.Options) (bool, error)
	ShowChatNotification(ctx context.Context, sender, message string, roomID model.RoomID) (bool, error)
	ShowPaymentNotification(ctx context.Context, message string) (bool, error)
}

// Service exports the chatnotify handle on the session bus so other
// processes (the CLI, scripts) can ask the agent to notify.
type Service struct {
	conn    *dbus.Conn
	handler Handler
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	running bool
}

// NewService creates a Service. callTimeout bounds each method call,
// including a consent prompt started by RequestPermission.
func NewService(handler Handler, callTimeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if callTimeout <= 0 {
		callTimeout = 2 * time.Minute
	}
	return &Service{
		handler: handler,
		logger:  logger,
		timeout: callTimeout,
	}
}

// Start exports the service on conn and claims the bus name.
func (s *Service) Start(conn *dbus.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("service already running")
	}
	s.conn = conn

	if err := conn.Export(s, ServicePath, ServiceInterface); err != nil {
		return fmt.Errorf("failed to export object: %w", err)
	}

	node := &introspect.Node{
		Name: ServicePath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    ServiceInterface,
				Methods: serviceMethods(),
				Signals: serviceSignals(),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ServicePath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(ServiceBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", ServiceBusName)
	}

	s.running = true
	s.logger.Info("D-Bus service started", "interface", ServiceInterface, "path", ServicePath)
	return nil
}

// Stop releases the bus name. The shared session connection stays open.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if _, err := s.conn.ReleaseName(ServiceBusName); err != nil {
		s.logger.Warn("failed to release bus name", "error", err)
	}
	_ = s.conn.Export(nil, ServicePath, ServiceInterface)
	_ = s.conn.Export(nil, ServicePath, "org.freedesktop.DBus.Introspectable")

	s.logger.Info("D-Bus service stopped")
	return nil
}

func (s *Service) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// RequestPermission asks for consent if needed.
// D-Bus method: RequestPermission() -> b
func (s *Service) RequestPermission() (bool, *dbus.Error) {
	ctx, cancel := s.callContext()
	defer cancel()

	granted := s.handler.RequestPermission(ctx)
	s.logger.Debug("RequestPermission called", "granted", granted)
	return granted, nil
}

// GetPermission returns the current permission state.
// D-Bus method: GetPermission() -> s
func (s *Service) GetPermission() (string, *dbus.Error) {
	return s.handler.Permission().String(), nil
}

// Show displays a notification with the foreground defaults.
// Empty arguments keep their defaults.
// D-Bus method: Show(sssss) -> b
func (s *Service) Show(title, body, tag, url, room string) (bool, *dbus.Error) {
	if title == "" {
		return false, dbus.MakeFailedError(fmt.Errorf("title cannot be empty"))
	}

	opts := model.Options{}
	if body != "" {
		opts.Body = model.Ptr(body)
	}
	if tag != "" {
		opts.Tag = model.Ptr(tag)
	}
	if url != "" || room != "" {
		opts.Data = &model.Data{URL: url, RoomID: model.ParseRoomID(room)}
	}

	ctx, cancel := s.callContext()
	defer cancel()

	shown, err := s.handler.Show(ctx, title, opts)
	if err != nil {
		return false, dbus.MakeFailedError(err)
	}
	return shown, nil
}

// ShowChatNotification displays a chat message notification.
// D-Bus method: ShowChatNotification(sss) -> b
func (s *Service) ShowChatNotification(sender, message, room string) (bool, *dbus.Error) {
	ctx, cancel := s.callContext()
	defer cancel()

	shown, err := s.handler.ShowChatNotification(ctx, sender, message, model.ParseRoomID(room))
	if err != nil {
		return false, dbus.MakeFailedError(err)
	}
	return shown, nil
}

// ShowPaymentNotification displays a payment confirmation.
// D-Bus method: ShowPaymentNotification(s) -> b
func (s *Service) ShowPaymentNotification(message string) (bool, *dbus.Error) {
	ctx, cancel := s.callContext()
	defer cancel()

	shown, err := s.handler.ShowPaymentNotification(ctx, message)
	if err != nil {
		return false, dbus.MakeFailedError(err)
	}
	return shown, nil
}

func serviceMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "RequestPermission",
			Args: []introspect.Arg{
				{Name: "granted", Type: "b", Direction: "out"},
			},
		},
		{
			Name: "GetPermission",
			Args: []introspect.Arg{
				{Name: "state", Type: "s", Direction: "out"},
			},
		},
		{
			Name: "Show",
			Args: []introspect.Arg{
				{Name: "title", Type: "s", Direction: "in"},
				{Name: "body", Type: "s", Direction: "in"},
				{Name: "tag", Type: "s", Direction: "in"},
				{Name: "url", Type: "s", Direction: "in"},
				{Name: "room_id", Type: "s", Direction: "in"},
				{Name: "shown", Type: "b", Direction: "out"},
			},
		},
		{
			Name: "ShowChatNotification",
			Args: []introspect.Arg{
				{Name: "sender", Type: "s", Direction: "in"},
				{Name: "message", Type: "s", Direction: "in"},
				{Name: "room_id", Type: "s", Direction: "in"},
				{Name: "shown", Type: "b", Direction: "out"},
			},
		},
		{
			Name: "ShowPaymentNotification",
			Args: []introspect.Arg{
				{Name: "message", Type: "s", Direction: "in"},
				{Name: "shown", Type: "b", Direction: "out"},
			},
		},
	}
}

func serviceSignals() []introspect.Signal {
	return []introspect.Signal{
		{
			Name: "PermissionChanged",
			Args: []introspect.Arg{
				{Name: "state", Type: "s"},
			},
		},
	}
}

// ServiceClient calls a running chatnotifyd over the session bus.
type ServiceClient struct {
	obj dbus.BusObject
}

// NewServiceClient returns a client for the chatnotify service on conn.
func NewServiceClient(conn *dbus.Conn) *ServiceClient {
	return &ServiceClient{obj: conn.Object(ServiceBusName, ServicePath)}
}

// RequestPermission asks the agent to prompt for consent if needed.
func (c *ServiceClient) RequestPermission(ctx context.Context) (bool, error) {
	var granted bool
	err := c.obj.CallWithContext(ctx, ServiceInterface+".RequestPermission", 0).Store(&granted)
	return granted, wrapCall("RequestPermission", err)
}

// Permission returns the agent's current permission state.
func (c *ServiceClient) Permission(ctx context.Context) (model.PermissionState, error) {
	var state string
	if err := c.obj.CallWithContext(ctx, ServiceInterface+".GetPermission", 0).Store(&state); err != nil {
		return model.PermissionDefault, wrapCall("GetPermission", err)
	}
	return model.ParsePermissionState(state)
}

// Show asks the agent to display a notification.
func (c *ServiceClient) Show(ctx context.Context, title, body, tag, url, room string) (bool, error) {
	var shown bool
	err := c.obj.CallWithContext(ctx, ServiceInterface+".Show", 0, title, body, tag, url, room).Store(&shown)
	return shown, wrapCall("Show", err)
}

// ShowChatNotification asks the agent to display a chat notification.
func (c *ServiceClient) ShowChatNotification(ctx context.Context, sender, message, room string) (bool, error) {
	var shown bool
	err := c.obj.CallWithContext(ctx, ServiceInterface+".ShowChatNotification", 0, sender, message, room).Store(&shown)
	return shown, wrapCall("ShowChatNotification", err)
}

// ShowPaymentNotification asks the agent to display a payment notification.
func (c *ServiceClient) ShowPaymentNotification(ctx context.Context, message string) (bool, error) {
	var shown bool
	err := c.obj.CallWithContext(ctx, ServiceInterface+".ShowPaymentNotification", 0, message).Store(&shown)
	return shown, wrapCall("ShowPaymentNotification", err)
}

func wrapCall(method string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %w", ServiceInterface, method, err)
}
