package daemon

import (
	"context"

	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/notify"
)

// Permissions is the part of the permission gate the service exposes.
type Permissions interface {
	RequestPermission(ctx context.Context) bool
	State() model.PermissionState
}

// Shower is the part of the dispatcher the service exposes.
type Shower interface {
	Show(ctx context.Context, title string, opts model.Options) (notify.Result, error)
	ShowChatNotification(ctx context.Context, sender, message string, roomID model.RoomID) (notify.Result, error)
	ShowPaymentNotification(ctx context.Context, message string) (notify.Result, error)
}

// ServiceHandler answers the session bus service methods from the
// permission gate and the dispatcher.
type ServiceHandler struct {
	permissions Permissions
	shower      Shower
}

// NewServiceHandler creates a ServiceHandler.
func NewServiceHandler(permissions Permissions, shower Shower) *ServiceHandler {
	return &ServiceHandler{permissions: permissions, shower: shower}
}

// RequestPermission asks for consent if it has not been decided yet.
func (h *ServiceHandler) RequestPermission(ctx context.Context) bool {
	return h.permissions.RequestPermission(ctx)
}

// Permission returns the current permission state.
func (h *ServiceHandler) Permission() model.PermissionState {
	return h.permissions.State()
}

// Show displays a notification with caller options.
func (h *ServiceHandler) Show(ctx context.Context, title string, opts model.Options) (bool, error) {
	return shown(h.shower.Show(ctx, title, opts))
}

// ShowChatNotification displays a chat message notification.
func (h *ServiceHandler) ShowChatNotification(ctx context.Context, sender, message string, roomID model.RoomID) (bool, error) {
	return shown(h.shower.ShowChatNotification(ctx, sender, message, roomID))
}

// ShowPaymentNotification displays a payment confirmation.
func (h *ServiceHandler) ShowPaymentNotification(ctx context.Context, message string) (bool, error) {
	return shown(h.shower.ShowPaymentNotification(ctx, message))
}

func shown(res notify.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return res.Shown, nil
}
