// Package notify displays notifications: it merges caller options over
// defaults, applies the permission and focus policies, and keeps one
// visible notification per tag.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// Dispatch policies.
const (
	// PolicyAlways shows notifications whenever permission is granted.
	PolicyAlways = "always"
	// PolicyUnlessFocused skips notifications while an application window
	// has focus.
	PolicyUnlessFocused = "unless-focused"
)

// Reasons a notification was not shown.
const (
	SuppressedUnsupported = "unsupported"
	SuppressedPermission  = "permission"
	SuppressedFocused     = "focused"
)

// ErrEmptyTitle is returned when a notification has no title.
var ErrEmptyTitle = errors.New("notification title cannot be empty")

// ErrUnknownPolicy is returned for a dispatch policy other than the known ones.
var ErrUnknownPolicy = errors.New("unknown dispatch policy")

// Backend displays notifications. The D-Bus notification server is the
// production implementation.
type Backend interface {
	Notify(ctx context.Context, p model.Payload, kind model.Kind, replacesID uint32) (uint32, error)
	Close(ctx context.Context, id uint32) error
}

// Permission reports whether notifications may be shown.
type Permission interface {
	Supported() bool
	Granted() bool
}

// FocusReporter reports whether an application window currently has focus.
type FocusReporter interface {
	AnyFocused() bool
}

// History records displayed notifications.
type History interface {
	Add(n model.Notification) error
	MarkReplaced(id, replacedBy string) error
}

// SoundPlayer plays the sound configured for a notification kind.
type SoundPlayer interface {
	PlayForKind(kind model.Kind)
}

// Result describes the outcome of a dispatch.
type Result struct {
	Shown      bool
	Suppressed string // reason when not shown
	BackendID  uint32
	HistoryID  string
	// Replaced is the server id of the notification this one replaced.
	Replaced uint32
	Payload  model.Payload
}

// Dispatcher shows notifications through a Backend.
type Dispatcher struct {
	backend    Backend
	permission Permission
	tracker    *Tracker
	logger     *slog.Logger

	mu      sync.RWMutex
	policy  string
	focus   FocusReporter
	history History
	sounds  SoundPlayer
}

// NewDispatcher creates a Dispatcher with the given default policy.
func NewDispatcher(backend Backend, permission Permission, policy string, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}
	return &Dispatcher{
		backend:    backend,
		permission: permission,
		tracker:    NewTracker(),
		logger:     logger,
		policy:     policy,
	}, nil
}

func validatePolicy(policy string) error {
	switch policy {
	case PolicyAlways, PolicyUnlessFocused:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
}

// SetPolicy changes the default dispatch policy.
func (d *Dispatcher) SetPolicy(policy string) error {
	if err := validatePolicy(policy); err != nil {
		return err
	}
	d.mu.Lock()
	d.policy = policy
	d.mu.Unlock()
	return nil
}

// Policy returns the default dispatch policy.
func (d *Dispatcher) Policy() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.policy
}

// SetFocusReporter sets the source of window focus for PolicyUnlessFocused.
func (d *Dispatcher) SetFocusReporter(f FocusReporter) {
	d.mu.Lock()
	d.focus = f
	d.mu.Unlock()
}

// SetHistory sets the store that records displayed notifications.
func (d *Dispatcher) SetHistory(h History) {
	d.mu.Lock()
	d.history = h
	d.mu.Unlock()
}

// SetSoundPlayer sets the player used for notification sounds.
func (d *Dispatcher) SetSoundPlayer(s SoundPlayer) {
	d.mu.Lock()
	d.sounds = s
	d.mu.Unlock()
}

// Tracker returns the tag tracker.
func (d *Dispatcher) Tracker() *Tracker {
	return d.tracker
}

// Show displays a notification using the default policy.
func (d *Dispatcher) Show(ctx context.Context, title string, opts model.Options) (Result, error) {
	return d.ShowWithPolicy(ctx, d.Policy(), title, opts)
}

// ShowWithPolicy displays a notification using the given policy. Caller
// options override the foreground defaults.
func (d *Dispatcher) ShowWithPolicy(ctx context.Context, policy, title string, opts model.Options) (Result, error) {
	if title == "" {
		return Result{}, ErrEmptyTitle
	}
	return d.Display(ctx, policy, model.KindCustom, opts.Merge(title, model.DefaultPayload()))
}

// ShowChatNotification displays a new chat message from sender.
func (d *Dispatcher) ShowChatNotification(ctx context.Context, sender, message string, roomID model.RoomID) (Result, error) {
	opts := model.Options{
		Body: model.Ptr(message),
		Tag:  model.Ptr("chat-" + roomID.String()),
		Data: &model.Data{RoomID: roomID, Type: model.NotificationTypeChat},
		Actions: []model.Action{
			{Action: model.ActionReply, Title: "Reply"},
			{Action: model.ActionView, Title: "View Chat"},
		},
	}
	p := opts.Merge("New message from "+sender, model.DefaultPayload())
	return d.Display(ctx, d.Policy(), model.KindChat, p)
}

// ShowPaymentNotification displays a payment confirmation.
func (d *Dispatcher) ShowPaymentNotification(ctx context.Context, message string) (Result, error) {
	opts := model.Options{
		Body: model.Ptr(message),
		Icon: model.Ptr(model.DefaultPaymentIcon),
		Tag:  model.Ptr("payment-success"),
		Data: &model.Data{Type: model.NotificationTypePayment},
	}
	p := opts.Merge("Payment Successful", model.DefaultPayload())
	return d.Display(ctx, d.Policy(), model.KindPayment, p)
}

// ShowWelcome confirms that notifications were enabled.
func (d *Dispatcher) ShowWelcome(ctx context.Context) (Result, error) {
	opts := model.Options{
		Body: model.Ptr("You will receive notifications for new messages"),
		Tag:  model.Ptr("welcome"),
	}
	p := opts.Merge("Chat Notifications Enabled", model.DefaultPayload())
	return d.Display(ctx, PolicyAlways, model.KindWelcome, p)
}

// Display shows a fully resolved payload. It is a silent no-op when the
// capability is missing, permission is not granted or, under
// PolicyUnlessFocused, a window has focus.
func (d *Dispatcher) Display(ctx context.Context, policy string, kind model.Kind, p model.Payload) (Result, error) {
	if err := validatePolicy(policy); err != nil {
		return Result{}, err
	}
	if p.Tag == "" {
		p.Tag = model.DefaultTag
	}

	if reason := d.suppression(policy); reason != "" {
		d.logger.Debug("notification suppressed", "reason", reason, "tag", p.Tag, "title", p.Title)
		return Result{Suppressed: reason, Payload: p}, nil
	}

	unlock := d.tracker.LockTag(p.Tag)
	defer unlock()

	replacesID := d.tracker.ReplaceID(p.Tag)
	id, err := d.backend.Notify(ctx, p, kind, replacesID)
	if err != nil {
		return Result{Payload: p}, fmt.Errorf("show notification: %w", err)
	}

	res := Result{Shown: true, BackendID: id, Payload: p}
	entry := Entry{Tag: p.Tag, BackendID: id, Kind: kind, Payload: p}

	d.mu.RLock()
	history, sounds := d.history, d.sounds
	d.mu.RUnlock()

	if history != nil {
		entry.HistoryID = d.record(history, kind, id, p)
		res.HistoryID = entry.HistoryID
	}

	if prev, replaced := d.tracker.Register(entry); replaced {
		res.Replaced = prev.BackendID
		if history != nil && prev.HistoryID != "" && entry.HistoryID != "" {
			if err := history.MarkReplaced(prev.HistoryID, entry.HistoryID); err != nil {
				d.logger.Warn("failed to mark notification replaced", "error", err)
			}
		}
	}

	if sounds != nil && !p.Silent {
		sounds.PlayForKind(kind)
	}

	d.logger.Debug("notification shown", "id", id, "tag", p.Tag, "kind", kind, "replaces_id", replacesID)
	return res, nil
}

func (d *Dispatcher) suppression(policy string) string {
	if !d.permission.Supported() {
		return SuppressedUnsupported
	}
	if !d.permission.Granted() {
		return SuppressedPermission
	}
	if policy == PolicyUnlessFocused {
		d.mu.RLock()
		focus := d.focus
		d.mu.RUnlock()
		if focus != nil && focus.AnyFocused() {
			return SuppressedFocused
		}
	}
	return ""
}

func (d *Dispatcher) record(history History, kind model.Kind, backendID uint32, p model.Payload) string {
	n, err := model.NewNotification(kind, p)
	if err != nil {
		d.logger.Warn("failed to create history record", "error", err)
		return ""
	}
	n.BackendID = backendID
	if err := history.Add(*n); err != nil {
		d.logger.Warn("failed to record notification", "error", err)
		return ""
	}
	return n.ID
}

// Close closes the notification currently shown for tag. Unknown tags are
// ignored.
func (d *Dispatcher) Close(ctx context.Context, tag string) error {
	e, ok := d.tracker.ByTag(tag)
	if !ok {
		return nil
	}
	return d.CloseID(ctx, e.BackendID)
}

// CloseID closes a notification by server id.
func (d *Dispatcher) CloseID(ctx context.Context, id uint32) error {
	d.tracker.Remove(id)
	if err := d.backend.Close(ctx, id); err != nil {
		return fmt.Errorf("close notification %d: %w", id, err)
	}
	return nil
}

// Lookup maps a server id back to the dispatched notification.
func (d *Dispatcher) Lookup(id uint32) (Entry, bool) {
	return d.tracker.Lookup(id)
}

// Forget drops a notification the server reported closed.
func (d *Dispatcher) Forget(id uint32) (Entry, bool) {
	return d.tracker.Remove(id)
}
