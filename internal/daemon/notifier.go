package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// NotificationLevel indicates the severity of an internal notice.
type NotificationLevel int

const (
	NotificationLevelInfo NotificationLevel = iota
	NotificationLevelWarning
	NotificationLevelError
)

// Poster shows a payload on the notification server. notify.Backend
// satisfies it; internal notices bypass the dispatcher because they are
// about the agent itself, not the application.
type Poster interface {
	Notify(ctx context.Context, p model.Payload, kind model.Kind, replacesID uint32) (uint32, error)
}

// InternalNotifier reports agent events (config errors, failed deliveries)
// as desktop notifications. Repeats of the same key are rate limited.
type InternalNotifier struct {
	mu     sync.Mutex
	logger *slog.Logger
	poster Poster

	lastNotifyTime map[string]time.Time
	minInterval    time.Duration
	enabled        bool
}

// NewInternalNotifier creates an InternalNotifier.
func NewInternalNotifier(poster Poster, logger *slog.Logger) *InternalNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &InternalNotifier{
		logger:         logger,
		poster:         poster,
		lastNotifyTime: make(map[string]time.Time),
		minInterval:    5 * time.Second,
		enabled:        true,
	}
}

// SetEnabled enables or disables internal notices.
func (n *InternalNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// SetMinInterval sets the minimum interval between notices with the same key.
func (n *InternalNotifier) SetMinInterval(interval time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minInterval = interval
}

// Notify shows a notice unless one with the same key was shown within the
// minimum interval. It reports whether the notice was posted.
func (n *InternalNotifier) Notify(key, summary, body string, level NotificationLevel) bool {
	n.mu.Lock()
	if !n.enabled || n.poster == nil {
		n.mu.Unlock()
		n.logger.Debug("internal notification skipped", "key", key, "summary", summary)
		return false
	}
	if last, ok := n.lastNotifyTime[key]; ok && time.Since(last) < n.minInterval {
		n.mu.Unlock()
		n.logger.Debug("internal notification rate-limited", "key", key)
		return false
	}
	n.lastNotifyTime[key] = time.Now()
	poster := n.poster
	n.mu.Unlock()

	p := model.Payload{
		Title:              summary,
		Body:               body,
		Icon:               iconFor(level),
		Tag:                "chatnotify-" + key,
		RequireInteraction: level == NotificationLevelError,
		Silent:             true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := poster.Notify(ctx, p, model.KindInternal, 0); err != nil {
		n.logger.Warn("failed to send internal notification", "key", key, "error", err)
		return false
	}
	return true
}

func iconFor(level NotificationLevel) string {
	switch level {
	case NotificationLevelWarning:
		return "dialog-warning"
	case NotificationLevelError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}

// NotifyConfigReloaded reports a successful config reload.
func (n *InternalNotifier) NotifyConfigReloaded() {
	n.Notify("config-reload", "Configuration Reloaded",
		"chatnotifyd configuration has been reloaded.", NotificationLevelInfo)
}

// NotifyConfigError reports a config file that failed to load; the
// previous configuration stays in effect.
func (n *InternalNotifier) NotifyConfigError(err error) {
	n.Notify("config-error", "Configuration Error",
		"Failed to reload configuration: "+err.Error(), NotificationLevelWarning)
}

// NotifyAudioError reports a sound that could not be played.
func (n *InternalNotifier) NotifyAudioError(err error) {
	n.Notify("audio-error", "Audio Error",
		"Failed to play notification sound: "+err.Error(), NotificationLevelWarning)
}

// NotifySurfaceUnavailable reports an endpoint the agent could not acquire.
func (n *InternalNotifier) NotifySurfaceUnavailable(surface string, err error) {
	n.Notify("surface-"+surface, "chatnotifyd: "+surface+" unavailable",
		err.Error(), NotificationLevelWarning)
}

// NotifyDeliveryFailed reports a queued chat message that was given up on.
func (n *InternalNotifier) NotifyDeliveryFailed(msg model.OutboundMessage) {
	body := "A message to room " + msg.RoomID.String() + " could not be sent"
	if msg.LastError != "" {
		body += ": " + msg.LastError
	}
	n.Notify("delivery-"+msg.ID, "Message Not Delivered", body, NotificationLevelError)
}
