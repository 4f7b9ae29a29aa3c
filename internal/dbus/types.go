package dbus

import (
	"slices"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// CloseReason represents the reason for closing a notification.
// These values are defined by the freedesktop.org notification specification.
type CloseReason uint32

const (
	// CloseReasonExpired indicates the notification expired (timeout reached).
	CloseReasonExpired CloseReason = 1
	// CloseReasonDismissed indicates the user dismissed the notification.
	CloseReasonDismissed CloseReason = 2
	// CloseReasonClosed indicates the notification was closed via CloseNotification.
	CloseReasonClosed CloseReason = 3
	// CloseReasonUndefined is reserved/undefined by freedesktop.org.
	CloseReasonUndefined CloseReason = 4
)

// String returns the string representation of the close reason.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonExpired:
		return "expired"
	case CloseReasonDismissed:
		return "dismissed"
	case CloseReasonClosed:
		return "closed"
	case CloseReasonUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// Urgency levels for the "urgency" hint.
const (
	UrgencyLow      byte = 0
	UrgencyNormal   byte = 1
	UrgencyCritical byte = 2
)

// Notification holds the arguments of an org.freedesktop.Notifications.Notify call.
type Notification struct {
	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []string // Alternating key, label pairs
	Hints         map[string]dbus.Variant
	ExpireTimeout int32 // -1 = server default, 0 = never expire
}

// Action represents a notification action with key and label.
type Action struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// ParsedActions converts the D-Bus action array to structured form.
// D-Bus actions are passed as alternating key/label pairs.
func (n *Notification) ParsedActions() []Action {
	actions := make([]Action, 0, len(n.Actions)/2)
	for i := 0; i+1 < len(n.Actions); i += 2 {
		actions = append(actions, Action{
			Key:   n.Actions[i],
			Label: n.Actions[i+1],
		})
	}
	return actions
}

// Urgency extracts the urgency hint from the notification.
// Returns UrgencyNormal if not specified.
func (n *Notification) Urgency() byte {
	if v, ok := n.Hints["urgency"]; ok {
		if b, ok := v.Value().(byte); ok {
			return b
		}
	}
	return UrgencyNormal
}

// Category extracts the category hint from the notification.
func (n *Notification) Category() string {
	return n.stringHint("category")
}

// DesktopEntry extracts the desktop-entry hint.
func (n *Notification) DesktopEntry() string {
	return n.stringHint("desktop-entry")
}

// ImagePath extracts the image-path hint.
func (n *Notification) ImagePath() string {
	return n.stringHint("image-path")
}

// StackTag extracts the stack-tag hint used by dunst and others to group
// notifications that replace each other.
func (n *Notification) StackTag() string {
	if s := n.stringHint("x-dunst-stack-tag"); s != "" {
		return s
	}
	return n.stringHint("stack-tag")
}

// SuppressSound returns true if the suppress-sound hint is set.
func (n *Notification) SuppressSound() bool {
	return n.boolHint("suppress-sound")
}

// Transient returns true if the transient hint is set.
func (n *Notification) Transient() bool {
	return n.boolHint("transient")
}

// Resident returns true if the resident hint is set.
// Resident notifications stay after an action is invoked.
func (n *Notification) Resident() bool {
	return n.boolHint("resident")
}

func (n *Notification) stringHint(key string) string {
	if v, ok := n.Hints[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func (n *Notification) boolHint(key string) bool {
	if v, ok := n.Hints[key]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}

// NotifyOptions controls how a payload is turned into a Notify call.
type NotifyOptions struct {
	AppName      string
	DesktopEntry string
	ReplacesID   uint32
	// ExpireTimeout in milliseconds for notifications that do not require
	// interaction. 0 means the server default.
	ExpireTimeout int32
	// ResolveIcon maps application-relative icon paths to something the
	// notification server can load. Nil keeps the path unchanged.
	ResolveIcon func(string) string
	Category    string
}

// FromPayload builds the Notify arguments for a resolved payload.
//
// requireInteraction maps to a never-expiring, resident, critical
// notification. The tag is passed as a stack tag so servers that group by
// tag agree with the replaces_id the dispatcher sends.
func FromPayload(p model.Payload, opts NotifyOptions) Notification {
	icon := p.Icon
	if opts.ResolveIcon != nil && icon != "" {
		icon = opts.ResolveIcon(icon)
	}

	// "default" is what servers invoke when the body itself is clicked.
	actions := make([]string, 0, len(p.Actions)*2+2)
	actions = append(actions, ActionDefault, "")
	for _, a := range p.Actions {
		actions = append(actions, a.Action, a.Title)
	}

	hints := map[string]dbus.Variant{
		"urgency":           dbus.MakeVariant(UrgencyNormal),
		"x-dunst-stack-tag": dbus.MakeVariant(p.Tag),
	}
	if opts.DesktopEntry != "" {
		hints["desktop-entry"] = dbus.MakeVariant(opts.DesktopEntry)
	}
	if opts.Category != "" {
		hints["category"] = dbus.MakeVariant(opts.Category)
	}
	if icon != "" {
		hints["image-path"] = dbus.MakeVariant(icon)
	}
	if p.Silent {
		hints["suppress-sound"] = dbus.MakeVariant(true)
	}

	timeout := int32(-1)
	if opts.ExpireTimeout > 0 {
		timeout = opts.ExpireTimeout
	}
	if p.RequireInteraction {
		timeout = 0
		hints["urgency"] = dbus.MakeVariant(UrgencyCritical)
		hints["resident"] = dbus.MakeVariant(true)
	}

	return Notification{
		AppName:       opts.AppName,
		ReplacesID:    opts.ReplacesID,
		AppIcon:       icon,
		Summary:       p.Title,
		Body:          p.Body,
		Actions:       actions,
		Hints:         hints,
		ExpireTimeout: timeout,
	}
}

// ActionDefault is the action key servers report when the notification
// body is clicked rather than a button.
const ActionDefault = "default"

// Capabilities is the list returned by GetCapabilities.
type Capabilities []string

// Has reports whether the server advertises the capability.
func (c Capabilities) Has(capability string) bool {
	return slices.Contains(c, capability)
}

// Actions reports whether the server can show action buttons.
func (c Capabilities) Actions() bool {
	return c.Has("actions")
}

// ServerInfo contains information about the notification server.
type ServerInfo struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}
