// Package model defines the core data structures for chatnotify.
package model

import "slices"

// Default asset paths served by the application.
const (
	DefaultIcon             = "/static/started/images/notification-icon.png"
	DefaultChatIcon         = "/static/started/images/chat-icon.png"
	DefaultBadge            = "/static/started/images/badge-icon.png"
	DefaultPaymentIcon      = "/static/started/images/success-icon.png"
	DefaultTag              = "chat-message"
	DefaultURL              = "/"
	DefaultPushTitle        = "New Message"
	DefaultPushBody         = "You have a new message"
	ActionOpen              = "open"
	ActionClose             = "close"
	ActionReply             = "reply"
	ActionView              = "view"
	NotificationTypeChat    = "chat"
	NotificationTypePayment = "payment"
)

// Action is a button offered on a notification.
type Action struct {
	Action string `json:"action" yaml:"action"`
	Title  string `json:"title" yaml:"title"`
}

// Data is the routing information carried by a notification.
type Data struct {
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
	RoomID RoomID `json:"room_id" yaml:"room_id,omitempty"`
	Type   string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Payload is a fully resolved notification, ready to be displayed.
// Payloads are not modified after dispatch.
type Payload struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Icon               string   `json:"icon"`
	Badge              string   `json:"badge"`
	Tag                string   `json:"tag"`
	RequireInteraction bool     `json:"require_interaction"`
	Silent             bool     `json:"silent,omitempty"`
	Actions            []Action `json:"actions,omitempty"`
	Data               Data     `json:"data"`
}

// HasAction reports whether the payload offers the given action key.
func (p Payload) HasAction(key string) bool {
	return slices.ContainsFunc(p.Actions, func(a Action) bool { return a.Action == key })
}

// DefaultPayload returns the defaults used by the foreground dispatcher.
func DefaultPayload() Payload {
	return Payload{
		Icon:               DefaultIcon,
		Badge:              DefaultBadge,
		Tag:                DefaultTag,
		RequireInteraction: false,
	}
}

// Options is a partial Payload supplied by a caller. Nil fields fall back
// to the defaults they are merged over.
type Options struct {
	Body               *string
	Icon               *string
	Badge              *string
	Tag                *string
	RequireInteraction *bool
	Silent             *bool
	Actions            []Action
	Data               *Data
}

// Merge overlays the options on defaults and sets the title. Caller values
// always win; a nil Actions slice keeps the default actions while an empty
// non-nil slice clears them.
func (o Options) Merge(title string, defaults Payload) Payload {
	p := defaults
	p.Title = title
	if o.Body != nil {
		p.Body = *o.Body
	}
	if o.Icon != nil {
		p.Icon = *o.Icon
	}
	if o.Badge != nil {
		p.Badge = *o.Badge
	}
	if o.Tag != nil {
		p.Tag = *o.Tag
	}
	if o.RequireInteraction != nil {
		p.RequireInteraction = *o.RequireInteraction
	}
	if o.Silent != nil {
		p.Silent = *o.Silent
	}
	if o.Actions != nil {
		p.Actions = slices.Clone(o.Actions)
	} else {
		p.Actions = slices.Clone(defaults.Actions)
	}
	if o.Data != nil {
		p.Data = *o.Data
	}
	return p
}

// Ptr returns a pointer to v. It keeps Options literals short.
func Ptr[T any](v T) *T {
	return &v
}
