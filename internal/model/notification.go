package model

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
)

// Kind classifies how a notification was produced.
type Kind string

const (
	KindPush     Kind = "push"
	KindChat     Kind = "chat"
	KindPayment  Kind = "payment"
	KindWelcome  Kind = "welcome"
	KindCustom   Kind = "custom"
	KindInternal Kind = "internal"
)

// Notification is a history record of a displayed notification.
type Notification struct {
	ID        string `json:"id" yaml:"id"`
	Kind      Kind   `json:"kind" yaml:"kind"`
	BackendID uint32 `json:"backend_id,omitempty" yaml:"backend_id,omitempty"`

	Title   string   `json:"title" yaml:"title"`
	Body    string   `json:"body" yaml:"body"`
	Icon    string   `json:"icon,omitempty" yaml:"icon,omitempty"`
	Tag     string   `json:"tag" yaml:"tag"`
	URL     string   `json:"url,omitempty" yaml:"url,omitempty"`
	RoomID  RoomID   `json:"room_id" yaml:"room_id"`
	Actions []Action `json:"actions,omitempty" yaml:"actions,omitempty"`

	Timestamp   int64  `json:"timestamp" yaml:"timestamp"`
	ClickedAt   int64  `json:"clicked_at,omitempty" yaml:"clicked_at,omitempty"`
	Action      string `json:"action,omitempty" yaml:"action,omitempty"` // last invoked action
	DismissedAt int64  `json:"dismissed_at,omitempty" yaml:"dismissed_at,omitempty"`
	ReplacedBy  string `json:"replaced_by,omitempty" yaml:"replaced_by,omitempty"`
}

// Validation errors.
var (
	ErrEmptyID          = errors.New("id cannot be empty")
	ErrEmptyTitle       = errors.New("title cannot be empty")
	ErrEmptyTag         = errors.New("tag cannot be empty")
	ErrInvalidTimestamp = errors.New("timestamp must be greater than 0")
)

// NewID returns a new ULID string.
func NewID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate ULID: %w", err)
	}
	return id.String(), nil
}

// NewNotification creates a history record for a displayed payload.
func NewNotification(kind Kind, p Payload) (*Notification, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	return &Notification{
		ID:        id,
		Kind:      kind,
		Title:     p.Title,
		Body:      p.Body,
		Icon:      p.Icon,
		Tag:       p.Tag,
		URL:       p.Data.URL,
		RoomID:    p.Data.RoomID,
		Actions:   append([]Action(nil), p.Actions...),
		Timestamp: time.Now().Unix(),
	}, nil
}

// Validate checks that the notification has all required fields.
func (n *Notification) Validate() error {
	if n.ID == "" {
		return ErrEmptyID
	}
	if n.Title == "" {
		return ErrEmptyTitle
	}
	if n.Tag == "" {
		return ErrEmptyTag
	}
	if n.Timestamp <= 0 {
		return ErrInvalidTimestamp
	}
	return nil
}

// RelativeTime returns a human-readable relative time such as "5 minutes ago".
func (n *Notification) RelativeTime() string {
	return humanize.Time(time.Unix(n.Timestamp, 0))
}

// BodyTruncated returns the body truncated to maxLen characters.
// If the body is longer, it is truncated and "..." is appended.
func (n *Notification) BodyTruncated(maxLen int) string {
	if maxLen <= 0 {
		return ""
	}

	// Collapse whitespace and newlines to single spaces
	body := []rune(strings.Join(strings.Fields(n.Body), " "))

	if len(body) <= maxLen {
		return string(body)
	}
	if maxLen <= 3 {
		return string(body[:maxLen])
	}
	return string(body[:maxLen-3]) + "..."
}

// IsClicked returns true if the user invoked an action on the notification.
func (n *Notification) IsClicked() bool {
	return n.ClickedAt > 0
}

// MarkClicked records an invoked action.
func (n *Notification) MarkClicked(action string) {
	n.ClickedAt = time.Now().Unix()
	n.Action = action
}

// IsDismissed returns true if the notification has been dismissed.
func (n *Notification) IsDismissed() bool {
	return n.DismissedAt > 0
}

// MarkDismissed marks the notification as dismissed at the current time.
func (n *Notification) MarkDismissed() {
	if n.DismissedAt == 0 {
		n.DismissedAt = time.Now().Unix()
	}
}

// Status summarises the notification's lifecycle for display.
func (n *Notification) Status() string {
	switch {
	case n.ReplacedBy != "":
		return "replaced"
	case n.IsClicked():
		return "clicked"
	case n.IsDismissed():
		return "dismissed"
	default:
		return "shown"
	}
}
