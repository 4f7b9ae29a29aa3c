package model

import (
	"errors"
	"strings"
	"time"
)

// OutboundStatus is the delivery state of a queued message.
type OutboundStatus string

const (
	OutboundPending OutboundStatus = "pending"
	OutboundSent    OutboundStatus = "sent"
	OutboundFailed  OutboundStatus = "failed"
)

// ErrEmptyContent is returned when a message has no content.
var ErrEmptyContent = errors.New("message content required")

// OutboundMessage is a chat message queued while the server was unreachable.
type OutboundMessage struct {
	ID        string         `json:"id"`
	RoomID    RoomID         `json:"room_id"`
	ClientID  string         `json:"client_id,omitempty"`
	Content   string         `json:"content"`
	Status    OutboundStatus `json:"status"`
	Attempts  int            `json:"attempts"`
	LastError string         `json:"last_error,omitempty"`
	QueuedAt  int64          `json:"queued_at"`
	SentAt    int64          `json:"sent_at,omitempty"`
}

// NewOutboundMessage validates and queues a message.
func NewOutboundMessage(roomID RoomID, clientID, content string) (*OutboundMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	return &OutboundMessage{
		ID:       id,
		RoomID:   roomID,
		ClientID: clientID,
		Content:  content,
		Status:   OutboundPending,
		QueuedAt: time.Now().Unix(),
	}, nil
}

// Pending reports whether the message still awaits delivery.
func (m *OutboundMessage) Pending() bool {
	return m.Status == OutboundPending || m.Status == ""
}
