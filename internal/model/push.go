package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// PushMessage is the JSON body of an inbound push. Every field is optional.
type PushMessage struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Icon   string `json:"icon"`
	Badge  string `json:"badge"`
	Tag    string `json:"tag"`
	URL    string `json:"url"`
	RoomID RoomID `json:"room_id"`
}

// PushActions are offered on every notification created from a push.
var PushActions = []Action{
	{Action: ActionOpen, Title: "Open Chat"},
	{Action: ActionClose, Title: "Dismiss"},
}

// Payload resolves the message into a displayable payload, substituting a
// default for every absent field.
func (m PushMessage) Payload() Payload {
	return Payload{
		Title:              orDefault(m.Title, DefaultPushTitle),
		Body:               orDefault(m.Body, DefaultPushBody),
		Icon:               orDefault(m.Icon, DefaultChatIcon),
		Badge:              orDefault(m.Badge, DefaultBadge),
		Tag:                orDefault(m.Tag, DefaultTag),
		RequireInteraction: true,
		Actions:            append([]Action(nil), PushActions...),
		Data: Data{
			URL:    orDefault(m.URL, DefaultURL),
			RoomID: m.RoomID,
		},
	}
}

// DecodePush parses a push body. It never fails to produce a payload: an
// empty body yields all defaults, and each field that is malformed falls
// back to its default on its own. The returned error lists the bad fields
// so the caller can log it.
func DecodePush(data []byte) (Payload, error) {
	var msg PushMessage
	if len(bytes.TrimSpace(data)) == 0 {
		return msg.Payload(), nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return msg.Payload(), fmt.Errorf("decode push payload: %w", err)
	}

	targets := map[string]any{
		"title":   &msg.Title,
		"body":    &msg.Body,
		"icon":    &msg.Icon,
		"badge":   &msg.Badge,
		"tag":     &msg.Tag,
		"url":     &msg.URL,
		"room_id": &msg.RoomID,
	}
	var errs []error
	for name, raw := range fields {
		target, ok := targets[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			errs = append(errs, fmt.Errorf("push field %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return msg.Payload(), fmt.Errorf("decode push payload: %w", errors.Join(errs...))
	}
	return msg.Payload(), nil
}

// RouteMessageType is the type of the message posted into a focused window.
const RouteMessageType = "notification-click"

// RouteMessage is posted into an application window when a notification
// is clicked.
type RouteMessage struct {
	Type   string `json:"type"`
	RoomID RoomID `json:"room_id"`
}

// NewRouteMessage builds the notification-click message for a room.
func NewRouteMessage(roomID RoomID) RouteMessage {
	return RouteMessage{Type: RouteMessageType, RoomID: roomID}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
