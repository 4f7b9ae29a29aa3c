package agent

import (
	"fmt"

	"github.com/jmylchreest/chatnotify/internal/dbus"
)

// SyncTagMessages is the sync tag that drains the outbound message queue.
const SyncTagMessages = "background-sync-messages"

// Event is one of InstallEvent, ActivateEvent, PushEvent, ClickEvent,
// CloseEvent or SyncEvent.
type Event interface {
	eventName() string
}

// InstallEvent is delivered once when the agent is set up.
type InstallEvent struct{}

// ActivateEvent makes the agent take control of event handling.
type ActivateEvent struct{}

// PushEvent carries a push message body from the application server.
type PushEvent struct {
	Data []byte
}

// ClickEvent is a click on a notification or one of its actions.
type ClickEvent struct {
	ID     uint32
	Action string
}

// CloseEvent reports a notification leaving the screen.
type CloseEvent struct {
	ID     uint32
	Reason dbus.CloseReason
}

// SyncEvent asks the agent to run the background sync named by Tag.
type SyncEvent struct {
	Tag string
}

func (InstallEvent) eventName() string  { return "install" }
func (ActivateEvent) eventName() string { return "activate" }
func (PushEvent) eventName() string     { return "push" }
func (ClickEvent) eventName() string    { return "notificationclick" }
func (CloseEvent) eventName() string    { return "notificationclose" }
func (SyncEvent) eventName() string     { return "sync" }

// EventFromSignal converts a notification server signal into an event.
func EventFromSignal(sig dbus.Signal) (Event, error) {
	switch sig.Kind {
	case dbus.SignalActionInvoked:
		return ClickEvent{ID: sig.ID, Action: sig.Action}, nil
	case dbus.SignalClosed:
		return CloseEvent{ID: sig.ID, Reason: sig.Reason}, nil
	}
	return nil, fmt.Errorf("unknown signal kind %d", sig.Kind)
}
