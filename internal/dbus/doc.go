// Package dbus talks to the desktop over the session bus. It is a client of
// the org.freedesktop.Notifications interface (Notify, CloseNotification,
// GetCapabilities and the ActionInvoked and NotificationClosed signals) and
// exports the io.github.jmylchreest.ChatNotify service that lets other
// processes ask the agent for permission or notifications.
package dbus
