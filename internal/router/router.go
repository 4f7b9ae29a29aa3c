// Package router routes notification clicks to application windows.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// WindowClient is an attached application window.
type WindowClient interface {
	ID() string
	URL() string
	PostMessage(ctx context.Context, msg any) error
	Focus(ctx context.Context) error
}

// Clients enumerates windows and opens new ones.
type Clients interface {
	MatchAll(ctx context.Context) ([]WindowClient, error)
	OpenWindow(ctx context.Context, url string) error
}

// Outcome values for Result.
const (
	OutcomeFocused = "focused"
	OutcomeOpened  = "opened"
)

// Result describes what Route did.
type Result struct {
	Outcome  string
	WindowID string // set when an existing window was focused
	URL      string
}

// Router focuses an existing window showing a URL or opens a new one.
type Router struct {
	clients Clients
	logger  *slog.Logger
}

// New creates a Router.
func New(clients Clients, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{clients: clients, logger: logger}
}

// Route sends the user to url. The first window whose URL contains url
// receives a notification-click message for roomID and is focused;
// otherwise a new window is opened. Exactly one of the two happens. When
// windows cannot be enumerated nothing happens and the error is returned.
func (r *Router) Route(ctx context.Context, url string, roomID model.RoomID) (Result, error) {
	if url == "" {
		url = model.DefaultURL
	}

	windows, err := r.clients.MatchAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("enumerate windows: %w", err)
	}

	for _, w := range windows {
		if !strings.Contains(w.URL(), url) {
			continue
		}
		if err := w.PostMessage(ctx, model.NewRouteMessage(roomID)); err != nil {
			r.logger.Warn("failed to post click to window", "window", w.ID(), "error", err)
		}
		if err := w.Focus(ctx); err != nil {
			return Result{}, fmt.Errorf("focus window %s: %w", w.ID(), err)
		}
		r.logger.Debug("focused window", "window", w.ID(), "url", url, "room_id", roomID.String())
		return Result{Outcome: OutcomeFocused, WindowID: w.ID(), URL: url}, nil
	}

	if err := r.clients.OpenWindow(ctx, url); err != nil {
		return Result{}, fmt.Errorf("open window %s: %w", url, err)
	}
	r.logger.Debug("opened window", "url", url)
	return Result{Outcome: OutcomeOpened, URL: url}, nil
}
