// Package permission implements the notification consent gate.
package permission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// Sources recorded with persisted permission changes.
const (
	SourcePrompt = "prompt"
	SourceCLI    = "cli"
)

// StateStore persists the permission decision.
type StateStore interface {
	LoadPermission() (model.PermissionState, error)
	SavePermission(state model.PermissionState, source string) error
}

// Prompter asks the user for consent. Returning PermissionDefault means the
// user dismissed the prompt without deciding.
type Prompter interface {
	Prompt(ctx context.Context) (model.PermissionState, error)
}

// ChangeFunc is called after the permission state changes.
type ChangeFunc func(ctx context.Context, from, to model.PermissionState)

// Gate owns the permission state and the consent prompt. At most one
// prompt is in flight at a time; concurrent requests share its answer.
type Gate struct {
	supported bool
	store     StateStore
	prompter  Prompter
	logger    *slog.Logger

	mu        sync.RWMutex
	state     model.PermissionState
	listeners []ChangeFunc

	flight singleflight.Group
}

// NewGate creates a Gate and loads the persisted state. supported is the
// result of the one-time capability check; when false every request is
// refused without prompting.
func NewGate(supported bool, store StateStore, prompter Prompter, logger *slog.Logger) (*Gate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		supported: supported,
		store:     store,
		prompter:  prompter,
		logger:    logger,
		state:     model.PermissionDefault,
	}
	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// Supported reports whether notifications can be shown at all.
func (g *Gate) Supported() bool {
	return g.supported
}

// State returns the cached permission state.
func (g *Gate) State() model.PermissionState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Granted reports whether notifications may be shown.
func (g *Gate) Granted() bool {
	return g.supported && g.State().Granted()
}

// OnChange registers a listener for state changes.
func (g *Gate) OnChange(fn ChangeFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Reload re-reads the persisted state, picking up changes made by another
// process.
func (g *Gate) Reload() error {
	if g.store == nil {
		return nil
	}
	state, err := g.store.LoadPermission()
	if err != nil {
		return fmt.Errorf("load permission: %w", err)
	}
	g.apply(context.Background(), state)
	return nil
}

// RequestPermission returns true when notifications may be shown, prompting
// the user if no decision has been made yet. A denial is remembered and
// never re-prompted.
func (g *Gate) RequestPermission(ctx context.Context) bool {
	if !g.supported {
		g.logger.Warn("notifications are not supported: no notification server available")
		return false
	}

	switch g.State() {
	case model.PermissionGranted:
		return true
	case model.PermissionDenied:
		g.logger.Debug("notification permission previously denied")
		return false
	}

	// The shared prompt must not be cancelled by whichever caller started it.
	flightCtx := context.WithoutCancel(ctx)
	ch := g.flight.DoChan("prompt", func() (any, error) {
		return g.prompt(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			g.logger.Warn("permission prompt failed", "error", res.Err)
			return false
		}
		return res.Val.(model.PermissionState).Granted()
	case <-ctx.Done():
		return false
	}
}

func (g *Gate) prompt(ctx context.Context) (model.PermissionState, error) {
	// A caller may have finished a prompt just before this flight started.
	if s := g.State(); s != model.PermissionDefault {
		return s, nil
	}
	if g.prompter == nil {
		return model.PermissionDefault, fmt.Errorf("no consent prompter configured")
	}

	g.logger.Info("requesting notification permission")
	answer, err := g.prompter.Prompt(ctx)
	if err != nil {
		return model.PermissionDefault, err
	}

	g.logger.Info("notification permission answered", "state", answer.String())
	if answer == model.PermissionDefault {
		return answer, nil
	}
	if err := g.Set(ctx, answer, SourcePrompt); err != nil {
		return answer, err
	}
	return answer, nil
}

// Set records an explicit decision, persists it and notifies listeners.
func (g *Gate) Set(ctx context.Context, state model.PermissionState, source string) error {
	if _, err := model.ParsePermissionState(string(state)); err != nil {
		return err
	}
	if g.store != nil {
		if err := g.store.SavePermission(state, source); err != nil {
			return fmt.Errorf("save permission: %w", err)
		}
	}
	g.apply(ctx, state)
	return nil
}

func (g *Gate) apply(ctx context.Context, state model.PermissionState) {
	g.mu.Lock()
	from := g.state
	g.state = state
	listeners := append([]ChangeFunc(nil), g.listeners...)
	g.mu.Unlock()

	if from == state {
		return
	}
	for _, fn := range listeners {
		fn(ctx, from, state)
	}
}

// OnInteraction returns a trigger that may be attached to any number of
// user-interaction events. Only the first call requests permission.
func (g *Gate) OnInteraction() func(ctx context.Context) {
	var fired atomic.Bool
	return func(ctx context.Context) {
		if fired.CompareAndSwap(false, true) {
			g.RequestPermission(ctx)
		}
	}
}
