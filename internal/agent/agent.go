// Package agent is the background event handler. It reacts to pushes,
// notification clicks and closes, and sync requests whether or not any
// application window is open.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/notify"
	"github.com/jmylchreest/chatnotify/internal/outbox"
	"github.com/jmylchreest/chatnotify/internal/router"
)

// Lifecycle states.
type State int

const (
	StateNew State = iota
	StateInstalled
	StateActivated
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalled:
		return "installed"
	case StateActivated:
		return "activated"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrNotActive is returned for functional events before activation.
	ErrNotActive = errors.New("agent is not active")
	// ErrStopped is returned for events received after Shutdown.
	ErrStopped = errors.New("agent is stopped")
	// ErrUnknownEvent is returned for event types the agent does not handle.
	ErrUnknownEvent = errors.New("unknown event")
)

// Notifier displays and tracks notifications.
type Notifier interface {
	Display(ctx context.Context, policy string, kind model.Kind, p model.Payload) (notify.Result, error)
	Lookup(id uint32) (notify.Entry, bool)
	CloseID(ctx context.Context, id uint32) error
	Forget(id uint32) (notify.Entry, bool)
}

// Router sends the user to a URL.
type Router interface {
	Route(ctx context.Context, url string, roomID model.RoomID) (router.Result, error)
}

// History records what happened to displayed notifications.
type History interface {
	MarkClicked(id, action string) error
	Dismiss(id string) error
}

// Syncer drains the outbound message queue.
type Syncer interface {
	Drain(ctx context.Context) (outbox.Report, error)
}

// Agent handles background events. Handlers may run concurrently; the
// only mutable state is the lifecycle and the in-flight wait group.
type Agent struct {
	notifier Notifier
	router   Router
	history  History
	syncer   Syncer
	logger   *slog.Logger

	mu       sync.RWMutex
	state    State
	inflight sync.WaitGroup
}

// Option configures an Agent.
type Option func(*Agent)

// WithHistory records clicks and dismissals in h.
func WithHistory(h History) Option {
	return func(a *Agent) { a.history = h }
}

// WithSyncer drains s on message sync events.
func WithSyncer(s Syncer) Option {
	return func(a *Agent) { a.syncer = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates an Agent in StateNew.
func New(notifier Notifier, r Router, opts ...Option) *Agent {
	a := &Agent{
		notifier: notifier,
		router:   r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the lifecycle state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Dispatch handles one event and returns when its handler has completed.
func (a *Agent) Dispatch(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case InstallEvent:
		return a.install()
	case ActivateEvent:
		return a.activate()
	case PushEvent:
		return a.run(ctx, func(ctx context.Context) error { return a.handlePush(ctx, e) })
	case ClickEvent:
		return a.run(ctx, func(ctx context.Context) error { return a.handleClick(ctx, e) })
	case CloseEvent:
		return a.run(ctx, func(ctx context.Context) error { return a.handleClose(e) })
	case SyncEvent:
		return a.run(ctx, func(ctx context.Context) error { return a.handleSync(ctx, e) })
	case nil:
		return fmt.Errorf("%w: nil", ErrUnknownEvent)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

func (a *Agent) install() error {
	a.mu.Lock()
	switch a.state {
	case StateStopped:
		a.mu.Unlock()
		return ErrStopped
	case StateNew:
		a.state = StateInstalled
		a.logger.Info("agent installed")
	}
	a.mu.Unlock()
	// skip waiting
	return a.activate()
}

func (a *Agent) activate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case StateStopped:
		return ErrStopped
	case StateNew:
		return fmt.Errorf("activate before install: %w", ErrNotActive)
	case StateInstalled:
		a.state = StateActivated
		a.logger.Info("agent activated")
	}
	return nil
}

// run executes fn as an in-flight handler so Shutdown waits for it.
func (a *Agent) run(ctx context.Context, fn func(context.Context) error) error {
	if err := a.begin(); err != nil {
		return err
	}
	defer a.inflight.Done()
	return fn(ctx)
}

func (a *Agent) begin() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch a.state {
	case StateActivated:
		a.inflight.Add(1)
		return nil
	case StateStopped:
		return ErrStopped
	default:
		return ErrNotActive
	}
}

// WaitUntil runs fn in the background and keeps the agent alive until it
// returns. fn gets a context that is not cancelled with ctx.
func (a *Agent) WaitUntil(ctx context.Context, fn func(context.Context) error) error {
	if err := a.begin(); err != nil {
		return err
	}
	go func() {
		defer a.inflight.Done()
		if err := fn(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("background task failed", "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting events and waits for in-flight handlers, or
// for ctx to end.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.state = StateStopped
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for handlers: %w", ctx.Err())
	}
}
