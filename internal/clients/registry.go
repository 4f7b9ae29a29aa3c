// Package clients tracks the application windows attached to the agent
// over websockets and opens new ones.
package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/router"
)

// Message types exchanged with windows.
const (
	MessageVisibility = "visibility" // window -> agent
	MessageFocus      = "focus"      // agent -> window
)

// ErrRegistryClosed is returned after Close.
var ErrRegistryClosed = errors.New("window registry closed")

// ClientMessage is a report sent by a window.
type ClientMessage struct {
	Type    string `json:"type"`
	Focused bool   `json:"focused"`
	URL     string `json:"url,omitempty"`
}

type focusMessage struct {
	Type string `json:"type"`
}

// Opener opens a URL in a new application window.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// Info is a snapshot of an attached window.
type Info struct {
	ID         string    `json:"id" yaml:"id"`
	URL        string    `json:"url" yaml:"url"`
	Focused    bool      `json:"focused" yaml:"focused"`
	AttachedAt time.Time `json:"attached_at" yaml:"attached_at"`
}

// Window is an attached application window.
type Window struct {
	id         string
	conn       *websocket.Conn
	attachedAt time.Time

	mu      sync.RWMutex
	url     string
	focused bool
}

// ID implements router.WindowClient.
func (w *Window) ID() string { return w.id }

// URL implements router.WindowClient.
func (w *Window) URL() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.url
}

// Focused reports the last visibility state the window sent.
func (w *Window) Focused() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.focused
}

// PostMessage sends msg to the window as JSON.
func (w *Window) PostMessage(ctx context.Context, msg any) error {
	return wsjson.Write(ctx, w.conn, msg)
}

// Focus asks the window to bring itself to the front.
func (w *Window) Focus(ctx context.Context) error {
	return w.PostMessage(ctx, focusMessage{Type: MessageFocus})
}

func (w *Window) info() Info {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Info{ID: w.id, URL: w.url, Focused: w.focused, AttachedAt: w.attachedAt}
}

func (w *Window) apply(msg ClientMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focused = msg.Focused
	if msg.URL != "" {
		w.url = msg.URL
	}
}

// Registry holds the attached windows in attach order.
type Registry struct {
	opener         Opener
	originPatterns []string
	logger         *slog.Logger

	mu       sync.RWMutex
	windows  []*Window
	onAttach []func(ctx context.Context)
	closed   bool
}

// NewRegistry creates a Registry. originPatterns lists the hosts allowed
// to attach in addition to the request host.
func NewRegistry(opener Opener, originPatterns []string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		opener:         opener,
		originPatterns: originPatterns,
		logger:         logger,
	}
}

// OnAttach registers fn to run whenever a window attaches.
func (r *Registry) OnAttach(fn func(ctx context.Context)) {
	r.mu.Lock()
	r.onAttach = append(r.onAttach, fn)
	r.mu.Unlock()
}

// ServeHTTP accepts a window connection. The initial URL is taken from the
// url query parameter. The handler returns when the window detaches.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := websocket.Accept(w, req, &websocket.AcceptOptions{
		OriginPatterns: r.originPatterns,
	})
	if err != nil {
		r.logger.Warn("websocket accept failed", "error", err)
		return
	}

	id, err := model.NewID()
	if err != nil {
		conn.Close(websocket.StatusInternalError, "id generation failed")
		return
	}
	win := &Window{
		id:         id,
		conn:       conn,
		attachedAt: time.Now(),
		url:        req.URL.Query().Get("url"),
	}

	hooks, err := r.add(win)
	if err != nil {
		conn.Close(websocket.StatusGoingAway, "agent shutting down")
		return
	}
	r.logger.Debug("window attached", "window", id, "url", win.url)

	// the request context ends with the handler, hooks may outlive it
	for _, fn := range hooks {
		go fn(context.WithoutCancel(req.Context()))
	}

	defer func() {
		r.remove(win)
		conn.Close(websocket.StatusNormalClosure, "")
		r.logger.Debug("window detached", "window", id)
	}()

	ctx := req.Context()
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				r.logger.Debug("window read failed", "window", id, "error", err)
			}
			return
		}
		switch msg.Type {
		case MessageVisibility:
			win.apply(msg)
		default:
			r.logger.Debug("ignoring window message", "window", id, "type", msg.Type)
		}
	}
}

func (r *Registry) add(w *Window) ([]func(context.Context), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	r.windows = append(r.windows, w)
	return append(([]func(context.Context))(nil), r.onAttach...), nil
}

func (r *Registry) remove(w *Window) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.windows {
		if existing == w {
			r.windows = append(r.windows[:i], r.windows[i+1:]...)
			return
		}
	}
}

// MatchAll implements router.Clients. Windows are returned in attach order.
func (r *Registry) MatchAll(_ context.Context) ([]router.WindowClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	out := make([]router.WindowClient, len(r.windows))
	for i, w := range r.windows {
		out[i] = w
	}
	return out, nil
}

// OpenWindow implements router.Clients.
func (r *Registry) OpenWindow(ctx context.Context, url string) error {
	if r.opener == nil {
		return fmt.Errorf("no window opener configured")
	}
	return r.opener.Open(ctx, url)
}

// AnyFocused reports whether any attached window has focus.
func (r *Registry) AnyFocused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.windows {
		if w.Focused() {
			return true
		}
	}
	return false
}

// List returns a snapshot of the attached windows.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, len(r.windows))
	for i, w := range r.windows {
		out[i] = w.info()
	}
	return out
}

// Len returns the number of attached windows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.windows)
}

// Close detaches every window and rejects new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	windows := r.windows
	r.windows = nil
	r.mu.Unlock()

	for _, w := range windows {
		w.conn.Close(websocket.StatusGoingAway, "agent shutting down")
	}
}
