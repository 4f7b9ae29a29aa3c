// Package push serves the local HTTP endpoints through which the
// application server delivers pushes and application windows attach.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jmylchreest/chatnotify/internal/agent"
	"github.com/jmylchreest/chatnotify/internal/clients"
	"github.com/jmylchreest/chatnotify/internal/model"
)

// MaxBodySize bounds request bodies.
const MaxBodySize = 64 << 10

// Dispatcher is the part of the agent the server drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev agent.Event) error
	WaitUntil(ctx context.Context, fn func(context.Context) error) error
}

// Queue accepts outbound messages.
type Queue interface {
	Enqueue(m model.OutboundMessage) error
}

// Windows is the attached window registry.
type Windows interface {
	http.Handler
	List() []clients.Info
}

// OutboxRequest is the body of POST /outbox.
type OutboxRequest struct {
	RoomID   model.RoomID `json:"room_id"`
	ClientID string       `json:"client_id"`
	Content  string       `json:"content"`
}

// SyncRequest is the optional body of POST /sync.
type SyncRequest struct {
	Tag string `json:"tag"`
}

// Server is the local HTTP endpoint.
type Server struct {
	agent   Dispatcher
	queue   Queue
	windows Windows
	logger  *slog.Logger

	mux    *http.ServeMux
	server *http.Server
}

// NewServer creates a Server. queue and windows may be nil, which
// disables their endpoints.
func NewServer(a Dispatcher, queue Queue, windows Windows, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		agent:   a,
		queue:   queue,
		windows: windows,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /push", s.handlePush)
	s.mux.HandleFunc("POST /sync", s.handleSync)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.queue != nil {
		s.mux.HandleFunc("POST /outbox", s.handleOutbox)
	}
	if s.windows != nil {
		s.mux.Handle("GET /ws", s.windows)
		s.mux.HandleFunc("GET /windows", s.handleWindows)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("http endpoint listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	if err := s.agent.Dispatch(r.Context(), agent.PushEvent{Data: body}); err != nil {
		s.logger.Warn("push failed", "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleSync starts the sync in the background; it may retry for a while.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	req := SyncRequest{Tag: r.URL.Query().Get("tag")}
	if req.Tag == "" {
		if err := decodeOptional(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Tag == "" {
		req.Tag = agent.SyncTagMessages
	}

	if err := s.scheduleSync(r.Context(), req.Tag); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	var req OutboxRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode message: %w", err))
		return
	}
	msg, err := model.NewOutboundMessage(req.RoomID, req.ClientID, req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.queue.Enqueue(*msg); err != nil {
		s.logger.Error("failed to queue message", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := s.scheduleSync(r.Context(), agent.SyncTagMessages); err != nil {
		s.logger.Debug("message queued without sync", "id", msg.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) scheduleSync(ctx context.Context, tag string) error {
	return s.agent.WaitUntil(ctx, func(ctx context.Context) error {
		return s.agent.Dispatch(ctx, agent.SyncEvent{Tag: tag})
	})
}

func (s *Server) handleWindows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.windows.List())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil || len(body) == 0 {
		return err
	}
	return json.Unmarshal(body, v)
}

func statusFor(err error) int {
	if errors.Is(err, agent.ErrNotActive) || errors.Is(err, agent.ErrStopped) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
