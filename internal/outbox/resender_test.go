package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/store"
)

type scriptedSender struct {
	mu      sync.Mutex
	results map[string][]error // per message id, consumed in order; nil = success
	calls   []string
}

func (s *scriptedSender) Send(_ context.Context, msg model.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, msg.ID)
	queue := s.results[msg.ID]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	s.results[msg.ID] = queue[1:]
	return err
}

func newQueue(t *testing.T, contents ...string) (*store.Outbox, []model.OutboundMessage) {
	t.Helper()
	q := store.NewOutbox(filepath.Join(t.TempDir(), "outbox.json"))
	var msgs []model.OutboundMessage
	for _, c := range contents {
		m, err := model.NewOutboundMessage(model.ParseRoomID("1"), "client-1", c)
		require.NoError(t, err)
		require.NoError(t, q.Enqueue(*m))
		msgs = append(msgs, *m)
	}
	return q, msgs
}

func newTestResender(q Queue, s Sender, p Policy) (*Resender, *[]time.Duration) {
	r := NewResender(q, s, p, nil)
	var delays []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return r, &delays
}

func TestPolicy_Backoff(t *testing.T) {
	p := DefaultPolicy()
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, p.Backoff(i+1), "attempt %d", i+1)
	}
}

func TestDrain_SendsAndRemoves(t *testing.T) {
	q, _ := newQueue(t, "hello", "world")
	s := &scriptedSender{results: map[string][]error{}}
	r, delays := newTestResender(q, s, DefaultPolicy())

	report, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Sent: 2}, report)
	assert.Empty(t, *delays)

	all, err := q.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDrain_RetriesWithBackoff(t *testing.T) {
	q, msgs := newQueue(t, "hello")
	transient := errors.New("connection refused")
	s := &scriptedSender{results: map[string][]error{msgs[0].ID: {transient, transient}}}
	r, delays := newTestResender(q, s, DefaultPolicy())

	report, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
	assert.Len(t, s.calls, 3)
}

func TestDrain_GivesUpAfterMaxAttempts(t *testing.T) {
	q, msgs := newQueue(t, "hello")
	transient := errors.New("502 bad gateway")
	s := &scriptedSender{results: map[string][]error{
		msgs[0].ID: {transient, transient, transient, transient, transient, transient},
	}}
	r, delays := newTestResender(q, s, DefaultPolicy())
	var failed []model.OutboundMessage
	r.OnFailed = func(m model.OutboundMessage) { failed = append(failed, m) }

	report, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Failed: 1}, report)
	assert.Len(t, s.calls, 5)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, *delays)

	require.Len(t, failed, 1)
	assert.Equal(t, model.OutboundFailed, failed[0].Status)
	assert.Equal(t, 5, failed[0].Attempts)

	all, err := q.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.OutboundFailed, all[0].Status)
	assert.Equal(t, "502 bad gateway", all[0].LastError)

	// a failed message is not retried by later drains
	report, err = r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestDrain_PermanentFailure(t *testing.T) {
	q, msgs := newQueue(t, "bad", "good")
	s := &scriptedSender{results: map[string][]error{
		msgs[0].ID: {&PermanentError{Err: errors.New("400 Bad Request")}},
	}}
	r, delays := newTestResender(q, s, DefaultPolicy())

	report, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Sent: 1, Failed: 1}, report)
	assert.Empty(t, *delays)
}

func TestDrain_CancelledKeepsPending(t *testing.T) {
	q, msgs := newQueue(t, "one", "two")
	s := &scriptedSender{results: map[string][]error{msgs[0].ID: {errors.New("timeout")}}}
	r := NewResender(q, s, DefaultPolicy(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	report, err := r.Drain(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, report.Pending)

	pending, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Attempts)
}

func TestHTTPSender(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   bool
		permanent bool
	}{
		{"ok", http.StatusOK, false, false},
		{"created", http.StatusCreated, false, false},
		{"bad request", http.StatusBadRequest, true, true},
		{"rate limited", http.StatusTooManyRequests, true, false},
		{"server error", http.StatusInternalServerError, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got sendRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			msg, err := model.NewOutboundMessage(model.ParseRoomID("12"), "c1", "hi")
			require.NoError(t, err)

			err = NewHTTPSender(srv.URL, time.Second).Send(context.Background(), *msg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.permanent, IsPermanent(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, "12", got.RoomID.String())
			assert.Equal(t, "c1", got.ClientID)
			assert.Equal(t, "hi", got.Content)
		})
	}
}

func TestHTTPSender_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	msg, err := model.NewOutboundMessage(model.ParseRoomID("1"), "", "hi")
	require.NoError(t, err)
	err = NewHTTPSender(url, time.Second).Send(context.Background(), *msg)
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}
