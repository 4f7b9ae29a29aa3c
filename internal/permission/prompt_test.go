package permission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/chatnotify/internal/dbus"
	"github.com/jmylchreest/chatnotify/internal/model"
)

type fakeServer struct {
	mu       sync.Mutex
	signals  chan dbus.Signal
	notified []dbus.Notification
	closed   []uint32
	nextID   uint32
	// answer is sent right after Notify returns.
	answer *dbus.Signal
}

func newFakeServer(answer *dbus.Signal) *fakeServer {
	return &fakeServer{signals: make(chan dbus.Signal, 8), nextID: 40, answer: answer}
}

func (f *fakeServer) Notify(_ context.Context, n dbus.Notification) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.notified = append(f.notified, n)
	if f.answer != nil {
		// noise for another notification first
		f.signals <- dbus.Signal{Kind: dbus.SignalActionInvoked, ID: f.nextID + 100, Action: ActionAllow}
		sig := *f.answer
		sig.ID = f.nextID
		f.signals <- sig
	}
	return f.nextID, nil
}

func (f *fakeServer) CloseNotification(_ context.Context, id uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeServer) Subscribe(context.Context) (<-chan dbus.Signal, error) {
	return f.signals, nil
}

func TestDBusPrompter_Answers(t *testing.T) {
	tests := []struct {
		name      string
		answer    dbus.Signal
		want      model.PermissionState
		wantClose bool
	}{
		{"allow", dbus.Signal{Kind: dbus.SignalActionInvoked, Action: ActionAllow}, model.PermissionGranted, true},
		{"block", dbus.Signal{Kind: dbus.SignalActionInvoked, Action: ActionBlock}, model.PermissionDenied, true},
		{"dismissed", dbus.Signal{Kind: dbus.SignalClosed, Reason: dbus.CloseReasonDismissed}, model.PermissionDefault, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newFakeServer(&tt.answer)
			p := NewDBusPrompter(server, "chatnotify", time.Second, nil)

			state, err := p.Prompt(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)

			require.Len(t, server.notified, 1)
			n := server.notified[0]
			assert.Contains(t, n.Summary, "chatnotify")
			assert.Equal(t, []string{"allow", "Allow", "block", "Block"}, n.Actions)
			assert.True(t, n.Resident())
			assert.Equal(t, int32(0), n.ExpireTimeout)

			if tt.wantClose {
				assert.Equal(t, []uint32{41}, server.closed)
			} else {
				assert.Empty(t, server.closed)
			}
		})
	}
}

func TestDBusPrompter_Timeout(t *testing.T) {
	server := newFakeServer(nil)
	p := NewDBusPrompter(server, "chatnotify", 20*time.Millisecond, nil)

	state, err := p.Prompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.PermissionDefault, state)
	assert.Equal(t, []uint32{41}, server.closed)
}

func TestDBusPrompter_Cancelled(t *testing.T) {
	server := newFakeServer(nil)
	p := NewDBusPrompter(server, "chatnotify", 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := p.Prompt(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.PermissionDefault, state)
}
