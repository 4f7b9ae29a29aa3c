package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/chatnotify/internal/dbus"
	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/notify"
	"github.com/jmylchreest/chatnotify/internal/outbox"
	"github.com/jmylchreest/chatnotify/internal/router"
	"github.com/jmylchreest/chatnotify/internal/store"
)

type fakeBackend struct {
	mu     sync.Mutex
	nextID uint32
	shown  []model.Payload
	closed []uint32

	started chan struct{}
	block   chan struct{}
}

func (b *fakeBackend) Notify(ctx context.Context, p model.Payload, _ model.Kind, replacesID uint32) (uint32, error) {
	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shown = append(b.shown, p)
	if replacesID != 0 {
		return replacesID, nil
	}
	b.nextID++
	return b.nextID, nil
}

func (b *fakeBackend) Close(_ context.Context, id uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, id)
	return nil
}

type allowAll struct{}

func (allowAll) Supported() bool { return true }
func (allowAll) Granted() bool   { return true }

type routeCall struct {
	url    string
	roomID model.RoomID
}

type fakeRouter struct {
	mu    sync.Mutex
	calls []routeCall
	err   error
}

func (r *fakeRouter) Route(_ context.Context, url string, roomID model.RoomID) (router.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, routeCall{url: url, roomID: roomID})
	return router.Result{Outcome: router.OutcomeOpened, URL: url}, r.err
}

type fakeSyncer struct{ drains int }

func (s *fakeSyncer) Drain(context.Context) (outbox.Report, error) {
	s.drains++
	return outbox.Report{Sent: 1}, nil
}

type fixture struct {
	agent   *Agent
	backend *fakeBackend
	router  *fakeRouter
	history *store.Store
	syncer  *fakeSyncer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := &fakeBackend{}
	d, err := notify.NewDispatcher(backend, allowAll{}, notify.PolicyUnlessFocused, nil)
	require.NoError(t, err)
	history := store.NewStore(nil)
	t.Cleanup(func() { history.Close() })
	d.SetHistory(history)

	r := &fakeRouter{}
	s := &fakeSyncer{}
	a := New(d, r, WithHistory(history), WithSyncer(s))
	require.NoError(t, a.Dispatch(context.Background(), InstallEvent{}))
	return &fixture{agent: a, backend: backend, router: r, history: history, syncer: s}
}

func (f *fixture) push(t *testing.T, body string) uint32 {
	t.Helper()
	require.NoError(t, f.agent.Dispatch(context.Background(), PushEvent{Data: []byte(body)}))
	return f.backend.nextID
}

func TestLifecycle(t *testing.T) {
	a := New(nil, nil)
	assert.Equal(t, StateNew, a.State())

	err := a.Dispatch(context.Background(), PushEvent{})
	assert.ErrorIs(t, err, ErrNotActive)
	assert.ErrorIs(t, a.Dispatch(context.Background(), ActivateEvent{}), ErrNotActive)

	require.NoError(t, a.Dispatch(context.Background(), InstallEvent{}))
	assert.Equal(t, StateActivated, a.State(), "install activates immediately")

	require.NoError(t, a.Dispatch(context.Background(), ActivateEvent{}))
	require.NoError(t, a.Dispatch(context.Background(), InstallEvent{}))
	assert.Equal(t, StateActivated, a.State())

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, a.State())
	assert.ErrorIs(t, a.Dispatch(context.Background(), SyncEvent{Tag: SyncTagMessages}), ErrStopped)
}

func TestDispatch_UnknownEvent(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.agent.Dispatch(context.Background(), nil), ErrUnknownEvent)
}

func TestPush_Defaults(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"malformed", "{not json"},
		{"empty object", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.push(t, tt.body)

			require.Len(t, f.backend.shown, 1)
			p := f.backend.shown[0]
			assert.Equal(t, model.DefaultPushTitle, p.Title)
			assert.Equal(t, model.DefaultPushBody, p.Body)
			assert.Equal(t, model.DefaultChatIcon, p.Icon)
			assert.Equal(t, model.DefaultTag, p.Tag)
			assert.Equal(t, "/", p.Data.URL)
			assert.True(t, p.RequireInteraction)
			assert.Equal(t, model.PushActions, p.Actions)
		})
	}
}

func TestPush_CarriesData(t *testing.T) {
	f := newFixture(t)
	f.push(t, `{"title":"Alice","body":"hi","url":"/chat/42","room_id":42}`)

	p := f.backend.shown[0]
	assert.Equal(t, "Alice", p.Title)
	assert.Equal(t, "/chat/42", p.Data.URL)
	assert.Equal(t, "42", p.Data.RoomID.String())
	assert.Equal(t, 1, f.history.Count())
}

func TestClick_RoutesToURL(t *testing.T) {
	for _, action := range []string{"", dbus.ActionDefault, model.ActionOpen, model.ActionReply} {
		t.Run("action "+action, func(t *testing.T) {
			f := newFixture(t)
			id := f.push(t, `{"url":"/chat/9","room_id":"9"}`)

			require.NoError(t, f.agent.Dispatch(context.Background(), ClickEvent{ID: id, Action: action}))

			assert.Equal(t, []uint32{id}, f.backend.closed, "notification is closed before routing")
			require.Len(t, f.router.calls, 1)
			assert.Equal(t, "/chat/9", f.router.calls[0].url)
			assert.Equal(t, "9", f.router.calls[0].roomID.String())

			rec := f.history.All()[0]
			assert.True(t, rec.IsClicked())
			want := action
			if action == "" || action == dbus.ActionDefault {
				want = model.ActionOpen
			}
			assert.Equal(t, want, rec.Action)
		})
	}
}

func TestClick_CloseActionDoesNotRoute(t *testing.T) {
	f := newFixture(t)
	id := f.push(t, `{}`)

	require.NoError(t, f.agent.Dispatch(context.Background(), ClickEvent{ID: id, Action: model.ActionClose}))
	assert.Equal(t, []uint32{id}, f.backend.closed)
	assert.Empty(t, f.router.calls)
	assert.Equal(t, model.ActionClose, f.history.All()[0].Action)
}

func TestClick_UntrackedIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.agent.Dispatch(context.Background(), ClickEvent{ID: 99, Action: "allow"}))
	assert.Empty(t, f.router.calls)
	assert.Empty(t, f.backend.closed)
}

func TestClick_RouteError(t *testing.T) {
	f := newFixture(t)
	f.router.err = errors.New("enumeration failed")
	id := f.push(t, `{}`)

	err := f.agent.Dispatch(context.Background(), ClickEvent{ID: id})
	assert.Error(t, err)
}

func TestClose_RecordsDismissal(t *testing.T) {
	f := newFixture(t)
	id := f.push(t, `{}`)

	require.NoError(t, f.agent.Dispatch(context.Background(), CloseEvent{ID: id, Reason: dbus.CloseReasonDismissed}))
	assert.True(t, f.history.All()[0].IsDismissed())
	assert.Empty(t, f.router.calls)

	// the second close is for an id no longer tracked
	require.NoError(t, f.agent.Dispatch(context.Background(), CloseEvent{ID: id, Reason: dbus.CloseReasonDismissed}))
}

func TestClose_ExpiredNotDismissed(t *testing.T) {
	f := newFixture(t)
	id := f.push(t, `{}`)

	require.NoError(t, f.agent.Dispatch(context.Background(), CloseEvent{ID: id, Reason: dbus.CloseReasonExpired}))
	assert.False(t, f.history.All()[0].IsDismissed())
}

func TestClickThenClose(t *testing.T) {
	f := newFixture(t)
	id := f.push(t, `{}`)

	signals := make(chan dbus.Signal, 2)
	signals <- dbus.Signal{Kind: dbus.SignalActionInvoked, ID: id, Action: dbus.ActionDefault}
	signals <- dbus.Signal{Kind: dbus.SignalClosed, ID: id, Reason: dbus.CloseReasonDismissed}
	close(signals)

	f.agent.Listen(context.Background(), signals)

	assert.Len(t, f.router.calls, 1)
	rec := f.history.All()[0]
	assert.True(t, rec.IsClicked())
	assert.False(t, rec.IsDismissed())
}

func TestSync(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.agent.Dispatch(context.Background(), SyncEvent{Tag: "other"}))
	assert.Zero(t, f.syncer.drains)

	require.NoError(t, f.agent.Dispatch(context.Background(), SyncEvent{Tag: SyncTagMessages}))
	assert.Equal(t, 1, f.syncer.drains)
}

func TestShutdown_WaitsForInflight(t *testing.T) {
	f := newFixture(t)
	f.backend.started = make(chan struct{}, 1)
	f.backend.block = make(chan struct{})

	pushed := make(chan error, 1)
	go func() {
		pushed <- f.agent.Dispatch(context.Background(), PushEvent{Data: []byte(`{}`)})
	}()

	select {
	case <-f.backend.started:
	case <-time.After(2 * time.Second):
		t.Fatal("push handler did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, f.agent.Shutdown(ctx), "shutdown times out while a push is displaying")

	close(f.backend.block)
	require.NoError(t, <-pushed)
	require.NoError(t, f.agent.Shutdown(context.Background()))
	assert.Len(t, f.backend.shown, 1)
}

func TestPush_CallerCancelStillDisplays(t *testing.T) {
	f := newFixture(t)
	f.backend.started = make(chan struct{}, 1)
	f.backend.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	pushed := make(chan error, 1)
	go func() {
		pushed <- f.agent.Dispatch(ctx, PushEvent{Data: []byte(`{"title":"Room 42"}`)})
	}()

	select {
	case <-f.backend.started:
	case <-time.After(2 * time.Second):
		t.Fatal("push handler did not start")
	}
	cancel()
	time.Sleep(10 * time.Millisecond)
	close(f.backend.block)

	require.NoError(t, <-pushed)
	require.Len(t, f.backend.shown, 1)
	assert.Equal(t, "Room 42", f.backend.shown[0].Title)
}

func TestWaitUntil(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	var done bool

	require.NoError(t, f.agent.WaitUntil(context.Background(), func(context.Context) error {
		<-release
		done = true
		return nil
	}))

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	require.NoError(t, f.agent.Shutdown(context.Background()))
	assert.True(t, done)
}

func TestEventFromSignal(t *testing.T) {
	ev, err := EventFromSignal(dbus.Signal{Kind: dbus.SignalActionInvoked, ID: 3, Action: "open"})
	require.NoError(t, err)
	assert.Equal(t, ClickEvent{ID: 3, Action: "open"}, ev)

	ev, err = EventFromSignal(dbus.Signal{Kind: dbus.SignalClosed, ID: 3, Reason: dbus.CloseReasonExpired})
	require.NoError(t, err)
	assert.Equal(t, CloseEvent{ID: 3, Reason: dbus.CloseReasonExpired}, ev)

	_, err = EventFromSignal(dbus.Signal{Kind: dbus.SignalKind(9)})
	assert.Error(t, err)
}
