package notify

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
	"github.com/jmylchreest/chatnotify/internal/store"
)

type shownCall struct {
	payload    model.Payload
	kind       model.Kind
	replacesID uint32
}

type fakeBackend struct {
	mu     sync.Mutex
	nextID uint32
	shown  []shownCall
	closed []uint32
	err    error
	delay  time.Duration
}

func (b *fakeBackend) Notify(_ context.Context, p model.Payload, kind model.Kind, replacesID uint32) (uint32, error) {
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	b.shown = append(b.shown, shownCall{payload: p, kind: kind, replacesID: replacesID})
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

type fakePermission struct {
	supported bool
	granted   bool
}

func (p fakePermission) Supported() bool { return p.supported }
func (p fakePermission) Granted() bool   { return p.granted }

type fakeFocus bool

func (f fakeFocus) AnyFocused() bool { return bool(f) }

type fakeSounds struct{ kinds []model.Kind }

func (s *fakeSounds) PlayForKind(kind model.Kind) { s.kinds = append(s.kinds, kind) }

var granted = fakePermission{supported: true, granted: true}

func newTestDispatcher(t *testing.T, perm Permission, policy string) (*Dispatcher, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{}
	d, err := NewDispatcher(b, perm, policy, nil)
	require.NoError(t, err)
	return d, b
}

func TestNewDispatcher_InvalidPolicy(t *testing.T) {
	_, err := NewDispatcher(&fakeBackend{}, granted, "sometimes", nil)
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestShow_MergesDefaults(t *testing.T) {
	d, b := newTestDispatcher(t, granted, PolicyAlways)

	res, err := d.Show(context.Background(), "Hello", model.Options{Body: model.Ptr("World")})
	require.NoError(t, err)
	assert.True(t, res.Shown)
	assert.Empty(t, res.Suppressed)

	require.Len(t, b.shown, 1)
	p := b.shown[0].payload
	assert.Equal(t, "Hello", p.Title)
	assert.Equal(t, "World", p.Body)
	assert.Equal(t, model.DefaultIcon, p.Icon)
	assert.Equal(t, model.DefaultBadge, p.Badge)
	assert.Equal(t, model.DefaultTag, p.Tag)
	assert.False(t, p.RequireInteraction)
	assert.Equal(t, model.KindCustom, b.shown[0].kind)
}

func TestShow_CallerOverridesDefaults(t *testing.T) {
	d, b := newTestDispatcher(t, granted, PolicyAlways)

	_, err := d.Show(context.Background(), "T", model.Options{
		Icon:               model.Ptr("/custom.png"),
		Tag:                model.Ptr("mine"),
		RequireInteraction: model.Ptr(true),
	})
	require.NoError(t, err)

	p := b.shown[0].payload
	assert.Equal(t, "/custom.png", p.Icon)
	assert.Equal(t, "mine", p.Tag)
	assert.True(t, p.RequireInteraction)
	assert.Equal(t, model.DefaultBadge, p.Badge)
}

func TestShow_EmptyTitle(t *testing.T) {
	d, b := newTestDispatcher(t, granted, PolicyAlways)

	_, err := d.Show(context.Background(), "", model.Options{})
	assert.ErrorIs(t, err, ErrEmptyTitle)
	assert.Empty(t, b.shown)
}

func TestShow_Suppression(t *testing.T) {
	tests := []struct {
		name   string
		perm   fakePermission
		focus  FocusReporter
		policy string
		want   string
	}{
		{"unsupported", fakePermission{supported: false, granted: true}, nil, PolicyAlways, SuppressedUnsupported},
		{"not granted", fakePermission{supported: true}, nil, PolicyAlways, SuppressedPermission},
		{"focused window", granted, fakeFocus(true), PolicyUnlessFocused, SuppressedFocused},
		{"focused but always", granted, fakeFocus(true), PolicyAlways, ""},
		{"unfocused", granted, fakeFocus(false), PolicyUnlessFocused, ""},
		{"no focus reporter", granted, nil, PolicyUnlessFocused, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, b := newTestDispatcher(t, tt.perm, tt.policy)
			if tt.focus != nil {
				d.SetFocusReporter(tt.focus)
			}

			res, err := d.Show(context.Background(), "Hi", model.Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Suppressed)
			assert.Equal(t, tt.want == "", res.Shown)
			if tt.want != "" {
				assert.Empty(t, b.shown, "suppressed notifications never reach the backend")
			}
		})
	}
}

func TestShowWithPolicy_OverridesDefault(t *testing.T) {
	d, b := newTestDispatcher(t, granted, PolicyUnlessFocused)
	d.SetFocusReporter(fakeFocus(true))

	res, err := d.ShowWithPolicy(context.Background(), PolicyAlways, "Hi", model.Options{})
	require.NoError(t, err)
	assert.True(t, res.Shown)
	assert.Len(t, b.shown, 1)

	_, err = d.ShowWithPolicy(context.Background(), "never", "Hi", model.Options{})
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestSetPolicy(t *testing.T) {
	d, _ := newTestDispatcher(t, granted, PolicyAlways)
	require.NoError(t, d.SetPolicy(PolicyUnlessFocused))
	assert.Equal(t, PolicyUnlessFocused, d.Policy())
	assert.Error(t, d.SetPolicy("bogus"))
	assert.Equal(t, PolicyUnlessFocused, d.Policy())
}

func TestShow_TagCollapse(t *testing.T) {
	d, b := newTestDispatcher(t, granted, PolicyAlways)
	ctx := context.Background()

	first, err := d.Show(ctx, "One", model.Options{Tag: model.Ptr("chat-1")})
	require.NoError(t, err)
	second, err := d.Show(ctx, "Two", model.Options{Tag: model.Ptr("chat-1")})
	require.NoError(t, err)
	other, err := d.Show(ctx, "Three", model.Options{Tag: model.Ptr("chat-2")})
	require.NoError(t, err)

	require.Len(t, b.shown, 3)
	assert.Equal(t, uint32(0), b.shown[0].replacesID)
	assert.Equal(t, first.BackendID, b.shown[1].replacesID)
	assert.Equal(t, first.BackendID, second.Replaced)
	assert.Equal(t, uint32(0), b.shown[2].replacesID)
	assert.NotEqual(t, second.BackendID, other.BackendID)

	assert.Equal(t, 2, d.Tracker().Len())
	e, ok := d.Lookup(second.BackendID)
	require.True(t, ok)
	assert.Equal(t, "Two", e.Payload.Title)
}

func TestShow_ConcurrentSameTagReplaces(t *testing.T) {
	d, b := newTestDispatcher(t, granted, PolicyAlways)
	b.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	for _, msg := range []string{"first", "second"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.ShowChatNotification(context.Background(), "Alice", msg, model.ParseRoomID("1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, b.shown, 2)
	fresh := 0
	for _, call := range b.shown {
		if call.replacesID == 0 {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh, "only the first notification for a tag is new")
	assert.Equal(t, 1, d.Tracker().Len())
}

func TestShow_ClosedTagStartsFresh(t *testing.T) {
	d, b := newTestDispatcher(t, granted, PolicyAlways)
	ctx := context.Background()

	first, err := d.Show(ctx, "One", model.Options{Tag: model.Ptr("t")})
	require.NoError(t, err)

	_, ok := d.Forget(first.BackendID)
	require.True(t, ok)

	_, err = d.Show(ctx, "Two", model.Options{Tag: model.Ptr("t")})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), b.shown[1].replacesID)
}

func TestShowChatNotification(t *testing.T) {
	d, b := newTestDispatcher(t, granted, PolicyAlways)

	_, err := d.ShowChatNotification(context.Background(), "Alice", "Is the room free?", model.ParseRoomID("7"))
	require.NoError(t, err)

	p := b.shown[0].payload
	assert.Equal(t, "New message from Alice", p.Title)
	assert.Equal(t, "Is the room free?", p.Body)
	assert.Equal(t, "chat-7", p.Tag)
	assert.Equal(t, "7", p.Data.RoomID.String())
	assert.Equal(t, model.NotificationTypeChat, p.Data.Type)
	assert.Equal(t, []model.Action{
		{Action: model.ActionReply, Title: "Reply"},
		{Action: model.ActionView, Title: "View Chat"},
	}, p.Actions)
	assert.Equal(t, model.KindChat, b.shown[0].kind)
}

func TestShowPaymentNotification(t *testing.T) {
	d, b := newTestDispatcher(t, granted, PolicyAlways)

	_, err := d.ShowPaymentNotification(context.Background(), "Your booking is confirmed")
	require.NoError(t, err)

	p := b.shown[0].payload
	assert.Equal(t, "Payment Successful", p.Title)
	assert.Equal(t, "payment-success", p.Tag)
	assert.Equal(t, model.DefaultPaymentIcon, p.Icon)
	assert.Equal(t, model.KindPayment, b.shown[0].kind)
}

func TestShowWelcome_IgnoresFocus(t *testing.T) {
	d, b := newTestDispatcher(t, granted, PolicyUnlessFocused)
	d.SetFocusReporter(fakeFocus(true))

	res, err := d.ShowWelcome(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Shown)
	p := b.shown[0].payload
	assert.Equal(t, "Chat Notifications Enabled", p.Title)
	assert.Equal(t, "You will receive notifications for new messages", p.Body)
	assert.Equal(t, "welcome", p.Tag)
}

func TestShow_RecordsHistoryAndSound(t *testing.T) {
	d, _ := newTestDispatcher(t, granted, PolicyAlways)
	history := store.NewStore(nil)
	defer history.Close()
	sounds := &fakeSounds{}
	d.SetHistory(history)
	d.SetSoundPlayer(sounds)

	ctx := context.Background()
	first, err := d.ShowChatNotification(ctx, "Bob", "hi", model.ParseRoomID("3"))
	require.NoError(t, err)
	second, err := d.ShowChatNotification(ctx, "Bob", "again", model.ParseRoomID("3"))
	require.NoError(t, err)
	_, err = d.Show(ctx, "quiet", model.Options{Silent: model.Ptr(true)})
	require.NoError(t, err)

	assert.Equal(t, 3, history.Count())
	rec := history.GetByID(first.HistoryID)
	require.NotNil(t, rec)
	assert.Equal(t, second.HistoryID, rec.ReplacedBy)
	assert.Equal(t, first.BackendID, rec.BackendID)
	assert.Equal(t, "3", rec.RoomID.String())

	assert.Equal(t, []model.Kind{model.KindChat, model.KindChat}, sounds.kinds)
}

func TestShow_BackendError(t *testing.T) {
	d, b := newTestDispatcher(t, granted, PolicyAlways)
	b.err = errors.New("bus closed")

	res, err := d.Show(context.Background(), "Hi", model.Options{})
	require.Error(t, err)
	assert.False(t, res.Shown)
	assert.Equal(t, 0, d.Tracker().Len())
}

func TestClose(t *testing.T) {
	d, b := newTestDispatcher(t, granted, PolicyAlways)
	ctx := context.Background()

	res, err := d.Show(ctx, "Hi", model.Options{Tag: model.Ptr("x")})
	require.NoError(t, err)

	require.NoError(t, d.Close(ctx, "x"))
	assert.Equal(t, []uint32{res.BackendID}, b.closed)
	_, ok := d.Lookup(res.BackendID)
	assert.False(t, ok)

	// unknown tag is a no-op
	require.NoError(t, d.Close(ctx, "missing"))
	assert.Len(t, b.closed, 1)
}

type recordingServer struct {
	last   dbus.Notification
	closed uint32
}

func (s *recordingServer) Notify(_ context.Context, n dbus.Notification) (uint32, error) {
	s.last = n
	return 9, nil
}

func (s *recordingServer) CloseNotification(_ context.Context, id uint32) error {
	s.closed = id
	return nil
}

func TestDBusBackend(t *testing.T) {
	server := &recordingServer{}
	b := NewDBusBackend(server, "chatnotify", 0, func(s string) string { return "https://rooms.example" + s })

	p := model.Options{Tag: model.Ptr("chat-1")}.Merge("Hi", model.DefaultPayload())
	id, err := b.Notify(context.Background(), p, model.KindChat, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), id)

	assert.Equal(t, "chatnotify", server.last.AppName)
	assert.Equal(t, uint32(4), server.last.ReplacesID)
	assert.Equal(t, "https://rooms.example"+model.DefaultIcon, server.last.AppIcon)
	assert.Equal(t, "im.received", server.last.Category())
	assert.Equal(t, "chat-1", server.last.StackTag())
	assert.Equal(t, int32(-1), server.last.ExpireTimeout)

	require.NoError(t, b.Close(context.Background(), 9))
	assert.Equal(t, uint32(9), server.closed)
}
