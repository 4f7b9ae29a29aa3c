package daemon

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/notify"
)

type fakePermissions struct {
	state    model.PermissionState
	requests int
}

func (p *fakePermissions) RequestPermission(context.Context) bool {
	p.requests++
	p.state = model.PermissionGranted
	return true
}

func (p *fakePermissions) State() model.PermissionState { return p.state }

type fakeShower struct {
	result notify.Result
	err    error
	calls  []string
}

func (s *fakeShower) Show(_ context.Context, title string, _ model.Options) (notify.Result, error) {
	s.calls = append(s.calls, "show:"+title)
	return s.result, s.err
}

func (s *fakeShower) ShowChatNotification(_ context.Context, sender, _ string, roomID model.RoomID) (notify.Result, error) {
	s.calls = append(s.calls, "chat:"+sender+":"+roomID.String())
	return s.result, s.err
}

func (s *fakeShower) ShowPaymentNotification(_ context.Context, message string) (notify.Result, error) {
	s.calls = append(s.calls, "payment:"+message)
	return s.result, s.err
}

func TestServiceHandler(t *testing.T) {
	ctx := context.Background()
	perms := &fakePermissions{state: model.PermissionDefault}
	shower := &fakeShower{result: notify.Result{Shown: true}}
	h := NewServiceHandler(perms, shower)

	assert.Equal(t, model.PermissionDefault, h.Permission())
	assert.True(t, h.RequestPermission(ctx))
	assert.Equal(t, model.PermissionGranted, h.Permission())

	ok, err := h.Show(ctx, "Hello", model.Options{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.ShowChatNotification(ctx, "Alice", "hi", model.ParseRoomID("42"))
	require.NoError(t, err)
	assert.True(t, ok)

	shower.result = notify.Result{Suppressed: notify.SuppressedPermission}
	ok, err = h.ShowPaymentNotification(ctx, "paid")
	require.NoError(t, err)
	assert.False(t, ok, "suppressed notifications report false")

	shower.err = errors.New("bus gone")
	_, err = h.Show(ctx, "Hello", model.Options{})
	assert.Error(t, err)

	assert.Equal(t, []string{"show:Hello", "chat:Alice:42", "payment:paid", "show:Hello"}, shower.calls)
}
