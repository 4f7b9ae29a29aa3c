package dbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/chatnotify/internal/model"
)

type fakeHandler struct {
	granted    bool
	permission model.PermissionState
	err        error

	title   string
	opts    model.Options
	sender  string
	message string
	room    model.RoomID
	ctxOK   bool
}

func (f *fakeHandler) RequestPermission(ctx context.Context) bool {
	_, f.ctxOK = ctx.Deadline()
	return f.granted
}

func (f *fakeHandler) Permission() model.PermissionState { return f.permission }

func (f *fakeHandler) Show(_ context.Context, title string, opts model.Options) (bool, error) {
	f.title, f.opts = title, opts
	return f.err == nil, f.err
}

func (f *fakeHandler) ShowChatNotification(_ context.Context, sender, message string, roomID model.RoomID) (bool, error) {
	f.sender, f.message, f.room = sender, message, roomID
	return f.err == nil, f.err
}

func (f *fakeHandler) ShowPaymentNotification(_ context.Context, message string) (bool, error) {
	f.message = message
	return f.err == nil, f.err
}

func TestService_RequestPermission(t *testing.T) {
	h := &fakeHandler{granted: true}
	s := NewService(h, time.Second, nil)

	granted, dbusErr := s.RequestPermission()
	assert.Nil(t, dbusErr)
	assert.True(t, granted)
	assert.True(t, h.ctxOK, "handler should receive a bounded context")
}

func TestService_GetPermission(t *testing.T) {
	s := NewService(&fakeHandler{permission: model.PermissionDenied}, 0, nil)

	state, dbusErr := s.GetPermission()
	assert.Nil(t, dbusErr)
	assert.Equal(t, "denied", state)
}

func TestService_Show(t *testing.T) {
	h := &fakeHandler{}
	s := NewService(h, time.Second, nil)

	shown, dbusErr := s.Show("Hi", "body", "", "/room/5", "5")
	assert.Nil(t, dbusErr)
	assert.True(t, shown)
	assert.Equal(t, "Hi", h.title)
	require.NotNil(t, h.opts.Body)
	assert.Equal(t, "body", *h.opts.Body)
	assert.Nil(t, h.opts.Tag, "empty tag keeps the default")
	require.NotNil(t, h.opts.Data)
	assert.Equal(t, "/room/5", h.opts.Data.URL)
	assert.Equal(t, "5", h.opts.Data.RoomID.String())

	h = &fakeHandler{}
	s = NewService(h, time.Second, nil)
	_, dbusErr = s.Show("Hi", "", "", "", "")
	assert.Nil(t, dbusErr)
	assert.Nil(t, h.opts.Body)
	assert.Nil(t, h.opts.Data)
}

func TestService_ShowEmptyTitle(t *testing.T) {
	s := NewService(&fakeHandler{}, time.Second, nil)

	shown, dbusErr := s.Show("", "body", "", "", "")
	assert.False(t, shown)
	require.NotNil(t, dbusErr)
}

func TestService_ShowChatAndPayment(t *testing.T) {
	h := &fakeHandler{}
	s := NewService(h, time.Second, nil)

	shown, dbusErr := s.ShowChatNotification("alice", "hello", "42")
	assert.Nil(t, dbusErr)
	assert.True(t, shown)
	assert.Equal(t, "alice", h.sender)
	assert.Equal(t, "hello", h.message)
	assert.Equal(t, "42", h.room.String())

	shown, dbusErr = s.ShowPaymentNotification("Paid")
	assert.Nil(t, dbusErr)
	assert.True(t, shown)
	assert.Equal(t, "Paid", h.message)
}

func TestService_HandlerError(t *testing.T) {
	s := NewService(&fakeHandler{err: errors.New("backend gone")}, time.Second, nil)

	shown, dbusErr := s.ShowPaymentNotification("Paid")
	assert.False(t, shown)
	require.NotNil(t, dbusErr)
	assert.Contains(t, dbusErr.Error(), "backend gone")
}

func TestService_StopWithoutStart(t *testing.T) {
	s := NewService(&fakeHandler{}, time.Second, nil)
	assert.NoError(t, s.Stop())
	assert.Error(t, s.EmitPermissionChanged(model.PermissionGranted))
}

func TestServiceIntrospection(t *testing.T) {
	names := make([]string, 0)
	for _, m := range serviceMethods() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{
		"RequestPermission", "GetPermission", "Show",
		"ShowChatNotification", "ShowPaymentNotification",
	}, names)
	assert.Equal(t, "PermissionChanged", serviceSignals()[0].Name)
}
