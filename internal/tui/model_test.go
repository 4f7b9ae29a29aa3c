package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/store"
)

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.NewStore(nil)
	now := time.Now().Unix()
	for i, n := range []model.Notification{
		{ID: "a", Kind: model.KindChat, Title: "New message from Alice", Body: "Is the room free?", Tag: "chat-42", URL: "/chat/42", RoomID: model.ParseRoomID("42")},
		{ID: "b", Kind: model.KindPayment, Title: "Payment Successful", Body: "Booking confirmed", Tag: "payment-success"},
	} {
		n.Timestamp = now - int64(i)
		require.NoError(t, s.Add(n))
	}
	return s
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	updated, _ = updated.(Model).Update(loadNotificationsMsg{})
	return updated.(Model)
}

func press(t *testing.T, m Model, keys string) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
	return updated.(Model), cmd
}

func TestModel_LoadsNotifications(t *testing.T) {
	m := sized(t, New(seedStore(t)))

	require.Len(t, m.list.Items(), 2)
	first := m.list.Items()[0].(notificationItem)
	assert.Equal(t, "a", first.notification.ID)
	assert.Contains(t, first.Description(), "[chat]")
	assert.Contains(t, first.Description(), "Is the room free?")
}

func TestModel_DismissHidesNotification(t *testing.T) {
	s := seedStore(t)
	m := sized(t, New(s))

	m, cmd := press(t, m, "d")
	require.NotNil(t, cmd)
	assert.Equal(t, statusMsg{text: "Notification dismissed"}, cmd())

	assert.True(t, s.GetByID("a").IsDismissed())
	require.Len(t, m.list.Items(), 1)
	assert.Equal(t, "b", m.list.Items()[0].(notificationItem).notification.ID)

	m, _ = press(t, m, "a")
	assert.Len(t, m.list.Items(), 2, "toggle shows dismissed")
}

func TestModel_SearchFilters(t *testing.T) {
	m := sized(t, New(seedStore(t)))

	m, _ = press(t, m, "/")
	assert.Equal(t, ModeSearch, m.mode)

	m, _ = press(t, m, "kind:payment")
	assert.Equal(t, "kind:payment", m.searchQuery)
	require.Len(t, m.list.Items(), 1)
	assert.Equal(t, "b", m.list.Items()[0].(notificationItem).notification.ID)

	// q is text while searching
	m, _ = press(t, m, "q")
	assert.Equal(t, ModeSearch, m.mode)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	assert.Equal(t, ModeList, m.mode)
	assert.Len(t, m.list.Items(), 2)
}

func TestModel_DetailView(t *testing.T) {
	m := sized(t, New(seedStore(t)))

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	require.Equal(t, ModeDetail, m.mode)
	require.NotNil(t, m.selected)

	detail := m.renderDetail(*m.selected)
	assert.Contains(t, detail, "New message from Alice")
	assert.Contains(t, detail, "chat-42")
	assert.Contains(t, detail, "/chat/42")
	assert.Contains(t, detail, "shown")

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ModeList, updated.(Model).mode)
}

func TestModel_CopyURL(t *testing.T) {
	var copied string
	orig := writeClipboard
	writeClipboard = func(text string) error {
		copied = text
		return nil
	}
	t.Cleanup(func() { writeClipboard = orig })

	m := sized(t, New(seedStore(t)))
	_, cmd := press(t, m, "u")
	require.NotNil(t, cmd)

	res, ok := cmd().(copyResultMsg)
	require.True(t, ok)
	require.NoError(t, res.err)
	assert.Equal(t, "URL", res.what)
	assert.Equal(t, "/chat/42", copied)
}

func TestExportNotifications(t *testing.T) {
	ns := []model.Notification{{ID: "a", Kind: model.KindChat, Title: "Hi", Tag: "chat-42", RoomID: model.ParseRoomID("42")}}

	out, err := exportNotifications(ns, "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "room_id: 42")
	assert.Contains(t, out, "kind: chat")

	out, err = exportNotifications(ns, "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"room_id": 42`)

	_, err = exportNotifications(ns, "xml")
	assert.Error(t, err)
}

func TestBuildKeybindBar_FitsWidth(t *testing.T) {
	m := New(nil)

	full := m.buildKeybindBar(0, ModeList)
	assert.Contains(t, full, "refresh")

	narrow := m.buildKeybindBar(20, ModeList)
	assert.Contains(t, narrow, "quit")
	assert.NotContains(t, narrow, "refresh")
}
