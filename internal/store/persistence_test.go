package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLPersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "chatnotify_schema_version")
	assert.Equal(t, path, p.Path())
}

func TestNewJSONLPersistence_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "nested", "history.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	_, err = os.Stat(filepath.Dir(path))
	require.NoError(t, err)
}

func TestJSONLPersistence_AppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Append(persistTestNotification("persist1")))
	require.NoError(t, p.Append(persistTestNotification("persist2")))

	notifications, err := p.Load()
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.Equal(t, "persist1", notifications[0].ID)
	assert.Equal(t, "persist2", notifications[1].ID)
	assert.Equal(t, "42", notifications[0].RoomID.String())
}

func TestJSONLPersistence_Rewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Append(persistTestNotification("old1")))
	require.NoError(t, p.Append(persistTestNotification("old2")))

	require.NoError(t, p.Rewrite([]model.Notification{
		persistTestNotification("new1"),
	}))

	notifications, err := p.Load()
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "new1", notifications[0].ID)

	// Appending after a rewrite goes to the new file.
	require.NoError(t, p.Append(persistTestNotification("new2")))
	notifications, err = p.Load()
	require.NoError(t, err)
	assert.Len(t, notifications, 2)

	_, err = os.Stat(path + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestJSONLPersistence_Clear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Append(persistTestNotification("a")))
	require.NoError(t, p.Clear())

	notifications, err := p.Load()
	require.NoError(t, err)
	assert.Empty(t, notifications)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "chatnotify_schema_version")
}

func TestJSONLPersistence_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")

	content := `{"chatnotify_schema_version":1,"created_at":1}
{"id":"good1","kind":"push","title":"a","tag":"t","timestamp":1,"room_id":null}
this is not json
{"title":"no id"}
{"id":"good2","kind":"chat","title":"b","tag":"t","timestamp":2,"room_id":"abc"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	notifications, err := p.Load()
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.Equal(t, "good1", notifications[0].ID)
	assert.True(t, notifications[0].RoomID.IsZero())
	assert.Equal(t, "abc", notifications[1].RoomID.String())
}

func TestJSONLPersistence_RejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"chatnotify_schema_version":99,"created_at":1}`+"\n"), 0600))

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema version")
}

func TestJSONLPersistence_ReopensReplacedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")

	daemon, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer daemon.Close()
	require.NoError(t, daemon.Append(persistTestNotification("before")))

	// Another process clears the history.
	cli, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	require.NoError(t, cli.Clear())
	require.NoError(t, cli.Close())

	require.NoError(t, daemon.Append(persistTestNotification("after")))

	reader, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer reader.Close()
	notifications, err := reader.Load()
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "after", notifications[0].ID)
}

func TestJSONLPersistence_Closed(t *testing.T) {
	dir := t.TempDir()
	p, err := NewJSONLPersistence(filepath.Join(dir, "history.jsonl"))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Append(persistTestNotification("x")), ErrPersistenceClosed)
	_, err = p.Load()
	assert.ErrorIs(t, err, ErrPersistenceClosed)
	assert.ErrorIs(t, p.Rewrite(nil), ErrPersistenceClosed)
	assert.ErrorIs(t, p.Clear(), ErrPersistenceClosed)
}

func persistTestNotification(id string) model.Notification {
	return model.Notification{
		ID:        id,
		Kind:      model.KindChat,
		Title:     "New message from alice",
		Body:      "hello " + id,
		Tag:       "chat-42",
		URL:       "/room/42",
		RoomID:    model.ParseRoomID("42"),
		Timestamp: time.Now().Unix(),
	}
}
