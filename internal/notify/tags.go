package notify

import (
	"sync"
	"time"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// Entry is a notification currently shown by the notification server.
type Entry struct {
	Tag       string
	BackendID uint32
	HistoryID string
	Kind      model.Kind
	Payload   model.Payload
	ShownAt   time.Time
}

// Tracker maps tags to the notification currently shown for them, and
// notification server ids back to the entry. It is what makes a new
// notification replace the previous one with the same tag.
type Tracker struct {
	mu        sync.RWMutex
	byTag     map[string]*Entry
	byBackend map[uint32]*Entry
	locks     map[string]*tagLock
}

type tagLock struct {
	mu   sync.Mutex
	refs int
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byTag:     make(map[string]*Entry),
		byBackend: make(map[uint32]*Entry),
		locks:     make(map[string]*tagLock),
	}
}

// LockTag serialises showing notifications for tag. Hold it from ReplaceID
// through Register so two notifications with the same tag never both go out
// as new ones.
func (t *Tracker) LockTag(tag string) (unlock func()) {
	t.mu.Lock()
	l, ok := t.locks[tag]
	if !ok {
		l = &tagLock{}
		t.locks[tag] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, tag)
		}
		t.mu.Unlock()
	}
}

// ReplaceID returns the server id to pass as replaces_id for tag, or 0.
func (t *Tracker) ReplaceID(tag string) uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if e, ok := t.byTag[tag]; ok {
		return e.BackendID
	}
	return 0
}

// Register records the notification shown for e.Tag and returns the entry
// it replaced, if any.
func (t *Tracker) Register(e Entry) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.ShownAt.IsZero() {
		e.ShownAt = time.Now()
	}

	old, replaced := t.byTag[e.Tag]
	if replaced {
		delete(t.byBackend, old.BackendID)
	}
	// A server may hand out an id still mapped to another tag; the newest wins.
	if other, ok := t.byBackend[e.BackendID]; ok && other.Tag != e.Tag {
		delete(t.byTag, other.Tag)
	}

	entry := e
	t.byTag[e.Tag] = &entry
	t.byBackend[e.BackendID] = &entry

	if replaced {
		return *old, true
	}
	return Entry{}, false
}

// Lookup returns the entry for a notification server id.
func (t *Tracker) Lookup(backendID uint32) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if e, ok := t.byBackend[backendID]; ok {
		return *e, true
	}
	return Entry{}, false
}

// ByTag returns the entry currently shown for tag.
func (t *Tracker) ByTag(tag string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if e, ok := t.byTag[tag]; ok {
		return *e, true
	}
	return Entry{}, false
}

// Remove forgets the notification with the given server id.
func (t *Tracker) Remove(backendID uint32) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byBackend[backendID]
	if !ok {
		return Entry{}, false
	}
	delete(t.byBackend, backendID)
	if current, ok := t.byTag[e.Tag]; ok && current.BackendID == backendID {
		delete(t.byTag, e.Tag)
	}
	return *e, true
}

// Active returns every tracked entry.
func (t *Tracker) Active() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.byTag))
	for _, e := range t.byTag {
		out = append(out, *e)
	}
	return out
}

// Len returns the number of tracked tags.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byTag)
}
