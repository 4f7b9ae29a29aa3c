// Package store provides the notification history, shared state and outbox
// persistence used by chatnotifyd and the chatnotify CLI.
package store

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// ChangeType indicates the type of store change.
type ChangeType int

const (
	// ChangeTypeAdd indicates notifications were added.
	ChangeTypeAdd ChangeType = iota
	// ChangeTypeUpdate indicates a notification was clicked, dismissed or replaced.
	ChangeTypeUpdate
	// ChangeTypeClear indicates all notifications were cleared.
	ChangeTypeClear
	// ChangeTypePrune indicates notifications were pruned.
	ChangeTypePrune
	// ChangeTypeReload indicates the history was reloaded from disk.
	ChangeTypeReload
)

// ChangeEvent signals store content changes.
type ChangeEvent struct {
	Type  ChangeType
	Count int
	ID    string
}

// FilterOptions specifies criteria for filtering notifications.
type FilterOptions struct {
	Since            time.Duration // newer than now-since (0=all)
	Kind             model.Kind    // exact kind match ("" = any)
	Tag              string        // exact tag match ("" = any)
	IncludeDismissed bool
	Limit            int    // maximum results (0=unlimited)
	SortOrder        string // "asc" or "desc" (default: "desc")
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
var ErrStoreClosed = errors.New("store is closed")

// Store manages the notification history with thread-safe operations.
type Store struct {
	mu            sync.RWMutex
	notifications []model.Notification
	index         map[string]int // id -> slice index

	persistence Persistence

	subscribers []chan ChangeEvent
	closed      bool
}

// NewStore creates a new Store.
// If persistence is not nil, it will be used to persist notifications.
func NewStore(persistence Persistence) *Store {
	return &Store{
		notifications: make([]model.Notification, 0),
		index:         make(map[string]int),
		persistence:   persistence,
	}
}

// Add adds a single notification to the store. Notifications with an ID
// already present are ignored.
func (s *Store) Add(n model.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, exists := s.index[n.ID]; exists {
		return nil
	}

	s.index[n.ID] = len(s.notifications)
	s.notifications = append(s.notifications, n)

	if s.persistence != nil {
		if err := s.persistence.Append(n); err != nil {
			return err
		}
	}

	s.notifyChange(ChangeEvent{Type: ChangeTypeAdd, Count: 1, ID: n.ID})
	return nil
}

// All returns all notifications sorted by timestamp, newest first.
func (s *Store) All() []model.Notification {
	return s.Filter(FilterOptions{IncludeDismissed: true})
}

// Filter returns notifications matching the criteria.
func (s *Store) Filter(opts FilterOptions) []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff int64
	if opts.Since > 0 {
		cutoff = time.Now().Add(-opts.Since).Unix()
	}

	result := make([]model.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if cutoff > 0 && n.Timestamp < cutoff {
			continue
		}
		if opts.Kind != "" && n.Kind != opts.Kind {
			continue
		}
		if opts.Tag != "" && n.Tag != opts.Tag {
			continue
		}
		if !opts.IncludeDismissed && n.IsDismissed() {
			continue
		}
		result = append(result, n)
	}

	// Stable on insertion order so equal-second timestamps keep arrival order.
	asc := opts.SortOrder == "asc"
	sort.SliceStable(result, func(i, j int) bool {
		if asc {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].Timestamp > result[j].Timestamp
	})
	if !asc {
		// Within one second the newest insert should come first.
		reverseWithinSameSecond(result)
	}

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result
}

func reverseWithinSameSecond(ns []model.Notification) {
	for start := 0; start < len(ns); {
		end := start + 1
		for end < len(ns) && ns[end].Timestamp == ns[start].Timestamp {
			end++
		}
		slices.Reverse(ns[start:end])
		start = end
	}
}

// GetByID returns a notification by its ULID.
func (s *Store) GetByID(id string) *model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx, exists := s.index[id]; exists {
		n := s.notifications[idx]
		return &n
	}
	return nil
}

// FindByBackendID returns the most recent notification displayed with the
// given notification server id.
func (s *Store) FindByBackendID(backendID uint32) *model.Notification {
	if backendID == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].BackendID == backendID {
			n := s.notifications[i]
			return &n
		}
	}
	return nil
}

// Count returns the total number of notifications.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}

// Dismiss marks a notification as dismissed.
func (s *Store) Dismiss(id string) error {
	return s.update(id, func(n *model.Notification) bool {
		if n.IsDismissed() {
			return false
		}
		n.MarkDismissed()
		return true
	})
}

// MarkClicked records the action the user invoked on a notification.
func (s *Store) MarkClicked(id, action string) error {
	return s.update(id, func(n *model.Notification) bool {
		n.MarkClicked(action)
		return true
	})
}

// MarkReplaced records that a later notification with the same tag took
// the place of id.
func (s *Store) MarkReplaced(id, replacedBy string) error {
	return s.update(id, func(n *model.Notification) bool {
		if n.ReplacedBy == replacedBy {
			return false
		}
		n.ReplacedBy = replacedBy
		return true
	})
}

// update applies fn to the notification with id and persists the change
// when fn reports one. Unknown ids are ignored.
func (s *Store) update(id string, fn func(n *model.Notification) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	idx, exists := s.index[id]
	if !exists {
		return nil
	}
	if !fn(&s.notifications[idx]) {
		return nil
	}

	if s.persistence != nil {
		if err := s.persistence.Rewrite(s.notifications); err != nil {
			return err
		}
	}

	s.notifyChange(ChangeEvent{Type: ChangeTypeUpdate, Count: 1, ID: id})
	return nil
}

// Prune keeps only the newest maxLen notifications. Returns the number
// removed. maxLen <= 0 means unlimited.
func (s *Store) Prune(maxLen int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	if maxLen <= 0 || len(s.notifications) <= maxLen {
		return 0, nil
	}

	sort.SliceStable(s.notifications, func(i, j int) bool {
		return s.notifications[i].Timestamp < s.notifications[j].Timestamp
	})
	removed := len(s.notifications) - maxLen
	s.notifications = append([]model.Notification(nil), s.notifications[removed:]...)
	s.rebuildIndex()

	if s.persistence != nil {
		if err := s.persistence.Rewrite(s.notifications); err != nil {
			return removed, err
		}
	}

	s.notifyChange(ChangeEvent{Type: ChangeTypePrune, Count: removed})
	return removed, nil
}

// PruneBefore removes notifications older than cutoff and returns how many
// were removed.
func (s *Store) PruneBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	limit := cutoff.Unix()
	kept := make([]model.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if n.Timestamp >= limit {
			kept = append(kept, n)
		}
	}
	removed := len(s.notifications) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	s.notifications = kept
	s.rebuildIndex()

	if s.persistence != nil {
		if err := s.persistence.Rewrite(s.notifications); err != nil {
			return removed, err
		}
	}

	s.notifyChange(ChangeEvent{Type: ChangeTypePrune, Count: removed})
	return removed, nil
}

// Clear removes all notifications from the store.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	count := len(s.notifications)
	s.notifications = make([]model.Notification, 0)
	s.index = make(map[string]int)

	if s.persistence != nil {
		if err := s.persistence.Clear(); err != nil {
			return err
		}
	}

	s.notifyChange(ChangeEvent{Type: ChangeTypeClear, Count: count})
	return nil
}

// Hydrate replaces the in-memory history with the persisted one. The file
// is the source of truth, so changes made by other processes (such as a
// clear from the CLI) become visible.
func (s *Store) Hydrate() error {
	if s.persistence == nil {
		return nil
	}

	notifications, err := s.persistence.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.notifications = make([]model.Notification, 0, len(notifications))
	s.index = make(map[string]int, len(notifications))
	for _, n := range notifications {
		if idx, exists := s.index[n.ID]; exists {
			// Later lines win; an update rewrites the record in place.
			s.notifications[idx] = n
			continue
		}
		s.index[n.ID] = len(s.notifications)
		s.notifications = append(s.notifications, n)
	}

	s.notifyChange(ChangeEvent{Type: ChangeTypeReload, Count: len(s.notifications)})
	return nil
}

// Subscribe returns a channel that receives change events.
func (s *Store) Subscribe() <-chan ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan ChangeEvent, 10)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscription.
func (s *Store) Unsubscribe(ch <-chan ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close releases resources and closes all subscriber channels.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil

	if s.persistence != nil {
		return s.persistence.Close()
	}
	return nil
}

func (s *Store) rebuildIndex() {
	s.index = make(map[string]int, len(s.notifications))
	for i, n := range s.notifications {
		s.index[n.ID] = i
	}
}

// notifyChange sends a change event to all subscribers (non-blocking).
func (s *Store) notifyChange(event ChangeEvent) {
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
}
