package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// CurrentSchemaVersion is the current version of the state schema.
const CurrentSchemaVersion = 1

// SharedState contains state that is shared between chatnotify and chatnotifyd.
// This is persisted to ~/.local/share/chatnotify/state.json
type SharedState struct {
	// Notification permission
	Permission          model.PermissionState `json:"permission"`
	PermissionChangedAt int64                 `json:"permission_changed_at,omitempty"`
	PermissionSource    string                `json:"permission_source,omitempty"` // "prompt", "cli", ...

	// Set once the welcome notification has been shown after the first grant.
	WelcomeShown bool `json:"welcome_shown,omitempty"`

	LastNotificationAt int64 `json:"last_notification_at,omitempty"`

	SchemaVersion int `json:"schema_version"`
}

// DefaultSharedState returns a new SharedState with default values.
func DefaultSharedState() *SharedState {
	return &SharedState{
		Permission:    model.PermissionDefault,
		SchemaVersion: CurrentSchemaVersion,
	}
}

// SetPermission records a permission change and who made it.
func (s *SharedState) SetPermission(state model.PermissionState, source string) {
	s.Permission = state
	s.PermissionChangedAt = time.Now().Unix()
	s.PermissionSource = source
}

// UpdateLastNotification updates the last notification timestamp.
func (s *SharedState) UpdateLastNotification() {
	s.LastNotificationAt = time.Now().Unix()
}

// StateFile reads and writes SharedState at a fixed path.
type StateFile struct {
	mu   sync.Mutex
	path string
}

// NewStateFile returns a StateFile for path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Path returns the state file path.
func (f *StateFile) Path() string {
	return f.path
}

// Load loads the shared state from disk.
// If the file doesn't exist or is corrupted, returns a default state.
func (f *StateFile) Load() (*SharedState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *StateFile) load() (*SharedState, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSharedState(), nil
		}
		return nil, err
	}

	var state SharedState
	if err := json.Unmarshal(data, &state); err != nil {
		return DefaultSharedState(), nil
	}

	if _, err := model.ParsePermissionState(string(state.Permission)); err != nil {
		state.Permission = model.PermissionDefault
	}
	if state.Permission == "" {
		state.Permission = model.PermissionDefault
	}
	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSchemaVersion
	}

	return &state, nil
}

// Save saves the shared state to disk atomically.
func (f *StateFile) Save(state *SharedState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(state)
}

func (f *StateFile) save(state *SharedState) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return err
	}

	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSchemaVersion
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, f.path)
}

// Update loads the state, applies fn and saves the result under one lock.
func (f *StateFile) Update(fn func(s *SharedState)) (*SharedState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	fn(state)
	if err := f.save(state); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	return state, nil
}

// LoadPermission returns the persisted permission state.
func (f *StateFile) LoadPermission() (model.PermissionState, error) {
	state, err := f.Load()
	if err != nil {
		return model.PermissionDefault, err
	}
	return state.Permission, nil
}

// SavePermission persists a permission state change.
func (f *StateFile) SavePermission(p model.PermissionState, source string) error {
	_, err := f.Update(func(s *SharedState) {
		s.SetPermission(p, source)
	})
	return err
}
