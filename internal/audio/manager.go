package audio

import (
	"log/slog"
	"os"
	"sync"

	"github.com/jmylchreest/chatnotify/internal/config"
	"github.com/jmylchreest/chatnotify/internal/model"
)

// Manager plays the configured sound for each notification kind.
type Manager struct {
	logger  *slog.Logger
	player  *Player
	watcher *Watcher

	// OnError is called when a sound fails to play.
	OnError func(err error)

	mu        sync.RWMutex
	enabled   bool
	chatSound bool
	sounds    map[model.Kind]string
}

// NewManager creates a Manager for cfg.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	player := NewPlayer(logger)
	m := &Manager{
		logger:  logger,
		player:  player,
		watcher: NewWatcher(player, logger),
	}
	m.apply(cfg)
	return m
}

// kindSounds maps each kind to the config key of its sound.
var kindSounds = map[model.Kind]string{
	model.KindChat:    "chat",
	model.KindPayment: "payment",
	model.KindPush:    "push",
	model.KindWelcome: "push",
	model.KindCustom:  "push",
}

func (m *Manager) apply(cfg *config.Config) {
	sounds := make(map[model.Kind]string)
	for kind, key := range kindSounds {
		path := cfg.SoundForKind(key)
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			m.logger.Warn("sound file not found", "kind", kind, "path", path)
			continue
		}
		if !Supported(path) {
			m.logger.Warn("unsupported sound format", "kind", kind, "path", path)
			continue
		}
		sounds[kind] = path
	}

	m.mu.Lock()
	m.enabled = cfg.Audio.Enabled
	m.chatSound = cfg.Dispatch.ChatSound
	m.sounds = sounds
	m.mu.Unlock()

	m.player.SetVolume(float64(cfg.Audio.Volume) / 100)
}

// SoundFor returns the sound path played for kind, or "" when none is.
func (m *Manager) SoundFor(kind model.Kind) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.enabled {
		return ""
	}
	if kind == model.KindChat && !m.chatSound {
		return ""
	}
	return m.sounds[kind]
}

// Start preloads the configured sounds and watches them for changes.
func (m *Manager) Start() error {
	m.preload()
	return m.watcher.Start()
}

func (m *Manager) preload() {
	m.mu.RLock()
	paths := make([]string, 0, len(m.sounds))
	for _, p := range m.sounds {
		paths = append(paths, p)
	}
	m.mu.RUnlock()

	for _, p := range paths {
		if err := m.player.Preload(p); err != nil {
			m.logger.Warn("failed to preload sound", "path", p, "error", err)
		}
		m.watcher.Watch(p)
	}
}

// Stop releases the speaker and the watcher.
func (m *Manager) Stop() {
	m.watcher.Stop()
	m.player.Close()
}

// PlayForKind plays the sound for kind without blocking the caller.
func (m *Manager) PlayForKind(kind model.Kind) {
	path := m.SoundFor(kind)
	if path == "" {
		return
	}
	go func() {
		if err := m.player.Play(path); err != nil {
			m.logger.Warn("failed to play sound", "kind", kind, "error", err)
			if m.OnError != nil {
				m.OnError(err)
			}
		}
	}()
}

// UpdateConfig applies a reloaded configuration.
func (m *Manager) UpdateConfig(cfg *config.Config) {
	m.player.ClearCache()
	m.apply(cfg)
	m.preload()
	m.logger.Debug("audio config updated")
}
