package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmylchreest/chatnotify/internal/config"
	"github.com/jmylchreest/chatnotify/internal/store"
)

// Reloader watches the config and shared state files. A config file that
// loads and validates replaces the current config and is handed to every
// OnConfig callback; an invalid one is reported and ignored. State file
// changes, such as a permission reset from the CLI, run the OnStateChange
// callbacks.
type Reloader struct {
	logger     *slog.Logger
	notifier   *InternalNotifier
	configPath string
	statePath  string

	mu       sync.RWMutex
	current  *config.Config
	onConfig []func(*config.Config)
	onState  []func()
	watchers []*store.FileWatcher
}

// NewReloader creates a Reloader. notifier may be nil.
func NewReloader(configPath, statePath string, initial *config.Config, notifier *InternalNotifier, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{
		logger:     logger,
		notifier:   notifier,
		configPath: configPath,
		statePath:  statePath,
		current:    initial,
	}
}

// OnConfig registers fn to receive reloaded configurations.
func (r *Reloader) OnConfig(fn func(*config.Config)) {
	r.mu.Lock()
	r.onConfig = append(r.onConfig, fn)
	r.mu.Unlock()
}

// OnStateChange registers fn to run when the state file changes.
func (r *Reloader) OnStateChange(fn func()) {
	r.mu.Lock()
	r.onState = append(r.onState, fn)
	r.mu.Unlock()
}

// Current returns the configuration in effect.
func (r *Reloader) Current() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Start begins watching both files.
func (r *Reloader) Start() error {
	targets := []struct {
		path     string
		onChange func()
	}{
		{r.configPath, func() { _ = r.ReloadConfig() }},
		{r.statePath, r.stateChanged},
	}

	for _, t := range targets {
		if t.path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(t.path), 0700); err != nil {
			r.Stop()
			return fmt.Errorf("create directory for %s: %w", t.path, err)
		}
		w, err := store.NewFileWatcher(t.path, t.onChange, r.logger)
		if err != nil {
			r.Stop()
			return fmt.Errorf("watch %s: %w", t.path, err)
		}
		if err := w.Start(); err != nil {
			r.Stop()
			return fmt.Errorf("watch %s: %w", t.path, err)
		}
		r.mu.Lock()
		r.watchers = append(r.watchers, w)
		r.mu.Unlock()
	}

	r.logger.Debug("hot reload started", "config", r.configPath, "state", r.statePath)
	return nil
}

// Stop stops watching.
func (r *Reloader) Stop() {
	r.mu.Lock()
	watchers := r.watchers
	r.watchers = nil
	r.mu.Unlock()

	for _, w := range watchers {
		if err := w.Stop(); err != nil {
			r.logger.Debug("failed to stop watcher", "error", err)
		}
	}
}

// ReloadConfig reads the config file and applies it if valid.
func (r *Reloader) ReloadConfig() error {
	cfg, err := config.LoadConfig(r.configPath)
	if err != nil {
		r.logger.Warn("config reload failed, keeping current config", "error", err)
		if r.notifier != nil {
			r.notifier.NotifyConfigError(err)
		}
		return err
	}

	r.mu.Lock()
	r.current = cfg
	callbacks := append(([]func(*config.Config))(nil), r.onConfig...)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
	r.logger.Info("config reloaded", "path", r.configPath)
	if r.notifier != nil {
		r.notifier.NotifyConfigReloaded()
	}
	return nil
}

func (r *Reloader) stateChanged() {
	r.mu.RLock()
	callbacks := append([]func(){}, r.onState...)
	r.mu.RUnlock()

	for _, fn := range callbacks {
		fn()
	}
}
