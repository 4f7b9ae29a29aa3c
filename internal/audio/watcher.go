package audio

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher drops sounds from the player cache when their files change.
type Watcher struct {
	logger *slog.Logger
	player *Player

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	paths   map[string]bool
	dirs    map[string]bool
	done    chan struct{}
	running bool
}

// NewWatcher creates a Watcher for player's cache.
func NewWatcher(player *Player, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		logger: logger,
		player: player,
		paths:  make(map[string]bool),
		dirs:   make(map[string]bool),
	}
}

// Watch adds a sound file. Files may be added before or after Start.
func (w *Watcher) Watch(path string) {
	if path == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths[path] = true
	w.addDirLocked(filepath.Dir(path))
}

// The parent directory is watched so editors that replace files are seen.
func (w *Watcher) addDirLocked(dir string) {
	if w.fsw == nil || w.dirs[dir] {
		return
	}
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Warn("failed to watch sound directory", "dir", dir, "error", err)
		return
	}
	w.dirs[dir] = true
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	w.done = make(chan struct{})
	w.running = true
	for p := range w.paths {
		w.addDirLocked(filepath.Dir(p))
	}

	go w.loop(fsw, w.done)
	return nil
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.mu.Lock()
			watched := w.paths[ev.Name]
			w.mu.Unlock()
			if watched {
				w.logger.Debug("sound file changed", "path", ev.Name)
				w.player.Invalidate(ev.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("sound watcher error", "error", err)
		}
	}
}

// Stop stops watching.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	fsw, done := w.fsw, w.done
	w.fsw = nil
	w.dirs = make(map[string]bool)
	w.mu.Unlock()

	_ = fsw.Close()
	<-done
}
