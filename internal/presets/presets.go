// Package presets loads the local default layout preset used when a device
// has no stored layout, and hot-reloads it on file change.
package presets

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/snrmed/family-display-backend3/internal/models"
)

// Store holds the parsed default preset. A missing or broken preset file is
// not fatal; Current simply returns nil until a valid file appears.
type Store struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	layout *models.Layout
}

// NewStore creates a preset store for the given file path and performs the
// initial load.
func NewStore(path string, logger *slog.Logger) *Store {
	s := &Store{path: path, logger: logger}
	s.reload()
	return s
}

// Current returns the current default layout, or nil when none is loadable.
// Callers must not mutate the returned layout.
func (s *Store) Current() *models.Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout
}

func (s *Store) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("presets: read failed",
				slog.String("path", s.path),
				slog.String("error", err.Error()))
		}
		s.set(nil)
		return
	}
	var layout models.Layout
	if err := json.Unmarshal(data, &layout); err != nil {
		s.logger.Warn("presets: parse failed",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		s.set(nil)
		return
	}
	s.set(&layout)
	s.logger.Info("presets: loaded",
		slog.String("path", s.path),
		slog.Int("elements", len(layout.Elements)))
}

func (s *Store) set(layout *models.Layout) {
	s.mu.Lock()
	s.layout = layout
	s.mu.Unlock()
}

// Watch starts an fsnotify watcher on the preset's directory and reloads the
// preset (debounced) whenever it changes, until ctx is cancelled. Watching
// the directory rather than the file survives editor rename-on-save.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		return err
	}
	s.logger.Info("presets: watching", slog.String("dir", dir))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(200 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			s.logger.Info("presets: watcher stopped")
			return nil

		case <-reloadCh:
			s.reload()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			scheduleReload()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("presets: watcher error", slog.String("error", err.Error()))
		}
	}
}
