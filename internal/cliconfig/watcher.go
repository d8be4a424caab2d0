package cliconfig

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/lottery/internal/ports"
)

const defaultDebounce = 100 * time.Millisecond

// LevelWatcher reloads log_level from the config file whenever the file is
// written, and applies it to the running process.
type LevelWatcher struct {
	path     string
	logger   ports.Logger
	apply    func(level string) error
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewLevelWatcher creates a watcher for the config file at path.
func NewLevelWatcher(path string, logger ports.Logger) *LevelWatcher {
	return &LevelWatcher{
		path:     path,
		logger:   logger,
		apply:    ApplyLogLevel,
		debounce: defaultDebounce,
	}
}

// Start begins watching the file's directory. Events are handled on a
// background goroutine until ctx is canceled.
func (w *LevelWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Editors replace files by rename, so watch the directory rather than the file.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go w.run(ctx, watcher)
	return nil
}

func (w *LevelWatcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	defer w.stopTimer()

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", ports.Err(err))
		}
	}
}

func (w *LevelWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *LevelWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *LevelWatcher) reload() {
	fc, err := LoadFileConfig(w.path)
	if err != nil {
		w.logger.Warn("config reload failed",
			ports.String("path", w.path),
			ports.Err(err),
		)
		return
	}
	if fc.LogLevel == "" {
		return
	}

	if err := w.apply(fc.LogLevel); err != nil {
		w.logger.Warn("config reload failed",
			ports.String("path", w.path),
			ports.Err(err),
		)
		return
	}
	w.logger.Info("log level reloaded", ports.String("level", fc.LogLevel))
}
