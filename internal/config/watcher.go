package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"icxpd/internal/logging"
)

const watchDebounce = 100 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk and hands
// the freshly validated config to a callback. Invalid edits are logged and
// ignored so a typo never takes down a running daemon.
type Watcher struct {
	path     string
	workDir  string
	logger   *slog.Logger
	onChange func(*Config)

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher builds a watcher for the config file at path.
func NewWatcher(path, workDir string, logger *slog.Logger, onChange func(*Config)) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		path:     path,
		workDir:  workDir,
		logger:   logging.NewComponentLogger(logger, "config_watcher"),
		onChange: onChange,
	}
}

// Run watches the config file's directory until ctx ends. The directory is
// watched rather than the file so editors that replace files atomically are
// still observed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	w.logger.Debug("watching config file", logging.String("path", w.path))

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			w.stopDebounce()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "config watcher error", "config_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some config edits may be missed"),
			)
		}
	}
}

func (w *Watcher) scheduleReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(watchDebounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *Watcher) stopDebounce() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
}

func (w *Watcher) reload() {
	cfg, _, exists, err := Load(w.path, w.workDir)
	if err != nil {
		logging.WarnWithContext(w.logger, "config reload rejected", "config_reload_failed",
			logging.String("path", w.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the config file; the previous settings stay active"),
		)
		return
	}
	if !exists {
		return
	}
	w.logger.Info("config reloaded", logging.String("path", w.path))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
