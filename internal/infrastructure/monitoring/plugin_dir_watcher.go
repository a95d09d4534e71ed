// Package monitoring watches the plugins directory and reports settled changes.
package monitoring

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"kilometers.ai/pluginhost/internal/core/plugin"
)

// DefaultDebounce is how long a file must be quiet before its change is reported
const DefaultDebounce = 300 * time.Millisecond

// ChangeHandler receives the plugin names whose files changed in one batch
type ChangeHandler func(ctx context.Context, names []string)

// PluginDirWatcher watches a plugins directory for created, modified,
// removed and renamed plugin source files.
type PluginDirWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	dir      string
	onChange ChangeHandler
	debounce time.Duration
	pending  map[string]time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	logger   *zap.Logger
}

// NewPluginDirWatcher creates a watcher for dir. A non-positive debounce uses DefaultDebounce.
func NewPluginDirWatcher(dir string, debounce time.Duration, onChange ChangeHandler, logger *zap.Logger) (*PluginDirWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("change handler cannot be nil")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &PluginDirWatcher{
		watcher:  watcher,
		dir:      dir,
		onChange: onChange,
		debounce: debounce,
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger.With(zap.String("component", "watcher"), zap.String("dir", dir)),
	}, nil
}

// Start begins watching. It does not block; call Stop to release resources.
func (w *PluginDirWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to watch plugins directory: %w", err)
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("watching plugins directory")
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its loop to exit
func (w *PluginDirWatcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("error closing watcher", zap.Error(err))
	}
}

// Done is closed once the watch loop has exited
func (w *PluginDirWatcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *PluginDirWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounce / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))

		case now := <-ticker.C:
			if names := w.settled(now); len(names) > 0 {
				w.onChange(ctx, names)
			}
		}
	}
}

func (w *PluginDirWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	name, err := plugin.NameFromFile(filepath.Base(event.Name))
	if err != nil {
		return
	}

	w.logger.Debug("plugin file event", zap.String("plugin", name.Value()), zap.String("op", event.Op.String()))

	w.mu.Lock()
	w.pending[name.Value()] = time.Now()
	w.mu.Unlock()
}

// settled removes and returns the names that have been quiet for the debounce window
func (w *PluginDirWatcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var names []string
	for name, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			names = append(names, name)
			delete(w.pending, name)
		}
	}
	sort.Strings(names)
	return names
}
