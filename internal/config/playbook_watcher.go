package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gumshoe/internal/logging"
)

// PlaybookWatcher watches the playbook YAML for changes and hot-reloads it
// into a PlaybookHolder. Rapid saves are debounced.
type PlaybookWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	holder      *PlaybookHolder
	path        string
	debounceDur time.Duration
	pending     time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	reloads     int
}

// NewPlaybookWatcher creates a watcher for the given playbook path.
func NewPlaybookWatcher(path string, holder *PlaybookHolder) (*PlaybookWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &PlaybookWatcher{
		watcher:     watcher,
		holder:      holder,
		path:        path,
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watcher runs in a goroutine.
// The containing directory is watched so the file can be created later.
func (w *PlaybookWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		logging.Get(logging.CategoryBoot).Warn("PlaybookWatcher: initial watch failed: %v", err)
	} else {
		logging.Boot("PlaybookWatcher: watching %s", dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (w *PlaybookWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

// Reloads returns how many times the playbook was reloaded.
func (w *PlaybookWatcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *PlaybookWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
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
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryBoot).Warn("PlaybookWatcher: %v", err)
		case <-ticker.C:
			w.maybeReload()
		}
	}
}

func (w *PlaybookWatcher) maybeReload() {
	w.mu.Lock()
	pending := w.pending
	if pending.IsZero() || time.Since(pending) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.mu.Unlock()

	pb, err := LoadPlaybook(w.path)
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("PlaybookWatcher: reload failed, keeping previous playbook: %v", err)
		return
	}
	w.holder.Replace(pb)

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	logging.Boot("PlaybookWatcher: playbook reloaded from %s", w.path)
}
