// Package watcher recursively watches the sessions directory tree for
// .jsonl changes, debounces bursts of events, and invokes a callback no more
// often than a minimum notification interval — reproducing the original
// implementation's debounce-plus-batch behavior on top of fsnotify.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// debounceWindow is how long the watcher waits after the last event
	// before considering a burst "settled".
	debounceWindow = 3 * time.Second
	// minNotifyInterval caps how often NotifyFunc can fire even if changes
	// keep arriving back to back.
	minNotifyInterval = 5 * time.Second
	// pollTick is how often the background loop wakes up to check whether a
	// pending notification has cleared its debounce/min-interval gates.
	pollTick = 1 * time.Second
)

// NotifyFunc is invoked with the set of changed .jsonl paths accumulated
// since the previous notification.
type NotifyFunc func(changedPaths []string)

// Watcher recursively watches a root directory and calls a NotifyFunc after
// changes settle.
type Watcher struct {
	root   string
	notify NotifyFunc
	fsw    *fsnotify.Watcher

	mu             sync.Mutex
	changed        map[string]bool
	lastEvent      time.Time
	lastNotify     time.Time
	pending        bool
	closeCh        chan struct{}
	wg             sync.WaitGroup
}

// New creates a Watcher rooted at root. Call Start to begin watching.
func New(root string, notify NotifyFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:    root,
		notify:  notify,
		fsw:     fsw,
		changed: make(map[string]bool),
		closeCh: make(chan struct{}),
	}, nil
}

// Start walks root adding every directory to the watch set (fsnotify has no
// built-in recursive mode) and begins the event-processing loop.
func (w *Watcher) Start() error {
	if err := w.addTree(w.root); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// A missing or unreadable subdirectory shouldn't abort the whole
			// walk — skip it and keep watching the rest of the tree.
			return nil
		}
		if d.IsDir() {
			if werr := w.fsw.Add(path); werr != nil {
				slog.Warn("failed to watch directory", "path", path, "error", werr)
			}
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", "error", err)

		case <-ticker.C:
			w.maybeNotify()
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	// New directories (e.g. a freshly created project folder) need to join
	// the watch set so their future files are seen.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				slog.Warn("failed to watch new directory", "path", ev.Name, "error", err)
			}
		}
	}

	if !strings.HasSuffix(ev.Name, ".jsonl") {
		return
	}

	w.mu.Lock()
	w.changed[ev.Name] = true
	w.lastEvent = time.Now()
	w.pending = true
	w.mu.Unlock()
}

// maybeNotify fires notify once the debounce window has elapsed since the
// last event AND the minimum notification interval has elapsed since the
// last fire.
func (w *Watcher) maybeNotify() {
	w.mu.Lock()
	if !w.pending {
		w.mu.Unlock()
		return
	}
	if time.Since(w.lastEvent) < debounceWindow {
		w.mu.Unlock()
		return
	}
	if time.Since(w.lastNotify) < minNotifyInterval {
		w.mu.Unlock()
		return
	}

	paths := make([]string, 0, len(w.changed))
	for p := range w.changed {
		paths = append(paths, p)
	}
	w.changed = make(map[string]bool)
	w.pending = false
	w.lastNotify = time.Now()
	w.mu.Unlock()

	w.notify(paths)
}

// Close stops the watcher goroutine and releases the underlying fsnotify
// handle.
func (w *Watcher) Close() error {
	close(w.closeCh)
	w.wg.Wait()
	return w.fsw.Close()
}
