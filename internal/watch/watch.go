// Package watch reports on-disk changes to message-queue configuration files
// in a workspace.
package watch

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/mqlsp/internal/logging"
)

// DefaultDelay coalesces bursts of writes to one file.
const DefaultDelay = 150 * time.Millisecond

// skipDirs are never watched.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"dist":         true,
}

// Config configures a Watcher.
type Config struct {
	// Match selects the files whose changes are reported.
	Match func(path string) bool
	// OnChange receives the absolute path of a changed file.
	OnChange func(path string)
	// Delay is the debounce window; zero uses DefaultDelay.
	Delay time.Duration
}

// Watcher watches a workspace root and its immediate subdirectories.
type Watcher struct {
	fsw    *fsnotify.Watcher
	config Config

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New starts watching root. Match and OnChange are required.
func New(root string, config Config) (*Watcher, error) {
	if config.Match == nil || config.OnChange == nil {
		return nil, errors.New("watch: Match and OnChange are required")
	}
	if config.Delay <= 0 {
		config.Delay = DefaultDelay
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("watch: root is not a directory")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(absRoot); err != nil {
		fsw.Close()
		return nil, err
	}

	entries, err := os.ReadDir(absRoot)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() || ignoredDir(e.Name()) {
				continue
			}
			if err := fsw.Add(filepath.Join(absRoot, e.Name())); err != nil {
				logging.Warn("watch", "skip %s: %v", e.Name(), err)
			}
		}
	}

	w := &Watcher{
		fsw:     fsw,
		config:  config,
		pending: make(map[string]*time.Timer),
		closeCh: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func ignoredDir(name string) bool {
	return strings.HasPrefix(name, ".") || skipDirs[name]
}

// WatchList returns the watched directories.
func (w *Watcher) WatchList() []string {
	return w.fsw.WatchList()
}

// Close stops the watcher. Pending debounced changes are discarded.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn("watch", "fsnotify: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if !w.config.Match(ev.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[ev.Name]; ok {
		t.Stop()
	}
	path := ev.Name
	w.pending[path] = time.AfterFunc(w.config.Delay, func() {
		w.mu.Lock()
		_, live := w.pending[path]
		delete(w.pending, path)
		closed := w.closed
		w.mu.Unlock()
		if live && !closed {
			w.config.OnChange(path)
		}
	})
}
