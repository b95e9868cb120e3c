package catalog

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 250 * time.Millisecond

// Errors returned by Watcher.
var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrPathNotExist  = errors.New("path does not exist")
)

// Watcher reports catalogs whose directory tree changed on disk.
// Bursts of changes to one catalog are coalesced into a single
// notification once the catalog has been quiet for the debounce delay.
type Watcher struct {
	fsw   *fsnotify.Watcher
	delay time.Duration

	mu      sync.Mutex
	dirs    map[string]string // watched directory -> catalog name
	pending map[string]*time.Timer
	closed  bool

	changes  chan string
	errors   chan error
	closeCh  chan struct{}
	closedWg sync.WaitGroup
	firing   sync.WaitGroup
}

// NewWatcher creates a watcher with the given debounce delay.
func NewWatcher(delay time.Duration) (*Watcher, error) {
	if delay <= 0 {
		delay = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		delay:   delay,
		dirs:    make(map[string]string),
		pending: make(map[string]*time.Timer),
		changes: make(chan string, 16),
		errors:  make(chan error, 16),
		closeCh: make(chan struct{}),
	}

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Add watches basePath and every directory below it on behalf of the
// named catalog.
func (w *Watcher) Add(name, basePath string) error {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "watch", Path: absPath, Err: errors.New("not a directory")}
	}

	return filepath.WalkDir(absPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != absPath && ignored(p) {
			return filepath.SkipDir
		}
		return w.watchDir(name, p)
	})
}

func (w *Watcher) watchDir(name, dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = name
	return nil
}

// Catalogs returns the names of watched catalogs.
func (w *Watcher) Catalogs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[string]bool)
	var names []string
	for _, name := range w.dirs {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Changes returns the channel of changed catalog names.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Errors returns the channel of watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher and closes its channels.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)

	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
	w.mu.Unlock()

	w.closedWg.Wait()
	w.firing.Wait()

	close(w.changes)
	close(w.errors)

	return w.fsw.Close()
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

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
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod || ignored(ev.Name) {
		return
	}

	w.mu.Lock()
	name, ok := w.dirs[filepath.Dir(ev.Name)]
	w.mu.Unlock()
	if !ok {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.Add(name, ev.Name)
		}
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.forget(ev.Name)
	}

	w.schedule(name)
}

// forget releases the watches on dir and every watched directory below it.
func (w *Watcher) forget(dir string) {
	prefix := dir + string(filepath.Separator)

	w.mu.Lock()
	var gone []string
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			gone = append(gone, d)
			delete(w.dirs, d)
		}
	}
	w.mu.Unlock()

	for _, d := range gone {
		// The kernel may already have dropped the watch of a deleted
		// directory.
		_ = w.fsw.Remove(d)
	}
}

// schedule starts or restarts the debounce timer of a catalog.
func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.pending[name]; ok {
		t.Reset(w.delay)
		return
	}
	w.pending[name] = time.AfterFunc(w.delay, func() {
		w.fire(name)
	})
}

func (w *Watcher) fire(name string) {
	w.mu.Lock()
	if _, ok := w.pending[name]; !ok || w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, name)
	w.firing.Add(1)
	w.mu.Unlock()
	defer w.firing.Done()

	select {
	case w.changes <- name:
	case <-w.closeCh:
	default:
		// A notification for this catalog is already queued or the
		// consumer is stalled; one reload covers both.
	}
}

// ignored matches editor swap and backup files and hidden entries.
func ignored(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".tmp")
}
