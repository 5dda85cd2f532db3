package watch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/jlangch/aviron"
)

// Native is the kernel tree-watch backend, per spec.md §4.2.1. It wraps
// fsnotify.Watcher (the cross-platform equivalent of the source's
// single-OS kernel file-change API) and layers subdirectory
// auto-registration and OVERFLOW synthesis on top.
type Native struct {
	mainDir          string
	registerAllSub   bool
	logger           zerolog.Logger

	fsw *fsnotify.Watcher

	mu       sync.Mutex
	paths    map[string]struct{}
	running  atomic.Bool
	done     chan struct{}
	closeMu  sync.Once

	fileListener FileListener
	errListener  ErrorListener
	termListener TerminationListener
}

// NewNative returns a Native watcher rooted at mainDir. If
// registerAllSub is true, every existing subdirectory is registered on
// Start, and new subdirectories are registered as CREATE events for them
// arrive.
func NewNative(mainDir string, registerAllSub bool, logger zerolog.Logger) *Native {
	return &Native{
		mainDir:        mainDir,
		registerAllSub: registerAllSub,
		logger:         logger,
		paths:          make(map[string]struct{}),
	}
}

// SetFileListener implements FileWatcher.
func (n *Native) SetFileListener(l FileListener) { n.fileListener = l }

// SetErrorListener implements FileWatcher.
func (n *Native) SetErrorListener(l ErrorListener) { n.errListener = l }

// SetTerminationListener implements FileWatcher.
func (n *Native) SetTerminationListener(l TerminationListener) { n.termListener = l }

// RegisteredPaths implements FileWatcher.
func (n *Native) RegisteredPaths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.paths))
	for p := range n.paths {
		out = append(out, p)
	}
	return out
}

// Start implements FileWatcher. Idempotent: a second call is a no-op.
func (n *Native) Start() error {
	if !n.running.CompareAndSwap(false, true) {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		n.running.Store(false)
		return &aviron.WatcherError{Err: err}
	}
	n.fsw = fsw
	n.done = make(chan struct{})

	if err := n.register(n.mainDir); err != nil {
		n.running.Store(false)
		_ = fsw.Close()
		return &aviron.WatcherError{Path: n.mainDir, Err: err}
	}

	if n.registerAllSub {
		_ = filepath.WalkDir(n.mainDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d == nil || !d.IsDir() || path == n.mainDir {
				return nil
			}
			_ = n.register(path)
			return nil
		})
	}

	go n.loop()
	return nil
}

// RegisterSecondary registers an additional directory tree for watching,
// independent of mainDir, used by the real-time scanner for its secondary
// directories (spec.md §4.4).
func (n *Native) RegisterSecondary(dir string) error {
	if err := n.register(dir); err != nil {
		return &aviron.WatcherError{Path: dir, Err: err}
	}
	if n.registerAllSub {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d == nil || !d.IsDir() || path == dir {
				return nil
			}
			_ = n.register(path)
			return nil
		})
	}
	return nil
}

func (n *Native) register(dir string) error {
	if err := n.fsw.Add(dir); err != nil {
		return err
	}
	n.mu.Lock()
	n.paths[dir] = struct{}{}
	n.mu.Unlock()
	return nil
}

func (n *Native) deregister(dir string) {
	_ = n.fsw.Remove(dir)
	n.mu.Lock()
	delete(n.paths, dir)
	n.mu.Unlock()
}

func (n *Native) isRegistered(dir string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.paths[dir]
	return ok
}

// loop runs on a dedicated goroutine (the daemon thread of spec.md §5)
// until Close closes the fsnotify watcher; it then fires the termination
// listener and closes done, which Close waits on.
func (n *Native) loop() {
	var termCause error
	defer func() {
		if n.termListener != nil {
			n.termListener(n.mainDir, termCause)
		}
		close(n.done)
	}()

	for {
		select {
		case ev, ok := <-n.fsw.Events:
			if !ok {
				return
			}
			n.handleEvent(ev)
		case err, ok := <-n.fsw.Errors:
			if !ok {
				return
			}
			n.handleError(err)
		}
	}
}

func (n *Native) handleEvent(ev fsnotify.Event) {
	now := time.Now()

	switch {
	case ev.Has(fsnotify.Create):
		kind := n.statKind(ev.Name)
		if kind == EntryDir && n.registerAllSub {
			_ = n.register(ev.Name)
		}
		n.emit(FileWatchEvent{Path: ev.Name, Type: EventCreated, Kind: kind, Timestamp: now})
	case ev.Has(fsnotify.Write):
		n.emit(FileWatchEvent{Path: ev.Name, Type: EventModified, Kind: n.statKind(ev.Name), Timestamp: now})
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if n.isRegistered(ev.Name) {
			n.deregister(ev.Name)
		}
		n.emit(FileWatchEvent{Path: ev.Name, Type: EventDeleted, Kind: EntryUnknown, Timestamp: now})
	case ev.Has(fsnotify.Chmod):
		// Metadata-only change; clamd scanning cares about content
		// changes, so this is not surfaced as its own event type.
	}
}

func (n *Native) handleError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		n.emit(FileWatchEvent{Type: EventOverflow, Kind: EntryUnknown, Timestamp: time.Now()})
		return
	}
	if n.errListener != nil {
		n.errListener("", err)
	}
}

func (n *Native) emit(ev FileWatchEvent) {
	if n.fileListener != nil {
		n.fileListener(ev)
	}
}

func (n *Native) statKind(path string) EntryKind {
	info, err := os.Stat(path)
	if err != nil {
		return EntryUnknown
	}
	if info.IsDir() {
		return EntryDir
	}
	return EntryFile
}

// Close implements FileWatcher. Safe to call more than once; only the
// first call has effect.
func (n *Native) Close() error {
	var err error
	n.closeMu.Do(func() {
		if !n.running.CompareAndSwap(true, false) {
			// Never started; still owe exactly one termination event.
			if n.termListener != nil {
				n.termListener(n.mainDir, nil)
			}
			return
		}
		err = n.fsw.Close()
		<-n.done
	})
	return err
}
