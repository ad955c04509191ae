package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates the session file was created or replaced.
	OpCreate EventOp = iota
	// OpModify indicates the session file was written in place.
	OpModify
	// OpDelete indicates the session file was removed (logout).
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// SessionEvent is a change to the session file.
type SessionEvent struct {
	Path string
	Op   EventOp
}

// SessionWatcher watches a single session file for login and logout.
//
// The parent directory is watched rather than the file itself: the session
// store replaces the file with a rename, which would drop a watch placed on
// the old inode.
type SessionWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	events  chan SessionEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stopped bool
}

// NewSessionWatcher creates a watcher for the session file at path.
// The watcher must be started with Start() before it will emit events.
func NewSessionWatcher(path string) (*SessionWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &SessionWatcher{
		watcher: watcher,
		path:    abs,
		events:  make(chan SessionEvent, 16),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
	}, nil
}

// Path returns the absolute path being watched.
func (sw *SessionWatcher) Path() string {
	return sw.path
}

// Start begins watching. The session file's directory must exist.
func (sw *SessionWatcher) Start() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.running {
		return fmt.Errorf("watcher already running")
	}
	if sw.stopped {
		return fmt.Errorf("watcher already stopped")
	}

	dir := filepath.Dir(sw.path)
	if err := sw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch session directory %s: %w", dir, err)
	}

	sw.running = true
	sw.wg.Add(1)
	go sw.processEvents()

	return nil
}

// Stop stops watching and closes the Events and Errors channels.
// It is safe to call more than once.
func (sw *SessionWatcher) Stop() error {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return nil
	}
	wasRunning := sw.running
	sw.running = false
	sw.stopped = true
	sw.mu.Unlock()

	close(sw.done)

	if err := sw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	if wasRunning {
		sw.wg.Wait()
	}

	close(sw.events)
	close(sw.errors)

	return nil
}

// Events returns the channel that emits session changes.
func (sw *SessionWatcher) Events() <-chan SessionEvent {
	return sw.events
}

// Errors returns the channel that emits watcher errors.
func (sw *SessionWatcher) Errors() <-chan error {
	return sw.errors
}

// IsRunning returns true if the watcher is currently running.
func (sw *SessionWatcher) IsRunning() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.running
}

func (sw *SessionWatcher) processEvents() {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.done:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}

			if ev, ok := sw.convertEvent(event); ok {
				select {
				case sw.events <- ev:
				case <-sw.done:
					return
				}
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case sw.errors <- err:
			case <-sw.done:
				return
			}
		}
	}
}

// convertEvent keeps events for the session file and drops everything else
// in the directory, including the store's temp files.
func (sw *SessionWatcher) convertEvent(event fsnotify.Event) (SessionEvent, bool) {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != sw.path {
		return SessionEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return SessionEvent{}, false
	}

	return SessionEvent{Path: name, Op: op}, true
}
