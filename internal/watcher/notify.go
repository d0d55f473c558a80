package watcher

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// NotifyService watches directories with fsnotify. Each registered
// directory is one non-recursive fsnotify watch; events are routed to the
// key of the directory containing the changed entry.
type NotifyService struct {
	*keyTable

	fsWatcher *fsnotify.Watcher
	logger    *slog.Logger

	// regMu orders Register against event handling for the same path.
	regMu sync.Mutex

	// echoes counts attribute changes of watched directories reported by
	// one of their two watches and still expected from the other.
	// Only touched by run.
	echoes map[string]int

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

var _ Service = (*NotifyService)(nil)

// NewNotifyService creates an fsnotify-backed service and starts its
// event loop. It fails when the platform watcher cannot be created, for
// instance when the inotify instance limit is exhausted.
func NewNotifyService(opts Options, logger *slog.Logger) (*NotifyService, error) {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	n := &NotifyService{
		keyTable:  newKeyTable(opts.EventBufferSize),
		fsWatcher: fsw,
		logger:    logger,
		echoes:    make(map[string]int),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go n.run()
	return n, nil
}

// Backend returns the backend name.
func (n *NotifyService) Backend() string { return BackendFsnotify }

// Register adds an fsnotify watch on dir.
func (n *NotifyService) Register(dir string) (Key, error) {
	if err := checkDirectory(dir); err != nil {
		return 0, err
	}

	n.regMu.Lock()
	defer n.regMu.Unlock()

	if key, ok := n.lookup(dir); ok {
		return key, nil
	}

	// The key exists before the watch so no event for dir is dropped.
	key := n.add(dir)
	if err := n.fsWatcher.Add(dir); err != nil {
		n.remove(key)
		return 0, fmt.Errorf("watch %s: %w", dir, err)
	}
	return key, nil
}

// Reset re-arms key. A key whose directory was removed or renamed is
// discarded.
func (n *NotifyService) Reset(key Key) bool {
	valid, dir, released := n.reset(key)
	if !valid && released {
		n.unwatch(dir)
	}
	return valid
}

// Cancel discards key and removes its fsnotify watch.
func (n *NotifyService) Cancel(key Key) {
	dir, released := n.remove(key)
	if released {
		n.unwatch(dir)
	}
}

// Close stops the event loop and closes the fsnotify watcher.
// Blocked Next calls return ErrClosed.
func (n *NotifyService) Close() error {
	var err error
	n.stopOnce.Do(func() {
		close(n.stopCh)
		err = n.fsWatcher.Close()
		<-n.doneCh
		n.close()
	})
	return err
}

func (n *NotifyService) unwatch(dir string) {
	n.regMu.Lock()
	defer n.regMu.Unlock()

	// dir may have been registered again since the key was dropped
	if _, ok := n.lookup(dir); ok {
		return
	}
	// The kernel drops the watch on its own when dir is deleted.
	_ = n.fsWatcher.Remove(dir)
}

func (n *NotifyService) run() {
	defer close(n.doneCh)

	for {
		select {
		case <-n.stopCh:
			return
		case event, ok := <-n.fsWatcher.Events:
			if !ok {
				return
			}
			n.handleEvent(event)
		case err, ok := <-n.fsWatcher.Errors:
			if !ok {
				return
			}
			n.handleError(err)
		}
	}
}

// handleEvent converts one fsnotify event into a key event on the parent
// directory and invalidates the key of a watched directory that went away.
func (n *NotifyService) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	var kind Kind
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = Created
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		kind = Deleted
		if !n.dropDirectory(path, event.Op) {
			// already reported through the other watch
			return
		}
	case event.Op&(fsnotify.Write|fsnotify.Chmod) != 0:
		kind = Modified
		if n.isEcho(path) {
			return
		}
	default:
		return
	}

	n.post(filepath.Dir(path), Event{Kind: kind, Name: filepath.Base(path)})
}

// isEcho reports whether event path is the second report of a change to
// a watched directory. inotify reports an attribute change of a directory
// once on the directory's own watch and once on its parent's, both under
// the same name, so every other report is dropped.
func (n *NotifyService) isEcho(path string) bool {
	if _, ok := n.lookup(path); !ok {
		return false
	}
	if _, ok := n.lookup(filepath.Dir(path)); !ok {
		return false
	}

	if n.echoes[path] > 0 {
		n.echoes[path]--
		if n.echoes[path] == 0 {
			delete(n.echoes, path)
		}
		return true
	}
	n.echoes[path]++
	return false
}

// dropDirectory invalidates the key watching path, if any. A renamed
// directory keeps its inotify watch, so the watch is removed explicitly
// to stop events arriving under the old path. It returns false when
// path was a watched directory whose key was already invalidated.
func (n *NotifyService) dropDirectory(path string, op fsnotify.Op) bool {
	n.regMu.Lock()
	defer n.regMu.Unlock()

	delete(n.echoes, path)
	key, invalidated := n.invalidate(path)
	if key == 0 {
		return true
	}
	if !invalidated {
		return false
	}

	n.logger.Debug("watched directory gone",
		slog.String("dir", path),
		slog.String("op", op.String()))
	if op&fsnotify.Rename != 0 {
		_ = n.fsWatcher.Remove(path)
	}
	return true
}

func (n *NotifyService) handleError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		n.logger.Warn("fsnotify event queue overflowed, events were lost")
		n.postAll(Event{Kind: Overflow})
		return
	}
	n.logger.Warn("fsnotify error", slog.String("error", err.Error()))
}
