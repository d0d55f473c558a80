// Package lockfile keeps a second dirwatch instance from watching with the
// same lock file, using cross-process file locks (gofrs/flock).
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	dwerrors "github.com/Aman-CERP/dirwatch/internal/errors"
)

// Lock is an exclusive advisory lock on a file.
// Works on all platforms (Unix, Linux, macOS, Windows).
type Lock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates an unlocked Lock for path.
func New(path string) *Lock {
	return &Lock{
		path:  path,
		flock: flock.New(path),
	}
}

// Acquire creates a Lock for path and takes it without blocking.
// It fails with ErrCodeLockHeld when another process holds the lock.
func Acquire(path string) (*Lock, error) {
	l := New(path)
	acquired, err := l.TryLock()
	if err != nil {
		return nil, dwerrors.New(dwerrors.ErrCodeLockHeld, "cannot lock "+path, err).
			WithDetail("path", path)
	}
	if !acquired {
		return nil, dwerrors.New(dwerrors.ErrCodeLockHeld, "another dirwatch instance holds "+path, nil).
			WithDetail("path", path).
			WithSuggestion("Stop the other instance or choose a different --lock-file")
	}
	return l, nil
}

// TryLock attempts to take the lock without blocking.
// Returns true if the lock was acquired, false if another process holds it.
// The lock file and its directory are created as needed.
func (l *Lock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked Lock.
// The lock file itself is left in place.
func (l *Lock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}
