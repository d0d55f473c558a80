package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Kind is the type of change reported for a directory entry.
type Kind int

const (
	// Created indicates a new entry appeared in the directory.
	Created Kind = iota
	// Deleted indicates an entry was removed from (or moved out of) the directory.
	Deleted
	// Modified indicates an entry's content or attributes changed.
	Modified
	// Overflow indicates some events for the directory were lost.
	Overflow
)

// String returns the event name substituted for %event% in callbacks.
func (k Kind) String() string {
	switch k {
	case Created:
		return "ENTRY_CREATE"
	case Deleted:
		return "ENTRY_DELETE"
	case Modified:
		return "ENTRY_MODIFY"
	case Overflow:
		return "OVERFLOW"
	default:
		return "UNKNOWN"
	}
}

// Event is one change observed in a watched directory.
type Event struct {
	// Kind is the type of change.
	Kind Kind

	// Name is the entry name relative to the watched directory.
	// Empty for Overflow.
	Name string
}

// Key identifies one directory's registration with a Service.
// Keys are opaque; the zero Key is never issued.
type Key uint64

// ErrClosed is returned by Service.Next once the service is closed.
var ErrClosed = errors.New("watch service closed")

// ErrNotDirectory is returned by Service.Register for paths that are not
// directories.
var ErrNotDirectory = errors.New("not a directory")

// Service is the watch primitive the registry and loop are built on.
// It mirrors a key-based watch service: directories are registered
// individually, signalled keys are handed out one at a time, and a key
// stays off the ready queue until it is reset.
type Service interface {
	// Register starts watching dir for Created, Deleted and Modified
	// entries. Registering a directory that already has a live key
	// returns that key.
	Register(dir string) (Key, error)

	// Next blocks until a key is signalled. It returns ctx.Err() when ctx
	// is cancelled and ErrClosed once the service is closed.
	Next(ctx context.Context) (Key, error)

	// Pending removes and returns the events queued for key, in the order
	// they were observed.
	Pending(key Key) []Event

	// Reset re-arms key. It returns false when the directory is gone or
	// inaccessible; the service has then discarded the key.
	Reset(key Key) bool

	// Cancel discards key and stops watching its directory.
	Cancel(key Key)

	// Close stops the service and releases its resources.
	Close() error
}

// Dispatcher runs a fully expanded callback command.
type Dispatcher interface {
	Dispatch(ctx context.Context, command string) error
}

// Backend names accepted by Options.Backend.
const (
	BackendAuto     = "auto"
	BackendFsnotify = "fsnotify"
	BackendPolling  = "polling"
)

// Options configures the watch service.
type Options struct {
	// Backend selects the watch service implementation.
	// Default: auto (fsnotify, falling back to polling)
	Backend string

	// PollInterval is the scan interval of the polling service.
	// Default: 2s
	PollInterval time.Duration

	// EventBufferSize bounds the events queued per key before the key
	// reports an Overflow instead.
	// Default: 4096
	EventBufferSize int
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Backend:         BackendAuto,
		PollInterval:    2 * time.Second,
		EventBufferSize: 4096,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Backend == "" {
		o.Backend = defaults.Backend
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// Validate validates the options and returns an error if invalid.
func (o Options) Validate() error {
	switch o.Backend {
	case "", BackendAuto, BackendFsnotify, BackendPolling:
	default:
		return fmt.Errorf("unknown backend %q (use: auto, fsnotify, polling)", o.Backend)
	}
	if o.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative: %s", o.PollInterval)
	}
	if o.EventBufferSize < 0 {
		return fmt.Errorf("event buffer size must not be negative: %d", o.EventBufferSize)
	}
	return nil
}

// checkDirectory reports whether dir exists and is a directory.
func checkDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}
	return nil
}
