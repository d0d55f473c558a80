package watcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// fakeService is a scripted Service: tests decide which keys are signalled,
// which events they carry and whether a reset succeeds.
type fakeService struct {
	mu        sync.Mutex
	last      Key
	byDir     map[string]Key
	dirs      map[Key]string
	pending   map[Key][]Event
	gone      map[Key]bool
	failOn    map[string]error
	cancelled []Key
	resets    []Key
	closed    bool

	ready chan Key
}

func newFakeService() *fakeService {
	return &fakeService{
		byDir:   make(map[string]Key),
		dirs:    make(map[Key]string),
		pending: make(map[Key][]Event),
		gone:    make(map[Key]bool),
		failOn:  make(map[string]error),
		ready:   make(chan Key, 64),
	}
}

func (f *fakeService) Register(dir string) (Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failOn[dir]; err != nil {
		return 0, err
	}
	if key, ok := f.byDir[dir]; ok {
		return key, nil
	}
	f.last++
	f.byDir[dir] = f.last
	f.dirs[f.last] = dir
	return f.last, nil
}

func (f *fakeService) Next(ctx context.Context) (Key, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case key, ok := <-f.ready:
		if !ok {
			return 0, ErrClosed
		}
		return key, nil
	}
}

func (f *fakeService) Pending(key Key) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	events := f.pending[key]
	delete(f.pending, key)
	return events
}

func (f *fakeService) Reset(key Key) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resets = append(f.resets, key)
	if f.gone[key] {
		delete(f.byDir, f.dirs[key])
		delete(f.dirs, key)
		return false
	}
	return true
}

func (f *fakeService) Cancel(key Key) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled = append(f.cancelled, key)
	delete(f.byDir, f.dirs[key])
	delete(f.dirs, key)
}

func (f *fakeService) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.ready)
	}
	return nil
}

// signal queues events for key and hands the key to Next.
func (f *fakeService) signal(key Key, events ...Event) {
	f.mu.Lock()
	f.pending[key] = append(f.pending[key], events...)
	f.mu.Unlock()
	f.ready <- key
}

func (f *fakeService) markGone(key Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gone[key] = true
}

func (f *fakeService) keyOf(dir string) Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byDir[dir]
}

func (f *fakeService) failRegister(dir string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[dir] = err
}

func (f *fakeService) cancelledKeys() []Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Key(nil), f.cancelled...)
}

// fakeDispatcher records every dispatched command.
type fakeDispatcher struct {
	mu       sync.Mutex
	commands []string
	failOn   map[string]bool
}

func (d *fakeDispatcher) Dispatch(_ context.Context, command string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.commands = append(d.commands, command)
	if d.failOn[command] {
		return errors.New("exit status 1")
	}
	return nil
}

func (d *fakeDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogger(level slog.Level) (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})), buf
}
