package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifyService(t *testing.T) *NotifyService {
	t.Helper()
	svc, err := NewNotifyService(DefaultOptions(), discardLogger())
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// collect takes the next key within d and drains its events.
func collect(t *testing.T, svc Service, d time.Duration) (Key, []Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	key, err := svc.Next(ctx)
	require.NoError(t, err)
	return key, svc.Pending(key)
}

// waitForEvent collects signalled keys, resetting each, until want has
// been reported on key.
func waitForEvent(t *testing.T, svc Service, key Key, want Event) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, events := collect(t, svc, time.Until(deadline))
		svc.Reset(got)
		if got != key {
			continue
		}
		for _, ev := range events {
			if ev == want {
				return
			}
		}
	}
	t.Fatalf("event %v not reported", want)
}

func TestNotifyService_RegisterSameDirectoryTwice(t *testing.T) {
	svc := newTestNotifyService(t)
	dir := t.TempDir()

	first, err := svc.Register(dir)
	require.NoError(t, err)
	second, err := svc.Register(dir)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotZero(t, first)
}

func TestNotifyService_RegisterRejectsFiles(t *testing.T) {
	svc := newTestNotifyService(t)
	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := svc.Register(file)
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = svc.Register(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestNotifyService_ReportsCreateWithRelativeName(t *testing.T) {
	// Given: a watched directory
	svc := newTestNotifyService(t)
	dir := t.TempDir()
	key, err := svc.Register(dir)
	require.NoError(t, err)

	// When: a file is created in it
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o644))

	// Then: the key is signalled with a Created event for the entry name
	got, events := collect(t, svc, 2*time.Second)
	assert.Equal(t, key, got)
	require.NotEmpty(t, events)
	assert.Equal(t, Event{Kind: Created, Name: "new.txt"}, events[0])
	assert.True(t, svc.Reset(key))
}

func TestNotifyService_ReportsDelete(t *testing.T) {
	svc := newTestNotifyService(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "old.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	key, err := svc.Register(dir)
	require.NoError(t, err)

	require.NoError(t, os.Remove(file))

	waitForEvent(t, svc, key, Event{Kind: Deleted, Name: "old.txt"})
}

func TestNotifyService_RemovedDirectoryInvalidatesKey(t *testing.T) {
	// Given: a watched directory below a watched parent
	svc := newTestNotifyService(t)
	parent := t.TempDir()
	child := filepath.Join(parent, "child")
	require.NoError(t, os.Mkdir(child, 0o755))
	parentKey, err := svc.Register(parent)
	require.NoError(t, err)
	childKey, err := svc.Register(child)
	require.NoError(t, err)

	// When: the child directory is removed
	require.NoError(t, os.Remove(child))

	// Then: the parent sees the deletion and the child key fails to reset
	seen := map[Key][]Event{}
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		key, err := svc.Next(ctx)
		if err != nil {
			return false
		}
		seen[key] = append(seen[key], svc.Pending(key)...)
		if key == childKey {
			assert.False(t, svc.Reset(key))
		} else {
			assert.True(t, svc.Reset(key))
		}
		_, parentSeen := seen[parentKey]
		_, childSeen := seen[childKey]
		return parentSeen && childSeen
	}, 5*time.Second, 10*time.Millisecond)

	assert.Contains(t, seen[parentKey], Event{Kind: Deleted, Name: "child"})

	// And: the directory can be registered again under a new key
	require.NoError(t, os.Mkdir(child, 0o755))
	again, err := svc.Register(child)
	require.NoError(t, err)
	assert.NotEqual(t, childKey, again)
}

func TestNotifyService_Cancel(t *testing.T) {
	svc := newTestNotifyService(t)
	dir := t.TempDir()
	key, err := svc.Register(dir)
	require.NoError(t, err)

	svc.Cancel(key)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x"), nil, 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = svc.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNotifyService_CloseUnblocksNext(t *testing.T) {
	svc, err := NewNotifyService(DefaultOptions(), discardLogger())
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Next(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after close")
	}
}

func TestNotifyService_ExtendsTreeThroughLoop(t *testing.T) {
	// Given: a loop over a real fsnotify service watching an empty root
	svc := newTestNotifyService(t)
	root := t.TempDir()
	reg := NewRegistry(svc, nil, discardLogger())
	require.NoError(t, reg.RegisterTree(root))

	d := &fakeDispatcher{}
	loop := NewLoop(svc, reg, LoopOptions{
		Callback:   "echo %event% %file%",
		Dispatcher: d,
		Logger:     discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		runErr = loop.Run(ctx)
	}()

	// When: a subdirectory is created
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Then: it is eventually registered
	require.Eventually(t, func() bool {
		_, ok := svc.lookup(sub)
		return ok && len(reg.Paths()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	// When: a file is written inside it
	file := filepath.Join(sub, "data.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	// Then: the callback sees the new file
	require.Eventually(t, func() bool {
		for _, c := range d.dispatched() {
			if c == "echo ENTRY_CREATE "+file {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	// When: the whole tree is removed
	require.NoError(t, os.RemoveAll(root))

	// Then: every key is retired and the loop ends by itself
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not terminate after the tree was removed")
	}
	require.NoError(t, runErr)
	assert.True(t, reg.IsEmpty())
}

// drainFor gathers every event reported within d, grouped by key.
func drainFor(svc Service, d time.Duration) map[Key][]Event {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	got := make(map[Key][]Event)
	for {
		key, err := svc.Next(ctx)
		if err != nil {
			return got
		}
		got[key] = append(got[key], svc.Pending(key)...)
		svc.Reset(key)
	}
}

func TestNotifyService_DirectoryAttributeChangeReportedOnce(t *testing.T) {
	// Given: a watched directory below a watched parent
	svc := newTestNotifyService(t)
	parent := t.TempDir()
	sub := filepath.Join(parent, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	parentKey, err := svc.Register(parent)
	require.NoError(t, err)
	subKey, err := svc.Register(sub)
	require.NoError(t, err)

	for _, mode := range []os.FileMode{0o700, 0o755} {
		// When: the subdirectory's permissions change
		require.NoError(t, os.Chmod(sub, mode))

		// Then: the parent reports exactly one modification and the
		// subdirectory's own key stays quiet
		events := drainFor(svc, 500*time.Millisecond)
		modified := 0
		for _, ev := range events[parentKey] {
			if ev == (Event{Kind: Modified, Name: "sub"}) {
				modified++
			}
		}
		assert.Equal(t, 1, modified, "mode %o: %v", mode, events[parentKey])
		assert.Empty(t, events[subKey])
	}
}
