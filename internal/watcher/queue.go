package watcher

import (
	"context"
	"sort"
	"sync"
)

// keyState is the per-key bookkeeping shared by every Service implementation.
type keyState struct {
	dir        string
	events     []Event
	signalled  bool // on the ready queue or handed out and not yet reset
	valid      bool
	overflowed bool
}

// keyTable implements the key lifecycle of a Service: issuing keys,
// queueing events per key, handing out signalled keys one at a time and
// re-arming them on reset. Backends only feed it events and invalidations.
type keyTable struct {
	mu     sync.Mutex
	last   Key
	keys   map[Key]*keyState
	byDir  map[string]Key
	ready  []Key
	limit  int
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newKeyTable(limit int) *keyTable {
	return &keyTable{
		keys:  make(map[Key]*keyState),
		byDir: make(map[string]Key),
		limit: limit,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// lookup returns the live key watching dir.
func (t *keyTable) lookup(dir string) (Key, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key, ok := t.byDir[dir]
	if !ok || !t.keys[key].valid {
		return 0, false
	}
	return key, true
}

// add issues a new key for dir. The caller has checked that dir has no
// live key.
func (t *keyTable) add(dir string) Key {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last++
	key := t.last
	t.keys[key] = &keyState{dir: dir, valid: true}
	t.byDir[dir] = key
	return key
}

// post queues ev for the key watching dir. Events for unknown or
// invalidated directories are dropped.
func (t *keyTable) post(dir string, ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key, ok := t.byDir[dir]
	if !ok {
		return
	}
	st := t.keys[key]
	if !st.valid {
		return
	}
	t.appendLocked(key, st, ev)
}

// postAll queues ev on every live key. Used for overflow, where the
// backend cannot tell which directory lost events.
func (t *keyTable) postAll(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, st := range t.keys {
		if st.valid {
			t.appendLocked(key, st, ev)
		}
	}
}

func (t *keyTable) appendLocked(key Key, st *keyState, ev Event) {
	switch {
	case st.overflowed:
		// Already reported; the rest of this batch is lost.
	case ev.Kind == Overflow:
		st.events = append(st.events, ev)
		st.overflowed = true
	case t.limit > 0 && len(st.events) >= t.limit:
		st.events = append(st.events, Event{Kind: Overflow})
		st.overflowed = true
	default:
		st.events = append(st.events, ev)
	}
	t.signalLocked(key, st)
}

// invalidate marks the key watching dir as gone and signals it so the
// consumer observes the failed reset. It reports whether a live key was
// invalidated.
func (t *keyTable) invalidate(dir string) (Key, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key, ok := t.byDir[dir]
	if !ok {
		return 0, false
	}
	st := t.keys[key]
	if !st.valid {
		return key, false
	}
	st.valid = false
	t.signalLocked(key, st)
	return key, true
}

func (t *keyTable) signalLocked(key Key, st *keyState) {
	if st.signalled {
		return
	}
	st.signalled = true
	t.ready = append(t.ready, key)

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Next blocks until a key is signalled, ctx is cancelled or the table is
// closed.
func (t *keyTable) Next(ctx context.Context) (Key, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		t.mu.Lock()
		for len(t.ready) > 0 {
			key := t.ready[0]
			t.ready = t.ready[1:]
			if _, ok := t.keys[key]; ok {
				t.mu.Unlock()
				return key, nil
			}
		}
		closed := t.closed
		t.mu.Unlock()

		if closed {
			return 0, ErrClosed
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-t.done:
		case <-t.wake:
		}
	}
}

// Pending removes and returns the events queued for key.
func (t *keyTable) Pending(key Key) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.keys[key]
	if !ok {
		return nil
	}
	events := st.events
	st.events = nil
	st.overflowed = false
	return events
}

// reset re-arms key. An invalidated key is removed and reported as not
// valid; released tells the backend whether dir has no other key and the
// underlying watch can be dropped.
func (t *keyTable) reset(key Key) (valid bool, dir string, released bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.keys[key]
	if !ok {
		return false, "", false
	}
	if !st.valid {
		released = t.removeLocked(key, st)
		return false, st.dir, released
	}

	st.signalled = false
	if len(st.events) > 0 {
		t.signalLocked(key, st)
	}
	return true, st.dir, false
}

// remove discards key regardless of its state.
func (t *keyTable) remove(key Key) (dir string, released bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.keys[key]
	if !ok {
		return "", false
	}
	return st.dir, t.removeLocked(key, st)
}

func (t *keyTable) removeLocked(key Key, st *keyState) bool {
	delete(t.keys, key)
	if t.byDir[st.dir] != key {
		// dir was registered again under a newer key
		return false
	}
	delete(t.byDir, st.dir)
	return true
}

// live returns the directories of all valid keys, sorted by path.
func (t *keyTable) live() []keyDir {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]keyDir, 0, len(t.keys))
	for key, st := range t.keys {
		if st.valid {
			out = append(out, keyDir{key: key, dir: st.dir})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].dir < out[j].dir })
	return out
}

type keyDir struct {
	key Key
	dir string
}

// close wakes every blocked Next call with ErrClosed. Safe to call
// multiple times.
func (t *keyTable) close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	close(t.done)
}
