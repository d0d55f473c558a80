package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// PollingService watches directories by periodically listing them and
// diffing each listing against the previous one.
// Used as a fallback when fsnotify is not available or fails.
type PollingService struct {
	*keyTable

	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	snapshots map[Key]map[string]entrySnapshot

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type entrySnapshot struct {
	modTime time.Time
	size    int64
	mode    os.FileMode
}

var _ Service = (*PollingService)(nil)

// NewPollingService creates a polling service and starts its scan loop.
func NewPollingService(opts Options, logger *slog.Logger) *PollingService {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	p := &PollingService{
		keyTable:  newKeyTable(opts.EventBufferSize),
		interval:  opts.PollInterval,
		logger:    logger,
		snapshots: make(map[Key]map[string]entrySnapshot),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Backend returns the backend name.
func (p *PollingService) Backend() string { return BackendPolling }

// Register takes a baseline listing of dir and starts polling it.
func (p *PollingService) Register(dir string) (Key, error) {
	if err := checkDirectory(dir); err != nil {
		return 0, err
	}
	if key, ok := p.lookup(dir); ok {
		return key, nil
	}

	entries, err := listDirectory(dir)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}

	key := p.add(dir)
	p.mu.Lock()
	p.snapshots[key] = entries
	p.mu.Unlock()
	return key, nil
}

// Reset re-arms key.
func (p *PollingService) Reset(key Key) bool {
	valid, _, _ := p.reset(key)
	if !valid {
		p.forget(key)
	}
	return valid
}

// Cancel stops polling the directory of key.
func (p *PollingService) Cancel(key Key) {
	p.remove(key)
	p.forget(key)
}

// Close stops the scan loop. Blocked Next calls return ErrClosed.
func (p *PollingService) Close() error {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		<-p.doneCh
		p.close()
	})
	return nil
}

func (p *PollingService) forget(key Key) {
	p.mu.Lock()
	delete(p.snapshots, key)
	p.mu.Unlock()
}

func (p *PollingService) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll rescans every live directory once.
func (p *PollingService) poll() {
	for _, kd := range p.live() {
		current, err := listDirectory(kd.dir)
		if err != nil {
			p.logger.Debug("polled directory no longer accessible",
				slog.String("dir", kd.dir),
				slog.String("error", err.Error()))
			p.invalidate(kd.dir)
			p.forget(kd.key)
			continue
		}

		p.mu.Lock()
		previous, ok := p.snapshots[kd.key]
		if ok {
			p.snapshots[kd.key] = current
		}
		p.mu.Unlock()
		if !ok {
			// cancelled while listing
			continue
		}

		for _, ev := range diffSnapshots(previous, current) {
			p.post(kd.dir, ev)
		}
	}
}

// diffSnapshots returns the events turning previous into current,
// ordered by entry name.
func diffSnapshots(previous, current map[string]entrySnapshot) []Event {
	names := make([]string, 0, len(previous)+len(current))
	for name := range previous {
		names = append(names, name)
	}
	for name := range current {
		if _, ok := previous[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var events []Event
	for _, name := range names {
		prev, hadPrev := previous[name]
		cur, hasCur := current[name]
		switch {
		case !hadPrev:
			events = append(events, Event{Kind: Created, Name: name})
		case !hasCur:
			events = append(events, Event{Kind: Deleted, Name: name})
		case prev.mode.Type() != cur.mode.Type():
			// replaced by an entry of another type
			events = append(events,
				Event{Kind: Deleted, Name: name},
				Event{Kind: Created, Name: name})
		case !prev.modTime.Equal(cur.modTime) || prev.size != cur.size || prev.mode != cur.mode:
			events = append(events, Event{Kind: Modified, Name: name})
		}
	}
	return events
}

// listDirectory snapshots the direct entries of dir. Entries that vanish
// between the listing and their stat are left out.
func listDirectory(dir string) (map[string]entrySnapshot, error) {
	if err := checkDirectory(dir); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]entrySnapshot, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		snapshot[e.Name()] = entrySnapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
			mode:    info.Mode(),
		}
	}
	return snapshot, nil
}
