package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
)

// Registry maps live watch keys to the directory paths they watch.
// It is safe for concurrent use.
type Registry struct {
	service Service
	filter  *Filter
	logger  *slog.Logger

	mu   sync.RWMutex
	keys map[Key]string
}

// NewRegistry creates an empty registry that registers directories with
// service. A nil filter accepts every directory.
func NewRegistry(service Service, filter *Filter, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		service: service,
		filter:  filter,
		logger:  logger,
		keys:    make(map[Key]string),
	}
}

// Eligible reports whether dir passes the filter.
func (r *Registry) Eligible(dir string) bool {
	ok := r.filter.Match(dir)
	if r.filter != nil {
		r.logger.Debug("filter", slog.String("dir", dir), slog.Bool("match", ok))
	}
	return ok
}

// RegisterDirectory registers a single directory if it passes the filter.
// It returns the key and true when dir was registered (or already was),
// and false when the filter rejected it.
func (r *Registry) RegisterDirectory(dir string) (Key, bool, error) {
	if !r.Eligible(dir) {
		return 0, false, nil
	}

	key, err := r.service.Register(dir)
	if err != nil {
		return 0, false, fmt.Errorf("register %s: %w", dir, err)
	}

	r.mu.Lock()
	prev, known := r.keys[key]
	r.keys[key] = dir
	r.mu.Unlock()

	switch {
	case !known:
		r.logger.Debug("register", slog.String("dir", dir))
	case prev != dir:
		r.logger.Debug("update",
			slog.String("from", prev),
			slog.String("to", dir))
	}
	return key, true, nil
}

// RegisterTree registers root and every directory below it that passes
// the filter. A rejected directory is still descended into, so its
// eligible subdirectories are registered. Symbolic links are not
// followed. The first error stops the walk; directories registered
// before it stay registered.
func (r *Registry) RegisterTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		_, _, err = r.RegisterDirectory(path)
		return err
	})
}

// PathOf returns the directory watched by key.
func (r *Registry) PathOf(key Key) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dir, ok := r.keys[key]
	return dir, ok
}

// Retire removes key from the registry.
func (r *Registry) Retire(key Key) {
	r.mu.Lock()
	dir, ok := r.keys[key]
	delete(r.keys, key)
	r.mu.Unlock()

	if ok {
		r.logger.Debug("retire", slog.String("dir", dir))
	}
}

// IsEmpty reports whether no directory is registered.
func (r *Registry) IsEmpty() bool {
	return r.Len() == 0
}

// Len returns the number of registered directories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// Paths returns the registered directories in sorted order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	paths := make([]string, 0, len(r.keys))
	for _, dir := range r.keys {
		paths = append(paths, dir)
	}
	r.mu.RUnlock()

	sort.Strings(paths)
	return paths
}
