package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	dwerrors "github.com/Aman-CERP/dirwatch/internal/errors"
)

// LoopOptions configures the event loop.
type LoopOptions struct {
	// Callback is expanded and dispatched for every non-overflow event.
	// Empty disables callbacks.
	Callback Template

	// Dispatcher runs expanded callbacks. Required when Callback is set.
	Dispatcher Dispatcher

	// Logger receives loop diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Loop waits for signalled keys, extends the registry with new
// subdirectories and dispatches callbacks until the registry is empty or
// its context is cancelled.
type Loop struct {
	service  Service
	registry *Registry
	callback Template
	dispatch Dispatcher
	logger   *slog.Logger
}

// NewLoop creates an event loop over service and registry.
func NewLoop(service Service, registry *Registry, opts LoopOptions) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		service:  service,
		registry: registry,
		callback: opts.Callback,
		dispatch: opts.Dispatcher,
		logger:   logger,
	}
}

// Run processes signalled keys until the registry becomes empty or ctx is
// cancelled, in both cases returning nil. Per-event failures are logged
// and never end the loop; an error is returned only when the service
// fails in an unexpected way.
func (l *Loop) Run(ctx context.Context) error {
	if !l.callback.IsZero() && l.dispatch == nil {
		return errors.New("callback configured without a dispatcher")
	}

	for !l.registry.IsEmpty() {
		key, err := l.service.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				l.logger.Debug("watch loop stopped", slog.String("reason", err.Error()))
				return nil
			}
			return fmt.Errorf("wait for watch key: %w", err)
		}
		l.process(ctx, key)
	}

	l.logger.Info("no directories left to watch")
	return nil
}

// process handles one signalled key to completion.
func (l *Loop) process(ctx context.Context, key Key) {
	dir, ok := l.registry.PathOf(key)
	if !ok {
		l.logger.Warn("watch key not recognized", slog.Uint64("key", uint64(key)))
		l.service.Pending(key)
		l.service.Cancel(key)
		return
	}

	for _, ev := range l.service.Pending(key) {
		l.handleEvent(ctx, dir, ev)
	}

	if !l.service.Reset(key) {
		l.registry.Retire(key)
	}
}

func (l *Loop) handleEvent(ctx context.Context, dir string, ev Event) {
	if ev.Kind == Overflow {
		l.logger.Debug("events lost", slog.String("dir", dir))
		return
	}

	child := filepath.Join(dir, ev.Name)
	l.logger.Debug("event",
		slog.String("kind", ev.Kind.String()),
		slog.String("path", child))

	if ev.Kind == Created && isDirectory(child) {
		if err := l.registry.RegisterTree(child); err != nil {
			l.logger.Warn("failed to watch new directory",
				append([]any{slog.String("dir", child)}, dwerrors.LogAttrs(err)...)...)
		}
	}

	if l.callback.IsZero() {
		return
	}
	command := l.callback.Expand(child, ev.Kind)
	l.logger.Debug("dispatch", slog.String("command", command))
	if err := l.dispatch.Dispatch(ctx, command); err != nil {
		l.logger.Warn("callback failed",
			append([]any{slog.String("command", command)}, dwerrors.LogAttrs(err)...)...)
	}
}

// isDirectory reports whether path is a directory without following a
// final symbolic link. Any stat failure counts as not a directory.
func isDirectory(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}
