package watcher

import (
	"fmt"
	"log/slog"
)

// NewService creates the watch service selected by opts.Backend.
// In auto mode fsnotify is tried first and polling is used when the
// platform watcher cannot be created.
func NewService(opts Options, logger *slog.Logger) (Service, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Backend {
	case BackendPolling:
		logger.Debug("using polling watch service", slog.Duration("interval", opts.PollInterval))
		return NewPollingService(opts, logger), nil

	case BackendFsnotify:
		svc, err := NewNotifyService(opts, logger)
		if err != nil {
			return nil, err
		}
		logger.Debug("using fsnotify watch service")
		return svc, nil

	default:
		svc, err := NewNotifyService(opts, logger)
		if err == nil {
			logger.Debug("using fsnotify watch service")
			return svc, nil
		}
		logger.Warn("fsnotify unavailable, falling back to polling",
			slog.String("error", err.Error()),
			slog.Duration("interval", opts.PollInterval))
		return NewPollingService(opts, logger), nil
	}
}

// BackendOf returns the backend name of svc, or its type name for
// services that do not report one.
func BackendOf(svc Service) string {
	if b, ok := svc.(interface{ Backend() string }); ok {
		return b.Backend()
	}
	return fmt.Sprintf("%T", svc)
}
