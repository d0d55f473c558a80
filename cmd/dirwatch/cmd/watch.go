package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/dirwatch/internal/dispatch"
	dwerrors "github.com/Aman-CERP/dirwatch/internal/errors"
	"github.com/Aman-CERP/dirwatch/internal/lockfile"
	"github.com/Aman-CERP/dirwatch/internal/logging"
	"github.com/Aman-CERP/dirwatch/internal/watcher"
)

// runWatch performs the initial scan and runs the event loop until the
// watch set empties or ctx is cancelled.
func runWatch(ctx context.Context, cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if cfg.Watch == "" {
		fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
		return dwerrors.New(dwerrors.ErrCodeMissingArgument, "no directory to watch", nil).
			WithSuggestion("Pass --watch <dir>, set DIRWATCH_WATCH or add 'watch:' to the config file")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Stderr = cmd.ErrOrStderr()
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return dwerrors.ConfigError("set up logging", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	if cfg.LockFile != "" {
		lock, err := lockfile.Acquire(cfg.LockFile)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Unlock() }()
		logger.Debug("lock acquired", slog.String("path", lock.Path()))
	}

	root, err := resolveRoot(cfg.Watch)
	if err != nil {
		return err
	}

	svc, err := watcher.NewService(cfg.WatcherOptions(), logger)
	if err != nil {
		return dwerrors.New(dwerrors.ErrCodeWatchFailed, "start watch service", err)
	}
	defer func() { _ = svc.Close() }()

	filter, err := watcher.NewFilter(cfg.Filter)
	if err != nil {
		return dwerrors.New(dwerrors.ErrCodeInvalidFilter, fmt.Sprintf("invalid filter %q", cfg.Filter), err)
	}
	registry := watcher.NewRegistry(svc, filter, logger)

	logger.Info(fmt.Sprintf("Scanning %s ...", root),
		slog.String("backend", watcher.BackendOf(svc)))
	if err := registry.RegisterTree(root); err != nil {
		return pathError(root, "scan", err)
	}
	logger.Info("Done.", slog.Int("directories", registry.Len()))

	if registry.IsEmpty() {
		return dwerrors.New(dwerrors.ErrCodeEmptyWatchSet, "no directory under "+root+" matches the filter", nil).
			WithDetail("filter", cfg.Filter).
			WithSuggestion("The filter must match the whole directory path, e.g. '.*/logs(/.*)?'")
	}

	timeout, _ := cfg.CallbackTimeoutDuration()
	runner := dispatch.NewRunner(dispatch.Options{
		Timeout: timeout,
		Stdout:  cmd.OutOrStdout(),
		Logger:  logger,
	})
	loop := watcher.NewLoop(svc, registry, watcher.LoopOptions{
		Callback:   watcher.Template(cfg.Callback),
		Dispatcher: runner,
		Logger:     logger,
	})

	if err := loop.Run(ctx); err != nil {
		return dwerrors.New(dwerrors.ErrCodeWatchFailed, "watch loop failed", err)
	}
	return nil
}

// resolveRoot returns the absolute watch root after checking that it is
// an existing directory. A symbolic link is rejected because the tree walk
// does not follow links and would register nothing.
func resolveRoot(path string) (string, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return "", dwerrors.ValidationError("resolve watch path "+path, err)
	}
	info, err := os.Lstat(root)
	if err != nil {
		return "", pathError(root, "stat", err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		de := dwerrors.New(dwerrors.ErrCodeNotADirectory, root+" is a symbolic link", nil).
			WithDetail("path", root)
		if target, err := filepath.EvalSymlinks(root); err == nil {
			de = de.WithSuggestion("Watch the link target instead: --watch " + target)
		}
		return "", de
	}
	if !info.IsDir() {
		return "", dwerrors.New(dwerrors.ErrCodeNotADirectory, root+" is not a directory", nil).
			WithDetail("path", root)
	}
	return root, nil
}

func pathError(path, op string, err error) error {
	var de *dwerrors.DirwatchError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		de = dwerrors.New(dwerrors.ErrCodePathNotFound, "watch path does not exist: "+path, err)
	case errors.Is(err, fs.ErrPermission):
		de = dwerrors.New(dwerrors.ErrCodePathPermission, "permission denied: "+path, err).
			WithSuggestion("Check that dirwatch can read every directory below the watch root")
	default:
		de = dwerrors.New(dwerrors.ErrCodeWatchFailed, op+" "+path+" failed", err)
	}
	return de.WithDetail("path", path)
}
