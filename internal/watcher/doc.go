// Package watcher keeps a recursive watch on a directory tree and reacts
// to changes inside it.
//
// Watching is built on a key-based Service: every directory is registered
// individually and identified by a Key. Two implementations are provided:
//   - NotifyService: fsnotify, one watch per directory
//   - PollingService: periodic listings for environments where fsnotify
//     fails (network mounts, exhausted inotify limits)
//
// NewService picks one according to Options.Backend.
//
// The Registry maps keys to directory paths and decides which directories
// are registered through an optional Filter. The Loop consumes signalled
// keys, registers newly created subdirectories, runs the configured
// callback for every event and retires keys whose directory is gone.
//
// Usage:
//
//	svc, err := watcher.NewService(watcher.DefaultOptions(), logger)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
//	reg := watcher.NewRegistry(svc, filter, logger)
//	if err := reg.RegisterTree("/path/to/tree"); err != nil {
//	    return err
//	}
//
//	loop := watcher.NewLoop(svc, reg, watcher.LoopOptions{
//	    Callback:   "echo %event% %file%",
//	    Dispatcher: runner,
//	    Logger:     logger,
//	})
//	return loop.Run(ctx)
//
// A directory created and populated faster than the loop can register it
// may have its first entries missed; they are not reported retroactively.
package watcher
