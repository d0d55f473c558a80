// Package cmd provides the CLI commands for dirwatch.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/dirwatch/internal/config"
	dwerrors "github.com/Aman-CERP/dirwatch/internal/errors"
	"github.com/Aman-CERP/dirwatch/pkg/version"
)

// rootOptions holds the root command's flag values. Only flags the user
// set explicitly override the loaded configuration.
type rootOptions struct {
	configPath      string
	watch           string
	filter          string
	callback        string
	debug           bool
	backend         string
	pollInterval    time.Duration
	callbackTimeout time.Duration
	lockFile        string
	logFile         string
	logFormat       string
}

// NewRootCmd creates the root command for the dirwatch CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "dirwatch",
		Short: "Watch a directory tree and run a command for every change",
		Long: `dirwatch registers every directory below --watch, keeps the watch set
up to date as directories are created and removed, and runs --callback
for every created, deleted or modified entry.

In the callback, %file% is replaced by the full path of the entry and
%event% by ENTRY_CREATE, ENTRY_DELETE or ENTRY_MODIFY.

Configuration precedence (lowest to highest):
  1. Defaults
  2. User config (~/.config/dirwatch/config.yaml)
  3. --config file
  4. Environment variables (DIRWATCH_*)
  5. Flags`,
		Example: `  # Print every change below /srv/data
  dirwatch --watch /srv/data --callback 'echo %event% %file%'

  # Only watch directories ending in .log
  dirwatch --watch /var --filter '.*\.log$' --callback 'logger -t dirwatch "%event% %file%"'`,
		Version:       version.Short(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd, opts)
		},
	}

	cmd.SetVersionTemplate("dirwatch version {{.Version}}\n")
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		fmt.Fprint(c.ErrOrStderr(), c.UsageString())
		return dwerrors.ValidationError(err.Error(), err)
	})

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Config file (YAML)")
	f.StringVar(&opts.watch, "watch", "", "Root directory to watch (required)")
	f.StringVar(&opts.filter, "filter", "", "Regular expression a directory path must fully match to be watched")
	f.StringVar(&opts.callback, "callback", "", "Command run per event; %file% and %event% are substituted")
	f.BoolVar(&opts.debug, "debug", false, "Trace directory registration and callback dispatch")
	f.StringVar(&opts.backend, "backend", "auto", "Watch backend: auto, fsnotify or polling")
	f.DurationVar(&opts.pollInterval, "poll-interval", 2*time.Second, "Scan interval of the polling backend")
	f.DurationVar(&opts.callbackTimeout, "callback-timeout", 0, "Kill callbacks running longer than this (0 = no limit)")
	f.StringVar(&opts.lockFile, "lock-file", "", "Refuse to start while another instance holds this file")
	f.StringVar(&opts.logFile, "log-file", "", "Also write JSON logs to this file (rotated)")
	f.StringVar(&opts.logFormat, "log-format", "auto", "Log format on stderr: auto, text or json")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// loadConfig layers explicitly set flags over the loaded configuration.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("watch") {
		cfg.Watch = opts.watch
	}
	if flags.Changed("filter") {
		cfg.Filter = opts.filter
	}
	if flags.Changed("callback") {
		cfg.Callback = opts.callback
	}
	if flags.Changed("debug") {
		cfg.Debug = opts.debug
	}
	if flags.Changed("backend") {
		cfg.Backend = opts.backend
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval = opts.pollInterval.String()
	}
	if flags.Changed("callback-timeout") {
		cfg.CallbackTimeout = opts.callbackTimeout.String()
	}
	if flags.Changed("lock-file") {
		cfg.LockFile = opts.lockFile
	}
	if flags.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	return cfg, nil
}
