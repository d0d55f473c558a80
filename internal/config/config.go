package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	dwerrors "github.com/Aman-CERP/dirwatch/internal/errors"
	"github.com/Aman-CERP/dirwatch/internal/logging"
	"github.com/Aman-CERP/dirwatch/internal/watcher"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "DIRWATCH_"

// Config represents the complete dirwatch configuration.
// Values are layered, lowest precedence first:
//  1. Built-in defaults (NewConfig)
//  2. User config (~/.config/dirwatch/config.yaml)
//  3. Config file given with --config
//  4. DIRWATCH_* environment variables
//  5. Command-line flags
type Config struct {
	// Watch is the root directory of the watched tree.
	Watch string `yaml:"watch" json:"watch"`

	// Filter is a regular expression a directory path must match in full
	// to be watched. Empty watches every directory.
	Filter string `yaml:"filter" json:"filter"`

	// Callback is the command run for every event. %file% and %event% are
	// substituted. Empty disables callbacks.
	Callback string `yaml:"callback" json:"callback"`

	// Debug enables trace logging of registration and dispatch.
	Debug bool `yaml:"debug" json:"debug"`

	// Backend selects the watch service: auto, fsnotify or polling.
	Backend string `yaml:"backend" json:"backend"`

	// PollInterval is the scan interval of the polling backend (e.g. "2s").
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`

	// CallbackTimeout kills callbacks running longer than this
	// (e.g. "30s"). Empty or "0" disables the timeout.
	CallbackTimeout string `yaml:"callback_timeout" json:"callback_timeout"`

	// LockFile, when set, is locked for the lifetime of the process so
	// a second instance using the same file refuses to start.
	LockFile string `yaml:"lock_file" json:"lock_file"`

	Log LogConfig `yaml:"log" json:"log"`
}

// LogConfig configures log output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
	// File additionally writes JSON logs to this path with rotation.
	File string `yaml:"file" json:"file"`
	// MaxSizeMB rotates the log file once it exceeds this size.
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`
	// MaxFiles is the number of rotated files kept.
	MaxFiles int `yaml:"max_files" json:"max_files"`
	// Format of stderr output: auto, text or json.
	Format string `yaml:"format" json:"format"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	return &Config{
		Backend:      watcher.BackendAuto,
		PollInterval: "2s",
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
			Format:    logging.FormatAuto,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file.
// Respects XDG_CONFIG_HOME if set, otherwise ~/.config/dirwatch/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dirwatch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "dirwatch", "config.yaml")
	}
	return filepath.Join(home, ".config", "dirwatch", "config.yaml")
}

// Load builds the configuration from defaults, the user config, the
// optional explicit config file and the environment. A missing user
// config is fine; a missing explicit file is an error. The result is not
// validated so callers can apply flag overrides first.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	userPath := GetUserConfigPath()
	if fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if !fileExists(path) {
			return nil, dwerrors.New(dwerrors.ErrCodeConfigNotFound, "config file not found: "+path, nil).
				WithDetail("path", path)
		}
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return dwerrors.ConfigError(fmt.Sprintf("read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return dwerrors.ConfigError(fmt.Sprintf("parse config file %s", path), err).
			WithSuggestion("Check the YAML syntax of the config file")
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies the non-zero values of other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Watch != "" {
		c.Watch = other.Watch
	}
	if other.Filter != "" {
		c.Filter = other.Filter
	}
	if other.Callback != "" {
		c.Callback = other.Callback
	}
	if other.Debug {
		c.Debug = true
	}
	if other.Backend != "" {
		c.Backend = other.Backend
	}
	if other.PollInterval != "" {
		c.PollInterval = other.PollInterval
	}
	if other.CallbackTimeout != "" {
		c.CallbackTimeout = other.CallbackTimeout
	}
	if other.LockFile != "" {
		c.LockFile = other.LockFile
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
	if other.Log.MaxSizeMB != 0 {
		c.Log.MaxSizeMB = other.Log.MaxSizeMB
	}
	if other.Log.MaxFiles != 0 {
		c.Log.MaxFiles = other.Log.MaxFiles
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}

// ApplyEnv overrides values from DIRWATCH_* variables looked up with
// getenv. Unlike config files, DIRWATCH_DEBUG can switch debug off.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	str("WATCH", &c.Watch)
	str("FILTER", &c.Filter)
	str("CALLBACK", &c.Callback)
	str("BACKEND", &c.Backend)
	str("POLL_INTERVAL", &c.PollInterval)
	str("CALLBACK_TIMEOUT", &c.CallbackTimeout)
	str("LOCK_FILE", &c.LockFile)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)
	str("LOG_FORMAT", &c.Log.Format)

	if v := getenv(EnvPrefix + "DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
}

// Validate checks the configuration. It does not require Watch; a missing
// watch path is reported by the command as a usage error.
func (c *Config) Validate() error {
	switch c.Backend {
	case watcher.BackendAuto, watcher.BackendFsnotify, watcher.BackendPolling:
	default:
		return dwerrors.ConfigError(fmt.Sprintf("backend must be 'auto', 'fsnotify' or 'polling', got %q", c.Backend), nil)
	}

	interval, err := c.PollIntervalDuration()
	if err != nil {
		return err
	}
	if interval <= 0 {
		return dwerrors.ConfigError(fmt.Sprintf("poll_interval must be positive, got %s", c.PollInterval), nil)
	}
	if _, err := c.CallbackTimeoutDuration(); err != nil {
		return err
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return dwerrors.ConfigError(fmt.Sprintf("log.level must be 'debug', 'info', 'warn' or 'error', got %q", c.Log.Level), nil)
	}
	if !logging.ValidFormat(c.Log.Format) {
		return dwerrors.ConfigError(fmt.Sprintf("log.format must be 'auto', 'text' or 'json', got %q", c.Log.Format), nil)
	}
	if c.Log.MaxSizeMB <= 0 || c.Log.MaxFiles <= 0 {
		return dwerrors.ConfigError("log.max_size_mb and log.max_files must be positive", nil)
	}

	if _, err := watcher.NewFilter(c.Filter); err != nil {
		return dwerrors.New(dwerrors.ErrCodeInvalidFilter, fmt.Sprintf("invalid filter %q", c.Filter), err).
			WithSuggestion("The filter is a Go regular expression matched against the whole directory path")
	}
	return nil
}

// PollIntervalDuration parses PollInterval.
func (c *Config) PollIntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, dwerrors.ConfigError(fmt.Sprintf("poll_interval is not a duration: %q", c.PollInterval), err)
	}
	return d, nil
}

// CallbackTimeoutDuration parses CallbackTimeout. Empty means no timeout.
func (c *Config) CallbackTimeoutDuration() (time.Duration, error) {
	if c.CallbackTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CallbackTimeout)
	if err != nil || d < 0 {
		return 0, dwerrors.ConfigError(fmt.Sprintf("callback_timeout is not a non-negative duration: %q", c.CallbackTimeout), err)
	}
	return d, nil
}

// WatcherOptions returns the watch service options. Call after Validate.
func (c *Config) WatcherOptions() watcher.Options {
	interval, _ := c.PollIntervalDuration()
	opts := watcher.DefaultOptions()
	opts.Backend = c.Backend
	opts.PollInterval = interval
	return opts
}

// LoggingConfig returns the logging setup for this configuration.
// Debug forces the debug level.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = c.Log.Format
	cfg.FilePath = c.Log.File
	cfg.MaxSizeMB = c.Log.MaxSizeMB
	cfg.MaxFiles = c.Log.MaxFiles
	if c.Debug {
		cfg.Level = "debug"
	}
	return cfg
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
