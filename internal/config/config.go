// Package config manages sheetvc configuration and the .sheetvc directory.
// It handles loading, saving, and initializing a tracked workbook.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
)

const (
	AppName      = "sheetvc"
	Dir          = ".sheetvc"
	ConfigFile   = "config"
	DatabaseFile = "history.db"
	LogFile      = "sheetvc.log"

	DefaultWorkbookFile      = "workbook.json"
	DefaultDriver            = "bbolt"
	DefaultDedupWindow       = 5 * time.Second
	DefaultHighlightInterval = 2 * time.Second
	DefaultAutosave          = "@every 10m"
)

// ErrNotInitialized is returned when neither a .sheetvc directory nor a user
// configuration exists.
var ErrNotInitialized = errors.New("not a sheetvc workbook (or any parent up to root)")

// Config represents the sheetvc configuration
type Config struct {
	Workbook   string          `toml:"workbook"`    // path of the workbook file, relative to the root
	WorkbookID string          `toml:"workbook_id"` // id history is recorded under
	Author     string          `toml:"author,omitempty"`
	Storage    StorageConfig   `toml:"storage"`
	Recording  RecordingConfig `toml:"recording"`
	Schedule   ScheduleConfig  `toml:"schedule"`
	Driver     DriverConfig    `toml:"driver"`
	Log        LogConfig       `toml:"log"`

	path string // path to .sheetvc directory
}

// StorageConfig selects the history backend.
type StorageConfig struct {
	Driver   string `toml:"driver"` // bbolt, sqlite, badger, redis or memory
	Path     string `toml:"path,omitempty"`
	Addr     string `toml:"addr,omitempty"`
	Password string `toml:"password,omitempty"`
	DB       int    `toml:"db,omitempty"`
	Prefix   string `toml:"prefix,omitempty"`
}

// RecordingConfig tunes duplicate detection.
type RecordingConfig struct {
	DedupWindow           string `toml:"dedup_window"`
	WindowSize            int    `toml:"window_size,omitempty"`
	PermanentFingerprints bool   `toml:"permanent_fingerprints"`
}

// ScheduleConfig drives the watch loop.
type ScheduleConfig struct {
	HighlightInterval string `toml:"highlight_interval"`
	HighlightColor    string `toml:"highlight_color,omitempty"`
	Autosave          string `toml:"autosave"` // cron spec; empty disables autosave
}

// DriverConfig configures retries against the document.
type DriverConfig struct {
	MaxRetries      int    `toml:"max_retries"`
	InitialInterval string `toml:"initial_interval,omitempty"`
	MaxInterval     string `toml:"max_interval,omitempty"`
}

// LogConfig selects log verbosity and destination.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   bool   `toml:"file"` // also write to .sheetvc/sheetvc.log
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	return &Config{
		Workbook:   DefaultWorkbookFile,
		WorkbookID: "workbook",
		Storage:    StorageConfig{Driver: DefaultDriver},
		Recording:  RecordingConfig{DedupWindow: DefaultDedupWindow.String()},
		Schedule: ScheduleConfig{
			HighlightInterval: DefaultHighlightInterval.String(),
			Autosave:          DefaultAutosave,
		},
		Driver: DriverConfig{MaxRetries: 3},
		Log:    LogConfig{Level: "warn", Format: "text"},
	}
}

// FindRoot finds the .sheetvc directory by walking up from start
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for {
		path := filepath.Join(dir, Dir)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotInitialized
		}
		dir = parent
	}
}

// UserDir returns the per-user configuration directory used when no
// .sheetvc directory is found.
func UserDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Load loads the configuration from the nearest .sheetvc directory above the
// working directory, falling back to the per-user configuration.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	path, err := FindRoot(cwd)
	if errors.Is(err, ErrNotInitialized) {
		user := UserDir()
		if _, statErr := os.Stat(filepath.Join(user, ConfigFile)); statErr == nil {
			return LoadDir(user)
		}
	}
	if err != nil {
		return nil, err
	}
	return LoadDir(path)
}

// LoadDir loads the configuration stored in dir. Missing keys keep their defaults.
func LoadDir(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.path = dir
	return cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0644)
}

// Initialize creates a .sheetvc directory in root tracking the given
// workbook file.
func Initialize(root, workbook, workbookID string) (*Config, error) {
	path := filepath.Join(root, Dir)

	// Check if already initialized
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("sheetvc already initialized in %s", root)
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}

	cfg := Default()
	cfg.path = path
	if workbook != "" {
		cfg.Workbook = workbook
	}
	if workbookID != "" {
		cfg.WorkbookID = workbookID
	}

	if err := cfg.Save(); err != nil {
		// Cleanup on failure
		os.RemoveAll(path)
		return nil, err
	}

	return cfg, nil
}

// Validate checks the driver name and every duration.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "", "bbolt", "sqlite", "badger", "redis", "memory":
	default:
		return fmt.Errorf("invalid storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "redis" && c.Storage.Addr == "" {
		return fmt.Errorf("storage driver redis requires addr")
	}
	for name, v := range map[string]string{
		"recording.dedup_window":      c.Recording.DedupWindow,
		"schedule.highlight_interval": c.Schedule.HighlightInterval,
		"driver.initial_interval":     c.Driver.InitialInterval,
		"driver.max_interval":         c.Driver.MaxInterval,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.Driver.MaxRetries < 0 {
		return fmt.Errorf("invalid driver.max_retries %d", c.Driver.MaxRetries)
	}
	return nil
}

// Path returns the path to the .sheetvc directory
func (c *Config) Path() string {
	return c.path
}

// Root returns the directory containing .sheetvc.
func (c *Config) Root() string {
	return filepath.Dir(c.path)
}

// WorkbookPath returns the absolute path of the workbook file.
func (c *Config) WorkbookPath() string {
	if filepath.IsAbs(c.Workbook) {
		return c.Workbook
	}
	return filepath.Join(c.Root(), c.Workbook)
}

// StoragePath returns the backend file or directory, defaulting to a file
// inside .sheetvc.
func (c *Config) StoragePath() string {
	switch {
	case c.Storage.Path == "":
		return filepath.Join(c.path, DatabaseFile)
	case filepath.IsAbs(c.Storage.Path):
		return c.Storage.Path
	}
	return filepath.Join(c.path, c.Storage.Path)
}

// LogPath returns the path of the log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.path, LogFile)
}

// DedupWindow returns the configured dedup window.
func (c *Config) DedupWindow() time.Duration {
	return duration(c.Recording.DedupWindow, DefaultDedupWindow)
}

// HighlightInterval returns the highlight refresh interval.
func (c *Config) HighlightInterval() time.Duration {
	return duration(c.Schedule.HighlightInterval, DefaultHighlightInterval)
}

// RetryIntervals returns the initial and maximum retry backoff, zero when unset.
func (c *Config) RetryIntervals() (initial, max time.Duration) {
	return duration(c.Driver.InitialInterval, 0), duration(c.Driver.MaxInterval, 0)
}

func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
