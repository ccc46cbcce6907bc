// Package cli implements the command-line interface for sheetvc.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kilupskalvis/sheetvc/internal/config"
	"github.com/kilupskalvis/sheetvc/internal/core"
	"github.com/kilupskalvis/sheetvc/internal/document"
	"github.com/kilupskalvis/sheetvc/internal/logging"
	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/kilupskalvis/sheetvc/internal/store"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config   *config.Config
	Logger   *slog.Logger
	Backend  store.Backend
	Workbook *document.Workbook
	Driver   document.Driver
	History  *store.History
	Recorder *core.Recorder
	Versions *core.VersionService
	Restorer *core.Restorer
	Pending  *core.PendingManager

	closeLog func() error
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Backend != nil {
		c.Backend.Close()
	}
	if c.closeLog != nil {
		c.closeLog()
	}
}

// SaveWorkbook writes the in-memory workbook back to its file.
func (c *cmdContext) SaveWorkbook() error {
	return c.Workbook.Save(c.Config.WorkbookPath())
}

// WorkbookID returns the id history is recorded under.
func (c *cmdContext) WorkbookID() string {
	return c.Config.WorkbookID
}

// newLogger builds the logger described by cfg. verbose forces debug output.
func newLogger(cfg *config.Config, verbose bool) (*slog.Logger, func() error, error) {
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	if cfg.Log.File {
		return logging.OpenFile(cfg.LogPath(), level, cfg.Log.Format)
	}
	return logging.New(level, cfg.Log.Format, os.Stderr), nil, nil
}

// retryConfig maps the driver section onto document retry settings.
func retryConfig(cfg *config.Config) *document.RetryConfig {
	rc := document.DefaultRetryConfig()
	rc.MaxRetries = cfg.Driver.MaxRetries
	initial, max := cfg.RetryIntervals()
	if initial > 0 {
		rc.InitialInterval = initial
	}
	if max > 0 {
		rc.MaxInterval = max
	}
	return rc
}

// loadWorkbook reads the tracked workbook, starting a fresh one when the
// file does not exist yet.
func loadWorkbook(cfg *config.Config) (*document.Workbook, error) {
	wb, err := document.LoadWorkbook(cfg.WorkbookPath())
	if errors.Is(err, os.ErrNotExist) {
		return document.NewWorkbook(cfg.WorkbookID, "Sheet1"), nil
	}
	return wb, err
}

// openContext wires config, storage, the document and every core service.
func openContext(ctx context.Context, cfg *config.Config, verbose bool) (*cmdContext, error) {
	logger, closeLog, err := newLogger(cfg, verbose)
	if err != nil {
		return nil, err
	}
	c := &cmdContext{Config: cfg, Logger: logger, closeLog: closeLog}

	c.Workbook, err = loadWorkbook(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Driver = document.NewRetryDriver(c.Workbook, retryConfig(cfg))

	c.Backend, err = store.Open(ctx, store.Options{
		Driver:   cfg.Storage.Driver,
		Path:     cfg.StoragePath(),
		Addr:     cfg.Storage.Addr,
		Password: cfg.Storage.Password,
		DB:       cfg.Storage.DB,
		Prefix:   cfg.Storage.Prefix,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	c.History, err = store.NewHistory(ctx, c.Backend)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	changes, err := store.NewChanges(ctx, c.Backend)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load pending changes: %w", err)
	}

	c.Recorder = core.NewRecorder(c.History, c.Driver, logger, core.RecorderOptions{
		DedupWindow:           cfg.DedupWindow(),
		WindowSize:            cfg.Recording.WindowSize,
		PermanentFingerprints: cfg.Recording.PermanentFingerprints,
	})
	c.Versions = core.NewVersionService(c.History, logger, cfg.Author, nil)
	undoer := core.NewUndoer(c.Driver, logger)
	c.Restorer = core.NewRestorer(c.Versions, undoer, logger)
	c.Pending = core.NewPendingManager(changes, c.Recorder, undoer, c.Driver, logger, cfg.Schedule.HighlightColor, nil)
	return c, nil
}

var verbose bool

// initContext loads config and opens every service, exiting on failure.
func initContext(ctx context.Context) *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}
	c, err := openContext(ctx, cfg, verbose)
	if err != nil {
		exitError("%v", err)
	}
	return c
}

var rootCmd = &cobra.Command{
	Use:   "sheetvc",
	Short: "Spreadsheet version history",
	Long: `sheetvc records every operation applied to a workbook, groups them into
versions, and undoes or restores them on request. Changes proposed by an
assistant can be staged as pending, highlighted, and accepted or rejected.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(watchCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// findVersion resolves a full or abbreviated version id within the workbook.
func findVersion(c *cmdContext, ref string) (*models.Version, error) {
	if v, err := c.Versions.GetVersion(ref); err == nil {
		return v, nil
	}
	var match *models.Version
	for _, v := range c.Versions.GetVersions(c.WorkbookID()) {
		if !strings.HasPrefix(v.ID, ref) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("version id %s is ambiguous", ref)
		}
		match = v
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrVersionNotFound, ref)
	}
	return match, nil
}

// findAction resolves a full or abbreviated action id within the workbook.
func findAction(c *cmdContext, ref string) (*models.Action, error) {
	if a, err := c.Versions.GetAction(ref); err == nil {
		return a, nil
	}
	var match *models.Action
	for _, a := range c.Versions.GetAllActions(c.WorkbookID()) {
		if !strings.HasPrefix(a.ID, ref) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("action id %s is ambiguous", ref)
		}
		match = a
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrActionNotFound, ref)
	}
	return match, nil
}

// findChange resolves a full or abbreviated pending change id.
func findChange(c *cmdContext, ref string) (*models.PendingChange, error) {
	if ch, err := c.Pending.Get(ref); err == nil {
		return ch, nil
	}
	var match *models.PendingChange
	for _, ch := range c.Pending.GetPendingChanges(c.WorkbookID()) {
		if !strings.HasPrefix(ch.ID, ref) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("change id %s is ambiguous", ref)
		}
		match = ch
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrChangeNotFound, ref)
	}
	return match, nil
}
