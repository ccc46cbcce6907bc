package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilupskalvis/sheetvc/internal/config"
	"github.com/kilupskalvis/sheetvc/internal/core"
	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [workbook]",
	Short: "Start tracking a workbook",
	Long: `Start tracking a workbook file in the current directory.
This creates a .sheetvc directory holding configuration and history.
The workbook file is created with one empty sheet if it does not exist.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runInit,
}

var (
	initDriver string
	initID     string
)

func init() {
	initCmd.Flags().StringVar(&initDriver, "driver", config.DefaultDriver, "Storage driver (bbolt, sqlite, badger, redis)")
	initCmd.Flags().StringVar(&initID, "id", "", "Workbook id (defaults to the file name)")
}

func runInit(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	// Check if already initialized
	if _, err := config.FindRoot(cwd); err == nil {
		exitError("sheetvc is already tracking a workbook here")
	}

	workbook := config.DefaultWorkbookFile
	if len(args) > 0 {
		workbook = args[0]
	}
	id := initID
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(workbook), filepath.Ext(workbook))
	}

	c, err := initialize(ctx, cwd, workbook, id, initDriver)
	if err != nil {
		exitError("%v", err)
	}
	defer c.Close()

	fmt.Printf("Initialized sheetvc in %s/\n", config.Dir)
	fmt.Printf("Tracking %s as %s (%s storage)\n", workbook, id, c.Config.Storage.Driver)
}

// initialize creates the .sheetvc directory in root, writes the workbook
// file when missing and stores an initial version.
func initialize(ctx context.Context, root, workbook, id, driver string) (*cmdContext, error) {
	cfg, err := config.Initialize(root, workbook, id)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}
	if driver != "" && driver != cfg.Storage.Driver {
		cfg.Storage.Driver = driver
		if err := cfg.Validate(); err != nil {
			os.RemoveAll(cfg.Path())
			return nil, err
		}
		if err := cfg.Save(); err != nil {
			return nil, err
		}
	}

	c, err := openContext(ctx, cfg, verbose)
	if err != nil {
		return nil, err
	}
	if err := c.SaveWorkbook(); err != nil {
		c.Close()
		return nil, err
	}
	if _, err := c.Versions.CreateVersion(ctx, c.WorkbookID(), core.VersionOptions{
		EventType:   models.VersionInitial,
		Description: "Initial version",
	}); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create initial version: %w", err)
	}
	return c, nil
}
