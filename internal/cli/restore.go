package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/sheetvc/internal/core"
	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <version>",
	Short: "Restore the workbook to before a version",
	Long: `Undo every action listed in a version, newest first.

A restore point version is saved first so the restore can itself be undone.
With --range, only actions touching the given ranges are undone.`,
	Args: cobra.ExactArgs(1),
	Run:  runRestore,
}

var (
	restoreRanges         []string
	restoreNoRestorePoint bool
)

func init() {
	restoreCmd.Flags().StringSliceVarP(&restoreRanges, "range", "r", nil, "Restore only actions on this range, e.g. Sheet1!A1:B2 (repeatable)")
	restoreCmd.Flags().BoolVar(&restoreNoRestorePoint, "no-restore-point", false, "Skip saving a restore point first")
}

func runRestore(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	v, err := findVersion(c, args[0])
	if err != nil {
		exitError("%v", err)
	}

	fmt.Printf("Restoring version %s...\n", v.ShortID())
	result := c.Restorer.RestoreVersion(ctx, core.RestoreOptions{
		VersionID:          v.ID,
		CreateRestorePoint: !restoreNoRestorePoint,
		Selective:          len(restoreRanges) > 0,
		SelectiveRanges:    restoreRanges,
	})

	if result.RestoredActions > 0 {
		if err := c.SaveWorkbook(); err != nil {
			exitError("failed to save workbook: %v", err)
		}
	}
	printRestoreResult(result)
	if !result.Success {
		exitError("restore incomplete")
	}
}

func printRestoreResult(result *models.RestoreResult) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	if result.Success {
		green.Println(result.Message)
	} else {
		red.Println(result.Message)
	}
	if result.RestorePointID != "" {
		fmt.Printf(" restore point %s\n", shortID(result.RestorePointID))
	}
	for _, id := range result.LossyActions {
		yellow.Printf("  - %s was undone approximately\n", shortID(id))
	}
	for _, id := range result.MissingActions {
		yellow.Printf("  - %s is no longer stored\n", shortID(id))
	}
	for _, e := range result.Errors {
		red.Printf("  - %s: %s\n", shortID(e.ActionID), e.Message)
	}
}
