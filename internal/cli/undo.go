package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var undoCmd = &cobra.Command{
	Use:   "undo [action]",
	Short: "Undo a single action",
	Long:  `Reverse one recorded action. Defaults to the most recent action.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   runUndo,
}

func runUndo(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	var id string
	if len(args) > 0 {
		a, err := findAction(c, args[0])
		if err != nil {
			exitError("%v", err)
		}
		id = a.ID
	} else {
		actions := c.Versions.GetAllActions(c.WorkbookID())
		if len(actions) == 0 {
			exitError("no actions recorded")
		}
		id = actions[0].ID
	}

	result := c.Restorer.UndoAction(ctx, id)
	if result.Success {
		if err := c.SaveWorkbook(); err != nil {
			exitError("failed to save workbook: %v", err)
		}
	}
	printRestoreResult(result)
	if !result.Success {
		exitError("undo failed")
	}
}
