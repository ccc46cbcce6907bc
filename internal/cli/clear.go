package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all version history",
	Long: `Delete every recorded action and version of the workbook.
The workbook itself is not changed.`,
	Run: runClear,
}

var clearForce bool

func init() {
	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "Confirm deleting the history")
}

func runClear(cmd *cobra.Command, args []string) {
	if !clearForce {
		exitError("refusing to clear history without --force")
	}

	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	actions := len(c.Versions.GetAllActions(c.WorkbookID()))
	versions := len(c.Versions.GetVersions(c.WorkbookID()))
	if err := c.Versions.ClearVersionHistory(ctx, c.WorkbookID()); err != nil {
		exitError("failed to clear history: %v", err)
	}
	fmt.Printf("Deleted %d action(s) and %d version(s)\n", actions, versions)
}
