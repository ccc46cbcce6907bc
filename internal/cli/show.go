package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [version]",
	Short: "Show version details",
	Long:  `Show details about a version including all of its actions. Defaults to the latest version.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   runShow,
}

func runShow(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	var v *models.Version
	var err error
	if len(args) > 0 {
		v, err = findVersion(c, args[0])
		if err != nil {
			exitError("%v", err)
		}
	} else {
		versions := c.Versions.GetVersions(c.WorkbookID())
		if len(versions) == 0 {
			exitError("no versions yet")
		}
		v = versions[0]
	}

	printVersion(v, false)

	actions, err := c.Versions.GetActionsForVersion(v.ID)
	if err != nil {
		exitError("failed to get actions: %v", err)
	}
	if len(actions) == 0 {
		fmt.Println("No actions in this version")
		return
	}

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	for _, a := range actions {
		green.Printf("  %s ", a.ShortID())
		fmt.Print(a.Description)
		if a.EventType == models.ActionEventAcceptedChange {
			gray.Print(" (accepted)")
		}
		fmt.Println()
	}
	if missing := len(v.ActionIDs) - len(actions); missing > 0 {
		color.New(color.FgRed).Printf("  %d action(s) no longer stored\n", missing)
	}
}
