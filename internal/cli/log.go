package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show version history",
	Long: `Display the versions of the workbook, newest first.
With --actions, list every recorded action instead.`,
	Run: runLog,
}

var (
	logOneline bool
	logLimit   int
	logActions bool
)

func init() {
	logCmd.Flags().BoolVar(&logOneline, "oneline", false, "Show each entry on a single line")
	logCmd.Flags().IntVarP(&logLimit, "n", "n", 0, "Limit the number of entries to show")
	logCmd.Flags().BoolVar(&logActions, "actions", false, "List recorded actions instead of versions")
}

func runLog(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	if logActions {
		printActions(c.Versions.GetAllActions(c.WorkbookID()), logLimit)
		return
	}

	versions := c.Versions.GetVersions(c.WorkbookID())
	if len(versions) == 0 {
		fmt.Println("No versions yet")
		return
	}
	if logLimit > 0 && len(versions) > logLimit {
		versions = versions[:logLimit]
	}

	if pending := len(c.Versions.UnversionedActions(c.WorkbookID())); pending > 0 {
		color.New(color.FgCyan).Printf("%d action(s) since the latest version\n\n", pending)
	}
	for _, v := range versions {
		printVersion(v, logOneline)
	}
}

var eventColors = map[models.VersionEventType]color.Attribute{
	models.VersionManualSave: color.FgGreen,
	models.VersionAutoSave:   color.FgBlue,
	models.VersionRestore:    color.FgMagenta,
	models.VersionInitial:    color.FgCyan,
}

func printVersion(v *models.Version, oneline bool) {
	yellow := color.New(color.FgYellow)
	event := color.New(eventColors[v.EventType])

	if oneline {
		yellow.Printf("%s ", v.ShortID())
		event.Printf("[%s] ", v.EventType)
		fmt.Println(v.Description)
		return
	}

	yellow.Printf("version %s ", v.ID)
	event.Printf("[%s]", v.EventType)
	fmt.Println()
	fmt.Printf("Author: %s\n", v.Author)
	fmt.Printf("Date:   %s\n", v.Timestamp.Format("Mon Jan 2 15:04:05 2006"))
	if len(v.Tags) > 0 {
		fmt.Printf("Tags:   %s\n", strings.Join(v.Tags, ", "))
	}
	fmt.Printf("\n    %s\n", v.Description)
	fmt.Printf("    (%d actions)\n\n", len(v.ActionIDs))
}

func printActions(actions []*models.Action, limit int) {
	if len(actions) == 0 {
		fmt.Println("No actions recorded")
		return
	}
	if limit > 0 && len(actions) > limit {
		actions = actions[:limit]
	}
	yellow := color.New(color.FgYellow)
	for _, a := range actions {
		yellow.Printf("%s ", a.ShortID())
		fmt.Printf("%s  %s\n", a.Timestamp.Format("2006-01-02 15:04:05"), a.Description)
	}
}
