package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Review pending changes",
	Long: `List pending changes, or accept or reject them.

Without a subcommand, lists the pending changes of the workbook.`,
	Run: runPendingList,
}

var pendingAcceptCmd = &cobra.Command{
	Use:   "accept <change>...",
	Short: "Accept pending changes into the history",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runPendingDecision(args, true)
	},
}

var pendingRejectCmd = &cobra.Command{
	Use:   "reject <change>...",
	Short: "Reject pending changes and undo them",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runPendingDecision(args, false)
	},
}

var pendingHighlightCmd = &cobra.Command{
	Use:   "highlight",
	Short: "Re-apply highlights to pending ranges",
	Run:   runPendingHighlight,
}

func init() {
	pendingCmd.AddCommand(pendingAcceptCmd)
	pendingCmd.AddCommand(pendingRejectCmd)
	pendingCmd.AddCommand(pendingHighlightCmd)
}

func runPendingList(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	changes := c.Pending.GetPendingChanges(c.WorkbookID())
	if len(changes) == 0 {
		fmt.Println("No pending changes")
		return
	}

	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)
	for _, ch := range changes {
		yellow.Printf("%s ", shortID(ch.ID))
		fmt.Print(ch.Description)
		if len(ch.AffectedRanges) > 0 {
			gray.Printf(" [%s]", strings.Join(ch.AffectedRanges, ", "))
		}
		fmt.Println()
	}
}

func runPendingDecision(refs []string, accept bool) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	results := decideChanges(ctx, c, refs, accept)

	if err := c.SaveWorkbook(); err != nil {
		exitError("failed to save workbook: %v", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	failed := 0
	for i, res := range results {
		if !res.Success {
			failed++
			red.Printf("%s: %s\n", refs[i], res.Message)
			continue
		}
		green.Printf("%s: %s", shortID(res.Change.ID), res.Message)
		if res.ActionID != "" {
			fmt.Printf(" (action %s)", shortID(res.ActionID))
		}
		fmt.Println()
		if res.Lossy {
			yellow.Println("  undone approximately")
		}
	}
	if failed > 0 {
		exitError("%d change(s) not processed", failed)
	}
}

// decideChanges accepts or rejects each referenced change in order.
func decideChanges(ctx context.Context, c *cmdContext, refs []string, accept bool) []*models.ChangeResult {
	results := make([]*models.ChangeResult, len(refs))
	for i, ref := range refs {
		change, err := findChange(c, ref)
		if err != nil {
			results[i] = &models.ChangeResult{Success: false, Message: err.Error()}
			continue
		}
		if accept {
			results[i] = c.Pending.Accept(ctx, change.ID)
		} else {
			results[i] = c.Pending.Reject(ctx, change.ID)
		}
	}
	return results
}

func runPendingHighlight(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	n := c.Pending.RefreshHighlights(ctx, c.WorkbookID())
	if err := c.SaveWorkbook(); err != nil {
		exitError("failed to save workbook: %v", err)
	}
	fmt.Printf("Highlighted %d pending change(s)\n", n)
}
