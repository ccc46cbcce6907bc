package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kilupskalvis/sheetvc/internal/core"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run highlight refresh and autosave in the foreground",
	Long: `Keep pending-change highlights applied and save auto-save versions on
the configured schedule until interrupted. The workbook is written back on exit.`,
	Run: runWatch,
}

var watchAutosave string

func init() {
	watchCmd.Flags().StringVar(&watchAutosave, "autosave", "", "Autosave cron schedule (overrides config; \"off\" disables)")
}

func runWatch(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := initContext(ctx)
	defer c.Close()

	spec := c.Config.Schedule.Autosave
	switch watchAutosave {
	case "":
	case "off":
		spec = ""
	default:
		spec = watchAutosave
	}

	s := core.NewScheduler(c.Versions, c.Pending, c.Logger, core.SchedulerOptions{
		HighlightInterval: c.Config.HighlightInterval(),
		AutosaveSpec:      spec,
	})

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", c.Config.Workbook)
	runErr := s.Run(ctx)

	if err := c.SaveWorkbook(); err != nil {
		exitError("failed to save workbook: %v", err)
	}
	if runErr != nil {
		exitError("%v", runErr)
	}
	fmt.Println("Stopped")
}
