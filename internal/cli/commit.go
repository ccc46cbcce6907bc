package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/kilupskalvis/sheetvc/internal/core"
	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Save a version",
	Long: `Create a new version containing the actions recorded since the latest one.

Use --since to include every action at or after a point in time instead.`,
	Run: runCommit,
}

var (
	commitMessage string
	commitAuthor  string
	commitTags    []string
	commitSince   string
)

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "Version description")
	commitCmd.Flags().StringVar(&commitAuthor, "author", "", "Version author")
	commitCmd.Flags().StringSliceVarP(&commitTags, "tag", "t", nil, "Tag the version (repeatable)")
	commitCmd.Flags().StringVar(&commitSince, "since", "", "Include actions at or after this RFC 3339 time")
}

func runCommit(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	opts := core.VersionOptions{
		Description: commitMessage,
		Author:      commitAuthor,
		Tags:        commitTags,
	}
	if commitSince != "" {
		since, err := parseTime(commitSince)
		if err != nil {
			exitError("invalid --since: %v", err)
		}
		opts.IncludeActionsSince = &since
	}

	v, err := c.Versions.CreateVersion(ctx, c.WorkbookID(), opts)
	if err != nil {
		exitError("%v", err)
	}

	color.New(color.FgGreen).Printf("[%s] %s\n", v.ShortID(), v.Description)
	fmt.Printf(" %d action(s) saved\n", len(v.ActionIDs))
}

// parseTime accepts RFC 3339 timestamps or a bare date.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}
