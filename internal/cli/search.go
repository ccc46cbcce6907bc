package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search versions",
	Long: `List versions whose description, author, tags or action descriptions
contain the query, ignoring case.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	versions := c.Versions.SearchVersions(c.WorkbookID(), strings.Join(args, " "))
	if len(versions) == 0 {
		fmt.Println("No matching versions")
		return
	}
	for _, v := range versions {
		printVersion(v, true)
	}
}
