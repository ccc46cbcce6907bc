// Command sheetvc records, versions and restores workbook operations.
package main

import (
	"os"

	"github.com/kilupskalvis/sheetvc/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
