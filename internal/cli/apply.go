package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply <file|->",
	Short: "Apply operations to the workbook",
	Long: `Apply one operation or a JSON array of operations to the workbook,
recording each one in the history first.

With --pending the operations are applied and highlighted but kept out of
the history until accepted with 'sheetvc pending accept'.`,
	Args: cobra.ExactArgs(1),
	Run:  runApply,
}

var (
	applyPending     bool
	applyCommandID   string
	applyDescription string
)

func init() {
	applyCmd.Flags().BoolVar(&applyPending, "pending", false, "Stage the operations as pending changes")
	applyCmd.Flags().StringVar(&applyCommandID, "command-id", "", "Command id stored with pending changes")
	applyCmd.Flags().StringVarP(&applyDescription, "message", "m", "", "Description of pending changes")
}

func runApply(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	ops, err := readOperations(args[0])
	if err != nil {
		exitError("%v", err)
	}

	c := initContext(ctx)
	defer c.Close()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	opts := applyOptions{Pending: applyPending, CommandID: applyCommandID, Description: applyDescription}
	applied, failed := applyOperations(ctx, c, ops, opts, func(line appliedLine) {
		switch {
		case line.Err != nil:
			red.Printf("failed  ")
			fmt.Printf("%s: %v\n", line.Description, line.Err)
		case line.Pending:
			yellow.Printf("pending %s ", shortID(line.ID))
			fmt.Println(line.Description)
		default:
			green.Printf("[%s] ", shortID(line.ID))
			fmt.Println(line.Description)
		}
	})

	if err := c.SaveWorkbook(); err != nil {
		exitError("failed to save workbook: %v", err)
	}
	fmt.Printf("\n%d operation(s) applied", applied)
	if failed > 0 {
		fmt.Printf(", %d failed\n", failed)
		os.Exit(1)
	}
	fmt.Println()
}

// appliedLine is reported once per operation by applyOperations.
type appliedLine struct {
	ID          string // action id, or pending change id
	Description string
	Pending     bool
	Err         error
}

// applyOptions selects between recording and staging.
type applyOptions struct {
	Pending     bool
	CommandID   string
	Description string
}

// applyOperations records (or stages) and applies each operation in order.
// A failing operation is reported and the rest still run.
func applyOperations(ctx context.Context, c *cmdContext, ops []*models.Operation, opts applyOptions, report func(appliedLine)) (applied, failed int) {
	wb := c.WorkbookID()
	for _, op := range ops {
		line := appliedLine{Description: string(op.Kind), Pending: opts.Pending}

		if opts.Pending {
			change, err := c.Pending.Stage(ctx, wb, op, opts.CommandID, opts.Description)
			if err != nil {
				line.Err = err
			} else {
				line.ID, line.Description = change.ID, change.Description
				if err := c.Workbook.Apply(ctx, op); err != nil {
					line.Err = err
				} else if err := c.Pending.Highlight(ctx, change); err != nil {
					c.Logger.Warn("highlight failed", "change", change.ID, "error", err)
				}
			}
		} else {
			line.ID = c.Recorder.Record(ctx, wb, op)
			if a, err := c.Versions.GetAction(line.ID); err == nil {
				line.Description = a.Description
			}
			line.Err = c.Workbook.Apply(ctx, op)
		}

		if line.Err != nil {
			failed++
		} else {
			applied++
		}
		if report != nil {
			report(line)
		}
	}
	return applied, failed
}

// readOperations decodes a single operation or an array of operations from
// path, or from stdin when path is "-".
func readOperations(path string) ([]*models.Operation, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read operations: %w", err)
	}
	return decodeOperations(data)
}

func decodeOperations(data []byte) ([]*models.Operation, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("decode operations: empty input")
	}

	var ops []*models.Operation
	if data[0] == '[' {
		if err := json.Unmarshal(data, &ops); err != nil {
			return nil, fmt.Errorf("decode operations: %w", err)
		}
	} else {
		op := &models.Operation{}
		if err := json.Unmarshal(data, op); err != nil {
			return nil, fmt.Errorf("decode operations: %w", err)
		}
		ops = append(ops, op)
	}

	for i, op := range ops {
		if op == nil || op.Kind == "" {
			return nil, fmt.Errorf("decode operations: operation %d has no kind", i)
		}
	}
	return ops, nil
}
