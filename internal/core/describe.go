package core

import (
	"fmt"
	"strings"

	"github.com/kilupskalvis/sheetvc/internal/models"
)

// Describe returns a one-line human description of an operation.
func Describe(op *models.Operation, ranges []models.AffectedRange) string {
	if op == nil {
		return ""
	}
	ref := ""
	if len(ranges) > 0 {
		ref = ranges[0].Ref()
	}
	sheet := op.Sheet
	if sheet == "" && len(ranges) > 0 {
		sheet = ranges[0].SheetName
	}

	switch op.Kind {
	case models.OperationSetValue:
		return fmt.Sprintf("Set %s to %s", ref, formatValue(op.Value))
	case models.OperationSetFormula:
		return fmt.Sprintf("Set formula %s to %s", ref, op.Formula)
	case models.OperationFormatRange:
		return fmt.Sprintf("Format %s", ref)
	case models.OperationClearRange:
		if op.ClearMode != "" && op.ClearMode != models.ClearAll {
			return fmt.Sprintf("Clear %s of %s", op.ClearMode, ref)
		}
		return fmt.Sprintf("Clear %s", ref)
	case models.OperationCreateSheet:
		return fmt.Sprintf("Create sheet %q", sheet)
	case models.OperationDeleteSheet:
		return fmt.Sprintf("Delete sheet %q", sheet)
	case models.OperationRenameSheet:
		return fmt.Sprintf("Rename sheet %q to %q", sheet, op.NewName)
	case models.OperationCreateTable:
		if op.Name != "" {
			return fmt.Sprintf("Create table %s at %s", op.Name, ref)
		}
		return fmt.Sprintf("Create table at %s", ref)
	case models.OperationSortRange:
		order := "ascending"
		if op.Descending {
			order = "descending"
		}
		return fmt.Sprintf("Sort %s %s", ref, order)
	case models.OperationFilterRange:
		return fmt.Sprintf("Filter %s", ref)
	case models.OperationCopyRange:
		dst := ""
		if len(ranges) > 1 {
			dst = ranges[1].Ref()
		}
		return fmt.Sprintf("Copy %s to %s", ref, dst)
	case models.OperationMergeCells:
		return fmt.Sprintf("Merge %s", ref)
	case models.OperationUnmergeCells:
		return fmt.Sprintf("Unmerge %s", ref)
	case models.OperationCreateChart:
		if op.ChartType != "" {
			return fmt.Sprintf("Create %s chart from %s", op.ChartType, ref)
		}
		return fmt.Sprintf("Create chart from %s", ref)
	case models.OperationComposite, models.OperationBatch:
		n := len(op.Operations)
		if n == 1 {
			return "Batch of 1 operation"
		}
		return fmt.Sprintf("Batch of %d operations", n)
	case models.OperationPrintSettings, models.OperationPageSetup, models.OperationSheetDisplay,
		models.OperationChartFormat, models.OperationCalculationSettings:
		return fmt.Sprintf("Update %s on %s", strings.ReplaceAll(string(op.Kind), "_", " "), sheet)
	default:
		if ref != "" {
			return fmt.Sprintf("Apply %s to %s", op.Kind, ref)
		}
		return fmt.Sprintf("Apply %s", op.Kind)
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "empty"
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprint(val)
	}
}
