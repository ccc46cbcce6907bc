package core

import (
	"github.com/kilupskalvis/sheetvc/internal/a1"
	"github.com/kilupskalvis/sheetvc/internal/models"
)

// ResolveRanges returns the document regions an operation will touch.
// References without a sheet prefix resolve against op.Sheet, then
// defaultSheet. Composite operations return the union of their children.
func ResolveRanges(op *models.Operation, defaultSheet string) []models.AffectedRange {
	if op == nil {
		return nil
	}
	sheet := op.Sheet
	if sheet == "" {
		sheet = defaultSheet
	}

	switch op.Kind {
	case models.OperationSetValue, models.OperationSetFormula:
		return []models.AffectedRange{rangeAt(op.Target, sheet, models.RangeKindCell)}

	case models.OperationFormatRange, models.OperationClearRange, models.OperationSortRange,
		models.OperationFilterRange, models.OperationMergeCells, models.OperationUnmergeCells:
		return []models.AffectedRange{rangeAt(op.Range, sheet, models.RangeKindRange)}

	case models.OperationCreateSheet, models.OperationDeleteSheet, models.OperationRenameSheet:
		return []models.AffectedRange{{SheetName: sheet, Kind: models.RangeKindSheet}}

	case models.OperationCreateTable:
		return []models.AffectedRange{rangeAt(op.Range, sheet, models.RangeKindTable)}

	case models.OperationCreateChart:
		return []models.AffectedRange{rangeAt(op.Range, sheet, models.RangeKindChart)}

	case models.OperationCopyRange:
		return []models.AffectedRange{
			rangeAt(op.Source, sheet, models.RangeKindRange),
			rangeAt(op.Destination, sheet, models.RangeKindRange),
		}

	case models.OperationComposite, models.OperationBatch:
		var out []models.AffectedRange
		seen := make(map[models.AffectedRange]bool)
		for _, child := range op.Operations {
			for _, r := range ResolveRanges(child, sheet) {
				if !seen[r] {
					seen[r] = true
					out = append(out, r)
				}
			}
		}
		return out

	case models.OperationPrintSettings, models.OperationPageSetup, models.OperationSheetDisplay,
		models.OperationChartFormat, models.OperationCalculationSettings:
		return []models.AffectedRange{{SheetName: sheet, Kind: models.RangeKindSheet}}

	default:
		if ref := firstNonEmpty(op.Range, op.Target); ref != "" {
			return []models.AffectedRange{rangeAt(ref, sheet, models.RangeKindRange)}
		}
		return []models.AffectedRange{{SheetName: sheet, Kind: models.RangeKindSheet}}
	}
}

// ResolveRefs returns the affected ranges of op as "Sheet!A1" strings.
func ResolveRefs(op *models.Operation, defaultSheet string) []string {
	ranges := ResolveRanges(op, defaultSheet)
	refs := make([]string, len(ranges))
	for i, r := range ranges {
		refs[i] = r.Ref()
	}
	return refs
}

// ParseRef turns a "Sheet!A1:B2" reference into an AffectedRange with the
// same normalisation the resolver applies.
func ParseRef(ref, defaultSheet string) models.AffectedRange {
	return rangeAt(ref, defaultSheet, models.RangeKindRange)
}

func rangeAt(ref, sheet string, kind models.RangeKind) models.AffectedRange {
	refSheet, addr := a1.SplitRef(ref)
	if refSheet != "" {
		sheet = refSheet
	}
	if rect, err := a1.ParseRange(addr); err == nil {
		addr = rect.String()
	}
	return models.AffectedRange{SheetName: sheet, Range: addr, Kind: kind}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
