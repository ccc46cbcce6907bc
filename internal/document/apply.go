package document

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kilupskalvis/sheetvc/internal/a1"
	"github.com/kilupskalvis/sheetvc/internal/models"
)

// Apply executes an operation against the workbook. It stands in for the
// host application's mutation primitives.
func (w *Workbook) Apply(ctx context.Context, op *models.Operation) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("Apply"); err != nil {
		return err
	}
	return w.apply(op)
}

func (w *Workbook) apply(op *models.Operation) error {
	if op == nil {
		return fmt.Errorf("apply: nil operation")
	}

	switch op.Kind {
	case models.OperationSetValue:
		s, rect, err := w.resolve(op.Sheet, op.Target)
		if err != nil {
			return err
		}
		cell := s.ensureCell(rect.Row1, rect.Col1)
		cell.Value = op.Value
		cell.Formula = ""
		s.compact(rect.Row1, rect.Col1)

	case models.OperationSetFormula:
		s, rect, err := w.resolve(op.Sheet, op.Target)
		if err != nil {
			return err
		}
		setFormula(s.ensureCell(rect.Row1, rect.Col1), op.Formula)
		s.compact(rect.Row1, rect.Col1)

	case models.OperationFormatRange:
		s, rect, err := w.resolve(op.Sheet, op.Range)
		if err != nil {
			return err
		}
		if op.Format == nil {
			return fmt.Errorf("format range %s: no format given", op.Range)
		}
		for r := rect.Row1; r <= rect.Row2; r++ {
			for c := rect.Col1; c <= rect.Col2; c++ {
				cell := s.ensureCell(r, c)
				if cell.Format == nil {
					cell.Format = &models.FormatSnapshot{}
				}
				applyFormat(cell.Format, op.Format)
			}
		}

	case models.OperationClearRange:
		s, rect, err := w.resolve(op.Sheet, op.Range)
		if err != nil {
			return err
		}
		clearRange(s, rect, op.ClearMode)

	case models.OperationCreateSheet:
		return w.createSheet(op.Sheet, SheetOptions{Position: op.Position, Visibility: op.Visibility})

	case models.OperationDeleteSheet:
		return w.deleteSheet(op.Sheet)

	case models.OperationRenameSheet:
		return w.renameSheet(op.Sheet, op.NewName)

	case models.OperationCreateTable:
		s, rect, err := w.resolve(op.Sheet, op.Range)
		if err != nil {
			return err
		}
		name := op.Name
		if name == "" {
			name = fmt.Sprintf("Table%d", w.tableCount()+1)
		}
		for _, t := range s.Tables {
			tr, err := a1.ParseRange(t.Range)
			if err == nil && tr.Intersects(rect) {
				return fmt.Errorf("create table: range %s overlaps table %q", rect, t.Name)
			}
		}
		s.Tables = append(s.Tables, &Table{Name: name, Sheet: s.Name, Range: rect.String()})

	case models.OperationSortRange:
		s, rect, err := w.resolve(op.Sheet, op.Range)
		if err != nil {
			return err
		}
		return sortRange(s, rect, op.SortColumn, op.Descending)

	case models.OperationFilterRange:
		s, rect, err := w.resolve(op.Sheet, op.Range)
		if err != nil {
			return err
		}
		filtered := 0
		for _, t := range s.Tables {
			tr, err := a1.ParseRange(t.Range)
			if err == nil && tr.Intersects(rect) {
				t.Filtered = true
				t.Criteria = op.Criteria
				filtered++
			}
		}
		if filtered == 0 {
			return fmt.Errorf("filter range %s: no table in range: %w", rect, ErrNotFound)
		}

	case models.OperationCopyRange:
		return w.copyRange(op)

	case models.OperationMergeCells:
		s, rect, err := w.resolve(op.Sheet, op.Range)
		if err != nil {
			return err
		}
		mergeSheet(s, rect)

	case models.OperationUnmergeCells:
		s, rect, err := w.resolve(op.Sheet, op.Range)
		if err != nil {
			return err
		}
		unmergeSheet(s, rect)

	case models.OperationCreateChart:
		s, rect, err := w.resolve(op.Sheet, op.Range)
		if err != nil {
			return err
		}
		w.NextChartID++
		s.Charts = append(s.Charts, &Chart{
			ID:          fmt.Sprintf("Chart%d", w.NextChartID),
			Sheet:       s.Name,
			Name:        op.Name,
			Type:        op.ChartType,
			SourceRange: rect.String(),
		})

	case models.OperationComposite, models.OperationBatch:
		for i, child := range op.Operations {
			if child != nil && child.Sheet == "" {
				inherited := *child
				inherited.Sheet = op.Sheet
				child = &inherited
			}
			if err := w.apply(child); err != nil {
				return fmt.Errorf("apply %s step %d: %w", op.Kind, i+1, err)
			}
		}

	case models.OperationPrintSettings, models.OperationPageSetup, models.OperationSheetDisplay,
		models.OperationChartFormat, models.OperationCalculationSettings:
		sheet := op.Sheet
		if sheet == "" {
			active, err := w.activeSheet()
			if err != nil {
				return err
			}
			sheet = active
		}
		s, _, err := w.sheet(sheet)
		if err != nil {
			return err
		}
		if s.Settings == nil {
			s.Settings = make(map[string]map[string]any)
		}
		s.Settings[string(op.Kind)] = op.Settings

	default:
		return fmt.Errorf("unsupported operation kind %q", op.Kind)
	}
	return nil
}

func (w *Workbook) tableCount() int {
	n := 0
	for _, s := range w.Sheets {
		n += len(s.Tables)
	}
	return n
}

func clearRange(s *Sheet, rect a1.Rect, mode models.ClearMode) {
	if mode == "" {
		mode = models.ClearAll
	}
	for r := rect.Row1; r <= rect.Row2; r++ {
		for c := rect.Col1; c <= rect.Col2; c++ {
			cell := s.cell(r, c)
			if cell == nil {
				continue
			}
			if mode == models.ClearAll || mode == models.ClearContents {
				cell.Value = nil
				cell.Formula = ""
			}
			if mode == models.ClearAll || mode == models.ClearFormats {
				cell.Format = nil
			}
			s.compact(r, c)
		}
	}
}

func (w *Workbook) copyRange(op *models.Operation) error {
	src, srcRect, err := w.resolve(op.Sheet, op.Source)
	if err != nil {
		return err
	}
	dst, dstRect, err := w.resolve(op.Sheet, op.Destination)
	if err != nil {
		return err
	}
	target := srcRect.Translate(dstRect.Row1, dstRect.Col1)

	// Snapshot first so overlapping source and destination copy correctly.
	cells := make([][]*Cell, srcRect.Rows())
	for r := range cells {
		cells[r] = make([]*Cell, srcRect.Cols())
		for c := range cells[r] {
			if cell := src.cell(srcRect.Row1+r, srcRect.Col1+c); cell != nil {
				cp := *cell
				if cell.Format != nil {
					f := *cell.Format
					cp.Format = &f
				}
				cells[r][c] = &cp
			}
		}
	}
	for r := range cells {
		for c := range cells[r] {
			key := a1.CellName(target.Row1+r, target.Col1+c)
			if cells[r][c] == nil {
				delete(dst.Cells, key)
				continue
			}
			dst.Cells[key] = cells[r][c]
		}
	}
	return nil
}

// sortRange reorders whole rows of the range by one column, numbers before
// text before empty cells.
func sortRange(s *Sheet, rect a1.Rect, column int, descending bool) error {
	if column < 0 || column >= rect.Cols() {
		return fmt.Errorf("sort range %s: column %d out of range", rect, column)
	}
	rows := make([][]*Cell, rect.Rows())
	for r := range rows {
		rows[r] = make([]*Cell, rect.Cols())
		for c := range rows[r] {
			rows[r][c] = s.cell(rect.Row1+r, rect.Col1+c)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		cmp := compareCells(rows[i][column], rows[j][column])
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})
	for r := range rows {
		for c := range rows[r] {
			key := a1.CellName(rect.Row1+r, rect.Col1+c)
			if rows[r][c] == nil {
				delete(s.Cells, key)
				continue
			}
			s.Cells[key] = rows[r][c]
		}
	}
	return nil
}

func compareCells(a, b *Cell) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		fa, fb := toFloat(a.Value), toFloat(b.Value)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 1:
		return strings.Compare(strings.ToLower(fmt.Sprint(a.Value)), strings.ToLower(fmt.Sprint(b.Value)))
	}
	return 0
}

func rank(c *Cell) int {
	if c == nil || c.Value == nil {
		return 2
	}
	if _, ok := toNumber(c.Value); ok {
		return 0
	}
	return 1
}

func toFloat(v any) float64 {
	f, _ := toNumber(v)
	return f
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
