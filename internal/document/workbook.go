package document

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kilupskalvis/sheetvc/internal/a1"
	"github.com/kilupskalvis/sheetvc/internal/models"
)

// Default formatting of an untouched cell.
const (
	DefaultFontName   = "Calibri"
	DefaultFontSize   = 11.0
	DefaultUnderline  = "None"
	DefaultFontColor  = "#000000"
	DefaultHAlignment = "General"
	DefaultVAlignment = "Bottom"
	VisibilityVisible = "Visible"
	VisibilityHidden  = "Hidden"
)

// Cell is one stored cell. Format holds only explicitly set attributes.
type Cell struct {
	Value   any                    `json:"value,omitempty"`
	Formula string                 `json:"formula,omitempty"`
	Format  *models.FormatSnapshot `json:"format,omitempty"`
}

func (c *Cell) empty() bool {
	return c.Value == nil && c.Formula == "" && c.Format.IsEmpty()
}

// Sheet is one worksheet of a Workbook.
type Sheet struct {
	Name       string                    `json:"name"`
	Visibility string                    `json:"visibility,omitempty"`
	Cells      map[string]*Cell          `json:"cells,omitempty"`
	Merges     []string                  `json:"merges,omitempty"`
	Tables     []*Table                  `json:"tables,omitempty"`
	Charts     []*Chart                  `json:"charts,omitempty"`
	Settings   map[string]map[string]any `json:"settings,omitempty"`
}

// Workbook is an in-memory workbook implementing Driver. It is what the CLI
// operates on (persisted as a JSON file) and what the core tests run against.
type Workbook struct {
	mu sync.Mutex

	ID          string   `json:"id"`
	Active      string   `json:"active,omitempty"`
	Sheets      []*Sheet `json:"sheets"`
	NextChartID int      `json:"next_chart_id,omitempty"`

	// Err can be set to make every method return an error
	Err error `json:"-"`
	// Fail maps a method name (e.g. "WriteValues") to the error it returns
	Fail map[string]error `json:"-"`
}

// NewWorkbook creates a workbook with the given (possibly zero) sheets.
func NewWorkbook(id string, sheets ...string) *Workbook {
	w := &Workbook{ID: id}
	for _, name := range sheets {
		w.Sheets = append(w.Sheets, newSheet(name, ""))
	}
	if len(sheets) > 0 {
		w.Active = sheets[0]
	}
	return w
}

func newSheet(name, visibility string) *Sheet {
	if visibility == "" {
		visibility = VisibilityVisible
	}
	return &Sheet{Name: name, Visibility: visibility, Cells: make(map[string]*Cell)}
}

func (w *Workbook) fail(method string) error {
	if w.Err != nil {
		return w.Err
	}
	if err, ok := w.Fail[method]; ok {
		return err
	}
	return nil
}

func (w *Workbook) sheet(name string) (*Sheet, int, error) {
	for i, s := range w.Sheets {
		if s.Name == name {
			if s.Cells == nil {
				s.Cells = make(map[string]*Cell)
			}
			return s, i, nil
		}
	}
	return nil, -1, fmt.Errorf("sheet %q: %w", name, ErrNotFound)
}

func (w *Workbook) activeSheet() (string, error) {
	if w.Active != "" {
		if _, _, err := w.sheet(w.Active); err == nil {
			return w.Active, nil
		}
	}
	if len(w.Sheets) == 0 {
		return "", fmt.Errorf("active sheet: %w", ErrNotFound)
	}
	return w.Sheets[0].Name, nil
}

// resolve parses ref (optionally sheet-qualified) against sheet.
func (w *Workbook) resolve(sheet, ref string) (*Sheet, a1.Rect, error) {
	refSheet, addr := a1.SplitRef(ref)
	if refSheet != "" {
		sheet = refSheet
	}
	if sheet == "" {
		active, err := w.activeSheet()
		if err != nil {
			return nil, a1.Rect{}, err
		}
		sheet = active
	}
	s, _, err := w.sheet(sheet)
	if err != nil {
		return nil, a1.Rect{}, err
	}
	rect, err := a1.ParseRange(addr)
	if err != nil {
		return nil, a1.Rect{}, fmt.Errorf("resolve range %s: %w", ref, err)
	}
	return s, rect, nil
}

func (w *Workbook) handleRect(h RangeHandle) (*Sheet, a1.Rect, error) {
	return w.resolve(h.Sheet, h.Address)
}

func (s *Sheet) cell(row, col int) *Cell {
	return s.Cells[a1.CellName(row, col)]
}

func (s *Sheet) ensureCell(row, col int) *Cell {
	key := a1.CellName(row, col)
	c, ok := s.Cells[key]
	if !ok {
		c = &Cell{}
		s.Cells[key] = c
	}
	return c
}

func (s *Sheet) compact(row, col int) {
	key := a1.CellName(row, col)
	if c, ok := s.Cells[key]; ok && c.empty() {
		delete(s.Cells, key)
	}
}

// ResolveRange validates the sheet and reference and returns a handle.
func (w *Workbook) ResolveRange(ctx context.Context, sheet, ref string) (RangeHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("ResolveRange"); err != nil {
		return RangeHandle{}, err
	}
	s, rect, err := w.resolve(sheet, ref)
	if err != nil {
		return RangeHandle{}, err
	}
	return RangeHandle{Sheet: s.Name, Address: rect.String()}, nil
}

// ReadValues returns the values of every cell in the range.
func (w *Workbook) ReadValues(ctx context.Context, h RangeHandle) (models.Grid, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("ReadValues"); err != nil {
		return nil, err
	}
	s, rect, err := w.handleRect(h)
	if err != nil {
		return nil, err
	}
	return readGrid(s, rect, func(c *Cell) any { return c.Value }), nil
}

// ReadFormulas returns formulas, or the constant value for cells without one.
func (w *Workbook) ReadFormulas(ctx context.Context, h RangeHandle) (models.Grid, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("ReadFormulas"); err != nil {
		return nil, err
	}
	s, rect, err := w.handleRect(h)
	if err != nil {
		return nil, err
	}
	return readGrid(s, rect, func(c *Cell) any {
		if c.Formula != "" {
			return c.Formula
		}
		return c.Value
	}), nil
}

func readGrid(s *Sheet, rect a1.Rect, get func(*Cell) any) models.Grid {
	grid := make(models.Grid, rect.Rows())
	for r := range grid {
		grid[r] = make([]any, rect.Cols())
		for c := range grid[r] {
			if cell := s.cell(rect.Row1+r, rect.Col1+c); cell != nil {
				grid[r][c] = get(cell)
			}
		}
	}
	return grid
}

// WriteValues sets constant values, clearing any formula. The grid must
// match the range size; a 1x1 grid is broadcast over the range.
func (w *Workbook) WriteValues(ctx context.Context, h RangeHandle, values models.Grid) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("WriteValues"); err != nil {
		return err
	}
	s, rect, err := w.handleRect(h)
	if err != nil {
		return err
	}
	return writeGrid(s, rect, values, func(c *Cell, v any) {
		c.Value = v
		c.Formula = ""
	})
}

// WriteFormulas sets formulas; entries not starting with "=" are stored as
// constant values.
func (w *Workbook) WriteFormulas(ctx context.Context, h RangeHandle, formulas models.Grid) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("WriteFormulas"); err != nil {
		return err
	}
	s, rect, err := w.handleRect(h)
	if err != nil {
		return err
	}
	return writeGrid(s, rect, formulas, setFormula)
}

func setFormula(c *Cell, v any) {
	if f, ok := v.(string); ok && strings.HasPrefix(f, "=") {
		c.Formula = f
		c.Value = nil
		return
	}
	c.Formula = ""
	c.Value = v
}

func writeGrid(s *Sheet, rect a1.Rect, grid models.Grid, set func(*Cell, any)) error {
	broadcast := len(grid) == 1 && len(grid[0]) == 1
	if !broadcast && (len(grid) != rect.Rows() || (len(grid) > 0 && len(grid[0]) != rect.Cols())) {
		return fmt.Errorf("grid is %dx%d, range %s is %dx%d",
			len(grid), rowLen(grid), rect, rect.Rows(), rect.Cols())
	}
	for r := 0; r < rect.Rows(); r++ {
		for c := 0; c < rect.Cols(); c++ {
			var v any
			if broadcast {
				v = grid[0][0]
			} else if c < len(grid[r]) {
				v = grid[r][c]
			}
			set(s.ensureCell(rect.Row1+r, rect.Col1+c), v)
			s.compact(rect.Row1+r, rect.Col1+c)
		}
	}
	return nil
}

func rowLen(grid models.Grid) int {
	if len(grid) == 0 {
		return 0
	}
	return len(grid[0])
}

// ReadFormat returns a flattened format: attributes that differ between cells
// of the range are nil.
func (w *Workbook) ReadFormat(ctx context.Context, h RangeHandle) (*models.FormatSnapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("ReadFormat"); err != nil {
		return nil, err
	}
	s, rect, err := w.handleRect(h)
	if err != nil {
		return nil, err
	}
	var flat *models.FormatSnapshot
	for r := rect.Row1; r <= rect.Row2; r++ {
		for c := rect.Col1; c <= rect.Col2; c++ {
			eff := effectiveFormat(s.cell(r, c))
			if flat == nil {
				flat = eff
				continue
			}
			flattenInto(flat, eff)
		}
	}
	flat.Sheet = s.Name
	flat.Address = rect.String()
	return flat, nil
}

// effectiveFormat returns the full format of one cell, defaults included.
func effectiveFormat(c *Cell) *models.FormatSnapshot {
	f := &models.FormatSnapshot{
		FontName:            ptr(DefaultFontName),
		FontSize:            ptr(DefaultFontSize),
		Bold:                ptr(false),
		Italic:              ptr(false),
		Underline:           ptr(DefaultUnderline),
		FontColor:           ptr(DefaultFontColor),
		FillColor:           ptr(""),
		HorizontalAlignment: ptr(DefaultHAlignment),
		VerticalAlignment:   ptr(DefaultVAlignment),
	}
	if c != nil && c.Format != nil {
		applyFormat(f, c.Format)
	}
	return f
}

func applyFormat(dst, src *models.FormatSnapshot) {
	if src.FontName != nil {
		dst.FontName = ptr(*src.FontName)
	}
	if src.FontSize != nil {
		dst.FontSize = ptr(*src.FontSize)
	}
	if src.Bold != nil {
		dst.Bold = ptr(*src.Bold)
	}
	if src.Italic != nil {
		dst.Italic = ptr(*src.Italic)
	}
	if src.Underline != nil {
		dst.Underline = ptr(*src.Underline)
	}
	if src.FontColor != nil {
		dst.FontColor = ptr(*src.FontColor)
	}
	if src.FillColor != nil {
		dst.FillColor = ptr(*src.FillColor)
	}
	if src.HorizontalAlignment != nil {
		dst.HorizontalAlignment = ptr(*src.HorizontalAlignment)
	}
	if src.VerticalAlignment != nil {
		dst.VerticalAlignment = ptr(*src.VerticalAlignment)
	}
}

func flattenInto(flat, other *models.FormatSnapshot) {
	flat.FontName = same(flat.FontName, other.FontName)
	flat.FontSize = same(flat.FontSize, other.FontSize)
	flat.Bold = same(flat.Bold, other.Bold)
	flat.Italic = same(flat.Italic, other.Italic)
	flat.Underline = same(flat.Underline, other.Underline)
	flat.FontColor = same(flat.FontColor, other.FontColor)
	flat.FillColor = same(flat.FillColor, other.FillColor)
	flat.HorizontalAlignment = same(flat.HorizontalAlignment, other.HorizontalAlignment)
	flat.VerticalAlignment = same(flat.VerticalAlignment, other.VerticalAlignment)
}

func same[T comparable](a, b *T) *T {
	if a == nil || b == nil || *a != *b {
		return nil
	}
	return a
}

func ptr[T any](v T) *T { return &v }

// WriteFormat applies every non-nil attribute to each cell of the range.
func (w *Workbook) WriteFormat(ctx context.Context, h RangeHandle, format *models.FormatSnapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("WriteFormat"); err != nil {
		return err
	}
	s, rect, err := w.handleRect(h)
	if err != nil {
		return err
	}
	if format == nil {
		return nil
	}
	for r := rect.Row1; r <= rect.Row2; r++ {
		for c := rect.Col1; c <= rect.Col2; c++ {
			cell := s.ensureCell(r, c)
			if cell.Format == nil {
				cell.Format = &models.FormatSnapshot{}
			}
			applyFormat(cell.Format, format)
		}
	}
	return nil
}

// Merge merges the range, keeping only the top-left value.
func (w *Workbook) Merge(ctx context.Context, h RangeHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("Merge"); err != nil {
		return err
	}
	s, rect, err := w.handleRect(h)
	if err != nil {
		return err
	}
	mergeSheet(s, rect)
	return nil
}

func mergeSheet(s *Sheet, rect a1.Rect) {
	addr := rect.String()
	if !slices.Contains(s.Merges, addr) {
		s.Merges = append(s.Merges, addr)
	}
	for r := rect.Row1; r <= rect.Row2; r++ {
		for c := rect.Col1; c <= rect.Col2; c++ {
			if r == rect.Row1 && c == rect.Col1 {
				continue
			}
			if cell := s.cell(r, c); cell != nil {
				cell.Value = nil
				cell.Formula = ""
				s.compact(r, c)
			}
		}
	}
}

// Unmerge removes every merge area intersecting the range.
func (w *Workbook) Unmerge(ctx context.Context, h RangeHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("Unmerge"); err != nil {
		return err
	}
	s, rect, err := w.handleRect(h)
	if err != nil {
		return err
	}
	unmergeSheet(s, rect)
	return nil
}

func unmergeSheet(s *Sheet, rect a1.Rect) {
	s.Merges = slices.DeleteFunc(s.Merges, func(m string) bool {
		mr, err := a1.ParseRange(m)
		return err == nil && mr.Intersects(rect)
	})
}

// ActiveSheet returns the active sheet, or the first sheet.
func (w *Workbook) ActiveSheet(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("ActiveSheet"); err != nil {
		return "", err
	}
	return w.activeSheet()
}

// ReadSheetProperties returns the name, position and visibility of a sheet.
func (w *Workbook) ReadSheetProperties(ctx context.Context, sheet string) (*models.SheetProperties, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("ReadSheetProperties"); err != nil {
		return nil, err
	}
	s, idx, err := w.sheet(sheet)
	if err != nil {
		return nil, err
	}
	return &models.SheetProperties{Name: s.Name, Position: idx, Visibility: s.Visibility}, nil
}

// CreateSheet adds an empty sheet, appended unless a position is given.
func (w *Workbook) CreateSheet(ctx context.Context, name string, opts SheetOptions) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("CreateSheet"); err != nil {
		return err
	}
	return w.createSheet(name, opts)
}

func (w *Workbook) createSheet(name string, opts SheetOptions) error {
	if name == "" {
		return fmt.Errorf("create sheet: empty name")
	}
	if _, _, err := w.sheet(name); err == nil {
		return fmt.Errorf("sheet %q already exists", name)
	}
	pos := len(w.Sheets)
	if opts.Position != nil && *opts.Position >= 0 && *opts.Position < pos {
		pos = *opts.Position
	}
	w.Sheets = slices.Insert(w.Sheets, pos, newSheet(name, opts.Visibility))
	if w.Active == "" {
		w.Active = name
	}
	return nil
}

// DeleteSheet removes a sheet and everything on it.
func (w *Workbook) DeleteSheet(ctx context.Context, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("DeleteSheet"); err != nil {
		return err
	}
	return w.deleteSheet(name)
}

func (w *Workbook) deleteSheet(name string) error {
	_, idx, err := w.sheet(name)
	if err != nil {
		return err
	}
	w.Sheets = slices.Delete(w.Sheets, idx, idx+1)
	if w.Active == name {
		w.Active = ""
		if len(w.Sheets) > 0 {
			w.Active = w.Sheets[0].Name
		}
	}
	return nil
}

// RenameSheet renames a sheet, carrying its tables and charts along.
func (w *Workbook) RenameSheet(ctx context.Context, oldName, newName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("RenameSheet"); err != nil {
		return err
	}
	return w.renameSheet(oldName, newName)
}

func (w *Workbook) renameSheet(oldName, newName string) error {
	s, _, err := w.sheet(oldName)
	if err != nil {
		return err
	}
	if oldName == newName {
		return nil
	}
	if _, _, err := w.sheet(newName); err == nil {
		return fmt.Errorf("sheet %q already exists", newName)
	}
	s.Name = newName
	for _, t := range s.Tables {
		t.Sheet = newName
	}
	for _, c := range s.Charts {
		c.Sheet = newName
	}
	if w.Active == oldName {
		w.Active = newName
	}
	return nil
}

// ListTables returns copies of the tables on a sheet.
func (w *Workbook) ListTables(ctx context.Context, sheet string) ([]Table, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("ListTables"); err != nil {
		return nil, err
	}
	s, _, err := w.sheet(sheet)
	if err != nil {
		return nil, err
	}
	tables := make([]Table, 0, len(s.Tables))
	for _, t := range s.Tables {
		tables = append(tables, *t)
	}
	return tables, nil
}

func (w *Workbook) findTable(table Table) (*Sheet, int, error) {
	s, _, err := w.sheet(table.Sheet)
	if err != nil {
		return nil, -1, err
	}
	for i, t := range s.Tables {
		if t.Name == table.Name {
			return s, i, nil
		}
	}
	return nil, -1, fmt.Errorf("table %q: %w", table.Name, ErrNotFound)
}

// DeleteTable removes a table definition; the cells underneath stay.
func (w *Workbook) DeleteTable(ctx context.Context, table Table) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("DeleteTable"); err != nil {
		return err
	}
	s, idx, err := w.findTable(table)
	if err != nil {
		return err
	}
	s.Tables = slices.Delete(s.Tables, idx, idx+1)
	return nil
}

// ClearTableFilters removes any filter on the table.
func (w *Workbook) ClearTableFilters(ctx context.Context, table Table) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("ClearTableFilters"); err != nil {
		return err
	}
	s, idx, err := w.findTable(table)
	if err != nil {
		return err
	}
	s.Tables[idx].Filtered = false
	s.Tables[idx].Criteria = ""
	return nil
}

// ListCharts returns copies of the charts on a sheet in creation order.
func (w *Workbook) ListCharts(ctx context.Context, sheet string) ([]Chart, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("ListCharts"); err != nil {
		return nil, err
	}
	s, _, err := w.sheet(sheet)
	if err != nil {
		return nil, err
	}
	charts := make([]Chart, 0, len(s.Charts))
	for _, c := range s.Charts {
		charts = append(charts, *c)
	}
	return charts, nil
}

// DeleteChart removes a chart by ID.
func (w *Workbook) DeleteChart(ctx context.Context, chart Chart) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("DeleteChart"); err != nil {
		return err
	}
	s, _, err := w.sheet(chart.Sheet)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(s.Charts, func(c *Chart) bool { return c.ID == chart.ID })
	if idx < 0 {
		return fmt.Errorf("chart %q: %w", chart.ID, ErrNotFound)
	}
	s.Charts = slices.Delete(s.Charts, idx, idx+1)
	return nil
}

// --- Test and inspection helpers ---

// SetCell sets a constant value, or a formula when the string starts with "=".
func (w *Workbook) SetCell(sheet, addr string, value any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, rect, err := w.resolve(sheet, addr)
	if err != nil {
		return
	}
	setFormula(s.ensureCell(rect.Row1, rect.Col1), value)
	s.compact(rect.Row1, rect.Col1)
}

// Value returns the stored value of a cell, nil when empty or missing.
func (w *Workbook) Value(sheet, addr string) any {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, rect, err := w.resolve(sheet, addr)
	if err != nil {
		return nil
	}
	if c := s.cell(rect.Row1, rect.Col1); c != nil {
		return c.Value
	}
	return nil
}

// Formula returns the formula of a cell, empty when it holds a constant.
func (w *Workbook) Formula(sheet, addr string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, rect, err := w.resolve(sheet, addr)
	if err != nil {
		return ""
	}
	if c := s.cell(rect.Row1, rect.Col1); c != nil {
		return c.Formula
	}
	return ""
}

// CellFormat returns the effective format of one cell.
func (w *Workbook) CellFormat(sheet, addr string) *models.FormatSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, rect, err := w.resolve(sheet, addr)
	if err != nil {
		return nil
	}
	return effectiveFormat(s.cell(rect.Row1, rect.Col1))
}

// SheetNames returns sheet names in tab order.
func (w *Workbook) SheetNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, len(w.Sheets))
	for i, s := range w.Sheets {
		names[i] = s.Name
	}
	return names
}

// Sheet returns the named sheet, or nil.
func (w *Workbook) Sheet(name string) *Sheet {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, _, _ := w.sheet(name)
	return s
}
