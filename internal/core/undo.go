package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kilupskalvis/sheetvc/internal/a1"
	"github.com/kilupskalvis/sheetvc/internal/document"
	"github.com/kilupskalvis/sheetvc/internal/models"
)

// UndoOutcome describes how faithfully an action was reversed.
type UndoOutcome struct {
	// Lossy is set when the undo is approximate: deleted sheet contents are
	// not restored, the chart removed is the most recent one, presentation
	// settings are not captured.
	Lossy bool
}

// Undoer reverses recorded actions using their captured before-state.
// Missing state is logged and skipped; sheets, tables and charts that are
// already gone are not errors.
type Undoer struct {
	driver document.Driver
	logger *slog.Logger
}

// NewUndoer creates an Undoer writing through driver.
func NewUndoer(driver document.Driver, logger *slog.Logger) *Undoer {
	return &Undoer{driver: driver, logger: logger}
}

// contents selects which parts of a snapshot are written back.
type contents struct {
	values   bool
	formulas bool
	format   bool
}

var (
	restoreValues   = contents{values: true}
	restoreFormulas = contents{formulas: true}
	restoreFormat   = contents{format: true}
	restoreData     = contents{values: true, formulas: true}
	restoreAll      = contents{values: true, formulas: true, format: true}
)

// Undo reverses a single action.
func (u *Undoer) Undo(ctx context.Context, action *models.Action) (UndoOutcome, error) {
	if action == nil || action.Operation == nil {
		u.logger.Warn("undo skipped: action has no operation")
		return UndoOutcome{}, nil
	}
	op := action.Operation
	log := u.logger.With("action", action.ID, "kind", op.Kind)

	if action.BeforeState == nil && needsState(op.Kind) {
		log.Warn("undo skipped: no before-state captured")
		return UndoOutcome{}, nil
	}

	switch op.Kind {
	case models.OperationSetValue:
		return UndoOutcome{}, u.restoreRanges(ctx, log, action, cellRanges(action), restoreValues)

	case models.OperationSetFormula:
		return UndoOutcome{}, u.restoreRanges(ctx, log, action, cellRanges(action), restoreFormulas)

	case models.OperationFormatRange:
		return UndoOutcome{}, u.undoFormat(ctx, log, action)

	case models.OperationClearRange:
		return UndoOutcome{}, u.restoreRanges(ctx, log, action, cellRanges(action), restoreAll)

	case models.OperationCreateTable:
		return UndoOutcome{}, u.undoCreateTable(ctx, log, action)

	case models.OperationSortRange:
		return UndoOutcome{}, u.restoreRanges(ctx, log, action, cellRanges(action), restoreData)

	case models.OperationFilterRange:
		return UndoOutcome{}, u.undoFilter(ctx, log, action)

	case models.OperationCreateSheet:
		return UndoOutcome{}, u.undoCreateSheet(ctx, log, action)

	case models.OperationDeleteSheet:
		return UndoOutcome{Lossy: true}, u.undoDeleteSheet(ctx, log, action)

	case models.OperationRenameSheet:
		return UndoOutcome{}, u.undoRenameSheet(ctx, log, action)

	case models.OperationCopyRange:
		return UndoOutcome{}, u.undoCopy(ctx, log, action)

	case models.OperationMergeCells:
		return UndoOutcome{}, u.undoMerge(ctx, log, action)

	case models.OperationUnmergeCells:
		return UndoOutcome{}, u.undoUnmerge(ctx, log, action)

	case models.OperationCreateChart:
		return UndoOutcome{Lossy: true}, u.undoCreateChart(ctx, log, action)

	case models.OperationComposite, models.OperationBatch:
		return u.undoComposite(ctx, action)

	case models.OperationPrintSettings, models.OperationPageSetup, models.OperationSheetDisplay,
		models.OperationChartFormat, models.OperationCalculationSettings:
		log.Warn("presentation settings are not captured; nothing to restore")
		return UndoOutcome{Lossy: true}, nil

	default:
		log.Info("no dedicated undo for kind, restoring captured ranges")
		return UndoOutcome{}, u.restoreRanges(ctx, log, action, cellRanges(action), restoreAll)
	}
}

func needsState(kind models.OperationKind) bool {
	switch kind {
	case models.OperationCreateSheet, models.OperationFilterRange, models.OperationCreateChart,
		models.OperationComposite, models.OperationBatch:
		return false
	}
	return !kind.IsPresentation()
}

// cellRanges returns the affected ranges that carry coordinates.
func cellRanges(action *models.Action) []models.AffectedRange {
	var out []models.AffectedRange
	for _, r := range action.AffectedRanges {
		if !r.IsSheetLevel() {
			out = append(out, r)
		}
	}
	return out
}

func (u *Undoer) restoreRanges(ctx context.Context, log *slog.Logger, action *models.Action, ranges []models.AffectedRange, what contents) error {
	if len(ranges) == 0 {
		log.Warn("undo skipped: no affected ranges")
		return nil
	}
	var errs []error
	for _, r := range ranges {
		if err := u.restoreRange(ctx, log, action.BeforeState, r, what); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (u *Undoer) restoreRange(ctx context.Context, log *slog.Logger, before *models.BeforeState, r models.AffectedRange, what contents) error {
	snap, ok := before.Lookup(r)
	if !ok {
		log.Warn("undo skipped: range not captured", "range", r.Ref())
		return nil
	}
	h, err := u.driver.ResolveRange(ctx, r.SheetName, r.Range)
	if document.IsNotFound(err) {
		log.Warn("undo skipped: range no longer exists", "range", r.Ref())
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve %s: %w", r.Ref(), err)
	}

	wrote := false
	if what.values && snap.Values != nil {
		if err := u.driver.WriteValues(ctx, h, snap.Values); err != nil {
			return fmt.Errorf("restore values %s: %w", r.Ref(), err)
		}
		wrote = true
	}
	if what.formulas && snap.Formulas != nil {
		if err := u.driver.WriteFormulas(ctx, h, snap.Formulas); err != nil {
			return fmt.Errorf("restore formulas %s: %w", r.Ref(), err)
		}
		wrote = true
	}
	if what.format && snap.Format != nil {
		u.writeFormatAttributes(ctx, log, h, snap.Format)
		wrote = true
	}
	if !wrote {
		log.Warn("undo skipped: nothing captured for range", "range", r.Ref())
	}
	return nil
}

// writeFormatAttributes writes each captured attribute on its own so that one
// rejected attribute does not keep the others from being restored.
func (u *Undoer) writeFormatAttributes(ctx context.Context, log *slog.Logger, h document.RangeHandle, f *models.FormatSnapshot) {
	for _, attr := range splitFormat(f) {
		if err := u.driver.WriteFormat(ctx, h, attr.format); err != nil {
			log.Warn("restore format attribute failed", "attribute", attr.name, "range", h.Address, "error", err)
		}
	}
}

type formatAttribute struct {
	name   string
	format *models.FormatSnapshot
}

func splitFormat(f *models.FormatSnapshot) []formatAttribute {
	var out []formatAttribute
	add := func(name string, set func(*models.FormatSnapshot)) {
		one := &models.FormatSnapshot{}
		set(one)
		out = append(out, formatAttribute{name: name, format: one})
	}
	if f.FontName != nil {
		add("font_name", func(o *models.FormatSnapshot) { o.FontName = f.FontName })
	}
	if f.FontSize != nil {
		add("font_size", func(o *models.FormatSnapshot) { o.FontSize = f.FontSize })
	}
	if f.Bold != nil {
		add("bold", func(o *models.FormatSnapshot) { o.Bold = f.Bold })
	}
	if f.Italic != nil {
		add("italic", func(o *models.FormatSnapshot) { o.Italic = f.Italic })
	}
	if f.Underline != nil {
		add("underline", func(o *models.FormatSnapshot) { o.Underline = f.Underline })
	}
	if f.FontColor != nil {
		add("font_color", func(o *models.FormatSnapshot) { o.FontColor = f.FontColor })
	}
	if f.FillColor != nil {
		add("fill_color", func(o *models.FormatSnapshot) { o.FillColor = f.FillColor })
	}
	if f.HorizontalAlignment != nil {
		add("horizontal_alignment", func(o *models.FormatSnapshot) { o.HorizontalAlignment = f.HorizontalAlignment })
	}
	if f.VerticalAlignment != nil {
		add("vertical_alignment", func(o *models.FormatSnapshot) { o.VerticalAlignment = f.VerticalAlignment })
	}
	return out
}

func (u *Undoer) undoFormat(ctx context.Context, log *slog.Logger, action *models.Action) error {
	return u.restoreRanges(ctx, log, action, cellRanges(action), restoreFormat)
}

func (u *Undoer) undoCreateTable(ctx context.Context, log *slog.Logger, action *models.Action) error {
	var errs []error
	for _, r := range cellRanges(action) {
		if err := u.forEachTable(ctx, log, r, u.driver.DeleteTable); err != nil {
			errs = append(errs, err)
		}
		if err := u.restoreRange(ctx, log, action.BeforeState, r, restoreAll); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (u *Undoer) undoFilter(ctx context.Context, log *slog.Logger, action *models.Action) error {
	var errs []error
	for _, r := range cellRanges(action) {
		if err := u.forEachTable(ctx, log, r, u.driver.ClearTableFilters); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// forEachTable calls fn for every table on r's sheet that intersects r.
func (u *Undoer) forEachTable(ctx context.Context, log *slog.Logger, r models.AffectedRange, fn func(context.Context, document.Table) error) error {
	rect, err := a1.ParseRange(r.Range)
	if err != nil {
		log.Warn("undo skipped: unparseable range", "range", r.Ref(), "error", err)
		return nil
	}
	tables, err := u.driver.ListTables(ctx, r.SheetName)
	if document.IsNotFound(err) {
		log.Warn("undo skipped: sheet no longer exists", "sheet", r.SheetName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("list tables on %s: %w", r.SheetName, err)
	}
	for _, t := range tables {
		tr, err := a1.ParseRange(t.Range)
		if err != nil || !tr.Intersects(rect) {
			continue
		}
		if err := fn(ctx, t); err != nil && !document.IsNotFound(err) {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (u *Undoer) undoCreateSheet(ctx context.Context, log *slog.Logger, action *models.Action) error {
	name := sheetTarget(action)
	if name == "" {
		log.Warn("undo skipped: created sheet name unknown")
		return nil
	}
	err := u.driver.DeleteSheet(ctx, name)
	if document.IsNotFound(err) {
		log.Info("created sheet already gone", "sheet", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete sheet %s: %w", name, err)
	}
	return nil
}

func (u *Undoer) undoDeleteSheet(ctx context.Context, log *slog.Logger, action *models.Action) error {
	name := sheetTarget(action)
	props, ok := action.BeforeState.SheetProperties[name]
	if !ok {
		log.Warn("undo skipped: deleted sheet properties not captured", "sheet", name)
		return nil
	}
	pos := props.Position
	err := u.driver.CreateSheet(ctx, props.Name, document.SheetOptions{Position: &pos, Visibility: props.Visibility})
	if err != nil {
		return fmt.Errorf("recreate sheet %s: %w", props.Name, err)
	}
	log.Warn("recreated deleted sheet without its contents", "sheet", props.Name)
	return nil
}

func (u *Undoer) undoRenameSheet(ctx context.Context, log *slog.Logger, action *models.Action) error {
	op := action.Operation
	props := action.BeforeState.SheetProperties
	original := sheetTarget(action)
	if _, ok := props[original]; !ok {
		original = ""
		if len(props) == 1 {
			for name := range props {
				original = name
			}
		}
	}
	if original == "" {
		log.Warn("undo skipped: original sheet name not captured")
		return nil
	}
	current := op.NewName
	if current == "" || current == original {
		return nil
	}
	err := u.driver.RenameSheet(ctx, current, original)
	if document.IsNotFound(err) {
		log.Warn("undo skipped: renamed sheet no longer exists", "sheet", current)
		return nil
	}
	if err != nil {
		return fmt.Errorf("rename sheet %s back to %s: %w", current, original, err)
	}
	return nil
}

func (u *Undoer) undoCopy(ctx context.Context, log *slog.Logger, action *models.Action) error {
	ranges := cellRanges(action)
	if len(ranges) == 0 {
		log.Warn("undo skipped: no destination range")
		return nil
	}
	// source first, destination last
	dst := ranges[len(ranges)-1]
	return u.restoreRange(ctx, log, action.BeforeState, dst, restoreAll)
}

func (u *Undoer) undoMerge(ctx context.Context, log *slog.Logger, action *models.Action) error {
	var errs []error
	for _, r := range cellRanges(action) {
		h, err := u.driver.ResolveRange(ctx, r.SheetName, r.Range)
		if document.IsNotFound(err) {
			log.Warn("undo skipped: range no longer exists", "range", r.Ref())
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve %s: %w", r.Ref(), err))
			continue
		}
		if err := u.driver.Unmerge(ctx, h); err != nil {
			errs = append(errs, fmt.Errorf("unmerge %s: %w", r.Ref(), err))
			continue
		}
		if err := u.restoreRange(ctx, log, action.BeforeState, r, restoreValues); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (u *Undoer) undoUnmerge(ctx context.Context, log *slog.Logger, action *models.Action) error {
	var errs []error
	for _, r := range cellRanges(action) {
		h, err := u.driver.ResolveRange(ctx, r.SheetName, r.Range)
		if document.IsNotFound(err) {
			log.Warn("undo skipped: range no longer exists", "range", r.Ref())
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve %s: %w", r.Ref(), err))
			continue
		}
		if err := u.driver.Merge(ctx, h); err != nil {
			errs = append(errs, fmt.Errorf("merge %s: %w", r.Ref(), err))
			continue
		}
		snap, ok := action.BeforeState.Lookup(r)
		if !ok || len(snap.Values) == 0 || len(snap.Values[0]) == 0 {
			log.Warn("merged back without value: not captured", "range", r.Ref())
			continue
		}
		rect, err := a1.ParseRange(r.Range)
		if err != nil {
			continue
		}
		tl, err := u.driver.ResolveRange(ctx, r.SheetName, rect.TopLeft())
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve %s: %w", rect.TopLeft(), err))
			continue
		}
		if err := u.driver.WriteValues(ctx, tl, models.Grid{{snap.Values[0][0]}}); err != nil {
			errs = append(errs, fmt.Errorf("restore value %s: %w", r.Ref(), err))
		}
	}
	return errors.Join(errs...)
}

func (u *Undoer) undoCreateChart(ctx context.Context, log *slog.Logger, action *models.Action) error {
	sheet := sheetTarget(action)
	charts, err := u.driver.ListCharts(ctx, sheet)
	if document.IsNotFound(err) {
		log.Warn("undo skipped: sheet no longer exists", "sheet", sheet)
		return nil
	}
	if err != nil {
		return fmt.Errorf("list charts on %s: %w", sheet, err)
	}
	if len(charts) == 0 {
		log.Warn("undo skipped: no chart on sheet", "sheet", sheet)
		return nil
	}
	last := charts[len(charts)-1]
	if err := u.driver.DeleteChart(ctx, last); err != nil && !document.IsNotFound(err) {
		return fmt.Errorf("delete chart %s: %w", last.ID, err)
	}
	return nil
}

// undoComposite reverses the children last to first. Each child runs as a
// synthetic action that shares the parent's before-state. Unqualified child
// references resolve against the sheet recorded with the action.
func (u *Undoer) undoComposite(ctx context.Context, action *models.Action) (UndoOutcome, error) {
	op := action.Operation
	parentSheet := op.Sheet
	if parentSheet == "" {
		parentSheet = action.DefaultSheet
	}
	if parentSheet == "" && len(action.AffectedRanges) > 0 {
		// records written before the default sheet was stored
		parentSheet = action.AffectedRanges[0].SheetName
	}

	var outcome UndoOutcome
	var errs []error
	for i := len(op.Operations) - 1; i >= 0; i-- {
		child := op.Operations[i]
		if child == nil {
			continue
		}
		ranges := ResolveRanges(child, parentSheet)
		if len(ranges) == 0 {
			ranges = action.AffectedRanges
		}
		synthetic := &models.Action{
			ID:             fmt.Sprintf("%s/%d", action.ID, i),
			WorkbookID:     action.WorkbookID,
			Timestamp:      action.Timestamp,
			EventType:      action.EventType,
			Operation:      child,
			Description:    Describe(child, ranges),
			AffectedRanges: ranges,
			DefaultSheet:   parentSheet,
			BeforeState:    action.BeforeState,
		}
		res, err := u.Undo(ctx, synthetic)
		if res.Lossy {
			outcome.Lossy = true
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
		}
	}
	return outcome, errors.Join(errs...)
}

// sheetTarget returns the sheet a sheet- or chart-level action applies to.
func sheetTarget(action *models.Action) string {
	if len(action.AffectedRanges) > 0 && action.AffectedRanges[0].SheetName != "" {
		return action.AffectedRanges[0].SheetName
	}
	return action.Operation.Sheet
}
