package core

import (
	"context"
	"log/slog"

	"github.com/kilupskalvis/sheetvc/internal/document"
	"github.com/kilupskalvis/sheetvc/internal/models"
)

// Capturer snapshots the state an operation is about to overwrite.
type Capturer struct {
	driver document.Driver
	logger *slog.Logger
}

// NewCapturer creates a Capturer reading through driver.
func NewCapturer(driver document.Driver, logger *slog.Logger) *Capturer {
	return &Capturer{driver: driver, logger: logger}
}

// Capture reads values, formulas and a flattened format for every cell-level
// range, and name/position/visibility for every sheet-level one. A sheet that
// cannot be found is skipped; the rest is still captured.
func (c *Capturer) Capture(ctx context.Context, ranges []models.AffectedRange) *models.BeforeState {
	state := &models.BeforeState{}

	var order []string
	bySheet := make(map[string][]models.AffectedRange)
	for _, r := range ranges {
		if _, ok := bySheet[r.SheetName]; !ok {
			order = append(order, r.SheetName)
		}
		bySheet[r.SheetName] = append(bySheet[r.SheetName], r)
	}

	primary := true
	for _, sheet := range order {
		for _, r := range bySheet[sheet] {
			if r.IsSheetLevel() {
				c.captureSheet(ctx, state, sheet)
				continue
			}
			snap, err := c.captureRange(ctx, r)
			if document.IsNotFound(err) {
				c.logger.Warn("skipping capture for missing sheet", "sheet", sheet, "error", err)
				break
			}
			if err != nil {
				c.logger.Warn("capture range failed", "range", r.Ref(), "error", err)
				continue
			}
			state.Ranges = append(state.Ranges, snap)
			if snap.Format != nil {
				state.Formats = append(state.Formats, *snap.Format)
			}
			if primary {
				state.Values = snap.Values
				state.Formulas = snap.Formulas
				primary = false
			}
		}
	}
	return state
}

func (c *Capturer) captureSheet(ctx context.Context, state *models.BeforeState, sheet string) {
	if sheet == "" {
		return
	}
	props, err := c.driver.ReadSheetProperties(ctx, sheet)
	if err != nil {
		// create_sheet targets a sheet that does not exist yet
		c.logger.Debug("sheet properties unavailable", "sheet", sheet, "error", err)
		return
	}
	if state.SheetProperties == nil {
		state.SheetProperties = make(map[string]models.SheetProperties)
	}
	state.SheetProperties[sheet] = *props
}

func (c *Capturer) captureRange(ctx context.Context, r models.AffectedRange) (models.RangeSnapshot, error) {
	h, err := c.driver.ResolveRange(ctx, r.SheetName, r.Range)
	if err != nil {
		return models.RangeSnapshot{}, err
	}
	values, err := c.driver.ReadValues(ctx, h)
	if err != nil {
		return models.RangeSnapshot{}, err
	}
	formulas, err := c.driver.ReadFormulas(ctx, h)
	if err != nil {
		return models.RangeSnapshot{}, err
	}
	snap := models.RangeSnapshot{
		Sheet:    r.SheetName,
		Address:  r.Range,
		Values:   values,
		Formulas: formulas,
	}
	format, err := c.driver.ReadFormat(ctx, h)
	if err != nil {
		c.logger.Warn("capture format failed", "range", r.Ref(), "error", err)
	} else if format != nil {
		f := *format
		f.Sheet = r.SheetName
		f.Address = r.Range
		snap.Format = &f
	}
	return snap, nil
}
