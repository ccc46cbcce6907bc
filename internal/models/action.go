package models

import (
	"time"

	"github.com/kilupskalvis/sheetvc/internal/a1"
)

// Grid is a 2D grid of cell values or formulas, row-major.
type Grid [][]any

// RangeKind classifies an affected region.
type RangeKind string

const (
	RangeKindCell  RangeKind = "cell"
	RangeKindRange RangeKind = "range"
	RangeKindSheet RangeKind = "sheet"
	RangeKindTable RangeKind = "table"
	RangeKindChart RangeKind = "chart"
)

// AffectedRange is a document region an operation touches.
// Range is empty for sheet-level entries.
type AffectedRange struct {
	SheetName string    `json:"sheet_name"`
	Range     string    `json:"range"`
	Kind      RangeKind `json:"kind"`
}

// IsSheetLevel reports whether the entry has no cell coordinates.
func (r AffectedRange) IsSheetLevel() bool {
	return r.Kind == RangeKindSheet || r.Range == ""
}

// Ref returns the range in "Sheet!A1" form, or just the sheet name for
// sheet-level entries.
func (r AffectedRange) Ref() string {
	if r.Range == "" {
		return r.SheetName
	}
	return a1.JoinRef(r.SheetName, r.Range)
}

// FormatSnapshot is a flattened formatting snapshot of a range. Nil fields
// were not uniform across the range (or not present) and are left untouched on
// restore.
type FormatSnapshot struct {
	Sheet               string   `json:"sheet,omitempty"`
	Address             string   `json:"address,omitempty"`
	FontName            *string  `json:"font_name,omitempty"`
	FontSize            *float64 `json:"font_size,omitempty"`
	Bold                *bool    `json:"bold,omitempty"`
	Italic              *bool    `json:"italic,omitempty"`
	Underline           *string  `json:"underline,omitempty"`
	FontColor           *string  `json:"font_color,omitempty"`
	FillColor           *string  `json:"fill_color,omitempty"`
	HorizontalAlignment *string  `json:"horizontal_alignment,omitempty"`
	VerticalAlignment   *string  `json:"vertical_alignment,omitempty"`
}

// IsEmpty reports whether no attribute is set.
func (f *FormatSnapshot) IsEmpty() bool {
	return f == nil || (f.FontName == nil && f.FontSize == nil && f.Bold == nil &&
		f.Italic == nil && f.Underline == nil && f.FontColor == nil && f.FillColor == nil &&
		f.HorizontalAlignment == nil && f.VerticalAlignment == nil)
}

// SheetProperties describes a sheet for sheet-level undo.
type SheetProperties struct {
	Name       string `json:"name"`
	Position   int    `json:"position"`
	Visibility string `json:"visibility"`
}

// RangeSnapshot is the captured state of one affected range.
type RangeSnapshot struct {
	Sheet    string          `json:"sheet"`
	Address  string          `json:"address"`
	Values   Grid            `json:"values,omitempty"`
	Formulas Grid            `json:"formulas,omitempty"`
	Format   *FormatSnapshot `json:"format,omitempty"`
}

// BeforeState is the partial pre-operation state needed to undo an action.
// Values and Formulas belong to the primary (first captured) range; Ranges
// holds one snapshot per captured range.
type BeforeState struct {
	Values          Grid                       `json:"values,omitempty"`
	Formulas        Grid                       `json:"formulas,omitempty"`
	Formats         []FormatSnapshot           `json:"formats,omitempty"`
	SheetProperties map[string]SheetProperties `json:"sheet_properties,omitempty"`
	Ranges          []RangeSnapshot            `json:"ranges,omitempty"`
}

// Lookup returns the captured state for a range. When no per-range snapshot
// exists it falls back to the primary grids and the matching (or only) format.
func (b *BeforeState) Lookup(r AffectedRange) (RangeSnapshot, bool) {
	if b == nil {
		return RangeSnapshot{}, false
	}
	for _, snap := range b.Ranges {
		if snap.Sheet == r.SheetName && snap.Address == r.Range {
			return snap, true
		}
	}
	if len(b.Ranges) > 0 || (b.Values == nil && b.Formulas == nil && len(b.Formats) == 0) {
		return RangeSnapshot{}, false
	}
	snap := RangeSnapshot{
		Sheet:    r.SheetName,
		Address:  r.Range,
		Values:   b.Values,
		Formulas: b.Formulas,
	}
	for i := range b.Formats {
		f := b.Formats[i]
		if (f.Sheet == r.SheetName && f.Address == r.Range) || len(b.Formats) == 1 {
			snap.Format = &f
			break
		}
	}
	return snap, true
}

// ActionEventType records how an action entered the history.
type ActionEventType string

const (
	ActionEventOperation      ActionEventType = "operation"
	ActionEventAcceptedChange ActionEventType = "accepted_change"
)

// Action is an immutable record of one recorded operation.
type Action struct {
	ID             string          `json:"id"`
	WorkbookID     string          `json:"workbook_id"`
	Timestamp      time.Time       `json:"timestamp"`
	EventType      ActionEventType `json:"event_type"`
	Operation      *Operation      `json:"operation"`
	Description    string          `json:"description"`
	AffectedRanges []AffectedRange `json:"affected_ranges"`
	DefaultSheet   string          `json:"default_sheet,omitempty"` // sheet unqualified refs resolved against
	BeforeState    *BeforeState    `json:"before_state,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

// ShortID returns a shortened action ID (first 8 characters)
func (a *Action) ShortID() string {
	if len(a.ID) > 8 {
		return a.ID[:8]
	}
	return a.ID
}
