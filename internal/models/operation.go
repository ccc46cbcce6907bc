// Package models defines the core data structures used throughout sheetvc
// including operations, actions, versions and pending changes.
package models

// OperationKind tags the variant of an Operation.
type OperationKind string

const (
	OperationSetValue     OperationKind = "set_value"
	OperationSetFormula   OperationKind = "set_formula"
	OperationFormatRange  OperationKind = "format_range"
	OperationClearRange   OperationKind = "clear_range"
	OperationCreateSheet  OperationKind = "create_sheet"
	OperationDeleteSheet  OperationKind = "delete_sheet"
	OperationRenameSheet  OperationKind = "rename_sheet"
	OperationCreateTable  OperationKind = "create_table"
	OperationSortRange    OperationKind = "sort_range"
	OperationFilterRange  OperationKind = "filter_range"
	OperationCopyRange    OperationKind = "copy_range"
	OperationMergeCells   OperationKind = "merge_cells"
	OperationUnmergeCells OperationKind = "unmerge_cells"
	OperationCreateChart  OperationKind = "create_chart"
	OperationComposite    OperationKind = "composite"
	OperationBatch        OperationKind = "batch" // alias of composite

	// Presentation-only operations. They never change cell data.
	OperationPrintSettings       OperationKind = "print_settings"
	OperationPageSetup           OperationKind = "page_setup"
	OperationSheetDisplay        OperationKind = "sheet_display"
	OperationChartFormat         OperationKind = "chart_format"
	OperationCalculationSettings OperationKind = "calculation_settings"
)

// IsComposite reports whether the kind carries nested operations.
func (k OperationKind) IsComposite() bool {
	return k == OperationComposite || k == OperationBatch
}

// IsSheetLevel reports whether the kind targets a whole sheet rather than cells.
func (k OperationKind) IsSheetLevel() bool {
	switch k {
	case OperationCreateSheet, OperationDeleteSheet, OperationRenameSheet:
		return true
	}
	return k.IsPresentation()
}

// IsPresentation reports whether the kind only changes presentation settings.
func (k OperationKind) IsPresentation() bool {
	switch k {
	case OperationPrintSettings, OperationPageSetup, OperationSheetDisplay,
		OperationChartFormat, OperationCalculationSettings:
		return true
	}
	return false
}

// Known reports whether the kind is one of the declared variants.
func (k OperationKind) Known() bool {
	switch k {
	case OperationSetValue, OperationSetFormula, OperationFormatRange, OperationClearRange,
		OperationCreateSheet, OperationDeleteSheet, OperationRenameSheet, OperationCreateTable,
		OperationSortRange, OperationFilterRange, OperationCopyRange, OperationMergeCells,
		OperationUnmergeCells, OperationCreateChart, OperationComposite, OperationBatch:
		return true
	}
	return k.IsPresentation()
}

// ClearMode selects what a clear_range operation removes.
type ClearMode string

const (
	ClearAll      ClearMode = "all"
	ClearContents ClearMode = "contents"
	ClearFormats  ClearMode = "formats"
)

// Operation describes a single intended document mutation.
// Only the fields relevant to Kind are set. Treat as immutable once recorded.
type Operation struct {
	ID   string        `json:"id"`
	Kind OperationKind `json:"kind"`

	// Sheet is the sheet the operation applies to. Target and Range may
	// instead carry a sheet prefix ("Sheet1!A1").
	Sheet  string `json:"sheet,omitempty"`
	Target string `json:"target,omitempty"` // single cell (set_value, set_formula)
	Range  string `json:"range,omitempty"`  // A1 range for range-level kinds

	Value   any             `json:"value,omitempty"`
	Formula string          `json:"formula,omitempty"`
	Format  *FormatSnapshot `json:"format,omitempty"`

	// Sheet-level fields
	NewName    string `json:"new_name,omitempty"`
	Position   *int   `json:"position,omitempty"`
	Visibility string `json:"visibility,omitempty"`

	// copy_range
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`

	// create_table / create_chart
	Name      string `json:"name,omitempty"`
	ChartType string `json:"chart_type,omitempty"`

	// sort_range / filter_range / clear_range
	SortColumn int       `json:"sort_column,omitempty"`
	Descending bool      `json:"descending,omitempty"`
	Criteria   string    `json:"criteria,omitempty"`
	ClearMode  ClearMode `json:"clear_mode,omitempty"`

	// Settings carries the payload of presentation-only kinds.
	Settings map[string]any `json:"settings,omitempty"`

	// Operations holds the children of a composite/batch operation.
	Operations []*Operation `json:"operations,omitempty"`
}

// PrimaryTarget returns the reference the operation is aimed at, used for
// fingerprints and descriptions.
func (o *Operation) PrimaryTarget() string {
	switch {
	case o.Kind == OperationCopyRange:
		return o.Source + "->" + o.Destination
	case o.Target != "":
		return o.Target
	case o.Range != "":
		return o.Range
	case o.Kind == OperationRenameSheet:
		return o.Sheet + "->" + o.NewName
	case o.Sheet != "":
		return o.Sheet
	}
	return o.Name
}
