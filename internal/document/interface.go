// Package document defines the capability sheetvc consumes to read and write a
// live workbook, plus an in-memory workbook that implements it.
package document

import (
	"context"
	"errors"

	"github.com/kilupskalvis/sheetvc/internal/models"
)

// ErrNotFound is returned when a sheet, table, chart or range no longer exists.
// Callers treat it as non-fatal: the item is already gone.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// RangeHandle identifies a resolved range on a sheet.
type RangeHandle struct {
	Sheet   string
	Address string
}

// Table is a structured table on a sheet.
type Table struct {
	Name     string `json:"name"`
	Sheet    string `json:"sheet"`
	Range    string `json:"range"`
	Filtered bool   `json:"filtered,omitempty"`
	Criteria string `json:"criteria,omitempty"`
}

// Chart is a chart on a sheet. Charts are listed in creation order.
type Chart struct {
	ID          string `json:"id"`
	Sheet       string `json:"sheet"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	SourceRange string `json:"source_range"`
}

// SheetOptions controls where and how a sheet is created.
type SheetOptions struct {
	Position   *int
	Visibility string
}

// Driver defines the contract for document operations.
// This interface enables mocking for testing the core package.
type Driver interface {
	// Range operations
	ResolveRange(ctx context.Context, sheet, ref string) (RangeHandle, error)
	ReadValues(ctx context.Context, h RangeHandle) (models.Grid, error)
	ReadFormulas(ctx context.Context, h RangeHandle) (models.Grid, error)
	ReadFormat(ctx context.Context, h RangeHandle) (*models.FormatSnapshot, error)
	WriteValues(ctx context.Context, h RangeHandle, values models.Grid) error
	WriteFormulas(ctx context.Context, h RangeHandle, formulas models.Grid) error
	WriteFormat(ctx context.Context, h RangeHandle, format *models.FormatSnapshot) error
	Merge(ctx context.Context, h RangeHandle) error
	Unmerge(ctx context.Context, h RangeHandle) error

	// Sheet operations
	ActiveSheet(ctx context.Context) (string, error)
	ReadSheetProperties(ctx context.Context, sheet string) (*models.SheetProperties, error)
	CreateSheet(ctx context.Context, name string, opts SheetOptions) error
	DeleteSheet(ctx context.Context, name string) error
	RenameSheet(ctx context.Context, oldName, newName string) error

	// Table and chart operations
	ListTables(ctx context.Context, sheet string) ([]Table, error)
	DeleteTable(ctx context.Context, table Table) error
	ClearTableFilters(ctx context.Context, table Table) error
	ListCharts(ctx context.Context, sheet string) ([]Chart, error)
	DeleteChart(ctx context.Context, chart Chart) error
}

// Verify that *Workbook implements Driver at compile time
var _ Driver = (*Workbook)(nil)
