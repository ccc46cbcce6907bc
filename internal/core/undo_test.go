package core

import (
	"errors"
	"testing"

	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordAndUndo applies op through the recorder and then undoes the stored action.
func recordAndUndo(t *testing.T, env *testEnv, op *models.Operation) UndoOutcome {
	t.Helper()
	id := env.do(t, op)
	a, ok := env.history.GetAction(id)
	require.True(t, ok)
	outcome, err := env.undoer.Undo(env.ctx, a)
	require.NoError(t, err)
	return outcome
}

func TestUndo_SetValueRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", 10.0)

	id := env.do(t, setValue("op-1", "A1", 20.0))
	assert.Equal(t, 20.0, env.wb.Value("Sheet1", "A1"))

	a, _ := env.history.GetAction(id)
	outcome, err := env.undoer.Undo(env.ctx, a)
	require.NoError(t, err)

	assert.Equal(t, 10.0, env.wb.Value("Sheet1", "A1"))
	assert.False(t, outcome.Lossy)
}

func TestUndo_SetValueOnEmptyCell(t *testing.T) {
	env := newTestEnv(t)
	recordAndUndo(t, env, setValue("op-1", "B2", "hello"))
	assert.Nil(t, env.wb.Value("Sheet1", "B2"))
}

func TestUndo_SetFormula(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", 5.0)

	recordAndUndo(t, env, &models.Operation{ID: "op-1", Kind: models.OperationSetFormula, Target: "A1", Formula: "=B1*2"})

	assert.Empty(t, env.wb.Formula("Sheet1", "A1"))
	assert.Equal(t, 5.0, env.wb.Value("Sheet1", "A1"))
}

func TestUndo_SetFormulaRestoresFormula(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", "=C1")

	recordAndUndo(t, env, &models.Operation{ID: "op-1", Kind: models.OperationSetFormula, Target: "A1", Formula: "=D1"})

	assert.Equal(t, "=C1", env.wb.Formula("Sheet1", "A1"))
}

func TestUndo_FormatRange(t *testing.T) {
	env := newTestEnv(t)

	recordAndUndo(t, env, &models.Operation{
		ID: "op-1", Kind: models.OperationFormatRange, Range: "A1:B2",
		Format: &models.FormatSnapshot{Bold: ptr(true), FillColor: ptr("#FF0000")},
	})

	f := env.wb.CellFormat("Sheet1", "B2")
	assert.False(t, *f.Bold)
	assert.Equal(t, "", *f.FillColor)
}

func TestUndo_FormatAttributeFailureDoesNotAbort(t *testing.T) {
	env := newTestEnv(t)
	id := env.do(t, &models.Operation{
		ID: "op-1", Kind: models.OperationFormatRange, Range: "A1",
		Format: &models.FormatSnapshot{Bold: ptr(true)},
	})
	a, _ := env.history.GetAction(id)
	env.wb.Fail = map[string]error{"WriteFormat": errors.New("attribute rejected")}

	_, err := env.undoer.Undo(env.ctx, a)

	assert.NoError(t, err, "format attributes are best effort")
}

func TestUndo_ClearRange(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", 1.0)
	env.wb.SetCell("Sheet1", "A2", "=A1+1")

	recordAndUndo(t, env, &models.Operation{ID: "op-1", Kind: models.OperationClearRange, Range: "A1:A2"})

	assert.Equal(t, 1.0, env.wb.Value("Sheet1", "A1"))
	assert.Equal(t, "=A1+1", env.wb.Formula("Sheet1", "A2"))
}

func TestUndo_CreateSheet(t *testing.T) {
	env := newTestEnv(t)

	recordAndUndo(t, env, &models.Operation{ID: "op-1", Kind: models.OperationCreateSheet, Sheet: "Summary"})

	assert.Equal(t, []string{"Sheet1"}, env.wb.SheetNames())
}

func TestUndo_CreateSheetAlreadyGone(t *testing.T) {
	env := newTestEnv(t)
	id := env.do(t, &models.Operation{ID: "op-1", Kind: models.OperationCreateSheet, Sheet: "Summary"})
	require.NoError(t, env.wb.DeleteSheet(env.ctx, "Summary"))
	a, _ := env.history.GetAction(id)

	_, err := env.undoer.Undo(env.ctx, a)

	assert.NoError(t, err)
}

func TestUndo_DeleteSheetIsLossy(t *testing.T) {
	env := newTestEnv(t, "Sheet1", "Data", "Other")
	env.wb.SetCell("Data", "A1", "lost")

	outcome := recordAndUndo(t, env, &models.Operation{ID: "op-1", Kind: models.OperationDeleteSheet, Sheet: "Data"})

	assert.True(t, outcome.Lossy)
	assert.Equal(t, []string{"Sheet1", "Data", "Other"}, env.wb.SheetNames())
	assert.Nil(t, env.wb.Value("Data", "A1"), "contents are not restored")
}

func TestUndo_RenameSheet(t *testing.T) {
	env := newTestEnv(t, "Sheet1", "Data")

	recordAndUndo(t, env, &models.Operation{ID: "op-1", Kind: models.OperationRenameSheet, Sheet: "Data", NewName: "Archive"})

	assert.Equal(t, []string{"Sheet1", "Data"}, env.wb.SheetNames())
}

func TestUndo_CreateTable(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", "Name")

	recordAndUndo(t, env, &models.Operation{ID: "op-1", Kind: models.OperationCreateTable, Range: "A1:B3"})

	tables, err := env.wb.ListTables(env.ctx, "Sheet1")
	require.NoError(t, err)
	assert.Empty(t, tables)
	assert.Equal(t, "Name", env.wb.Value("Sheet1", "A1"))
}

func TestUndo_SortRange(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", 3.0)
	env.wb.SetCell("Sheet1", "A2", 1.0)
	env.wb.SetCell("Sheet1", "A3", 2.0)

	id := env.do(t, &models.Operation{ID: "op-1", Kind: models.OperationSortRange, Range: "A1:A3"})
	assert.Equal(t, 1.0, env.wb.Value("Sheet1", "A1"))

	a, _ := env.history.GetAction(id)
	_, err := env.undoer.Undo(env.ctx, a)
	require.NoError(t, err)

	assert.Equal(t, 3.0, env.wb.Value("Sheet1", "A1"))
	assert.Equal(t, 1.0, env.wb.Value("Sheet1", "A2"))
	assert.Equal(t, 2.0, env.wb.Value("Sheet1", "A3"))
}

func TestUndo_FilterRange(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.wb.Apply(env.ctx, &models.Operation{Kind: models.OperationCreateTable, Sheet: "Sheet1", Range: "A1:B5"}))

	recordAndUndo(t, env, &models.Operation{ID: "op-1", Kind: models.OperationFilterRange, Range: "A1:B5", Criteria: "> 10"})

	tables, err := env.wb.ListTables(env.ctx, "Sheet1")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.False(t, tables[0].Filtered)
}

func TestUndo_CopyRange(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", "source")
	env.wb.SetCell("Sheet1", "C1", "target")

	recordAndUndo(t, env, &models.Operation{ID: "op-1", Kind: models.OperationCopyRange, Source: "A1", Destination: "C1"})

	assert.Equal(t, "source", env.wb.Value("Sheet1", "A1"))
	assert.Equal(t, "target", env.wb.Value("Sheet1", "C1"))
}

func TestUndo_MergeCells(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", "left")
	env.wb.SetCell("Sheet1", "B1", "right")

	recordAndUndo(t, env, &models.Operation{ID: "op-1", Kind: models.OperationMergeCells, Range: "A1:B1"})

	assert.Empty(t, env.wb.Sheet("Sheet1").Merges)
	assert.Equal(t, "right", env.wb.Value("Sheet1", "B1"))
}

func TestUndo_UnmergeCells(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", "title")
	require.NoError(t, env.wb.Apply(env.ctx, &models.Operation{Kind: models.OperationMergeCells, Sheet: "Sheet1", Range: "A1:C1"}))

	recordAndUndo(t, env, &models.Operation{ID: "op-1", Kind: models.OperationUnmergeCells, Range: "A1:C1"})

	assert.Equal(t, []string{"A1:C1"}, env.wb.Sheet("Sheet1").Merges)
	assert.Equal(t, "title", env.wb.Value("Sheet1", "A1"))
}

func TestUndo_CreateChartIsLossy(t *testing.T) {
	env := newTestEnv(t)

	outcome := recordAndUndo(t, env, &models.Operation{ID: "op-1", Kind: models.OperationCreateChart, Range: "A1:B4", ChartType: "line"})

	assert.True(t, outcome.Lossy)
	charts, err := env.wb.ListCharts(env.ctx, "Sheet1")
	require.NoError(t, err)
	assert.Empty(t, charts)
}

func TestUndo_PresentationIsLossyNoop(t *testing.T) {
	env := newTestEnv(t)

	outcome := recordAndUndo(t, env, &models.Operation{
		ID: "op-1", Kind: models.OperationPageSetup, Settings: map[string]any{"orientation": "landscape"},
	})

	assert.True(t, outcome.Lossy)
	assert.Equal(t, "landscape", env.wb.Sheet("Sheet1").Settings["page_setup"]["orientation"])
}

func TestUndo_CompositeReversesChildren(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", 1.0)
	env.wb.SetCell("Sheet1", "B1", 2.0)

	outcome := recordAndUndo(t, env, &models.Operation{
		ID:    "op-1",
		Kind:  models.OperationComposite,
		Sheet: "Sheet1",
		Operations: []*models.Operation{
			{Kind: models.OperationSetValue, Target: "A1", Value: 10.0},
			{Kind: models.OperationSetValue, Target: "B1", Value: 20.0},
			{Kind: models.OperationCreateChart, Range: "A1:B1"},
		},
	})

	assert.True(t, outcome.Lossy, "a lossy child makes the batch lossy")
	assert.Equal(t, 1.0, env.wb.Value("Sheet1", "A1"))
	assert.Equal(t, 2.0, env.wb.Value("Sheet1", "B1"))
	charts, err := env.wb.ListCharts(env.ctx, "Sheet1")
	require.NoError(t, err)
	assert.Empty(t, charts)
}

func TestUndo_CompositeAcrossSheets(t *testing.T) {
	env := newTestEnv(t, "Sheet1", "Sheet2")
	env.wb.SetCell("Sheet2", "A1", 1.0)
	env.wb.SetCell("Sheet1", "B1", 5.0)
	id := env.do(t, &models.Operation{
		ID:   "op-1",
		Kind: models.OperationComposite,
		Operations: []*models.Operation{
			{Kind: models.OperationSetValue, Sheet: "Sheet2", Target: "A1", Value: 2.0},
			{Kind: models.OperationSetValue, Target: "B1", Value: 6.0},
		},
	})
	a, ok := env.history.GetAction(id)
	require.True(t, ok)
	env.wb.Active = "Sheet2"

	_, err := env.undoer.Undo(env.ctx, a)

	require.NoError(t, err)
	assert.Equal(t, 1.0, env.wb.Value("Sheet2", "A1"))
	assert.Equal(t, 5.0, env.wb.Value("Sheet1", "B1"))
}

func TestUndo_UnknownKindRestoresRanges(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", "before")
	op := &models.Operation{ID: "op-1", Kind: "highlight_duplicates", Range: "A1"}
	id := env.recorder.Record(env.ctx, "wb-1", op)
	env.wb.SetCell("Sheet1", "A1", "after")
	a, _ := env.history.GetAction(id)

	_, err := env.undoer.Undo(env.ctx, a)
	require.NoError(t, err)

	assert.Equal(t, "before", env.wb.Value("Sheet1", "A1"))
}

func TestUndo_MissingBeforeStateIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", "current")
	a := &models.Action{
		ID:             "a-1",
		Operation:      setValue("op-1", "A1", "current"),
		AffectedRanges: []models.AffectedRange{{SheetName: "Sheet1", Range: "A1", Kind: models.RangeKindCell}},
	}

	_, err := env.undoer.Undo(env.ctx, a)

	assert.NoError(t, err)
	assert.Equal(t, "current", env.wb.Value("Sheet1", "A1"))
}

func TestUndo_MissingSheetIsNotAnError(t *testing.T) {
	env := newTestEnv(t, "Sheet1", "Data")
	id := env.do(t, &models.Operation{ID: "op-1", Kind: models.OperationSetValue, Sheet: "Data", Target: "A1", Value: 1.0})
	require.NoError(t, env.wb.DeleteSheet(env.ctx, "Data"))
	a, _ := env.history.GetAction(id)

	_, err := env.undoer.Undo(env.ctx, a)

	assert.NoError(t, err)
}

func TestUndo_DriverErrorIsReturned(t *testing.T) {
	env := newTestEnv(t)
	id := env.do(t, setValue("op-1", "A1", 1.0))
	a, _ := env.history.GetAction(id)
	env.wb.Fail = map[string]error{"WriteValues": errors.New("host busy")}

	_, err := env.undoer.Undo(env.ctx, a)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "host busy")
}

func TestUndo_NilAction(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.undoer.Undo(env.ctx, nil)
	assert.NoError(t, err)
}
