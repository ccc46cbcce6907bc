package core

import (
	"errors"
	"testing"

	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreVersion_UndoesInReverseOrder(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", 10.0)
	env.do(t, setValue("op-1", "A1", 20.0))
	env.do(t, setValue("op-2", "A1", 30.0))
	v, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{Description: "edits"})
	require.NoError(t, err)

	result := env.restorer.RestoreVersion(env.ctx, RestoreOptions{VersionID: v.ID})

	require.True(t, result.Success, result.Message)
	assert.Equal(t, 2, result.RestoredActions)
	assert.Equal(t, 10.0, env.wb.Value("Sheet1", "A1"))
	assert.Equal(t, v.ID, result.RestoredVersion.ID)
	assert.Empty(t, result.RestorePointID)
}

func TestRestoreVersion_PartialFailure(t *testing.T) {
	env := newTestEnv(t, "Sheet1", "Data")
	env.do(t, setValue("op-1", "A1", 1.0))
	rename := env.do(t, &models.Operation{ID: "op-2", Kind: models.OperationRenameSheet, Sheet: "Data", NewName: "Archive"})
	env.do(t, setValue("op-3", "A2", 2.0))
	v, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{})
	require.NoError(t, err)
	env.wb.Fail = map[string]error{"RenameSheet": errors.New("sheet is protected")}

	result := env.restorer.RestoreVersion(env.ctx, RestoreOptions{VersionID: v.ID})

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.RestoredActions)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, rename, result.Errors[0].ActionID)
	assert.Contains(t, result.Errors[0].Message, "sheet is protected")
	assert.Nil(t, env.wb.Value("Sheet1", "A1"))
	assert.Nil(t, env.wb.Value("Sheet1", "A2"))
}

func TestRestoreVersion_ReportsLossyActions(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, setValue("op-1", "A1", 1.0))
	chart := env.do(t, &models.Operation{ID: "op-2", Kind: models.OperationCreateChart, Range: "A1:A4"})
	v, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{})
	require.NoError(t, err)

	result := env.restorer.RestoreVersion(env.ctx, RestoreOptions{VersionID: v.ID})

	require.True(t, result.Success)
	assert.Equal(t, []string{chart}, result.LossyActions)
}

func TestRestoreVersion_MissingActions(t *testing.T) {
	env := newTestEnv(t)
	id := env.do(t, setValue("op-1", "A1", 1.0))
	v := &models.Version{ID: "v-ghost", WorkbookID: "wb-1", Timestamp: env.clock.Now(), ActionIDs: []string{id, "ghost"}}
	require.NoError(t, env.history.SaveVersion(env.ctx, v))

	result := env.restorer.RestoreVersion(env.ctx, RestoreOptions{VersionID: v.ID})

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RestoredActions)
	assert.Equal(t, []string{"ghost"}, result.MissingActions)
}

func TestRestoreVersion_NoActions(t *testing.T) {
	env := newTestEnv(t)
	v, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{})
	require.NoError(t, err)

	result := env.restorer.RestoreVersion(env.ctx, RestoreOptions{VersionID: v.ID})

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "no actions found for version")
}

func TestRestoreVersion_UnknownVersion(t *testing.T) {
	env := newTestEnv(t)

	result := env.restorer.RestoreVersion(env.ctx, RestoreOptions{VersionID: "missing"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "version not found")
}

func TestRestoreVersion_Selective(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", "a")
	env.wb.SetCell("Sheet1", "B1", "b")
	env.do(t, setValue("op-1", "A1", "A"))
	env.do(t, setValue("op-2", "B1", "B"))
	v, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{})
	require.NoError(t, err)

	result := env.restorer.RestoreVersion(env.ctx, RestoreOptions{
		VersionID: v.ID, Selective: true, SelectiveRanges: []string{"Sheet1!B1"},
	})

	require.True(t, result.Success)
	assert.Equal(t, 1, result.RestoredActions)
	assert.Equal(t, "A", env.wb.Value("Sheet1", "A1"))
	assert.Equal(t, "b", env.wb.Value("Sheet1", "B1"))
}

func TestRestoreVersion_SelectiveNoMatch(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, setValue("op-1", "A1", 1.0))
	v, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{})
	require.NoError(t, err)

	result := env.restorer.RestoreVersion(env.ctx, RestoreOptions{
		VersionID: v.ID, Selective: true, SelectiveRanges: []string{"Sheet1!Z99"},
	})

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.RestoredActions)
	assert.Equal(t, 1.0, env.wb.Value("Sheet1", "A1"))
}

func TestRestoreVersion_CreatesRestorePoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, setValue("op-1", "A1", 1.0))
	v1, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{Description: "v1"})
	require.NoError(t, err)
	later := env.do(t, setValue("op-2", "A2", 2.0))

	result := env.restorer.RestoreVersion(env.ctx, DefaultRestoreOptions(v1.ID))

	require.True(t, result.Success)
	require.NotEmpty(t, result.RestorePointID)
	point, err := env.versions.GetVersion(result.RestorePointID)
	require.NoError(t, err)
	assert.Equal(t, models.VersionRestore, point.EventType)
	assert.Equal(t, []string{later}, point.ActionIDs)
	assert.Equal(t, `Restore point before restoring "v1"`, point.Description)
}

func TestRestoreVersion_RestorePointFailureDoesNotAbort(t *testing.T) {
	env := newTestEnv(t)
	env.wb.SetCell("Sheet1", "A1", "orig")
	env.do(t, setValue("op-1", "A1", "new"))
	v, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{})
	require.NoError(t, err)
	env.backend.FailWrites(errors.New("disk full"))

	result := env.restorer.RestoreVersion(env.ctx, DefaultRestoreOptions(v.ID))

	assert.True(t, result.Success)
	assert.Empty(t, result.RestorePointID)
	assert.Equal(t, "orig", env.wb.Value("Sheet1", "A1"))
}

// The scenario from the workbook history contract: restore undoes exactly
// the actions listed in the version.
func TestRestoreVersion_UndoesOnlyListedActions(t *testing.T) {
	t.Run("version with the first action only", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, setValue("op-1", "Sheet1!B2", 42.0))
		v1, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{Description: "v1"})
		require.NoError(t, err)
		env.do(t, setValue("op-2", "Sheet1!B2", 99.0))

		result := env.restorer.RestoreVersion(env.ctx, RestoreOptions{VersionID: v1.ID})

		require.True(t, result.Success, result.Message)
		assert.Equal(t, 1, result.RestoredActions)
		assert.Nil(t, env.wb.Value("Sheet1", "B2"), "first action's before-value was empty")
	})

	t.Run("version with both actions", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, setValue("op-1", "Sheet1!B2", 42.0))
		env.do(t, setValue("op-2", "Sheet1!B2", 99.0))
		v1, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{Description: "v1"})
		require.NoError(t, err)

		result := env.restorer.RestoreVersion(env.ctx, RestoreOptions{VersionID: v1.ID})

		require.True(t, result.Success, result.Message)
		assert.Equal(t, 2, result.RestoredActions)
		assert.Nil(t, env.wb.Value("Sheet1", "B2"))
	})

	t.Run("undo of the later action alone", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, setValue("op-1", "Sheet1!B2", 42.0))
		second := env.do(t, setValue("op-2", "Sheet1!B2", 99.0))

		result := env.restorer.UndoAction(env.ctx, second)

		require.True(t, result.Success, result.Message)
		assert.Equal(t, 42.0, env.wb.Value("Sheet1", "B2"))
	})
}

func TestUndoAction_NotFound(t *testing.T) {
	env := newTestEnv(t)

	result := env.restorer.UndoAction(env.ctx, "missing")

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "action not found")
}

func TestUndoAction_Failure(t *testing.T) {
	env := newTestEnv(t)
	id := env.do(t, setValue("op-1", "A1", 1.0))
	env.wb.Fail = map[string]error{"WriteValues": errors.New("host busy")}

	result := env.restorer.UndoAction(env.ctx, id)

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, id, result.Errors[0].ActionID)
}
