package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestHistory creates a History over a bbolt file in a temp directory.
func newTestHistory(t *testing.T) (*History, Backend) {
	t.Helper()
	b, err := NewBoltBackend(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	h, err := NewHistory(context.Background(), b)
	require.NoError(t, err)
	return h, b
}

func testAction(id, workbook string, ts time.Time) *models.Action {
	return &models.Action{
		ID:         id,
		WorkbookID: workbook,
		Timestamp:  ts,
		EventType:  models.ActionEventOperation,
		Operation:  &models.Operation{ID: "op-" + id, Kind: models.OperationSetValue, Target: "Sheet1!A1", Value: 1.0},
		AffectedRanges: []models.AffectedRange{
			{SheetName: "Sheet1", Range: "A1", Kind: models.RangeKindCell},
		},
		BeforeState: &models.BeforeState{Values: models.Grid{{nil}}},
		Description: "Set Sheet1!A1",
	}
}

func TestHistory_SaveAndGetAction(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t)
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, h.SaveAction(ctx, testAction("a1", "wb", base)))
	require.NoError(t, h.SaveAction(ctx, testAction("a2", "wb", base.Add(time.Second))))

	got, ok := h.GetAction("a1")
	require.True(t, ok)
	assert.Equal(t, "wb", got.WorkbookID)

	actions := h.Actions("wb")
	require.Len(t, actions, 2)
	assert.Equal(t, "a2", actions[0].ID, "index is newest first")

	err := h.SaveAction(ctx, testAction("a1", "wb", base))
	assert.Error(t, err, "duplicate id")
}

func TestHistory_Versions(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t)
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	assert.Nil(t, h.LatestVersion("wb"))

	require.NoError(t, h.SaveVersion(ctx, &models.Version{ID: "v1", WorkbookID: "wb", Timestamp: base}))
	require.NoError(t, h.SaveVersion(ctx, &models.Version{ID: "v2", WorkbookID: "wb", Timestamp: base.Add(time.Minute)}))

	versions := h.Versions("wb")
	require.Len(t, versions, 2)
	assert.Equal(t, "v2", versions[0].ID)
	assert.Equal(t, "v2", h.LatestVersion("wb").ID)

	_, ok := h.GetVersion("v1")
	assert.True(t, ok)
	_, ok = h.GetVersion("nope")
	assert.False(t, ok)
}

func TestHistory_WorkbookIsolation(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t)
	now := time.Now()

	require.NoError(t, h.SaveAction(ctx, testAction("a1", "W1", now)))
	require.NoError(t, h.SaveAction(ctx, testAction("a2", "W2", now)))
	require.NoError(t, h.SaveVersion(ctx, &models.Version{ID: "v1", WorkbookID: "W1", Timestamp: now}))

	assert.Len(t, h.Actions("W1"), 1)
	assert.Len(t, h.Actions("W2"), 1)
	assert.Empty(t, h.Versions("W2"))
	assert.Equal(t, []string{"W1", "W2"}, h.Workbooks())
}

func TestHistory_ReloadFromBackend(t *testing.T) {
	ctx := context.Background()
	h, b := newTestHistory(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, h.SaveAction(ctx, testAction("a1", "wb", now)))
	require.NoError(t, h.SaveVersion(ctx, &models.Version{ID: "v1", WorkbookID: "wb", Timestamp: now, ActionIDs: []string{"a1"}}))

	reloaded, err := NewHistory(ctx, b)
	require.NoError(t, err)

	a, ok := reloaded.GetAction("a1")
	require.True(t, ok)
	assert.True(t, now.Equal(a.Timestamp))
	assert.Equal(t, models.OperationSetValue, a.Operation.Kind)
	assert.Equal(t, []string{"a1"}, reloaded.Versions("wb")[0].ActionIDs)
	assert.Equal(t, []string{"a1"}, reloaded.ActionIDs())
}

func TestHistory_FailedFlushRollsBack(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	h, err := NewHistory(ctx, mem)
	require.NoError(t, err)

	require.NoError(t, h.SaveAction(ctx, testAction("a1", "wb", time.Now())))

	mem.FailWrites(errors.New("disk full"))
	err = h.SaveAction(ctx, testAction("a2", "wb", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, ok := h.GetAction("a2")
	assert.False(t, ok)
	assert.Len(t, h.Actions("wb"), 1)

	err = h.SaveVersion(ctx, &models.Version{ID: "v1", WorkbookID: "new-wb", Timestamp: time.Now()})
	require.Error(t, err)
	assert.Empty(t, h.Versions("new-wb"))
	assert.Equal(t, []string{"wb"}, h.Workbooks())

	mem.FailWrites(nil)
	assert.NoError(t, h.SaveAction(ctx, testAction("a2", "wb", time.Now())), "retry after failure succeeds")
}

func TestHistory_ClearWorkbook(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	h, err := NewHistory(ctx, mem)
	require.NoError(t, err)
	now := time.Now()

	require.NoError(t, h.SaveAction(ctx, testAction("a1", "W1", now)))
	require.NoError(t, h.SaveAction(ctx, testAction("a2", "W2", now)))
	require.NoError(t, h.SaveVersion(ctx, &models.Version{ID: "v1", WorkbookID: "W1", Timestamp: now}))

	mem.FailWrites(errors.New("offline"))
	_, _, err = h.ClearWorkbook(ctx, "W1")
	require.Error(t, err)
	assert.Len(t, h.Actions("W1"), 1, "failed clear keeps history")

	mem.FailWrites(nil)
	actions, versions, err := h.ClearWorkbook(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, 1, actions)
	assert.Equal(t, 1, versions)
	assert.Empty(t, h.Actions("W1"))
	assert.Empty(t, h.Versions("W1"))
	assert.Len(t, h.Actions("W2"), 1)

	reloaded, err := NewHistory(ctx, mem)
	require.NoError(t, err)
	assert.Equal(t, []string{"W2"}, reloaded.Workbooks())
}

func TestHistory_CorruptCollection(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	require.NoError(t, mem.Set(ctx, KeyActions, []byte("not json")))

	_, err := NewHistory(ctx, mem)
	assert.ErrorContains(t, err, KeyActions)
}
