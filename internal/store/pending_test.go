package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChange(id, workbook string) *models.PendingChange {
	return &models.PendingChange{
		ID:             id,
		WorkbookID:     workbook,
		Operation:      &models.Operation{ID: "op-" + id, Kind: models.OperationSetValue, Target: "Sheet1!B2", Value: 42.0},
		Status:         models.ChangePending,
		Timestamp:      time.Now(),
		AffectedRanges: []string{"Sheet1!B2"},
		Description:    "Set Sheet1!B2",
	}
}

func TestChanges_SaveGetAndUpdate(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	c, err := NewChanges(ctx, mem)
	require.NoError(t, err)

	require.NoError(t, c.Save(ctx, testChange("c1", "wb")))
	require.NoError(t, c.Save(ctx, testChange("c2", "wb")))
	require.NoError(t, c.Save(ctx, testChange("c3", "other")))

	got, ok := c.Get("c1")
	require.True(t, ok)
	got.Status = models.ChangeAccepted
	fresh, _ := c.Get("c1")
	assert.Equal(t, models.ChangePending, fresh.Status, "Get returns a copy")

	require.NoError(t, c.Save(ctx, got))
	fresh, _ = c.Get("c1")
	assert.Equal(t, models.ChangeAccepted, fresh.Status)

	list := c.ForWorkbook("wb")
	require.Len(t, list, 2)
	assert.Equal(t, "c1", list[0].ID, "creation order")
	assert.Len(t, c.ForWorkbook("other"), 1)

	reloaded, err := NewChanges(ctx, mem)
	require.NoError(t, err)
	fresh, ok = reloaded.Get("c1")
	require.True(t, ok)
	assert.Equal(t, models.ChangeAccepted, fresh.Status)
	assert.Len(t, reloaded.ForWorkbook("wb"), 2)
}

func TestChanges_FailedFlushRollsBack(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	c, err := NewChanges(ctx, mem)
	require.NoError(t, err)
	require.NoError(t, c.Save(ctx, testChange("c1", "wb")))

	mem.FailWrites(errors.New("quota exceeded"))

	update, _ := c.Get("c1")
	update.Status = models.ChangeRejected
	require.Error(t, c.Save(ctx, update))
	got, _ := c.Get("c1")
	assert.Equal(t, models.ChangePending, got.Status)

	require.Error(t, c.Save(ctx, testChange("c2", "wb")))
	_, ok := c.Get("c2")
	assert.False(t, ok)
	assert.Len(t, c.ForWorkbook("wb"), 1)
}
