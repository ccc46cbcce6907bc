package document

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyDriver fails the first n calls to WriteValues.
type flakyDriver struct {
	*Workbook
	failures int
	calls    int
}

func (f *flakyDriver) WriteValues(ctx context.Context, h RangeHandle, values models.Grid) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("host busy")
	}
	return f.Workbook.WriteValues(ctx, h, values)
}

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxElapsedTime: time.Second}
}

func TestRetryDriver_RetriesTransient(t *testing.T) {
	ctx := context.Background()
	inner := &flakyDriver{Workbook: NewWorkbook("wb", "Sheet1"), failures: 2}
	rd := NewRetryDriver(inner, fastRetry())

	h, err := rd.ResolveRange(ctx, "Sheet1", "A1")
	require.NoError(t, err)
	require.NoError(t, rd.WriteValues(ctx, h, models.Grid{{1}}))
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 1, inner.Value("Sheet1", "A1"))
}

func TestRetryDriver_GivesUp(t *testing.T) {
	ctx := context.Background()
	inner := &flakyDriver{Workbook: NewWorkbook("wb", "Sheet1"), failures: 100}
	rd := NewRetryDriver(inner, fastRetry())

	err := rd.WriteValues(ctx, RangeHandle{Sheet: "Sheet1", Address: "A1"}, models.Grid{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write values")
	assert.Equal(t, 4, inner.calls)
}

func TestRetryDriver_NotFoundIsPermanent(t *testing.T) {
	ctx := context.Background()
	rd := NewRetryDriver(NewWorkbook("wb", "Sheet1"), fastRetry())

	err := rd.DeleteSheet(ctx, "Missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRetryDriver_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wb := NewWorkbook("wb", "Sheet1")
	wb.Fail = map[string]error{"ActiveSheet": context.Canceled}
	rd := NewRetryDriver(wb, fastRetry())

	_, err := rd.ActiveSheet(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
