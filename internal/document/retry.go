package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kilupskalvis/sheetvc/internal/models"
)

// RetryConfig configures retry behavior for transient driver errors.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  10 * time.Second,
	}
}

// RetryDriver wraps a Driver with automatic retry on transient errors.
type RetryDriver struct {
	inner  Driver
	config *RetryConfig
}

// NewRetryDriver creates a RetryDriver that wraps the given Driver.
func NewRetryDriver(inner Driver, cfg *RetryConfig) *RetryDriver {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryDriver{inner: inner, config: cfg}
}

var _ Driver = (*RetryDriver)(nil)

// isTransient returns true for errors that are worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsNotFound(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func (rd *RetryDriver) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rd.config.InitialInterval
	b.MaxInterval = rd.config.MaxInterval
	b.MaxElapsedTime = rd.config.MaxElapsedTime
	var bo backoff.BackOff = b
	if rd.config.MaxRetries > 0 {
		bo = backoff.WithMaxRetries(b, uint64(rd.config.MaxRetries))
	}
	return backoff.WithContext(bo, ctx)
}

// retry executes fn with retry logic. Only retries transient errors.
func (rd *RetryDriver) retry(ctx context.Context, operation string, fn func() error) error {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := fn()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, rd.policy(ctx))
	if err == nil {
		return nil
	}
	if IsNotFound(err) {
		return err
	}
	return fmt.Errorf("%s: %w (after %d attempts)", operation, err, attempts)
}

// --- Delegate all Driver methods through retry logic ---

func (rd *RetryDriver) ResolveRange(ctx context.Context, sheet, ref string) (h RangeHandle, err error) {
	err = rd.retry(ctx, "resolve range", func() error {
		h, err = rd.inner.ResolveRange(ctx, sheet, ref)
		return err
	})
	return
}

func (rd *RetryDriver) ReadValues(ctx context.Context, h RangeHandle) (grid models.Grid, err error) {
	err = rd.retry(ctx, "read values", func() error {
		grid, err = rd.inner.ReadValues(ctx, h)
		return err
	})
	return
}

func (rd *RetryDriver) ReadFormulas(ctx context.Context, h RangeHandle) (grid models.Grid, err error) {
	err = rd.retry(ctx, "read formulas", func() error {
		grid, err = rd.inner.ReadFormulas(ctx, h)
		return err
	})
	return
}

func (rd *RetryDriver) ReadFormat(ctx context.Context, h RangeHandle) (f *models.FormatSnapshot, err error) {
	err = rd.retry(ctx, "read format", func() error {
		f, err = rd.inner.ReadFormat(ctx, h)
		return err
	})
	return
}

func (rd *RetryDriver) WriteValues(ctx context.Context, h RangeHandle, values models.Grid) error {
	return rd.retry(ctx, "write values", func() error {
		return rd.inner.WriteValues(ctx, h, values)
	})
}

func (rd *RetryDriver) WriteFormulas(ctx context.Context, h RangeHandle, formulas models.Grid) error {
	return rd.retry(ctx, "write formulas", func() error {
		return rd.inner.WriteFormulas(ctx, h, formulas)
	})
}

func (rd *RetryDriver) WriteFormat(ctx context.Context, h RangeHandle, format *models.FormatSnapshot) error {
	return rd.retry(ctx, "write format", func() error {
		return rd.inner.WriteFormat(ctx, h, format)
	})
}

func (rd *RetryDriver) Merge(ctx context.Context, h RangeHandle) error {
	return rd.retry(ctx, "merge", func() error {
		return rd.inner.Merge(ctx, h)
	})
}

func (rd *RetryDriver) Unmerge(ctx context.Context, h RangeHandle) error {
	return rd.retry(ctx, "unmerge", func() error {
		return rd.inner.Unmerge(ctx, h)
	})
}

func (rd *RetryDriver) ActiveSheet(ctx context.Context) (name string, err error) {
	err = rd.retry(ctx, "active sheet", func() error {
		name, err = rd.inner.ActiveSheet(ctx)
		return err
	})
	return
}

func (rd *RetryDriver) ReadSheetProperties(ctx context.Context, sheet string) (props *models.SheetProperties, err error) {
	err = rd.retry(ctx, "read sheet properties", func() error {
		props, err = rd.inner.ReadSheetProperties(ctx, sheet)
		return err
	})
	return
}

func (rd *RetryDriver) CreateSheet(ctx context.Context, name string, opts SheetOptions) error {
	return rd.retry(ctx, "create sheet", func() error {
		return rd.inner.CreateSheet(ctx, name, opts)
	})
}

func (rd *RetryDriver) DeleteSheet(ctx context.Context, name string) error {
	return rd.retry(ctx, "delete sheet", func() error {
		return rd.inner.DeleteSheet(ctx, name)
	})
}

func (rd *RetryDriver) RenameSheet(ctx context.Context, oldName, newName string) error {
	return rd.retry(ctx, "rename sheet", func() error {
		return rd.inner.RenameSheet(ctx, oldName, newName)
	})
}

func (rd *RetryDriver) ListTables(ctx context.Context, sheet string) (tables []Table, err error) {
	err = rd.retry(ctx, "list tables", func() error {
		tables, err = rd.inner.ListTables(ctx, sheet)
		return err
	})
	return
}

func (rd *RetryDriver) DeleteTable(ctx context.Context, table Table) error {
	return rd.retry(ctx, "delete table", func() error {
		return rd.inner.DeleteTable(ctx, table)
	})
}

func (rd *RetryDriver) ClearTableFilters(ctx context.Context, table Table) error {
	return rd.retry(ctx, "clear table filters", func() error {
		return rd.inner.ClearTableFilters(ctx, table)
	})
}

func (rd *RetryDriver) ListCharts(ctx context.Context, sheet string) (charts []Chart, err error) {
	err = rd.retry(ctx, "list charts", func() error {
		charts, err = rd.inner.ListCharts(ctx, sheet)
		return err
	})
	return
}

func (rd *RetryDriver) DeleteChart(ctx context.Context, chart Chart) error {
	return rd.retry(ctx, "delete chart", func() error {
		return rd.inner.DeleteChart(ctx, chart)
	})
}
