package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kilupskalvis/sheetvc/internal/document"
	"github.com/kilupskalvis/sheetvc/internal/logging"
	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/kilupskalvis/sheetvc/internal/store"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by step on every read so that successive timestamps
// are always ordered.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), step: time.Millisecond}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testEnv wires every service over an in-memory workbook and store.
type testEnv struct {
	ctx      context.Context
	wb       *document.Workbook
	backend  *store.MemoryBackend
	history  *store.History
	changes  *store.Changes
	clock    *fakeClock
	recorder *Recorder
	versions *VersionService
	undoer   *Undoer
	restorer *Restorer
	pending  *PendingManager
}

func newTestEnv(t *testing.T, sheets ...string) *testEnv {
	t.Helper()
	if len(sheets) == 0 {
		sheets = []string{"Sheet1"}
	}
	return newTestEnvWith(t, document.NewWorkbook("wb-1", sheets...), store.NewMemoryBackend(), RecorderOptions{})
}

func newTestEnvWith(t *testing.T, wb *document.Workbook, backend *store.MemoryBackend, opts RecorderOptions) *testEnv {
	t.Helper()
	ctx := context.Background()
	history, err := store.NewHistory(ctx, backend)
	require.NoError(t, err)
	changes, err := store.NewChanges(ctx, backend)
	require.NoError(t, err)

	clock := newFakeClock()
	if opts.Clock == nil {
		opts.Clock = clock.Now
	}
	logger := logging.Nop()
	recorder := NewRecorder(history, wb, logger, opts)
	versions := NewVersionService(history, logger, "", clock.Now)
	undoer := NewUndoer(wb, logger)
	return &testEnv{
		ctx:      ctx,
		wb:       wb,
		backend:  backend,
		history:  history,
		changes:  changes,
		clock:    clock,
		recorder: recorder,
		versions: versions,
		undoer:   undoer,
		restorer: NewRestorer(versions, undoer, logger),
		pending:  NewPendingManager(changes, recorder, undoer, wb, logger, "", clock.Now),
	}
}

// do records op for workbook "wb-1" and then applies it.
func (e *testEnv) do(t *testing.T, op *models.Operation) string {
	t.Helper()
	id := e.recorder.Record(e.ctx, "wb-1", op)
	require.NoError(t, e.wb.Apply(e.ctx, op))
	return id
}

func setValue(id, target string, value any) *models.Operation {
	return &models.Operation{ID: id, Kind: models.OperationSetValue, Target: target, Value: value}
}

func ptr[T any](v T) *T { return &v }
