package core

import (
	"context"
	"testing"
	"time"

	"github.com/kilupskalvis/sheetvc/internal/logging"
	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestScheduler_Autosave(t *testing.T) {
	env := newTestEnv(t)
	s := NewScheduler(env.versions, env.pending, logging.Nop(), SchedulerOptions{})
	env.do(t, setValue("op-1", "A1", 1.0))
	env.recorder.Record(env.ctx, "wb-2", setValue("op-2", "A1", 1.0))

	created, err := s.Autosave(env.ctx)
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, v := range created {
		assert.Equal(t, models.VersionAutoSave, v.EventType)
		assert.Len(t, v.ActionIDs, 1)
	}

	// Nothing new since the last autosave
	created, err = s.Autosave(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, created)

	env.do(t, setValue("op-3", "A2", 2.0))
	created, err = s.Autosave(env.ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "wb-1", created[0].WorkbookID)
}

func TestScheduler_RunRefreshesHighlights(t *testing.T) {
	defer goleak.VerifyNone(t)

	env := newTestEnv(t)
	change, err := env.pending.Stage(env.ctx, "wb-1", setValue("op-1", "A1", 1.0), "", "")
	require.NoError(t, err)
	require.NotNil(t, change)

	s := NewScheduler(env.versions, env.pending, logging.Nop(), SchedulerOptions{
		HighlightInterval: 5 * time.Millisecond,
		AutosaveSpec:      "@every 1h",
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		fill := env.wb.CellFormat("Sheet1", "A1").FillColor
		return fill != nil && *fill == DefaultHighlightColor
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_RunStopsWithNothingScheduled(t *testing.T) {
	defer goleak.VerifyNone(t)

	env := newTestEnv(t)
	s := NewScheduler(env.versions, nil, logging.Nop(), SchedulerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, s.Run(ctx))
	assert.Equal(t, 0, s.RefreshHighlights(ctx))
}

func TestScheduler_InvalidSpec(t *testing.T) {
	defer goleak.VerifyNone(t)

	env := newTestEnv(t)
	s := NewScheduler(env.versions, env.pending, logging.Nop(), SchedulerOptions{
		HighlightInterval: time.Millisecond,
		AutosaveSpec:      "not a schedule",
	})

	err := s.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule autosave")
}
