package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kilupskalvis/sheetvc/internal/models"
)

// SchedulerOptions configures the background loops. A zero interval or an
// empty spec disables the corresponding loop.
type SchedulerOptions struct {
	HighlightInterval time.Duration
	// AutosaveSpec is a cron expression or descriptor such as "@every 10m".
	AutosaveSpec string
}

// Scheduler keeps pending-change highlights fresh and writes periodic
// auto-save versions.
type Scheduler struct {
	versions *VersionService
	pending  *PendingManager
	logger   *slog.Logger
	opts     SchedulerOptions
}

// NewScheduler creates a Scheduler. pending may be nil when highlights are not used.
func NewScheduler(versions *VersionService, pending *PendingManager, logger *slog.Logger, opts SchedulerOptions) *Scheduler {
	return &Scheduler{versions: versions, pending: pending, logger: logger, opts: opts}
}

// Run blocks until ctx is cancelled. It returns an error only when the
// autosave schedule cannot be parsed.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	var c *cron.Cron
	if s.opts.AutosaveSpec != "" {
		c = cron.New()
		if _, err := c.AddFunc(s.opts.AutosaveSpec, func() {
			if _, err := s.Autosave(ctx); err != nil {
				s.logger.Error("autosave failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule autosave %q: %w", s.opts.AutosaveSpec, err)
		}
	}

	if s.opts.HighlightInterval > 0 && s.pending != nil {
		g.Go(func() error {
			ticker := time.NewTicker(s.opts.HighlightInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s.RefreshHighlights(ctx)
				}
			}
		})
	}

	if c != nil {
		g.Go(func() error {
			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	s.logger.Debug("scheduler started", "highlight_interval", s.opts.HighlightInterval, "autosave", s.opts.AutosaveSpec)
	err := g.Wait()
	s.logger.Debug("scheduler stopped")
	return err
}

// RefreshHighlights re-applies highlights for every workbook with pending
// changes and returns the number of changes highlighted.
func (s *Scheduler) RefreshHighlights(ctx context.Context) int {
	if s.pending == nil {
		return 0
	}
	total := 0
	for _, wb := range s.pending.Workbooks() {
		if ctx.Err() != nil {
			break
		}
		total += s.pending.RefreshHighlights(ctx, wb)
	}
	if total > 0 {
		s.logger.Debug("refreshed highlights", "changes", total)
	}
	return total
}

// Autosave creates an auto-save version for every workbook that has actions
// recorded since its latest version, and returns the versions created.
func (s *Scheduler) Autosave(ctx context.Context) ([]*models.Version, error) {
	var created []*models.Version
	var errs []error
	for _, wb := range s.versions.Workbooks() {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if len(s.versions.UnversionedActions(wb)) == 0 {
			continue
		}
		v, err := s.versions.CreateVersion(ctx, wb, VersionOptions{EventType: models.VersionAutoSave})
		if err != nil {
			errs = append(errs, fmt.Errorf("autosave %s: %w", wb, err))
			continue
		}
		created = append(created, v)
	}
	return created, errors.Join(errs...)
}
