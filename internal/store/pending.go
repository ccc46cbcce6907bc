package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kilupskalvis/sheetvc/internal/models"
)

// Storage keys of the pending-change collections.
const (
	KeyChanges         = "pending-changes:changes"
	KeyWorkbookChanges = "pending-changes:workbook-changes"
)

// Changes persists pending changes. Get returns copies; status transitions go
// through Save.
type Changes struct {
	mu      sync.RWMutex
	backend Backend

	changes         map[string]*models.PendingChange
	workbookChanges map[string][]string
}

// NewChanges loads the pending-change collections from backend.
func NewChanges(ctx context.Context, backend Backend) (*Changes, error) {
	c := &Changes{
		backend:         backend,
		changes:         make(map[string]*models.PendingChange),
		workbookChanges: make(map[string][]string),
	}
	if err := load(ctx, backend, KeyChanges, &c.changes); err != nil {
		return nil, err
	}
	if err := load(ctx, backend, KeyWorkbookChanges, &c.workbookChanges); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Changes) flush(ctx context.Context) error {
	if err := save(ctx, c.backend, KeyChanges, c.changes); err != nil {
		return err
	}
	return save(ctx, c.backend, KeyWorkbookChanges, c.workbookChanges)
}

// Save inserts or replaces a change. New changes are appended to their
// workbook's index. A failed flush leaves the previous state in place.
func (c *Changes) Save(ctx context.Context, change *models.PendingChange) error {
	if change == nil || change.ID == "" || change.WorkbookID == "" {
		return fmt.Errorf("save change: id and workbook id are required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *change
	prev, existed := c.changes[change.ID]
	prevIndex, hadIndex := c.workbookChanges[change.WorkbookID]

	c.changes[change.ID] = &stored
	if !existed {
		index := make([]string, 0, len(prevIndex)+1)
		index = append(index, prevIndex...)
		c.workbookChanges[change.WorkbookID] = append(index, change.ID)
	}

	if err := c.flush(ctx); err != nil {
		if existed {
			c.changes[change.ID] = prev
		} else {
			delete(c.changes, change.ID)
			restoreIndex(c.workbookChanges, change.WorkbookID, prevIndex, hadIndex)
		}
		return fmt.Errorf("save change: %w", err)
	}
	return nil
}

// Get returns a copy of a change.
func (c *Changes) Get(id string) (*models.PendingChange, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	change, ok := c.changes[id]
	if !ok {
		return nil, false
	}
	cp := *change
	return &cp, true
}

// ForWorkbook returns copies of a workbook's changes in creation order.
func (c *Changes) ForWorkbook(workbookID string) []*models.PendingChange {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := c.workbookChanges[workbookID]
	out := make([]*models.PendingChange, 0, len(ids))
	for _, id := range ids {
		if change, ok := c.changes[id]; ok && change.WorkbookID == workbookID {
			cp := *change
			out = append(out, &cp)
		}
	}
	return out
}

// Workbooks returns the ids of workbooks with any pending-change record, sorted.
func (c *Changes) Workbooks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.workbookChanges))
	for wb, ids := range c.workbookChanges {
		if len(ids) > 0 {
			out = append(out, wb)
		}
	}
	slices.Sort(out)
	return out
}
