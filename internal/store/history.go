package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/kilupskalvis/sheetvc/internal/models"
)

// Storage keys of the version history collections.
const (
	KeyActions          = "version-history:actions"
	KeyVersions         = "version-history:versions"
	KeyWorkbookVersions = "version-history:workbook-versions"
	KeyWorkbookActions  = "version-history:workbook-actions"
)

// History holds every recorded Action and Version, partitioned by workbook id.
// Index lists are newest first. Returned records are shared and must not be
// modified.
type History struct {
	mu      sync.RWMutex
	backend Backend

	actions          map[string]*models.Action
	versions         map[string]*models.Version
	workbookVersions map[string][]string
	workbookActions  map[string][]string
}

// NewHistory loads the collections from backend. Missing keys start empty.
func NewHistory(ctx context.Context, backend Backend) (*History, error) {
	h := &History{
		backend:          backend,
		actions:          make(map[string]*models.Action),
		versions:         make(map[string]*models.Version),
		workbookVersions: make(map[string][]string),
		workbookActions:  make(map[string][]string),
	}
	loads := []struct {
		key string
		dst any
	}{
		{KeyActions, &h.actions},
		{KeyVersions, &h.versions},
		{KeyWorkbookVersions, &h.workbookVersions},
		{KeyWorkbookActions, &h.workbookActions},
	}
	for _, l := range loads {
		if err := load(ctx, backend, l.key, l.dst); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func load(ctx context.Context, backend Backend, key string, dst any) error {
	data, err := backend.Get(ctx, key)
	if IsKeyNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func save(ctx context.Context, backend Backend, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := backend.Set(ctx, key, data); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// flush rewrites all four collections. Caller holds the write lock.
func (h *History) flush(ctx context.Context) error {
	if err := save(ctx, h.backend, KeyActions, h.actions); err != nil {
		return err
	}
	if err := save(ctx, h.backend, KeyVersions, h.versions); err != nil {
		return err
	}
	if err := save(ctx, h.backend, KeyWorkbookVersions, h.workbookVersions); err != nil {
		return err
	}
	return save(ctx, h.backend, KeyWorkbookActions, h.workbookActions)
}

// SaveAction stores a new action and prepends it to its workbook's index.
// If the flush fails the in-memory state is left as it was.
func (h *History) SaveAction(ctx context.Context, a *models.Action) error {
	if a == nil || a.ID == "" || a.WorkbookID == "" {
		return fmt.Errorf("save action: id and workbook id are required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.actions[a.ID]; exists {
		return fmt.Errorf("save action %s: already recorded", a.ID)
	}
	prevIndex, hadIndex := h.workbookActions[a.WorkbookID]
	h.actions[a.ID] = a
	h.workbookActions[a.WorkbookID] = prepend(prevIndex, a.ID)

	if err := h.flush(ctx); err != nil {
		delete(h.actions, a.ID)
		restoreIndex(h.workbookActions, a.WorkbookID, prevIndex, hadIndex)
		return fmt.Errorf("save action: %w", err)
	}
	return nil
}

// SaveVersion stores a new version and prepends it to its workbook's index.
func (h *History) SaveVersion(ctx context.Context, v *models.Version) error {
	if v == nil || v.ID == "" || v.WorkbookID == "" {
		return fmt.Errorf("save version: id and workbook id are required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.versions[v.ID]; exists {
		return fmt.Errorf("save version %s: already exists", v.ID)
	}
	prevIndex, hadIndex := h.workbookVersions[v.WorkbookID]
	h.versions[v.ID] = v
	h.workbookVersions[v.WorkbookID] = prepend(prevIndex, v.ID)

	if err := h.flush(ctx); err != nil {
		delete(h.versions, v.ID)
		restoreIndex(h.workbookVersions, v.WorkbookID, prevIndex, hadIndex)
		return fmt.Errorf("save version: %w", err)
	}
	return nil
}

func prepend(list []string, id string) []string {
	out := make([]string, 0, len(list)+1)
	out = append(out, id)
	return append(out, list...)
}

func restoreIndex(index map[string][]string, key string, prev []string, had bool) {
	if had {
		index[key] = prev
		return
	}
	delete(index, key)
}

// GetAction returns an action by id.
func (h *History) GetAction(id string) (*models.Action, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.actions[id]
	return a, ok
}

// GetVersion returns a version by id.
func (h *History) GetVersion(id string) (*models.Version, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.versions[id]
	return v, ok
}

// Actions returns a workbook's actions, newest first.
func (h *History) Actions(workbookID string) []*models.Action {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := h.workbookActions[workbookID]
	out := make([]*models.Action, 0, len(ids))
	for _, id := range ids {
		if a, ok := h.actions[id]; ok && a.WorkbookID == workbookID {
			out = append(out, a)
		}
	}
	return out
}

// Versions returns a workbook's versions, newest first.
func (h *History) Versions(workbookID string) []*models.Version {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := h.workbookVersions[workbookID]
	out := make([]*models.Version, 0, len(ids))
	for _, id := range ids {
		if v, ok := h.versions[id]; ok && v.WorkbookID == workbookID {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// LatestVersion returns the newest version of a workbook, or nil.
func (h *History) LatestVersion(workbookID string) *models.Version {
	versions := h.Versions(workbookID)
	if len(versions) == 0 {
		return nil
	}
	return versions[0]
}

// ActionIDs returns the id of every stored action across all workbooks.
func (h *History) ActionIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.actions))
	for id := range h.actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Workbooks returns the ids of workbooks with any recorded history, sorted.
func (h *History) Workbooks() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]bool)
	for wb, ids := range h.workbookActions {
		if len(ids) > 0 {
			seen[wb] = true
		}
	}
	for wb, ids := range h.workbookVersions {
		if len(ids) > 0 {
			seen[wb] = true
		}
	}
	out := make([]string, 0, len(seen))
	for wb := range seen {
		out = append(out, wb)
	}
	slices.Sort(out)
	return out
}

// ClearWorkbook removes every action and version of one workbook together
// with both index entries. It returns the number of actions and versions removed.
func (h *History) ClearWorkbook(ctx context.Context, workbookID string) (int, int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removedActions := make(map[string]*models.Action)
	for id, a := range h.actions {
		if a.WorkbookID == workbookID {
			removedActions[id] = a
		}
	}
	removedVersions := make(map[string]*models.Version)
	for id, v := range h.versions {
		if v.WorkbookID == workbookID {
			removedVersions[id] = v
		}
	}
	prevActions, hadActions := h.workbookActions[workbookID]
	prevVersions, hadVersions := h.workbookVersions[workbookID]

	for id := range removedActions {
		delete(h.actions, id)
	}
	for id := range removedVersions {
		delete(h.versions, id)
	}
	delete(h.workbookActions, workbookID)
	delete(h.workbookVersions, workbookID)

	if err := h.flush(ctx); err != nil {
		for id, a := range removedActions {
			h.actions[id] = a
		}
		for id, v := range removedVersions {
			h.versions[id] = v
		}
		restoreIndex(h.workbookActions, workbookID, prevActions, hadActions)
		restoreIndex(h.workbookVersions, workbookID, prevVersions, hadVersions)
		return 0, 0, fmt.Errorf("clear history: %w", err)
	}
	return len(removedActions), len(removedVersions), nil
}
