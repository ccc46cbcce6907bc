package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kilupskalvis/sheetvc/internal/a1"
	"github.com/kilupskalvis/sheetvc/internal/document"
	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/kilupskalvis/sheetvc/internal/store"
)

// DefaultHighlightColor is the fill used to mark cells touched by a pending change.
const DefaultHighlightColor = "#FFF2CC"

// PendingManager holds operations awaiting approval. Accepting records the
// change as a normal action; rejecting undoes it with the same handlers the
// restorer uses.
type PendingManager struct {
	changes  *store.Changes
	recorder *Recorder
	undoer   *Undoer
	driver   document.Driver
	logger   *slog.Logger
	now      Clock

	highlight string
}

// NewPendingManager creates a PendingManager. An empty highlight color uses
// DefaultHighlightColor.
func NewPendingManager(changes *store.Changes, recorder *Recorder, undoer *Undoer, driver document.Driver, logger *slog.Logger, highlight string, now Clock) *PendingManager {
	if highlight == "" {
		highlight = DefaultHighlightColor
	}
	if now == nil {
		now = time.Now
	}
	return &PendingManager{
		changes:   changes,
		recorder:  recorder,
		undoer:    undoer,
		driver:    driver,
		logger:    logger,
		now:       now,
		highlight: highlight,
	}
}

// Create stores op as a pending change with the given before-state.
// Unqualified references resolve against the current active sheet.
func (m *PendingManager) Create(ctx context.Context, workbookID string, op *models.Operation, before *models.BeforeState, commandID, description string) (*models.PendingChange, error) {
	return m.create(ctx, workbookID, op, before, m.activeSheet(ctx), commandID, description)
}

func (m *PendingManager) create(ctx context.Context, workbookID string, op *models.Operation, before *models.BeforeState, sheet, commandID, description string) (*models.PendingChange, error) {
	if op == nil {
		return nil, fmt.Errorf("create pending change: nil operation")
	}
	if workbookID == "" {
		return nil, fmt.Errorf("create pending change: empty workbook id")
	}
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	ranges := ResolveRanges(op, sheet)
	if description == "" {
		description = Describe(op, ranges)
	}
	refs := make([]string, len(ranges))
	for i, r := range ranges {
		refs[i] = r.Ref()
	}

	change := &models.PendingChange{
		ID:             uuid.New().String(),
		WorkbookID:     workbookID,
		Operation:      op,
		BeforeState:    before,
		Status:         models.ChangePending,
		Timestamp:      m.now(),
		AffectedRanges: refs,
		DefaultSheet:   sheet,
		CommandID:      commandID,
		Description:    description,
	}
	if err := m.changes.Save(ctx, change); err != nil {
		return nil, fmt.Errorf("create pending change: %w", err)
	}
	m.logger.Info("created pending change", "workbook", workbookID, "change", change.ID, "kind", op.Kind)
	return change, nil
}

// Stage captures the before-state of op and creates a pending change. Call it
// immediately before applying op.
func (m *PendingManager) Stage(ctx context.Context, workbookID string, op *models.Operation, commandID, description string) (*models.PendingChange, error) {
	if op == nil {
		return nil, fmt.Errorf("stage pending change: nil operation")
	}
	sheet := m.activeSheet(ctx)
	before := m.recorder.Capturer().Capture(ctx, ResolveRanges(op, sheet))
	return m.create(ctx, workbookID, op, before, sheet, commandID, description)
}

// Accept records a pending change in the version history and marks it
// accepted. A change that is not pending is refused. The highlight is
// replaced by the fill the operation itself left.
func (m *PendingManager) Accept(ctx context.Context, changeID string) *models.ChangeResult {
	change, res := m.pending(changeID)
	if res != nil {
		return res
	}

	metadata := map[string]any{"pendingChangeId": change.ID}
	if change.CommandID != "" {
		metadata["commandId"] = change.CommandID
	}
	actionID, _, err := m.recorder.RecordCaptured(ctx, change.WorkbookID, change.Operation, change.BeforeState, changeSheet(change), metadata)
	if err != nil {
		m.logger.Error("accept pending change failed", "change", change.ID, "error", err)
		return &models.ChangeResult{Success: false, Message: fmt.Sprintf("accept %s: %v", change.ID, err), Change: change}
	}

	if err := m.eachRange(ctx, change, func(h document.RangeHandle, r models.AffectedRange) error {
		fill, ok := change.AppliedFills[r.Ref()]
		if !ok {
			fill = beforeFill(change, r)
		}
		return m.driver.WriteFormat(ctx, h, &models.FormatSnapshot{FillColor: &fill})
	}); err != nil {
		m.logger.Warn("unhighlight failed", "change", change.ID, "error", err)
	}

	change.Status = models.ChangeAccepted
	if err := m.changes.Save(ctx, change); err != nil {
		m.logger.Error("accept pending change failed", "change", change.ID, "error", err)
		return &models.ChangeResult{Success: false, Message: fmt.Sprintf("accept %s: %v", change.ID, err), ActionID: actionID}
	}
	m.logger.Info("accepted pending change", "change", change.ID, "action", actionID)
	return &models.ChangeResult{Success: true, Message: "Change accepted", Change: change, ActionID: actionID}
}

// Reject marks a pending change rejected and undoes it.
func (m *PendingManager) Reject(ctx context.Context, changeID string) *models.ChangeResult {
	change, res := m.pending(changeID)
	if res != nil {
		return res
	}

	change.Status = models.ChangeRejected
	if err := m.changes.Save(ctx, change); err != nil {
		m.logger.Error("reject pending change failed", "change", change.ID, "error", err)
		return &models.ChangeResult{Success: false, Message: fmt.Sprintf("reject %s: %v", change.ID, err)}
	}

	m.unhighlight(ctx, change)

	outcome, err := m.undoer.Undo(ctx, transientAction(change))
	if err != nil {
		m.logger.Error("undo of rejected change failed", "change", change.ID, "error", err)
		return &models.ChangeResult{
			Success: false,
			Message: fmt.Sprintf("Change rejected but undo failed: %v", err),
			Change:  change,
			Lossy:   outcome.Lossy,
		}
	}
	m.logger.Info("rejected pending change", "change", change.ID)
	return &models.ChangeResult{Success: true, Message: "Change rejected and undone", Change: change, Lossy: outcome.Lossy}
}

// pending loads a change and checks that it can still transition.
func (m *PendingManager) pending(changeID string) (*models.PendingChange, *models.ChangeResult) {
	change, ok := m.changes.Get(changeID)
	if !ok {
		return nil, &models.ChangeResult{Success: false, Message: fmt.Sprintf("%s: %s", ErrChangeNotFound, changeID)}
	}
	if change.Status != models.ChangePending {
		return nil, &models.ChangeResult{
			Success: false,
			Message: fmt.Sprintf("change %s is already %s", change.ID, change.Status),
			Change:  change,
		}
	}
	return change, nil
}

// transientAction shapes a pending change as an action for the undo handlers.
func transientAction(change *models.PendingChange) *models.Action {
	sheet := changeSheet(change)
	return &models.Action{
		ID:             "pending-" + change.ID,
		WorkbookID:     change.WorkbookID,
		Timestamp:      change.Timestamp,
		EventType:      models.ActionEventOperation,
		Operation:      change.Operation,
		Description:    change.Description,
		AffectedRanges: ResolveRanges(change.Operation, sheet),
		DefaultSheet:   sheet,
		BeforeState:    change.BeforeState,
	}
}

// changeSheet returns the sheet unqualified references resolved against when
// the change was created.
func changeSheet(change *models.PendingChange) string {
	if change.DefaultSheet != "" {
		return change.DefaultSheet
	}
	return sheetOfRefs(change.AffectedRanges)
}

// sheetOfRefs is the fallback for changes stored without a default sheet.
func sheetOfRefs(refs []string) string {
	if len(refs) == 0 {
		return ""
	}
	sheet, addr := a1.SplitRef(refs[0])
	if sheet == "" {
		// sheet-level refs are the bare sheet name
		return addr
	}
	return sheet
}

// Get returns a change by id.
func (m *PendingManager) Get(changeID string) (*models.PendingChange, error) {
	change, ok := m.changes.Get(changeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChangeNotFound, changeID)
	}
	return change, nil
}

// GetPendingChanges returns the workbook's changes still awaiting a decision.
func (m *PendingManager) GetPendingChanges(workbookID string) []*models.PendingChange {
	var out []*models.PendingChange
	for _, c := range m.changes.ForWorkbook(workbookID) {
		if c.Status == models.ChangePending {
			out = append(out, c)
		}
	}
	return out
}

// Highlight fills the change's cell ranges with the highlight color. Call it
// after applying the change: the first call remembers the fill the operation
// left so Accept can put it back.
func (m *PendingManager) Highlight(ctx context.Context, change *models.PendingChange) error {
	if change.AppliedFills == nil {
		if err := m.rememberFills(ctx, change); err != nil {
			return err
		}
	}
	fill := m.highlight
	return m.eachRange(ctx, change, func(h document.RangeHandle, _ models.AffectedRange) error {
		return m.driver.WriteFormat(ctx, h, &models.FormatSnapshot{FillColor: &fill})
	})
}

func (m *PendingManager) rememberFills(ctx context.Context, change *models.PendingChange) error {
	fills := make(map[string]string)
	err := m.eachRange(ctx, change, func(h document.RangeHandle, r models.AffectedRange) error {
		f, err := m.driver.ReadFormat(ctx, h)
		if err != nil {
			m.logger.Debug("read fill failed", "change", change.ID, "range", r.Ref(), "error", err)
			return nil
		}
		if f != nil && f.FillColor != nil {
			fills[r.Ref()] = *f.FillColor
		}
		return nil
	})
	if err != nil {
		return err
	}
	change.AppliedFills = fills
	if err := m.changes.Save(ctx, change); err != nil {
		change.AppliedFills = nil
		return fmt.Errorf("highlight %s: %w", change.ID, err)
	}
	return nil
}

// Unhighlight puts back the fill captured before the change, or no fill.
func (m *PendingManager) Unhighlight(ctx context.Context, change *models.PendingChange) error {
	return m.eachRange(ctx, change, func(h document.RangeHandle, r models.AffectedRange) error {
		fill := beforeFill(change, r)
		return m.driver.WriteFormat(ctx, h, &models.FormatSnapshot{FillColor: &fill})
	})
}

func beforeFill(change *models.PendingChange, r models.AffectedRange) string {
	if snap, ok := change.BeforeState.Lookup(r); ok && snap.Format != nil && snap.Format.FillColor != nil {
		return *snap.Format.FillColor
	}
	return ""
}

func (m *PendingManager) unhighlight(ctx context.Context, change *models.PendingChange) {
	if err := m.Unhighlight(ctx, change); err != nil {
		m.logger.Warn("unhighlight failed", "change", change.ID, "error", err)
	}
}

// RefreshHighlights re-applies highlights for every pending change of a
// workbook and returns how many changes were highlighted.
func (m *PendingManager) RefreshHighlights(ctx context.Context, workbookID string) int {
	n := 0
	for _, c := range m.GetPendingChanges(workbookID) {
		if err := m.Highlight(ctx, c); err != nil {
			m.logger.Debug("highlight failed", "change", c.ID, "error", err)
			continue
		}
		n++
	}
	return n
}

// Workbooks returns the workbooks that have pending-change records.
func (m *PendingManager) Workbooks() []string {
	return m.changes.Workbooks()
}

func (m *PendingManager) eachRange(ctx context.Context, change *models.PendingChange, fn func(document.RangeHandle, models.AffectedRange) error) error {
	for _, r := range ResolveRanges(change.Operation, changeSheet(change)) {
		if r.IsSheetLevel() {
			continue
		}
		h, err := m.driver.ResolveRange(ctx, r.SheetName, r.Range)
		if document.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(h, r); err != nil && !document.IsNotFound(err) {
			return err
		}
	}
	return nil
}

func (m *PendingManager) activeSheet(ctx context.Context) string {
	sheet, err := m.driver.ActiveSheet(ctx)
	if err != nil {
		m.logger.Debug("active sheet unavailable", "error", err)
	}
	return sheet
}
