package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kilupskalvis/sheetvc/internal/models"
)

// RestoreOptions configures RestoreVersion.
type RestoreOptions struct {
	VersionID string
	// CreateRestorePoint saves a version of the current state first so the
	// restore itself can be undone.
	CreateRestorePoint bool
	// Selective limits the restore to actions touching SelectiveRanges
	// ("Sheet1!A1:B2"), matched exactly on sheet and range.
	Selective       bool
	SelectiveRanges []string
}

// DefaultRestoreOptions returns options restoring versionID with a restore point.
func DefaultRestoreOptions(versionID string) RestoreOptions {
	return RestoreOptions{VersionID: versionID, CreateRestorePoint: true}
}

// Restorer rolls a workbook back by undoing the actions of a version.
type Restorer struct {
	versions *VersionService
	undoer   *Undoer
	logger   *slog.Logger
}

// NewRestorer creates a Restorer.
func NewRestorer(versions *VersionService, undoer *Undoer, logger *slog.Logger) *Restorer {
	return &Restorer{versions: versions, undoer: undoer, logger: logger}
}

// RestoreVersion undoes exactly the actions listed in the version, newest
// first. A failing action is reported and the rest still run.
func (r *Restorer) RestoreVersion(ctx context.Context, opts RestoreOptions) *models.RestoreResult {
	v, err := r.versions.GetVersion(opts.VersionID)
	if err != nil {
		return &models.RestoreResult{Success: false, Message: err.Error()}
	}
	result := &models.RestoreResult{RestoredVersion: v}

	if opts.CreateRestorePoint {
		point, err := r.versions.CreateVersion(ctx, v.WorkbookID, VersionOptions{
			Description: fmt.Sprintf("Restore point before restoring %q", v.Description),
			EventType:   models.VersionRestore,
		})
		if err != nil {
			r.logger.Warn("restore point not created", "version", v.ID, "error", err)
		} else {
			result.RestorePointID = point.ID
		}
	}

	actions, missing := r.versions.resolveActions(v)
	result.MissingActions = missing
	if len(missing) > 0 {
		r.logger.Warn("version lists actions that are no longer stored", "version", v.ID, "missing", len(missing))
	}
	if len(actions) == 0 {
		result.Message = fmt.Sprintf("%s for version %s", ErrNoActions, v.ShortID())
		return result
	}

	if opts.Selective {
		actions = filterByRanges(actions, opts.SelectiveRanges)
		if len(actions) == 0 {
			result.Success = true
			result.Message = "No actions in the selected ranges"
			return result
		}
	}

	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		outcome, err := r.undoer.Undo(ctx, a)
		if err != nil {
			r.logger.Error("undo failed", "action", a.ID, "error", err)
			result.Errors = append(result.Errors, models.ActionError{ActionID: a.ID, Message: err.Error()})
			continue
		}
		result.RestoredActions++
		if outcome.Lossy {
			result.LossyActions = append(result.LossyActions, a.ID)
		}
	}

	result.Success = len(result.Errors) == 0
	if result.Success {
		result.Message = fmt.Sprintf("Restored %d actions from %q", result.RestoredActions, v.Description)
	} else {
		result.Message = fmt.Sprintf("Restored %d of %d actions from %q; %d failed",
			result.RestoredActions, len(actions), v.Description, len(result.Errors))
	}
	r.logger.Info("restored version", "version", v.ID, "restored", result.RestoredActions, "errors", len(result.Errors))
	return result
}

// UndoAction reverses one recorded action, independent of any version.
func (r *Restorer) UndoAction(ctx context.Context, actionID string) *models.RestoreResult {
	a, err := r.versions.GetAction(actionID)
	if err != nil {
		return &models.RestoreResult{Success: false, Message: err.Error()}
	}
	result := &models.RestoreResult{}
	outcome, err := r.undoer.Undo(ctx, a)
	if err != nil {
		result.Errors = []models.ActionError{{ActionID: a.ID, Message: err.Error()}}
		result.Message = fmt.Sprintf("Undo of %q failed: %v", a.Description, err)
		return result
	}
	result.Success = true
	result.RestoredActions = 1
	if outcome.Lossy {
		result.LossyActions = []string{a.ID}
	}
	result.Message = fmt.Sprintf("Undid %q", a.Description)
	return result
}

// filterByRanges keeps actions with at least one affected range equal to one
// of refs.
func filterByRanges(actions []*models.Action, refs []string) []*models.Action {
	wanted := make(map[models.AffectedRange]bool, len(refs))
	for _, ref := range refs {
		r := ParseRef(ref, "")
		wanted[models.AffectedRange{SheetName: r.SheetName, Range: r.Range}] = true
	}
	var out []*models.Action
	for _, a := range actions {
		for _, r := range a.AffectedRanges {
			if wanted[models.AffectedRange{SheetName: r.SheetName, Range: r.Range}] {
				out = append(out, a)
				break
			}
		}
	}
	return out
}
