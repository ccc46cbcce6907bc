package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilupskalvis/sheetvc/internal/document"
	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/kilupskalvis/sheetvc/internal/store"
)

// RecorderOptions configures deduplication.
type RecorderOptions struct {
	// DedupWindow is how long an id or fingerprint is remembered (default 5s).
	DedupWindow time.Duration
	// WindowSize caps the number of entries held by the window.
	WindowSize int
	// PermanentFingerprints also rejects fingerprints of any stored action,
	// not only those inside the window. It is off by default, so an identical
	// operation repeated after the window has passed is recorded again.
	PermanentFingerprints bool
	Clock                 Clock
}

// Recorder stores an Action for every operation applied to a workbook.
type Recorder struct {
	history  *store.History
	driver   document.Driver
	capturer *Capturer
	window   *Window
	logger   *slog.Logger
	now      Clock

	permanentFingerprints bool

	mu           sync.Mutex
	ids          map[string]string // workbook-scoped operation id -> action id
	fingerprints map[string]string // workbook-scoped fingerprint -> action id
	last         time.Time

	locks keyedMutex
}

// NewRecorder creates a Recorder and seeds its dedup sets from the history.
func NewRecorder(history *store.History, driver document.Driver, logger *slog.Logger, opts RecorderOptions) *Recorder {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	r := &Recorder{
		history:               history,
		driver:                driver,
		capturer:              NewCapturer(driver, logger),
		window:                NewWindow(opts.DedupWindow, opts.WindowSize, now),
		logger:                logger,
		now:                   now,
		permanentFingerprints: opts.PermanentFingerprints,
		ids:                   make(map[string]string),
		fingerprints:          make(map[string]string),
	}
	for _, id := range history.ActionIDs() {
		a, ok := history.GetAction(id)
		if !ok || a.Operation == nil {
			continue
		}
		if a.Operation.ID != "" {
			r.ids[idKey(a.WorkbookID, a.Operation.ID)] = a.ID
		}
		if r.permanentFingerprints {
			r.fingerprints[fingerprintKey(a.WorkbookID, a.Operation)] = a.ID
		}
	}
	return r
}

// Capturer returns the capturer used for before-state snapshots.
func (r *Recorder) Capturer() *Capturer { return r.capturer }

// Record resolves, captures and stores op as an Action, returning its id.
// Call it immediately before applying op. Duplicates return the id recorded
// first. Record never fails: on error it logs and returns a fresh id.
func (r *Recorder) Record(ctx context.Context, workbookID string, op *models.Operation) string {
	id, _, err := r.record(ctx, workbookID, op, nil, "", models.ActionEventOperation, nil)
	if err != nil {
		r.logger.Error("record action failed", "workbook", workbookID, "error", err)
		return uuid.New().String()
	}
	return id
}

// RecordCaptured stores op with a before-state captured earlier. defaultSheet
// is the sheet that was active when before was captured; unqualified
// references resolve against it instead of the current active sheet. Unlike
// Record it reports persistence failures. recorded is false when op was a
// duplicate of an existing action.
func (r *Recorder) RecordCaptured(ctx context.Context, workbookID string, op *models.Operation, before *models.BeforeState, defaultSheet string, metadata map[string]any) (id string, recorded bool, err error) {
	if before == nil {
		before = &models.BeforeState{}
	}
	return r.record(ctx, workbookID, op, before, defaultSheet, models.ActionEventAcceptedChange, metadata)
}

func (r *Recorder) record(ctx context.Context, workbookID string, op *models.Operation,
	before *models.BeforeState, defaultSheet string, event models.ActionEventType, metadata map[string]any) (string, bool, error) {
	if op == nil {
		return "", false, fmt.Errorf("record: nil operation")
	}
	if workbookID == "" {
		return "", false, fmt.Errorf("record: empty workbook id")
	}

	unlock := r.locks.Lock(workbookID)
	defer unlock()

	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	fp := fingerprintKey(workbookID, op)
	opKey := idKey(workbookID, op.ID)

	r.window.Prune()
	if existing, dup := r.duplicate(opKey, fp); dup {
		r.logger.Debug("duplicate operation", "operation", op.ID, "action", existing)
		return existing, false, nil
	}

	actionID := uuid.New().String()
	r.window.Add(actionID, opKey, fp)

	if defaultSheet == "" {
		var err error
		defaultSheet, err = r.driver.ActiveSheet(ctx)
		if err != nil {
			r.logger.Warn("active sheet unavailable", "error", err)
		}
	}
	ranges := ResolveRanges(op, defaultSheet)
	if before == nil {
		before = r.capturer.Capture(ctx, ranges)
	}

	action := &models.Action{
		ID:             actionID,
		WorkbookID:     workbookID,
		Timestamp:      r.timestamp(),
		EventType:      event,
		Operation:      op,
		Description:    Describe(op, ranges),
		AffectedRanges: ranges,
		DefaultSheet:   defaultSheet,
		BeforeState:    before,
		Metadata:       metadata,
	}
	if err := r.history.SaveAction(ctx, action); err != nil {
		r.window.Remove(opKey, fp)
		return "", false, fmt.Errorf("persist action: %w", err)
	}

	r.mu.Lock()
	r.ids[opKey] = actionID
	if r.permanentFingerprints {
		r.fingerprints[fp] = actionID
	}
	r.mu.Unlock()

	r.logger.Debug("recorded action", "workbook", workbookID, "action", actionID, "kind", op.Kind)
	return actionID, true, nil
}

// duplicate checks the permanent id set, the permanent fingerprint set and
// then the time window, in that order.
func (r *Recorder) duplicate(opKey, fp string) (string, bool) {
	r.mu.Lock()
	if id, ok := r.ids[opKey]; ok {
		r.mu.Unlock()
		return id, true
	}
	if id, ok := r.fingerprints[fp]; ok {
		r.mu.Unlock()
		return id, true
	}
	r.mu.Unlock()

	if id, ok := r.window.Lookup(opKey); ok {
		return id, true
	}
	return r.window.Lookup(fp)
}

// timestamp returns the current time, strictly after the previous one.
func (r *Recorder) timestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.now()
	if !ts.After(r.last) {
		ts = r.last.Add(time.Nanosecond)
	}
	r.last = ts
	return ts
}

func idKey(workbookID, opID string) string {
	return "id:" + workbookID + "|" + opID
}

func fingerprintKey(workbookID string, op *models.Operation) string {
	return "fp:" + workbookID + "|" + models.Fingerprint(op)
}

// keyedMutex serialises work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
