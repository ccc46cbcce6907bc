// Package core implements recording, checkpointing, undo and restore of
// workbook operations, plus the pending-change approval layer.
package core

import "errors"

var (
	// ErrVersionNotFound is returned when a version id is unknown.
	ErrVersionNotFound = errors.New("version not found")
	// ErrActionNotFound is returned when an action id is unknown.
	ErrActionNotFound = errors.New("action not found")
	// ErrChangeNotFound is returned when a pending change id is unknown.
	ErrChangeNotFound = errors.New("pending change not found")
	// ErrNoActions is returned when a version has no restorable actions.
	ErrNoActions = errors.New("no actions found")
)
