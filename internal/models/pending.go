package models

import "time"

// ChangeStatus is the approval state of a PendingChange.
type ChangeStatus string

const (
	ChangePending  ChangeStatus = "pending"
	ChangeAccepted ChangeStatus = "accepted"
	ChangeRejected ChangeStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed.
func (s ChangeStatus) IsTerminal() bool {
	return s == ChangeAccepted || s == ChangeRejected
}

// PendingChange is an operation that has been applied to the document but not
// yet approved. Accepting folds it into the history; rejecting undoes it.
type PendingChange struct {
	ID             string       `json:"id"`
	WorkbookID     string       `json:"workbook_id"`
	Operation      *Operation   `json:"operation"`
	BeforeState    *BeforeState `json:"before_state,omitempty"`
	Status         ChangeStatus `json:"status"`
	Timestamp      time.Time    `json:"timestamp"`
	AffectedRanges []string     `json:"affected_ranges"`
	DefaultSheet   string       `json:"default_sheet,omitempty"`
	CommandID      string       `json:"command_id,omitempty"`
	Description    string       `json:"description"`

	// AppliedFills is the fill each highlighted range had after the operation
	// was applied, keyed by "Sheet!A1" ref.
	AppliedFills map[string]string `json:"applied_fills,omitempty"`
}
