package models

// ActionError reports one action that could not be undone.
type ActionError struct {
	ActionID string `json:"action_id"`
	Message  string `json:"message"`
}

// RestoreResult contains the outcome of a version restore.
type RestoreResult struct {
	Success         bool          `json:"success"`
	Message         string        `json:"message"`
	RestoredVersion *Version      `json:"restored_version,omitempty"`
	RestoredActions int           `json:"restored_actions"`
	Errors          []ActionError `json:"errors,omitempty"`
	RestorePointID  string        `json:"restore_point_id,omitempty"`
	LossyActions    []string      `json:"lossy_actions,omitempty"`   // undone only approximately
	MissingActions  []string      `json:"missing_actions,omitempty"` // listed in the version but no longer stored
}

// ChangeResult contains the outcome of accepting or rejecting a pending change.
type ChangeResult struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Change   *PendingChange `json:"change,omitempty"`
	ActionID string         `json:"action_id,omitempty"`
	Lossy    bool           `json:"lossy,omitempty"`
}
