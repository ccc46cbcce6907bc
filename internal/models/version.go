package models

import "time"

// VersionEventType records why a checkpoint was created.
type VersionEventType string

const (
	VersionManualSave VersionEventType = "manual-save"
	VersionAutoSave   VersionEventType = "auto-save"
	VersionRestore    VersionEventType = "restore"
	VersionInitial    VersionEventType = "initial"
)

// Label returns the word used in generated descriptions.
func (t VersionEventType) Label() string {
	switch t {
	case VersionAutoSave:
		return "Auto"
	case VersionRestore:
		return "Restore"
	case VersionInitial:
		return "Initial"
	default:
		return "Manual"
	}
}

// Version is a checkpoint bundling the actions recorded since the previous one.
// ActionIDs is a point-in-time list and is not guaranteed to be sorted.
type Version struct {
	ID          string           `json:"id"`
	WorkbookID  string           `json:"workbook_id"`
	Timestamp   time.Time        `json:"timestamp"`
	EventType   VersionEventType `json:"event_type"`
	Description string           `json:"description"`
	Author      string           `json:"author"`
	ActionIDs   []string         `json:"action_ids"`
	Tags        []string         `json:"tags,omitempty"`
}

// ShortID returns a shortened version ID (first 8 characters)
func (v *Version) ShortID() string {
	if len(v.ID) > 8 {
		return v.ID[:8]
	}
	return v.ID
}
