package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/kilupskalvis/sheetvc/internal/store"
)

// DefaultAuthor is used when a version has no author.
const DefaultAuthor = "User"

// VersionOptions configures CreateVersion.
type VersionOptions struct {
	Description string
	EventType   models.VersionEventType
	Author      string
	Tags        []string
	// IncludeActionsSince selects actions at or after this time instead of
	// those recorded after the latest version.
	IncludeActionsSince *time.Time
}

// VersionService groups recorded actions into checkpoints and answers
// history queries.
type VersionService struct {
	history *store.History
	logger  *slog.Logger
	now     Clock
	author  string
}

// NewVersionService creates a VersionService. An empty author uses DefaultAuthor.
func NewVersionService(history *store.History, logger *slog.Logger, author string, now Clock) *VersionService {
	if author == "" {
		author = DefaultAuthor
	}
	if now == nil {
		now = time.Now
	}
	return &VersionService{history: history, logger: logger, now: now, author: author}
}

// CreateVersion stores a checkpoint of the workbook's actions since the
// latest version (all actions if there is none), or since
// opts.IncludeActionsSince when set.
func (s *VersionService) CreateVersion(ctx context.Context, workbookID string, opts VersionOptions) (*models.Version, error) {
	if workbookID == "" {
		return nil, fmt.Errorf("create version: empty workbook id")
	}
	event := opts.EventType
	if event == "" {
		event = models.VersionManualSave
	}
	author := opts.Author
	if author == "" {
		author = s.author
	}

	ts := s.now()
	selected := s.selectActions(workbookID, opts.IncludeActionsSince)
	ids := make([]string, len(selected))
	for i, a := range selected {
		ids[i] = a.ID
	}

	description := opts.Description
	if description == "" {
		description = fmt.Sprintf("%s save at %s", event.Label(), ts.Format(time.RFC3339))
	}

	v := &models.Version{
		ID:          uuid.New().String(),
		WorkbookID:  workbookID,
		Timestamp:   ts,
		EventType:   event,
		Description: description,
		Author:      author,
		ActionIDs:   ids,
		Tags:        opts.Tags,
	}
	if err := s.history.SaveVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("create version: %w", err)
	}
	s.logger.Info("created version", "workbook", workbookID, "version", v.ID, "event", event, "actions", len(ids))
	return v, nil
}

// selectActions returns matching actions, oldest first.
func (s *VersionService) selectActions(workbookID string, since *time.Time) []*models.Action {
	var cutoff time.Time
	inclusive := false
	switch {
	case since != nil:
		cutoff = *since
		inclusive = true
	default:
		if latest := s.history.LatestVersion(workbookID); latest != nil {
			cutoff = latest.Timestamp
		}
	}

	var out []*models.Action
	for _, a := range s.history.Actions(workbookID) {
		if a.Timestamp.After(cutoff) || (inclusive && a.Timestamp.Equal(cutoff)) {
			out = append(out, a)
		}
	}
	sortByTimestamp(out)
	return out
}

// UnversionedActions returns the actions a new version would include, oldest first.
func (s *VersionService) UnversionedActions(workbookID string) []*models.Action {
	return s.selectActions(workbookID, nil)
}

// GetVersions returns a workbook's versions, newest first.
func (s *VersionService) GetVersions(workbookID string) []*models.Version {
	return s.history.Versions(workbookID)
}

// GetVersion returns a version by id.
func (s *VersionService) GetVersion(versionID string) (*models.Version, error) {
	v, ok := s.history.GetVersion(versionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}
	return v, nil
}

// GetActionsForVersion returns the version's actions in ascending timestamp
// order. Ids no longer stored are skipped.
func (s *VersionService) GetActionsForVersion(versionID string) ([]*models.Action, error) {
	v, err := s.GetVersion(versionID)
	if err != nil {
		return nil, err
	}
	actions, _ := s.resolveActions(v)
	return actions, nil
}

// resolveActions also returns the ids that could not be found.
func (s *VersionService) resolveActions(v *models.Version) ([]*models.Action, []string) {
	var actions []*models.Action
	var missing []string
	for _, id := range v.ActionIDs {
		a, ok := s.history.GetAction(id)
		if !ok || a.WorkbookID != v.WorkbookID {
			missing = append(missing, id)
			continue
		}
		actions = append(actions, a)
	}
	sortByTimestamp(actions)
	return actions, missing
}

// GetAction returns an action by id.
func (s *VersionService) GetAction(actionID string) (*models.Action, error) {
	a, ok := s.history.GetAction(actionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, actionID)
	}
	return a, nil
}

// GetAllActions returns every action of a workbook, newest first.
func (s *VersionService) GetAllActions(workbookID string) []*models.Action {
	return s.history.Actions(workbookID)
}

// SearchVersions returns the workbook's versions whose description, author,
// tags or contained action descriptions contain query, case-insensitively.
func (s *VersionService) SearchVersions(workbookID, query string) []*models.Version {
	q := strings.ToLower(strings.TrimSpace(query))
	versions := s.history.Versions(workbookID)
	if q == "" {
		return versions
	}

	var out []*models.Version
	for _, v := range versions {
		if s.matches(v, q) {
			out = append(out, v)
		}
	}
	return out
}

func (s *VersionService) matches(v *models.Version, q string) bool {
	if strings.Contains(strings.ToLower(v.Description), q) || strings.Contains(strings.ToLower(v.Author), q) {
		return true
	}
	for _, tag := range v.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	for _, id := range v.ActionIDs {
		if a, ok := s.history.GetAction(id); ok && strings.Contains(strings.ToLower(a.Description), q) {
			return true
		}
	}
	return false
}

// ClearVersionHistory removes every action and version of a workbook.
func (s *VersionService) ClearVersionHistory(ctx context.Context, workbookID string) error {
	actions, versions, err := s.history.ClearWorkbook(ctx, workbookID)
	if err != nil {
		return err
	}
	s.logger.Info("cleared version history", "workbook", workbookID, "actions", actions, "versions", versions)
	return nil
}

// Workbooks returns the ids of workbooks with recorded history.
func (s *VersionService) Workbooks() []string {
	return s.history.Workbooks()
}

func sortByTimestamp(actions []*models.Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Timestamp.Before(actions[j].Timestamp)
	})
}
