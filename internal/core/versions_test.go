package core

import (
	"errors"
	"testing"
	"time"

	"github.com/kilupskalvis/sheetvc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateVersion_GroupsActionsSinceLatest(t *testing.T) {
	env := newTestEnv(t)

	a1 := env.do(t, setValue("op-1", "A1", 1.0))
	a2 := env.do(t, setValue("op-2", "A2", 2.0))
	v1, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{Description: "first"})
	require.NoError(t, err)
	assert.Equal(t, []string{a1, a2}, v1.ActionIDs)
	assert.Equal(t, models.VersionManualSave, v1.EventType)
	assert.Equal(t, DefaultAuthor, v1.Author)

	a3 := env.do(t, setValue("op-3", "A3", 3.0))
	v2, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{Description: "second"})
	require.NoError(t, err)
	assert.Equal(t, []string{a3}, v2.ActionIDs)

	// Empty version when nothing changed
	v3, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{})
	require.NoError(t, err)
	assert.Empty(t, v3.ActionIDs)
	assert.Contains(t, v3.Description, "Manual save at ")
}

func TestCreateVersion_IncludeActionsSince(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, setValue("op-1", "A1", 1.0))
	_, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{})
	require.NoError(t, err)
	a2 := env.do(t, setValue("op-2", "A2", 2.0))
	a, _ := env.history.GetAction(a2)

	since := a.Timestamp
	v, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{IncludeActionsSince: &since})
	require.NoError(t, err)
	assert.Equal(t, []string{a2}, v.ActionIDs, "cutoff is inclusive")

	epoch := time.Time{}
	all, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{IncludeActionsSince: &epoch})
	require.NoError(t, err)
	assert.Len(t, all.ActionIDs, 2)
}

func TestCreateVersion_AutoSaveLabel(t *testing.T) {
	env := newTestEnv(t)

	v, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{EventType: models.VersionAutoSave, Author: "copilot", Tags: []string{"nightly"}})
	require.NoError(t, err)

	assert.Contains(t, v.Description, "Auto save at ")
	assert.Equal(t, "copilot", v.Author)
	assert.Equal(t, []string{"nightly"}, v.Tags)
}

func TestCreateVersion_PersistFailure(t *testing.T) {
	env := newTestEnv(t)
	env.backend.FailWrites(errors.New("disk full"))

	_, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{})

	require.Error(t, err)
	assert.Empty(t, env.versions.GetVersions("wb-1"))
}

func TestCreateVersion_EmptyWorkbook(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.versions.CreateVersion(env.ctx, "", VersionOptions{})
	assert.Error(t, err)
}

func TestGetVersions_NewestFirst(t *testing.T) {
	env := newTestEnv(t)
	for _, d := range []string{"one", "two", "three"} {
		_, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{Description: d})
		require.NoError(t, err)
	}

	versions := env.versions.GetVersions("wb-1")

	require.Len(t, versions, 3)
	assert.Equal(t, "three", versions[0].Description)
	assert.Equal(t, "one", versions[2].Description)
}

func TestGetVersion_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.versions.GetVersion("missing")
	assert.ErrorIs(t, err, ErrVersionNotFound)

	_, err = env.versions.GetAction("missing")
	assert.ErrorIs(t, err, ErrActionNotFound)
}

func TestGetActionsForVersion_Ascending(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.do(t, setValue("op-1", "A1", 1.0))
	a2 := env.do(t, setValue("op-2", "A2", 2.0))
	v, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{})
	require.NoError(t, err)

	actions, err := env.versions.GetActionsForVersion(v.ID)
	require.NoError(t, err)

	require.Len(t, actions, 2)
	assert.Equal(t, a1, actions[0].ID)
	assert.Equal(t, a2, actions[1].ID)
}

func TestUnversionedActions(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, setValue("op-1", "A1", 1.0))
	_, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{})
	require.NoError(t, err)
	assert.Empty(t, env.versions.UnversionedActions("wb-1"))

	a2 := env.do(t, setValue("op-2", "A2", 2.0))
	pending := env.versions.UnversionedActions("wb-1")
	require.Len(t, pending, 1)
	assert.Equal(t, a2, pending[0].ID)
	assert.Len(t, env.versions.GetAllActions("wb-1"), 2)
}

func TestSearchVersions(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, setValue("op-1", "B7", "Revenue"))
	_, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{Description: "Quarterly totals"})
	require.NoError(t, err)
	_, err = env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{Description: "Cleanup", Tags: []string{"release"}})
	require.NoError(t, err)

	assert.Len(t, env.versions.SearchVersions("wb-1", "quarterly"), 1)
	assert.Len(t, env.versions.SearchVersions("wb-1", "RELEASE"), 1)
	assert.Len(t, env.versions.SearchVersions("wb-1", "revenue"), 1, "matches action descriptions")
	assert.Len(t, env.versions.SearchVersions("wb-1", "user"), 2, "matches author")
	assert.Len(t, env.versions.SearchVersions("wb-1", ""), 2)
	assert.Empty(t, env.versions.SearchVersions("wb-1", "nothing"))
	assert.Empty(t, env.versions.SearchVersions("wb-2", "quarterly"))
}

func TestClearVersionHistory_Isolation(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, setValue("op-1", "A1", 1.0))
	env.recorder.Record(env.ctx, "wb-2", setValue("op-2", "A1", 1.0))
	_, err := env.versions.CreateVersion(env.ctx, "wb-1", VersionOptions{})
	require.NoError(t, err)
	_, err = env.versions.CreateVersion(env.ctx, "wb-2", VersionOptions{})
	require.NoError(t, err)

	require.NoError(t, env.versions.ClearVersionHistory(env.ctx, "wb-1"))

	assert.Empty(t, env.versions.GetVersions("wb-1"))
	assert.Empty(t, env.versions.GetAllActions("wb-1"))
	assert.Len(t, env.versions.GetVersions("wb-2"), 1)
	assert.Len(t, env.versions.GetAllActions("wb-2"), 1)
	assert.Equal(t, []string{"wb-2"}, env.versions.Workbooks())
}
