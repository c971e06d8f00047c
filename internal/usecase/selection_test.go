package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timersync/internal/domain"
)

func withDefaults(d SelectionDefaults) func(*EngineConfig) {
	return func(c *EngineConfig) { c.Defaults = d }
}

func TestStart_SelectionLayers(t *testing.T) {
	h := newHarness(t, withDefaults(SelectionDefaults{
		ProjectID: "default-project",
		TagIDs:    []string{"default-tag"},
		RepoMappings: map[string]domain.RepoSelection{
			"Acme/Widgets": {ProjectID: "mapped-project", TaskID: "mapped-task"},
		},
		LabelTags: map[string]string{"bug": "tag-bug"},
	}))
	ctx := context.Background()

	_, err := h.engine.Start(ctx, StartRequest{
		Repo:   "git@github.com:acme/widgets.git",
		Branch: "fix-login",
		Labels: []string{"Bug", "unmapped"},
	})
	require.NoError(t, err)

	starts := h.api.Starts()
	require.Len(t, starts, 1)
	assert.Equal(t, "mapped-project", starts[0].ProjectID)
	assert.Equal(t, "mapped-task", starts[0].TaskID)
	assert.Equal(t, []string{"default-tag", "tag-bug"}, starts[0].TagIDs)
	assert.Equal(t, "fix-login (acme/widgets)", starts[0].Description)
}

func TestStart_RememberedSelectionNeedsQuickStart(t *testing.T) {
	h := newHarness(t, withDefaults(SelectionDefaults{ProjectID: "default-project"}))
	ctx := context.Background()
	require.NoError(t, h.store.SaveRepoSelection(ctx, "acme/widgets", domain.RepoSelection{ProjectID: "remembered"}))

	_, err := h.engine.Start(ctx, StartRequest{Repo: "acme/widgets"})
	require.NoError(t, err)
	assert.Equal(t, "default-project", h.api.Starts()[0].ProjectID)

	require.NoError(t, h.store.SetQuickStart(ctx, true))
	require.NoError(t, h.store.SaveRepoSelection(ctx, "acme/widgets", domain.RepoSelection{ProjectID: "remembered"}))
	_, err = h.engine.Start(ctx, StartRequest{Repo: "acme/widgets"})
	require.NoError(t, err)
	assert.Equal(t, "remembered", h.api.Starts()[1].ProjectID)

	// Explicit choices beat everything.
	_, err = h.engine.Start(ctx, StartRequest{Repo: "acme/widgets", ProjectID: "explicit"})
	require.NoError(t, err)
	assert.Equal(t, "explicit", h.api.Starts()[2].ProjectID)
}

func TestStart_RemembersSelectionForRepo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, StartRequest{Repo: "https://github.com/acme/widgets", ProjectID: "p1", TagIDs: []string{"t1"}})
	require.NoError(t, err)

	sel, ok, err := h.store.RepoSelection(ctx, "acme/widgets")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ws-1", sel.WorkspaceID)
	assert.Equal(t, "p1", sel.ProjectID)
	assert.Equal(t, []string{"t1"}, sel.TagIDs)
}

func TestStart_MandatoryFields(t *testing.T) {
	h := newHarness(t)
	h.api.Settings = domain.WorkspaceSettings{ProjectRequired: true, TaskRequired: true}
	ctx := context.Background()

	_, err := h.engine.Start(ctx, StartRequest{Description: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.engine.Start(ctx, StartRequest{Description: "x", ProjectID: "p1"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, h.api.Calls("StartEntry"))

	_, err = h.engine.Start(ctx, StartRequest{Description: "x", ProjectID: "p1", TaskID: "t1"})
	require.NoError(t, err)
}

func TestStart_SettingsFailureIsPermissive(t *testing.T) {
	h := newHarness(t)
	h.api.SettingsErr = &domain.APIError{Op: "workspace settings", Status: 500, Err: domain.ErrNetwork}

	_, err := h.engine.Start(context.Background(), StartRequest{Description: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.api.Calls("StartEntry"))
}

func TestStart_TaskWithoutProject(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Start(context.Background(), StartRequest{TaskID: "t1"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		req  StartRequest
		want string
	}{
		{"explicit", StartRequest{Description: " review ", Repo: "acme/widgets", Branch: "main"}, "review"},
		{"branch and repo", StartRequest{Repo: "acme/widgets", Branch: "main"}, "main (acme/widgets)"},
		{"repo only", StartRequest{Repo: "acme/widgets"}, "acme/widgets"},
		{"branch only", StartRequest{Branch: "main"}, "main"},
		{"nothing", StartRequest{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.req))
		})
	}
}
