package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timersync/internal/domain"
)

func recentEntries() []domain.TimeEntry {
	end := t0.Add(-time.Hour)
	return []domain.TimeEntry{
		{ID: "old", WorkspaceID: "ws-1", Description: "too old", Start: t0.AddDate(0, 0, -10), End: &end},
		{ID: "a", WorkspaceID: "ws-1", Description: "review", ProjectID: "p1", TaskID: "t1", TagIDs: []string{"tag-1"}, Start: t0.AddDate(0, 0, -3), End: &end},
		{ID: "b", WorkspaceID: "ws-1", Start: t0.Add(-2 * time.Hour), End: &end},
	}
}

func TestHistory_NewestFirstWithinWindow(t *testing.T) {
	h := newHarness(t)
	h.api.Entries = recentEntries()

	got, err := h.engine.History(context.Background(), 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, te := range got {
		ids = append(ids, te.ID)
	}
	assert.Equal(t, []string{"b", "a"}, ids)
}

func TestHistory_IncludesRunningEntryOnce(t *testing.T) {
	h := newHarness(t)
	h.api.Entries = recentEntries()
	rec := h.startRunning(t)

	got, err := h.engine.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rec.EntryID, got[0].ID)
	assert.True(t, got[0].Running())
}

func TestResume_CarriesOverSelection(t *testing.T) {
	h := newHarness(t)
	h.api.Entries = recentEntries()

	rec, err := h.engine.Resume(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, PhaseRunning, h.engine.Phase())
	assert.Equal(t, rec.EntryID, h.loadRecord(t).EntryID)

	starts := h.api.Starts()
	require.Len(t, starts, 1)
	assert.Equal(t, "review", starts[0].Description)
	assert.Equal(t, "p1", starts[0].ProjectID)
	assert.Equal(t, "t1", starts[0].TaskID)
	assert.Equal(t, []string{"tag-1"}, starts[0].TagIDs)
	assert.True(t, starts[0].Start.Equal(t0))
}

func TestResume_EmptyDescriptionGetsDefault(t *testing.T) {
	h := newHarness(t)
	h.api.Entries = recentEntries()

	_, err := h.engine.Resume(context.Background(), "b")
	require.NoError(t, err)
	require.Len(t, h.api.Starts(), 1)
	assert.Equal(t, resumedDescription, h.api.Starts()[0].Description)
}

func TestResume_UnknownEntry(t *testing.T) {
	h := newHarness(t)
	h.api.Entries = recentEntries()

	_, err := h.engine.Resume(context.Background(), "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, PhaseIdle, h.engine.Phase())
	assert.Equal(t, 0, h.api.Calls("StartEntry"))
}
