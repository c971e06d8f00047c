package sqlkv

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timersync/internal/domain"
	"timersync/internal/state"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_SetGetDelete(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMany(ctx, map[string]string{"a": `"1"`, "b": `true`}))
	require.NoError(t, s.SetMany(ctx, map[string]string{"a": `"2"`}))

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"2"`, v)

	require.NoError(t, s.Delete(ctx, "a", "b"))
	_, ok, err = s.Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_GetManyOmitsAbsentKeys(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.SetMany(ctx, map[string]string{"a": `"1"`, "b": `"2"`, "c": `"3"`}))

	got, err := s.GetMany(ctx, "a", "c", "missing")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": `"1"`, "c": `"3"`}, got)

	got, err = s.GetMany(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLite_FilePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "timersync.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path, discard())
	require.NoError(t, err)
	require.NoError(t, s.SetMany(ctx, map[string]string{"quickStartEnabled": "true"}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, discard())
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get(ctx, "quickStartEnabled")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)
}

func TestSQLite_BacksStateStore(t *testing.T) {
	kv := openMemory(t)
	st := state.NewStore(kv, discard())
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveRecord(ctx, domain.TimerRecord{EntryID: "e1", WorkspaceID: "ws-1", Start: start, TagIDs: []string{"t"}}))
	rec, err := st.LoadRecord(ctx)
	require.NoError(t, err)
	assert.Equal(t, "e1", rec.EntryID)
	assert.Equal(t, []string{"t"}, rec.TagIDs)

	require.NoError(t, st.Clear(ctx))
	rec, err = st.LoadRecord(ctx)
	require.NoError(t, err)
	assert.True(t, rec.Idle())
}

func TestUpsertQuery_PerDialect(t *testing.T) {
	assert.Contains(t, New(nil, MySQL, discard()).upsertQuery(), "ON DUPLICATE KEY UPDATE")
	assert.Contains(t, New(nil, SQLite, discard()).upsertQuery(), "ON CONFLICT(state_key)")
}
