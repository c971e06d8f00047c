//go:build e2e

package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	msql "timersync/internal/adapter/mysql"
	"timersync/internal/adapter/sqlkv"
	"timersync/internal/app"
	"timersync/internal/config"
	"timersync/internal/domain"
	"timersync/internal/migrate"
	"timersync/internal/ports/portstest"
	"timersync/internal/remote"
	"timersync/internal/state"
	"timersync/internal/usecase"
)

// startMySQL runs a throwaway MySQL, applies migrations and returns its DSN.
func startMySQL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_DATABASE":      "testdb",
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_USER":          "test",
			"MYSQL_PASSWORD":      "pass",
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(90 * time.Second),
	}
	mysqlC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start mysql container")
	t.Cleanup(func() { _ = mysqlC.Terminate(context.Background()) })

	host, err := mysqlC.Host(ctx)
	require.NoError(t, err)
	port, err := mysqlC.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true", "test", "pass", host, port.Port(), "testdb")

	require.NoError(t, migrate.Run(ctx, dsn, testLogger()))
	return dsn
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestMySQL(t *testing.T) {
	dsn := startMySQL(t)
	ctx := context.Background()
	logger := testLogger()

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	t.Run("archive upserts entries", func(t *testing.T) {
		sink, err := msql.NewClient(ctx, dsn, logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = sink.Close() })

		start := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
		stop := start.Add(90 * time.Minute)
		api := portstest.NewFakeAPI()
		api.ProjectList = []domain.Project{{ID: "p-1", WorkspaceID: "ws-1", Name: "Backend"}}
		api.Entries = []domain.TimeEntry{
			{ID: "e-1", WorkspaceID: "ws-1", UserID: "user-1", Description: "Dev work", ProjectID: "p-1", TagIDs: []string{"dev", "feature"}, Start: start, End: &stop},
			{ID: "e-2", WorkspaceID: "ws-1", UserID: "user-1", Description: "Meeting", TagIDs: []string{"meeting"}, Start: start.Add(2 * time.Hour), End: &stop},
		}
		api.SetRunning(&domain.TimeEntry{ID: "e-3", WorkspaceID: "ws-1", UserID: "user-1", Start: start.Add(3 * time.Hour)})

		uc := &usecase.ArchiveUseCase{
			Log:    logger,
			Remote: remote.NewFetcher(api, remote.Config{}, logger),
			Sink:   sink,
		}
		require.NoError(t, uc.Run(ctx, "", start.Add(-time.Hour), start.Add(4*time.Hour)))
		assert.Equal(t, 2, count(t, db, "time_entries"), "running entry is not archived")
		assert.Equal(t, 1, count(t, db, "projects"))

		// Run again to assert idempotency (upsert)
		require.NoError(t, uc.Run(ctx, "", start.Add(-time.Hour), start.Add(4*time.Hour)))
		assert.Equal(t, 2, count(t, db, "time_entries"))
		assert.Equal(t, 1, count(t, db, "projects"))
	})

	t.Run("state backend round trip", func(t *testing.T) {
		kv, err := sqlkv.OpenMySQL(ctx, dsn, logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = kv.Close() })

		store := state.NewStore(kv, logger)
		rec := domain.TimerRecord{
			EntryID:     "e-9",
			UserID:      "user-1",
			WorkspaceID: "ws-1",
			Description: "review",
			Start:       time.Date(2025, 8, 2, 8, 0, 0, 0, time.UTC),
		}
		require.NoError(t, store.SaveRecord(ctx, rec))

		got, err := store.LoadRecord(ctx)
		require.NoError(t, err)
		assert.Equal(t, rec.EntryID, got.EntryID)
		assert.True(t, rec.Start.Equal(got.Start))

		require.NoError(t, store.Clear(ctx))
		got, err = store.LoadRecord(ctx)
		require.NoError(t, err)
		assert.True(t, got.Idle())
	})

	t.Run("stop archives the closed entry", func(t *testing.T) {
		kv, err := sqlkv.OpenMySQL(ctx, dsn, logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = kv.Close() })
		sink, err := msql.NewClient(ctx, dsn, logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = sink.Close() })

		cfg := config.Default()
		cfg.Clockify.APIKey = "test"
		a, err := app.Assemble(ctx, logger, cfg, app.Deps{API: portstest.NewFakeAPI(), KV: kv, Sink: sink})
		require.NoError(t, err)
		t.Cleanup(func() { _ = a.Close() })

		before := count(t, db, "time_entries")
		_, err = a.Engine.Start(ctx, usecase.StartRequest{Description: "e2e"})
		require.NoError(t, err)
		res, err := a.Engine.Stop(ctx)
		require.NoError(t, err)
		require.NotNil(t, res.Entry)

		assert.Equal(t, before+1, count(t, db, "time_entries"))
		var desc string
		require.NoError(t, db.QueryRow("SELECT description FROM time_entries WHERE id = ?", res.Entry.ID).Scan(&desc))
		assert.Equal(t, "e2e", desc)
	})
}
