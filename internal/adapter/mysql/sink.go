package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"timersync/internal/domain"
	"timersync/internal/ports"
)

var _ ports.Sink = (*Client)(nil)

// Client implements ports.Sink by writing to the archive tables.
type Client struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// NewClient opens a MySQL connection using the provided DSN.
// Example DSN: user:pass@tcp(host:3306)/dbname?parseTime=true&multiStatements=true
func NewClient(ctx context.Context, dsn string, log *slog.Logger) (*Client, error) {
	if dsn == "" {
		return nil, errors.New("mysql: DSN is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		db.Close()
		return nil, err
	}
	return &Client{db: db, log: log, now: time.Now}, nil
}

// SyncEntries upserts completed entries. Running entries are rejected
// because their duration is not final.
func (c *Client) SyncEntries(ctx context.Context, entries []domain.TimeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.Running() {
			return errors.New("mysql: refusing to archive running entry " + e.ID)
		}
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	const q = `
INSERT INTO time_entries
  (id, workspace_id, user_id, description, project_id, task_id, tag_ids, start, stop, duration_sec)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  workspace_id=VALUES(workspace_id),
  user_id=VALUES(user_id),
  description=VALUES(description),
  project_id=VALUES(project_id),
  task_id=VALUES(task_id),
  tag_ids=VALUES(tag_ids),
  start=VALUES(start),
  stop=VALUES(stop),
  duration_sec=VALUES(duration_sec);
`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		tags := e.TagIDs
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, _ := json.Marshal(tags)
		if _, err := stmt.ExecContext(
			ctx,
			e.ID,
			e.WorkspaceID,
			e.UserID,
			e.Description,
			nullable(e.ProjectID),
			nullable(e.TaskID),
			string(tagsJSON),
			e.Start.UTC(),
			e.End.UTC(),
			int64(e.Duration(*e.End)/time.Second),
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	c.log.Info("mysql sink upserted entries", slog.Int("count", len(entries)))
	return nil
}

// SyncProjects upserts the project list.
func (c *Client) SyncProjects(ctx context.Context, projects []domain.Project) error {
	if len(projects) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	const q = `
INSERT INTO projects
  (id, workspace_id, name, client_name, archived, synced_at)
VALUES
  (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  workspace_id=VALUES(workspace_id),
  name=VALUES(name),
  client_name=VALUES(client_name),
  archived=VALUES(archived),
  synced_at=VALUES(synced_at);
`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	syncedAt := c.now().UTC()
	for _, p := range projects {
		if _, err := stmt.ExecContext(
			ctx,
			p.ID,
			p.WorkspaceID,
			p.Name,
			nullable(p.ClientName),
			p.Archived,
			syncedAt,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	c.log.Info("mysql sink upserted projects", slog.Int("count", len(projects)))
	return nil
}

// Close closes the underlying DB.
func (c *Client) Close() error { return c.db.Close() }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
