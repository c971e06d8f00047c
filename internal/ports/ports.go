package ports

import (
	"context"
	"time"

	"timersync/internal/domain"
)

// TimerAPI is the remote time-tracking service.
type TimerAPI interface {
	CurrentUser(ctx context.Context) (domain.User, error)
	Workspaces(ctx context.Context) ([]domain.Workspace, error)
	WorkspaceSettings(ctx context.Context, workspaceID string) (domain.WorkspaceSettings, error)
	Projects(ctx context.Context, workspaceID string) ([]domain.Project, error)
	Tasks(ctx context.Context, workspaceID, projectID string) ([]domain.Task, error)
	Tags(ctx context.Context, workspaceID string) ([]domain.Tag, error)

	// RunningEntry returns the user's in-progress entry, or nil when none is running.
	RunningEntry(ctx context.Context, workspaceID, userID string) (*domain.TimeEntry, error)
	ListTimeEntries(ctx context.Context, workspaceID, userID string, from, to time.Time) ([]domain.TimeEntry, error)
	StartEntry(ctx context.Context, workspaceID string, entry domain.NewEntry) (domain.TimeEntry, error)
	StopEntry(ctx context.Context, workspaceID, userID string, end time.Time) (domain.TimeEntry, error)
}

// KV is the durable key/value store behind the local timer state.
// Values are JSON documents. Writes are last-writer-wins.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// GetMany reads keys from one consistent snapshot. Absent keys are omitted.
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Sink receives completed entries and persists them to a target system.
type Sink interface {
	SyncEntries(ctx context.Context, entries []domain.TimeEntry) error
	SyncProjects(ctx context.Context, projects []domain.Project) error
}
