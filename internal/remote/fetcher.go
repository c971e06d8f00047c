// Package remote wraps the time-tracking API behind cached reads and a
// non-failing running-entry query.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"timersync/internal/cache"
	"timersync/internal/domain"
	"timersync/internal/ports"
)

// FetchStatus tells a confirmed answer apart from a failed read.
type FetchStatus int

const (
	// FetchConfirmed means the remote answered; a nil entry means nothing is running.
	FetchConfirmed FetchStatus = iota
	// FetchFailed means the read failed and the answer is unknown.
	FetchFailed
)

func (s FetchStatus) String() string {
	if s == FetchConfirmed {
		return "confirmed"
	}
	return "failed"
}

// Config sets the cache lifetimes and the configured workspace.
type Config struct {
	WorkspaceID  string
	IdentityTTL  time.Duration
	SettingsTTL  time.Duration
	ReferenceTTL time.Duration
}

// DefaultConfig returns the lifetimes used by the original extensions.
func DefaultConfig() Config {
	return Config{
		IdentityTTL:  5 * time.Second,
		SettingsTTL:  60 * time.Second,
		ReferenceTTL: 60 * time.Second,
	}
}

// Fetcher is the single entry point to the remote service used by the sync engine.
type Fetcher struct {
	api ports.TimerAPI
	log *slog.Logger
	cfg Config

	identity   *cache.Cache[string, domain.User]
	settings   *cache.Cache[string, domain.WorkspaceSettings]
	workspaces *cache.Cache[string, []domain.Workspace]
	projects   *cache.Cache[string, []domain.Project]
	tasks      *cache.Cache[string, []domain.Task]
	tags       *cache.Cache[string, []domain.Tag]
}

func NewFetcher(api ports.TimerAPI, cfg Config, log *slog.Logger) *Fetcher {
	def := DefaultConfig()
	if cfg.IdentityTTL <= 0 {
		cfg.IdentityTTL = def.IdentityTTL
	}
	if cfg.SettingsTTL <= 0 {
		cfg.SettingsTTL = def.SettingsTTL
	}
	if cfg.ReferenceTTL <= 0 {
		cfg.ReferenceTTL = def.ReferenceTTL
	}
	return &Fetcher{
		api:        api,
		log:        log,
		cfg:        cfg,
		identity:   cache.New[string, domain.User]("identity"),
		settings:   cache.New[string, domain.WorkspaceSettings]("settings"),
		workspaces: cache.New[string, []domain.Workspace]("workspaces"),
		projects:   cache.New[string, []domain.Project]("projects"),
		tasks:      cache.New[string, []domain.Task]("tasks"),
		tags:       cache.New[string, []domain.Tag]("tags"),
	}
}

// SetClock replaces the clock of every cache. Intended for tests.
func (f *Fetcher) SetClock(now func() time.Time) {
	f.identity.SetClock(now)
	f.settings.SetClock(now)
	f.workspaces.SetClock(now)
	f.projects.SetClock(now)
	f.tasks.SetClock(now)
	f.tags.SetClock(now)
}

// Identity returns the current user, cached for IdentityTTL.
func (f *Fetcher) Identity(ctx context.Context) (domain.User, error) {
	return f.identity.GetOrLoad(ctx, "me", f.cfg.IdentityTTL, f.api.CurrentUser)
}

// Settings returns the workspace policy. Any failure yields the permissive
// default and is not cached, so the next call tries again.
func (f *Fetcher) Settings(ctx context.Context, workspaceID string) domain.WorkspaceSettings {
	s, err := f.settings.GetOrLoad(ctx, workspaceID, f.cfg.SettingsTTL, func(ctx context.Context) (domain.WorkspaceSettings, error) {
		return f.api.WorkspaceSettings(ctx, workspaceID)
	})
	if err != nil {
		f.log.Warn("workspace settings unavailable, using defaults",
			slog.String("workspace", workspaceID),
			slog.String("error", err.Error()),
		)
		return domain.WorkspaceSettings{}
	}
	return s
}

// DefaultWorkspace resolves the workspace to use when none was chosen:
// the configured one, then the user's active workspace, then the first listed.
func (f *Fetcher) DefaultWorkspace(ctx context.Context) (string, error) {
	if f.cfg.WorkspaceID != "" {
		return f.cfg.WorkspaceID, nil
	}
	user, err := f.Identity(ctx)
	if err != nil {
		return "", err
	}
	if user.DefaultWorkspaceID != "" {
		return user.DefaultWorkspaceID, nil
	}
	ws, err := f.Workspaces(ctx)
	if err != nil {
		return "", err
	}
	if len(ws) == 0 {
		return "", fmt.Errorf("no workspaces available: %w", domain.ErrMissingConfig)
	}
	return ws[0].ID, nil
}

// FetchRunningEntry asks the remote for the user's running entry. It never
// returns an error: failures are logged and reported as FetchFailed so the
// caller can leave its state untouched. An empty userID is resolved through
// the cached identity lookup.
func (f *Fetcher) FetchRunningEntry(ctx context.Context, workspaceID, userID string) (*domain.TimeEntry, FetchStatus) {
	if userID == "" {
		user, err := f.Identity(ctx)
		if err != nil {
			f.log.Warn("identity lookup failed", slog.String("error", err.Error()))
			return nil, FetchFailed
		}
		userID = user.ID
	}
	entry, err := f.api.RunningEntry(ctx, workspaceID, userID)
	if err != nil {
		f.log.Warn("running entry fetch failed",
			slog.String("workspace", workspaceID),
			slog.String("error", err.Error()),
		)
		return nil, FetchFailed
	}
	if entry != nil && !entry.Running() {
		// Closed entries can slip through the in-progress filter right after a stop.
		return nil, FetchConfirmed
	}
	return entry, FetchConfirmed
}

// StartEntry starts a remote entry. Errors propagate.
func (f *Fetcher) StartEntry(ctx context.Context, workspaceID string, entry domain.NewEntry) (domain.TimeEntry, error) {
	return f.api.StartEntry(ctx, workspaceID, entry)
}

// StopEntry stops the user's running entry. Errors propagate; callers decide
// whether ErrNotFound means "already stopped".
func (f *Fetcher) StopEntry(ctx context.Context, workspaceID, userID string, end time.Time) (domain.TimeEntry, error) {
	if userID == "" {
		user, err := f.Identity(ctx)
		if err != nil {
			return domain.TimeEntry{}, err
		}
		userID = user.ID
	}
	return f.api.StopEntry(ctx, workspaceID, userID, end)
}

// Entries lists entries started within [from, to]. Not cached.
func (f *Fetcher) Entries(ctx context.Context, workspaceID, userID string, from, to time.Time) ([]domain.TimeEntry, error) {
	if userID == "" {
		user, err := f.Identity(ctx)
		if err != nil {
			return nil, err
		}
		userID = user.ID
	}
	return f.api.ListTimeEntries(ctx, workspaceID, userID, from, to)
}

func (f *Fetcher) Workspaces(ctx context.Context) ([]domain.Workspace, error) {
	return f.workspaces.GetOrLoad(ctx, "all", f.cfg.ReferenceTTL, f.api.Workspaces)
}

func (f *Fetcher) Projects(ctx context.Context, workspaceID string) ([]domain.Project, error) {
	return f.projects.GetOrLoad(ctx, workspaceID, f.cfg.ReferenceTTL, func(ctx context.Context) ([]domain.Project, error) {
		return f.api.Projects(ctx, workspaceID)
	})
}

func (f *Fetcher) Tasks(ctx context.Context, workspaceID, projectID string) ([]domain.Task, error) {
	if projectID == "" {
		return nil, errors.New("project id is required to list tasks")
	}
	return f.tasks.GetOrLoad(ctx, workspaceID+"/"+projectID, f.cfg.ReferenceTTL, func(ctx context.Context) ([]domain.Task, error) {
		return f.api.Tasks(ctx, workspaceID, projectID)
	})
}

func (f *Fetcher) Tags(ctx context.Context, workspaceID string) ([]domain.Tag, error) {
	return f.tags.GetOrLoad(ctx, workspaceID, f.cfg.ReferenceTTL, func(ctx context.Context) ([]domain.Tag, error) {
		return f.api.Tags(ctx, workspaceID)
	})
}
