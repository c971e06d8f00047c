package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"timersync/internal/domain"
	"timersync/internal/ports"
)

// ArchiveSource is the remote data the archive copies.
type ArchiveSource interface {
	DefaultWorkspace(ctx context.Context) (string, error)
	Entries(ctx context.Context, workspaceID, userID string, from, to time.Time) ([]domain.TimeEntry, error)
	Projects(ctx context.Context, workspaceID string) ([]domain.Project, error)
}

// ArchiveUseCase copies completed entries and the project list to a Sink.
type ArchiveUseCase struct {
	Log    *slog.Logger
	Remote ArchiveSource
	Sink   ports.Sink
}

// Run archives entries started within [from, to]. Running entries are skipped;
// they are archived once stopped.
func (uc *ArchiveUseCase) Run(ctx context.Context, workspaceID string, from, to time.Time) error {
	if uc.Remote == nil || uc.Sink == nil {
		return errors.New("usecase not initialized: missing dependencies")
	}
	if workspaceID == "" {
		ws, err := uc.Remote.DefaultWorkspace(ctx)
		if err != nil {
			return err
		}
		workspaceID = ws
	}
	uc.Log.Info("fetching time entries",
		slog.String("workspace", workspaceID),
		slog.Time("from", from),
		slog.Time("to", to),
	)

	var (
		entries  []domain.TimeEntry
		projects []domain.Project
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = uc.Remote.Entries(gctx, workspaceID, "", from, to)
		return err
	})
	g.Go(func() error {
		var err error
		projects, err = uc.Remote.Projects(gctx, workspaceID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	completed := entries[:0:0]
	for _, e := range entries {
		if !e.Running() {
			completed = append(completed, e)
		}
	}
	uc.Log.Info("fetched time entries",
		slog.Int("count", len(completed)),
		slog.Int("running", len(entries)-len(completed)),
		slog.Int("projects", len(projects)),
	)

	if err := uc.Sink.SyncProjects(ctx, projects); err != nil {
		return err
	}
	if len(completed) == 0 {
		uc.Log.Info("no entries to archive")
		return nil
	}
	if err := uc.Sink.SyncEntries(ctx, completed); err != nil {
		return err
	}
	uc.Log.Info("archive completed", slog.Int("count", len(completed)))
	return nil
}
