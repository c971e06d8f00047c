package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"timersync/internal/adapter/clockify"
	"timersync/internal/adapter/filestore"
	msql "timersync/internal/adapter/mysql"
	"timersync/internal/adapter/sqlkv"
	"timersync/internal/config"
	"timersync/internal/migrate"
	"timersync/internal/notify"
	"timersync/internal/ports"
	"timersync/internal/remote"
	"timersync/internal/state"
	"timersync/internal/usecase"
)

// Deps are the outside-world adapters. New builds them from config;
// tests pass fakes to Assemble.
type Deps struct {
	API  ports.TimerAPI
	KV   ports.KV
	Sink ports.Sink
	// WatchPath is the state file to watch for writes from other processes.
	WatchPath string

	EngineOptions []usecase.EngineOption
	NotifyOptions []notify.Option
}

// App wires adapters and use cases.
type App struct {
	log *slog.Logger
	cfg config.Config

	Fetcher  *remote.Fetcher
	Store    *state.Store
	Notifier *notify.Notifier
	Engine   *usecase.SyncEngine
	archive  *usecase.ArchiveUseCase

	watchPath string
	closers   []io.Closer
}

// New connects to the configured backends and loads the persisted state.
func New(ctx context.Context, log *slog.Logger, cfg config.Config) (*App, error) {
	var deps Deps
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	deps.API = clockify.NewClient(cfg.Clockify.BaseURL, cfg.Clockify.APIKey, log,
		clockify.WithRateLimit(cfg.Clockify.RateLimit, 5))

	// Run migrations before opening anything that uses the schema.
	if cfg.MySQL.DSN != "" {
		if err := migrate.Run(ctx, cfg.MySQL.DSN, log); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	switch cfg.State.Backend {
	case config.BackendSQLite:
		kv, err := sqlkv.OpenSQLite(ctx, cfg.State.Path, log)
		if err != nil {
			return nil, err
		}
		deps.KV = kv
		closers = append(closers, kv)
	case config.BackendMySQL:
		kv, err := sqlkv.OpenMySQL(ctx, cfg.MySQL.DSN, log)
		if err != nil {
			return nil, err
		}
		deps.KV = kv
		closers = append(closers, kv)
	default:
		deps.KV = filestore.New(cfg.State.Path, log)
		deps.WatchPath = cfg.State.Path
	}

	if cfg.MySQL.DSN != "" {
		sink, err := msql.NewClient(ctx, cfg.MySQL.DSN, log)
		if err != nil {
			closeAll()
			return nil, err
		}
		deps.Sink = sink
		closers = append(closers, sink)
	}

	a, err := Assemble(ctx, log, cfg, deps)
	if err != nil {
		closeAll()
		return nil, err
	}
	a.closers = append(a.closers, closers...)
	return a, nil
}

// Assemble builds the engine around already constructed adapters.
func Assemble(ctx context.Context, log *slog.Logger, cfg config.Config, deps Deps) (*App, error) {
	if deps.API == nil || deps.KV == nil {
		return nil, errors.New("app: API and KV are required")
	}
	fetcher := remote.NewFetcher(deps.API, remote.Config{WorkspaceID: cfg.Clockify.WorkspaceID}, log)
	store := state.NewStore(deps.KV, log)
	notifier := notify.New(store.LoadRecord, log, deps.NotifyOptions...)
	store.OnChange(notifier.Notify)

	engineCfg := usecase.DefaultEngineConfig()
	engineCfg.SyncEvery = cfg.Sync.Interval
	engineCfg.MinInterval = cfg.Sync.MinInterval
	engineCfg.AlertAfter = cfg.Sync.AlertAfter
	engineCfg.Defaults = usecase.SelectionDefaults{
		WorkspaceID:  cfg.Clockify.WorkspaceID,
		ProjectID:    cfg.Defaults.ProjectID,
		TaskID:       cfg.Defaults.TaskID,
		TagIDs:       cfg.Defaults.TagIDs,
		RepoMappings: cfg.RepoSelections(),
		LabelTags:    cfg.NormalizedLabelTags(),
	}
	opts := deps.EngineOptions
	if deps.Sink != nil {
		opts = append([]usecase.EngineOption{usecase.WithArchive(deps.Sink)}, opts...)
	}
	engine := usecase.NewSyncEngine(fetcher, store, notifier, engineCfg, log, opts...)
	if err := engine.Load(ctx); err != nil {
		return nil, err
	}

	a := &App{
		log:       log,
		cfg:       cfg,
		Fetcher:   fetcher,
		Store:     store,
		Notifier:  notifier,
		Engine:    engine,
		watchPath: deps.WatchPath,
	}
	if deps.Sink != nil {
		a.archive = &usecase.ArchiveUseCase{Log: log, Remote: fetcher, Sink: deps.Sink}
	}
	return a, nil
}

// Watch adopts any remote timer, then keeps the tickers and observers
// running until ctx is done.
func (a *App) Watch(ctx context.Context) error {
	if a.watchPath != "" {
		fw, err := notify.WatchFile(a.watchPath, func() {
			if err := a.Engine.Load(ctx); err != nil {
				a.log.Warn("reload state failed", slog.String("error", err.Error()))
			}
			a.Notifier.Notify()
		}, a.log)
		if err != nil {
			return err
		}
		defer fw.Close()
	}

	out, err := a.Engine.ColdStart(ctx)
	if err != nil {
		return err
	}
	a.log.Info("cold start reconciled", slog.String("outcome", string(out)))
	a.Notifier.Broadcast(a.Engine.Snapshot())

	<-ctx.Done()
	a.log.Info("shutting down")
	return nil
}

// Archive copies completed entries in [from, to] to MySQL.
func (a *App) Archive(ctx context.Context, from, to time.Time) error {
	if a.archive == nil {
		return fmt.Errorf("archive needs MYSQL_DSN: %w", errArchiveDisabled)
	}
	return a.archive.Run(ctx, a.cfg.Clockify.WorkspaceID, from, to)
}

var errArchiveDisabled = errors.New("archive disabled")

// Close stops tickers and releases backends.
func (a *App) Close() error {
	a.Engine.Close()
	a.Notifier.Close()
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
