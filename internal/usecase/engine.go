package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"timersync/internal/domain"
	"timersync/internal/metrics"
	"timersync/internal/notify"
	"timersync/internal/ports"
	"timersync/internal/remote"
)

// Phase is the engine's position in the timer state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	// PhaseReconciling marks a pass in flight. It is never shown to observers.
	PhaseReconciling
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}

// Outcome is the result of one reconciliation request.
type Outcome string

const (
	OutcomeInFlight      Outcome = "in_flight"
	OutcomeDebounced     Outcome = "debounced"
	OutcomeIdle          Outcome = "idle"
	OutcomeCleared       Outcome = "cleared"
	OutcomeAdopted       Outcome = "adopted"
	OutcomeUnchanged     Outcome = "unchanged"
	OutcomeIndeterminate Outcome = "indeterminate"
	OutcomeStale         Outcome = "stale"
)

// RemoteState is the part of the remote fetcher the engine depends on.
type RemoteState interface {
	FetchRunningEntry(ctx context.Context, workspaceID, userID string) (*domain.TimeEntry, remote.FetchStatus)
	StartEntry(ctx context.Context, workspaceID string, entry domain.NewEntry) (domain.TimeEntry, error)
	StopEntry(ctx context.Context, workspaceID, userID string, end time.Time) (domain.TimeEntry, error)
	Entries(ctx context.Context, workspaceID, userID string, from, to time.Time) ([]domain.TimeEntry, error)
	Settings(ctx context.Context, workspaceID string) domain.WorkspaceSettings
	DefaultWorkspace(ctx context.Context) (string, error)
}

// StateStore persists the local timer record and selections.
type StateStore interface {
	LoadRecord(ctx context.Context) (domain.TimerRecord, error)
	SaveRecord(ctx context.Context, rec domain.TimerRecord) error
	Clear(ctx context.Context) error
	TouchReconciled(ctx context.Context, at time.Time) error
	RepoSelection(ctx context.Context, repo string) (domain.RepoSelection, bool, error)
	SaveRepoSelection(ctx context.Context, repo string, sel domain.RepoSelection) error
	QuickStart(ctx context.Context) (bool, error)
	DailyGoal(ctx context.Context) (time.Duration, error)
}

// Broadcaster pushes state to observers.
type Broadcaster interface {
	Broadcast(notify.Snapshot)
	Alert(notify.Alert)
}

// EngineConfig tunes the tickers and the debounce window.
type EngineConfig struct {
	MinInterval      time.Duration
	ElapsedEvery     time.Duration
	SyncEvery        time.Duration
	LongRunningEvery time.Duration
	AlertAfter       time.Duration
	Defaults         SelectionDefaults
}

// DefaultEngineConfig returns the intervals used when nothing is configured.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinInterval:      5 * time.Second,
		ElapsedEvery:     time.Second,
		SyncEvery:        10 * time.Second,
		LongRunningEvery: time.Minute,
		AlertAfter:       2 * time.Hour,
	}
}

// SyncEngine keeps the local timer record honest against the remote. One
// engine exists per process; it owns its state and its tickers.
type SyncEngine struct {
	log      *slog.Logger
	remote   RemoteState
	store    StateStore
	notifier Broadcaster
	sink     ports.Sink
	sched    *Scheduler
	cfg      EngineConfig
	defaults SelectionDefaults
	now      func() time.Time

	mu          sync.Mutex
	phase       Phase
	settled     Phase // phase to restore when a pass completes
	record      domain.TimerRecord
	lastFetchAt time.Time
	generation  uint64
	coldStarted bool
	alert       longRunningAlert
}

type EngineOption func(*SyncEngine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *SyncEngine) { e.now = now }
}

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(f TickerFactory) EngineOption {
	return func(e *SyncEngine) { e.sched.newTicker = f }
}

// WithArchive hands every stopped entry to sink.
func WithArchive(sink ports.Sink) EngineOption {
	return func(e *SyncEngine) { e.sink = sink }
}

func NewSyncEngine(r RemoteState, store StateStore, n Broadcaster, cfg EngineConfig, log *slog.Logger, opts ...EngineOption) *SyncEngine {
	def := DefaultEngineConfig()
	if cfg.ElapsedEvery <= 0 {
		cfg.ElapsedEvery = def.ElapsedEvery
	}
	if cfg.SyncEvery <= 0 {
		cfg.SyncEvery = def.SyncEvery
	}
	if cfg.LongRunningEvery <= 0 {
		cfg.LongRunningEvery = def.LongRunningEvery
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	e := &SyncEngine{
		log:      log,
		remote:   r,
		store:    store,
		notifier: n,
		sched:    NewScheduler(RealTicker, log),
		cfg:      cfg,
		defaults: cfg.Defaults,
		now:      time.Now,
		alert:    longRunningAlert{threshold: cfg.AlertAfter},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sched.Register(TickElapsed, cfg.ElapsedEvery, e.onElapsed)
	e.sched.Register(TickSync, cfg.SyncEvery, e.onSync)
	e.sched.Register(TickLongRunning, cfg.LongRunningEvery, e.onLongRunning)
	return e
}

// Load reads the persisted record and enters the matching phase. It is also
// how changes written by another process are picked up.
// A read overtaken by a local mutation is dropped; the mutation's own write
// is newer.
func (e *SyncEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	gen := e.generation
	e.mu.Unlock()

	rec, err := e.store.LoadRecord(ctx)
	if err != nil {
		return fmt.Errorf("load timer state: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		e.log.Debug("discarding stale state load", slog.String("entry", rec.EntryID))
		return nil
	}
	if rec.EntryID == e.record.EntryID && rec.Start.Equal(e.record.Start) {
		e.record = rec
		return nil
	}
	e.generation++
	e.record = rec
	e.setPhaseLocked(phaseOf(rec))
	return nil
}

// Start starts a remote timer and records it locally. On failure the local
// state is unchanged.
func (e *SyncEngine) Start(ctx context.Context, req StartRequest) (domain.TimerRecord, error) {
	sel, err := e.resolveSelection(ctx, req)
	if err != nil {
		return domain.TimerRecord{}, err
	}
	body := domain.NewEntry{
		Start:       e.now().UTC(),
		Description: describe(req),
		ProjectID:   sel.ProjectID,
		TaskID:      sel.TaskID,
		TagIDs:      sel.TagIDs,
	}
	entry, err := e.remote.StartEntry(ctx, sel.WorkspaceID, body)
	if err != nil {
		return domain.TimerRecord{}, fmt.Errorf("start timer: %w", err)
	}
	if entry.WorkspaceID == "" {
		entry.WorkspaceID = sel.WorkspaceID
	}
	if entry.Start.IsZero() {
		entry.Start = body.Start
	}

	rec := domain.RecordFromEntry(entry, e.now())
	e.mu.Lock()
	err = e.applyLocked(ctx, rec)
	e.mu.Unlock()
	if err != nil {
		return domain.TimerRecord{}, err
	}
	e.log.Info("timer started",
		slog.String("entry", rec.EntryID),
		slog.String("workspace", rec.WorkspaceID),
		slog.String("description", rec.Description),
	)
	e.rememberSelection(ctx, req.Repo, sel)
	return rec, nil
}

// StopResult describes what Stop did.
type StopResult struct {
	// Entry is the closed remote entry; nil when nothing was running or the
	// remote had already closed it.
	Entry          *domain.TimeEntry
	AlreadyStopped bool
	WasIdle        bool
}

// Stop stops the running timer. A remote that reports nothing to stop
// counts as success. Stopping while idle does nothing.
func (e *SyncEngine) Stop(ctx context.Context) (StopResult, error) {
	e.mu.Lock()
	rec := e.record
	e.mu.Unlock()
	if rec.Idle() {
		return StopResult{WasIdle: true}, nil
	}

	var res StopResult
	stopped, err := e.remote.StopEntry(ctx, rec.WorkspaceID, rec.UserID, e.now().UTC())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		res.AlreadyStopped = true
		e.log.Info("timer already stopped remotely", slog.String("entry", rec.EntryID))
	case err != nil:
		return StopResult{}, fmt.Errorf("stop timer: %w", err)
	default:
		res.Entry = &stopped
	}

	e.mu.Lock()
	err = e.applyLocked(ctx, domain.TimerRecord{})
	e.mu.Unlock()
	if err != nil {
		return res, err
	}
	e.log.Info("timer stopped", slog.String("entry", rec.EntryID))

	if res.Entry != nil && e.sink != nil {
		if err := e.sink.SyncEntries(ctx, []domain.TimeEntry{*res.Entry}); err != nil {
			e.log.Warn("archive stopped entry failed",
				slog.String("entry", res.Entry.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return res, nil
}

// Reconcile runs one pass against the remote, subject to the single-flight
// guard and the debounce window. Idle passes issue no network call.
func (e *SyncEngine) Reconcile(ctx context.Context) (Outcome, error) {
	return e.reconcile(ctx, false)
}

// ColdStart is the once-per-process pass that adopts a remote timer the
// local state doesn't know about. Later calls behave like Reconcile.
func (e *SyncEngine) ColdStart(ctx context.Context) (Outcome, error) {
	e.mu.Lock()
	first := !e.coldStarted
	e.mu.Unlock()
	return e.reconcile(ctx, first)
}

func (e *SyncEngine) reconcile(ctx context.Context, cold bool) (Outcome, error) {
	e.mu.Lock()
	if e.phase == PhaseReconciling {
		e.mu.Unlock()
		return e.outcome(OutcomeInFlight), nil
	}
	local := e.record
	if local.Idle() && !cold {
		e.mu.Unlock()
		return e.outcome(OutcomeIdle), nil
	}
	now := e.now()
	if !cold && !e.lastFetchAt.IsZero() && now.Sub(e.lastFetchAt) < e.cfg.MinInterval {
		e.mu.Unlock()
		return e.outcome(OutcomeDebounced), nil
	}
	if cold {
		e.coldStarted = true
	}
	gen := e.generation
	e.settled = e.phase
	e.phase = PhaseReconciling
	e.lastFetchAt = now
	e.mu.Unlock()

	ws := local.WorkspaceID
	if ws == "" {
		var err error
		ws, err = e.remote.DefaultWorkspace(ctx)
		if err != nil {
			e.finishPass()
			if errors.Is(err, domain.ErrAuth) {
				return e.outcome(OutcomeIndeterminate), err
			}
			e.log.Warn("reconcile: no workspace", slog.String("error", err.Error()))
			return e.outcome(OutcomeIndeterminate), nil
		}
	}
	entry, status := e.remote.FetchRunningEntry(ctx, ws, local.UserID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.phase = e.settled
	if gen != e.generation {
		return e.outcome(OutcomeStale), nil
	}
	if status != remote.FetchConfirmed {
		return e.outcome(OutcomeIndeterminate), nil
	}

	switch {
	case entry == nil && local.Idle():
		return e.outcome(OutcomeIdle), nil
	case entry == nil:
		if err := e.applyLocked(ctx, domain.TimerRecord{}); err != nil {
			return e.outcome(OutcomeIndeterminate), err
		}
		e.log.Info("timer stopped elsewhere, cleared", slog.String("entry", local.EntryID))
		return e.outcome(OutcomeCleared), nil
	case entry.ID != local.EntryID:
		if entry.WorkspaceID == "" {
			entry.WorkspaceID = ws
		}
		if err := e.applyLocked(ctx, domain.RecordFromEntry(*entry, now)); err != nil {
			return e.outcome(OutcomeIndeterminate), err
		}
		e.log.Info("adopted remote timer",
			slog.String("entry", entry.ID),
			slog.String("previous", local.EntryID),
		)
		return e.outcome(OutcomeAdopted), nil
	default:
		if err := e.store.TouchReconciled(ctx, now); err != nil {
			return e.outcome(OutcomeUnchanged), err
		}
		e.record.LastReconciledAt = now
		return e.outcome(OutcomeUnchanged), nil
	}
}

func (e *SyncEngine) finishPass() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhaseReconciling {
		e.phase = e.settled
	}
}

// applyLocked persists rec, bumps the generation and moves the state machine.
// e.mu must be held.
func (e *SyncEngine) applyLocked(ctx context.Context, rec domain.TimerRecord) error {
	var err error
	if rec.Idle() {
		err = e.store.Clear(ctx)
	} else {
		err = e.store.SaveRecord(ctx, rec)
	}
	if err != nil {
		return fmt.Errorf("persist timer state: %w", err)
	}
	e.generation++
	e.record = rec
	e.setPhaseLocked(phaseOf(rec))
	return nil
}

func (e *SyncEngine) setPhaseLocked(p Phase) {
	if e.phase == PhaseReconciling {
		e.settled = p
	} else {
		e.phase = p
	}
	running := p == PhaseRunning
	if running {
		metrics.TimerRunning.Set(1)
	} else {
		metrics.TimerRunning.Set(0)
		e.alert.reset()
	}
	e.sched.Enter(running)
}

func phaseOf(rec domain.TimerRecord) Phase {
	if rec.Idle() {
		return PhaseIdle
	}
	return PhaseRunning
}

func (e *SyncEngine) outcome(o Outcome) Outcome {
	metrics.ReconcileTotal.WithLabelValues(string(o)).Inc()
	e.log.Debug("reconcile", slog.String("outcome", string(o)))
	return o
}

// Snapshot returns what observers should render now.
func (e *SyncEngine) Snapshot() notify.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return notify.Snapshot{Record: e.record, Running: !e.record.Idle(), Now: e.now()}
}

// Phase returns the current phase.
func (e *SyncEngine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Scheduler exposes the ticker owner.
func (e *SyncEngine) Scheduler() *Scheduler { return e.sched }

// Close cancels every ticker.
func (e *SyncEngine) Close() {
	e.sched.Stop()
}

func (e *SyncEngine) onElapsed(_ context.Context, now time.Time) {
	e.mu.Lock()
	rec := e.record
	e.mu.Unlock()
	if rec.Idle() {
		return
	}
	e.notifier.Broadcast(notify.Snapshot{Record: rec, Running: true, Now: now})
}

func (e *SyncEngine) onSync(ctx context.Context, _ time.Time) {
	if _, err := e.Reconcile(ctx); err != nil {
		e.log.Warn("scheduled reconcile failed", slog.String("error", err.Error()))
	}
}

func (e *SyncEngine) onLongRunning(_ context.Context, now time.Time) {
	e.mu.Lock()
	rec := e.record
	due := !rec.Idle() && e.alert.check(rec.EntryID, now.Sub(rec.Start))
	e.mu.Unlock()
	if !due {
		return
	}
	e.notifier.Alert(notify.Alert{
		EntryID:     rec.EntryID,
		Description: rec.Description,
		Elapsed:     now.Sub(rec.Start),
	})
}
