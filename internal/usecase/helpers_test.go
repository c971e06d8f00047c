package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timersync/internal/domain"
	"timersync/internal/notify"
	"timersync/internal/ports/portstest"
	"timersync/internal/remote"
	"timersync/internal/state"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTicker struct {
	every   time.Duration
	ch      chan time.Time
	stopped atomic.Bool
}

type fakeTickers struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *fakeTickers) New(d time.Duration) (<-chan time.Time, func()) {
	t := &fakeTicker{every: d, ch: make(chan time.Time, 1)}
	f.mu.Lock()
	f.tickers = append(f.tickers, t)
	f.mu.Unlock()
	return t.ch, func() { t.stopped.Store(true) }
}

// live returns the most recent unstopped ticker with the given interval.
func (f *fakeTickers) live(every time.Duration) *fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.tickers) - 1; i >= 0; i-- {
		t := f.tickers[i]
		if t.every == every && !t.stopped.Load() {
			return t
		}
	}
	return nil
}

func (f *fakeTickers) all() []*fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTicker(nil), f.tickers...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	snaps  []notify.Snapshot
	alerts []notify.Alert
}

func (n *recordingNotifier) Broadcast(s notify.Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snaps = append(n.snaps, s)
}

func (n *recordingNotifier) Alert(a notify.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

func (n *recordingNotifier) Snaps() []notify.Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Snapshot(nil), n.snaps...)
}

func (n *recordingNotifier) Alerts() []notify.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Alert(nil), n.alerts...)
}

type fakeSink struct {
	mu       sync.Mutex
	entries  []domain.TimeEntry
	projects []domain.Project
	err      error
}

func (s *fakeSink) SyncEntries(ctx context.Context, entries []domain.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *fakeSink) SyncProjects(ctx context.Context, projects []domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.projects = append(s.projects, projects...)
	return nil
}

type harness struct {
	api      *portstest.FakeAPI
	kv       *portstest.MemoryKV
	store    *state.Store
	fetcher  *remote.Fetcher
	notifier *recordingNotifier
	clock    *fakeClock
	tickers  *fakeTickers
	sink     *fakeSink
	engine   *SyncEngine
}

func newHarness(t *testing.T, mutate ...func(*EngineConfig)) *harness {
	t.Helper()
	h := &harness{
		api:      portstest.NewFakeAPI(),
		kv:       portstest.NewMemoryKV(),
		notifier: &recordingNotifier{},
		clock:    &fakeClock{now: t0},
		tickers:  &fakeTickers{},
		sink:     &fakeSink{},
	}
	h.store = state.NewStore(h.kv, discard())
	h.fetcher = remote.NewFetcher(h.api, remote.Config{}, discard())
	cfg := DefaultEngineConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	h.engine = NewSyncEngine(h.fetcher, h.store, h.notifier, cfg, discard(),
		WithClock(h.clock.Now),
		WithTickerFactory(h.tickers.New),
		WithArchive(h.sink),
	)
	t.Cleanup(h.engine.Close)
	return h
}

// startRunning starts a timer through the engine and returns its record.
func (h *harness) startRunning(t *testing.T) domain.TimerRecord {
	t.Helper()
	rec, err := h.engine.Start(context.Background(), StartRequest{Description: "work"})
	require.NoError(t, err)
	return rec
}

func (h *harness) loadRecord(t *testing.T) domain.TimerRecord {
	t.Helper()
	rec, err := h.store.LoadRecord(context.Background())
	require.NoError(t, err)
	return rec
}
