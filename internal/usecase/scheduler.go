package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TickerKind names one of the Running-scoped tickers.
type TickerKind int

const (
	TickElapsed TickerKind = iota
	TickSync
	TickLongRunning
)

func (k TickerKind) String() string {
	switch k {
	case TickElapsed:
		return "elapsed"
	case TickSync:
		return "sync"
	case TickLongRunning:
		return "long-running"
	default:
		return "unknown"
	}
}

// TickerFactory creates a ticker firing every d and returns its channel and
// stop function.
type TickerFactory func(d time.Duration) (<-chan time.Time, func())

// RealTicker is the TickerFactory backed by time.NewTicker.
func RealTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// TickFunc runs on every tick of one kind.
type TickFunc func(ctx context.Context, now time.Time)

type tickerEntry struct {
	every time.Duration
	fn    TickFunc
}

type tickerHandle struct {
	cancel context.CancelFunc
	stop   func()
}

// Scheduler owns at most one ticker per kind. All of them live only while
// the timer is running.
type Scheduler struct {
	log       *slog.Logger
	newTicker TickerFactory

	mu      sync.Mutex
	entries map[TickerKind]tickerEntry
	handles map[TickerKind]*tickerHandle
}

func NewScheduler(newTicker TickerFactory, log *slog.Logger) *Scheduler {
	if newTicker == nil {
		newTicker = RealTicker
	}
	return &Scheduler{
		log:       log,
		newTicker: newTicker,
		entries:   make(map[TickerKind]tickerEntry),
		handles:   make(map[TickerKind]*tickerHandle),
	}
}

// Register sets the interval and callback for a kind. It takes effect on the
// next Enter(true).
func (s *Scheduler) Register(kind TickerKind, every time.Duration, fn TickFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[kind] = tickerEntry{every: every, fn: fn}
}

// Enter recreates every registered ticker when running, and cancels them all
// otherwise.
func (s *Scheduler) Enter(running bool) {
	if !running {
		s.Stop()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, te := range s.entries {
		s.startLocked(kind, te)
	}
}

// Stop cancels all tickers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind := range s.handles {
		s.cancelLocked(kind)
	}
}

// Active reports whether a ticker of kind is live.
func (s *Scheduler) Active(kind TickerKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[kind]
	return ok
}

// ActiveCount returns the number of live tickers.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *Scheduler) startLocked(kind TickerKind, te tickerEntry) {
	// Never two tickers of one kind.
	s.cancelLocked(kind)
	if te.every <= 0 || te.fn == nil {
		return
	}

	ch, stop := s.newTicker(te.every)
	ctx, cancel := context.WithCancel(context.Background())
	s.handles[kind] = &tickerHandle{cancel: cancel, stop: stop}
	s.log.Debug("ticker started", slog.String("kind", kind.String()), slog.Duration("every", te.every))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now, ok := <-ch:
				if !ok {
					return
				}
				if ctx.Err() != nil {
					return
				}
				te.fn(ctx, now)
			}
		}
	}()
}

func (s *Scheduler) cancelLocked(kind TickerKind) {
	h, ok := s.handles[kind]
	if !ok {
		return
	}
	h.stop()
	h.cancel()
	delete(s.handles, kind)
	s.log.Debug("ticker cancelled", slog.String("kind", kind.String()))
}

// longRunningAlert fires once each time the elapsed time of an entry reaches
// a new multiple of the threshold.
type longRunningAlert struct {
	threshold time.Duration
	entryID   string
	fired     int64
}

// check reports whether an alert is due for entryID at elapsed.
func (a *longRunningAlert) check(entryID string, elapsed time.Duration) bool {
	if a.threshold <= 0 || entryID == "" {
		return false
	}
	if entryID != a.entryID {
		a.entryID = entryID
		a.fired = 0
	}
	multiple := int64(elapsed / a.threshold)
	if multiple <= a.fired {
		return false
	}
	a.fired = multiple
	return true
}

func (a *longRunningAlert) reset() {
	a.entryID = ""
	a.fired = 0
}
