// Package notify fans timer snapshots out to UI observers.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"timersync/internal/domain"
	"timersync/internal/metrics"
)

// DefaultWindow is the coalescing window of Notify.
const DefaultWindow = 500 * time.Millisecond

// Snapshot is everything an observer needs to render.
type Snapshot struct {
	Record  domain.TimerRecord `json:"record"`
	Running bool               `json:"running"`
	Now     time.Time          `json:"now"`
}

// Elapsed is the display string for the running timer.
func (s Snapshot) Elapsed() string {
	if !s.Running {
		return domain.FormatElapsed(s.Now, time.Time{})
	}
	return domain.FormatElapsed(s.Now, s.Record.Start)
}

// Alert is a one-shot prompt raised by the long-running ticker.
type Alert struct {
	EntryID     string        `json:"entryId"`
	Description string        `json:"description"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Observer renders snapshots. Render must not block for long; it runs on
// the notifier's goroutine.
type Observer interface {
	Render(Snapshot)
}

// Alerter is implemented by observers that want long-running prompts.
type Alerter interface {
	Alert(Alert)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) Render(s Snapshot) { f(s) }

// LoadFunc reads the current record from the store.
type LoadFunc func(ctx context.Context) (domain.TimerRecord, error)

// Notifier keeps the observer registry. Notify reloads the store after a
// quiet window and pushes the result to every observer.
type Notifier struct {
	log    *slog.Logger
	load   LoadFunc
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	observers map[string]Observer
	order     []string
	pending   *time.Timer
	closed    bool
}

type Option func(*Notifier)

// WithWindow overrides the coalescing window.
func WithWindow(d time.Duration) Option {
	return func(n *Notifier) { n.window = d }
}

// WithClock overrides the clock stamped on reloaded snapshots.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

func New(load LoadFunc, log *slog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		log:       log,
		load:      load,
		window:    DefaultWindow,
		now:       time.Now,
		observers: make(map[string]Observer),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subscribe registers o and returns its id.
func (n *Notifier) Subscribe(o Observer) string {
	id := uuid.NewString()
	n.mu.Lock()
	n.observers[id] = o
	n.order = append(n.order, id)
	count := len(n.observers)
	n.mu.Unlock()
	metrics.Observers.Set(float64(count))
	n.log.Debug("observer subscribed", slog.String("id", id))
	return id
}

// Unsubscribe removes the observer. Unknown ids are ignored.
func (n *Notifier) Unsubscribe(id string) bool {
	n.mu.Lock()
	_, ok := n.observers[id]
	if ok {
		delete(n.observers, id)
		for i, v := range n.order {
			if v == id {
				n.order = append(n.order[:i], n.order[i+1:]...)
				break
			}
		}
	}
	count := len(n.observers)
	n.mu.Unlock()
	metrics.Observers.Set(float64(count))
	return ok
}

func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.observers)
}

// Notify schedules a reload. Calls within the window collapse into one.
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || n.pending != nil {
		return
	}
	n.pending = time.AfterFunc(n.window, func() {
		n.mu.Lock()
		n.pending = nil
		n.mu.Unlock()
		n.Reload(context.Background())
	})
}

// Reload reads the store now and broadcasts the result.
func (n *Notifier) Reload(ctx context.Context) {
	rec, err := n.load(ctx)
	if err != nil {
		n.log.Warn("reload timer state failed", slog.String("error", err.Error()))
		return
	}
	n.Broadcast(Snapshot{Record: rec, Running: !rec.Idle(), Now: n.now()})
}

// Broadcast pushes s to every observer immediately.
func (n *Notifier) Broadcast(s Snapshot) {
	for _, o := range n.snapshotObservers() {
		o.Render(s)
	}
}

// Alert forwards a to observers implementing Alerter.
func (n *Notifier) Alert(a Alert) {
	n.log.Info("long-running timer",
		slog.String("entry", a.EntryID),
		slog.Duration("elapsed", a.Elapsed),
	)
	for _, o := range n.snapshotObservers() {
		if al, ok := o.(Alerter); ok {
			al.Alert(a)
		}
	}
}

// Close drops a pending reload and stops accepting new ones.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	if n.pending != nil {
		n.pending.Stop()
		n.pending = nil
	}
}

func (n *Notifier) snapshotObservers() []Observer {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Observer, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, n.observers[id])
	}
	return out
}
