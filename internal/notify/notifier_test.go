package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timersync/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recorder struct {
	mu     sync.Mutex
	snaps  []Snapshot
	alerts []Alert
}

func (r *recorder) Render(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) Alert(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recorder) renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func TestNotify_CoalescesWithinWindow(t *testing.T) {
	var loads atomic.Int32
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := New(func(ctx context.Context) (domain.TimerRecord, error) {
		loads.Add(1)
		return domain.TimerRecord{EntryID: "e1", Start: start}, nil
	}, discard(), WithWindow(30*time.Millisecond))
	defer n.Close()

	rec := &recorder{}
	n.Subscribe(rec)
	for i := 0; i < 10; i++ {
		n.Notify()
	}

	require.Eventually(t, func() bool { return rec.renders() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, 1, rec.renders())
	assert.True(t, rec.last().Running)
	assert.Equal(t, "e1", rec.last().Record.EntryID)
}

func TestNotify_LoadFailureSkipsRender(t *testing.T) {
	n := New(func(ctx context.Context) (domain.TimerRecord, error) {
		return domain.TimerRecord{}, errors.New("boom")
	}, discard())
	rec := &recorder{}
	n.Subscribe(rec)

	n.Reload(context.Background())
	assert.Equal(t, 0, rec.renders())
}

func TestBroadcast_Immediate(t *testing.T) {
	n := New(nil, discard())
	a, b := &recorder{}, &recorder{}
	n.Subscribe(a)
	idB := n.Subscribe(b)
	assert.Equal(t, 2, n.Len())

	n.Broadcast(Snapshot{})
	assert.Equal(t, 1, a.renders())
	assert.Equal(t, 1, b.renders())

	assert.True(t, n.Unsubscribe(idB))
	assert.False(t, n.Unsubscribe(idB))
	n.Broadcast(Snapshot{})
	assert.Equal(t, 2, a.renders())
	assert.Equal(t, 1, b.renders())
}

func TestAlert_OnlyAlerters(t *testing.T) {
	n := New(nil, discard())
	rec := &recorder{}
	var plain int
	n.Subscribe(rec)
	n.Subscribe(ObserverFunc(func(Snapshot) { plain++ }))

	n.Alert(Alert{EntryID: "e1", Elapsed: 2 * time.Hour})
	require.Len(t, rec.alerts, 1)
	assert.Equal(t, "e1", rec.alerts[0].EntryID)
	assert.Equal(t, 0, plain)
}

func TestClose_DropsPendingReload(t *testing.T) {
	var loads atomic.Int32
	n := New(func(ctx context.Context) (domain.TimerRecord, error) {
		loads.Add(1)
		return domain.TimerRecord{}, nil
	}, discard(), WithWindow(20*time.Millisecond))

	n.Notify()
	n.Close()
	n.Notify()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), loads.Load())
}

func TestSnapshot_Elapsed(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := Snapshot{Record: domain.TimerRecord{EntryID: "e1", Start: t0}, Running: true, Now: t0.Add(125 * time.Second)}
	assert.Equal(t, "02:05", s.Elapsed())
	assert.Equal(t, "00:00", Snapshot{Now: t0}.Elapsed())
}

func TestFileWatcher_SignalsOnRewrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	changed := make(chan struct{}, 16)
	fw, err := WatchFile(path, func() { changed <- struct{}{} }, discard())
	require.NoError(t, err)
	defer fw.Close() //nolint:errcheck

	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.json"), []byte(`{}`), 0o644))

	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(`{}`), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for change")
	}
}
