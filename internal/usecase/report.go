package usecase

import (
	"context"
	"fmt"
	"time"

	"timersync/internal/domain"
)

// DayTotal is the tracked time of one calendar day.
type DayTotal struct {
	Day       time.Time
	Completed time.Duration
	Running   time.Duration
	Entries   int
	Goal      time.Duration
}

func (t DayTotal) Total() time.Duration { return t.Completed + t.Running }

// Progress is Total as a fraction of Goal, capped at 1.
func (t DayTotal) Progress() float64 {
	if t.Goal <= 0 {
		return 0
	}
	return min(1, float64(t.Total())/float64(t.Goal))
}

// Remaining is the time left to reach Goal, never negative.
func (t DayTotal) Remaining() time.Duration {
	return max(0, t.Goal-t.Total())
}

// Today sums the entries started since local midnight in loc, counting the
// running entry up to now.
func (e *SyncEngine) Today(ctx context.Context, loc *time.Location) (DayTotal, error) {
	if loc == nil {
		loc = time.Local
	}
	now := e.now().In(loc)
	y, m, d := now.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)

	ws, userID, err := e.scope(ctx)
	if err != nil {
		return DayTotal{}, err
	}
	entries, err := e.remote.Entries(ctx, ws, userID, from.UTC(), now.UTC())
	if err != nil {
		return DayTotal{}, fmt.Errorf("list today's entries: %w", err)
	}
	goal, err := e.store.DailyGoal(ctx)
	if err != nil {
		return DayTotal{}, err
	}
	total := sumDay(from, now, entries)
	total.Goal = goal
	return total, nil
}

func sumDay(day, now time.Time, entries []domain.TimeEntry) DayTotal {
	total := DayTotal{Day: day}
	seen := make(map[string]bool, len(entries))
	for _, te := range entries {
		if seen[te.ID] {
			continue
		}
		seen[te.ID] = true
		total.Entries++
		if te.Running() {
			total.Running += te.Duration(now)
		} else {
			total.Completed += te.Duration(now)
		}
	}
	return total
}

// scope returns the workspace and user of the running record, resolving the
// default workspace when idle. An empty user means the current user.
func (e *SyncEngine) scope(ctx context.Context) (workspaceID, userID string, err error) {
	e.mu.Lock()
	workspaceID, userID = e.record.WorkspaceID, e.record.UserID
	e.mu.Unlock()
	if workspaceID == "" {
		if workspaceID, err = e.remote.DefaultWorkspace(ctx); err != nil {
			return "", "", fmt.Errorf("resolve workspace: %w", err)
		}
	}
	return workspaceID, userID, nil
}
