package usecase

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"timersync/internal/domain"
)

// DefaultHistoryDays is how far back History looks when asked for zero days.
const DefaultHistoryDays = 7

const resumedDescription = "Resumed from history"

// History returns the entries started in the last days, newest first. The
// running entry is included.
func (e *SyncEngine) History(ctx context.Context, days int) ([]domain.TimeEntry, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	ws, userID, err := e.scope(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	entries, err := e.remote.Entries(ctx, ws, userID, now.AddDate(0, 0, -days), now)
	if err != nil {
		return nil, fmt.Errorf("list recent entries: %w", err)
	}

	seen := make(map[string]bool, len(entries))
	out := make([]domain.TimeEntry, 0, len(entries))
	for _, te := range entries {
		if seen[te.ID] {
			continue
		}
		seen[te.ID] = true
		out = append(out, te)
	}
	slices.SortStableFunc(out, func(a, b domain.TimeEntry) int {
		return cmp.Compare(b.Start.UnixNano(), a.Start.UnixNano())
	})
	return out, nil
}

// Resume starts a new timer carrying over the description, project, task and
// tags of a recent entry. The entry must be within DefaultHistoryDays.
func (e *SyncEngine) Resume(ctx context.Context, entryID string) (domain.TimerRecord, error) {
	history, err := e.History(ctx, DefaultHistoryDays)
	if err != nil {
		return domain.TimerRecord{}, err
	}
	i := slices.IndexFunc(history, func(te domain.TimeEntry) bool { return te.ID == entryID })
	if i < 0 {
		return domain.TimerRecord{}, fmt.Errorf("entry %s not in the last %d days: %w", entryID, DefaultHistoryDays, domain.ErrNotFound)
	}
	return e.Start(ctx, resumeRequest(history[i]))
}

func resumeRequest(te domain.TimeEntry) StartRequest {
	req := StartRequest{
		Description: te.Description,
		WorkspaceID: te.WorkspaceID,
		ProjectID:   te.ProjectID,
		TaskID:      te.TaskID,
		TagIDs:      slices.Clone(te.TagIDs),
	}
	if req.Description == "" {
		req.Description = resumedDescription
	}
	return req
}
