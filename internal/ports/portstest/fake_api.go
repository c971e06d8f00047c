// Package portstest provides in-memory implementations of the ports interfaces for tests.
package portstest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"timersync/internal/domain"
	"timersync/internal/ports"
)

var _ ports.TimerAPI = (*FakeAPI)(nil)

// FakeAPI is an in-memory remote time-tracking service holding at most one
// running entry, like the real service.
type FakeAPI struct {
	mu sync.Mutex

	User          domain.User
	WorkspaceList []domain.Workspace
	Settings      domain.WorkspaceSettings
	ProjectList   []domain.Project
	TaskList      []domain.Task
	TagList       []domain.Tag
	Entries       []domain.TimeEntry

	UserErr     error
	SettingsErr error
	RunningErr  error
	StartErr    error
	StopErr     error

	// Gate, when set, blocks RunningEntry until a value is received or the gate is closed.
	Gate chan struct{}
	// Entered receives a value each time RunningEntry is entered, if set.
	Entered chan struct{}

	running *domain.TimeEntry
	nextID  int
	calls   map[string]int
	starts  []domain.NewEntry
}

// NewFakeAPI returns a fake with user "user-1" in workspace "ws-1".
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		User:          domain.User{ID: "user-1", Name: "Test User", DefaultWorkspaceID: "ws-1"},
		WorkspaceList: []domain.Workspace{{ID: "ws-1", Name: "Main"}},
		calls:         make(map[string]int),
	}
}

// SetRunning replaces the remote running entry; nil stops it out-of-band.
func (f *FakeAPI) SetRunning(e *domain.TimeEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e == nil {
		f.running = nil
		return
	}
	cp := *e
	f.running = &cp
}

// Running returns a copy of the remote running entry.
func (f *FakeAPI) Running() *domain.TimeEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running == nil {
		return nil
	}
	cp := *f.running
	return &cp
}

// Calls returns how many times op was invoked.
func (f *FakeAPI) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Starts returns the bodies of all start requests.
func (f *FakeAPI) Starts() []domain.NewEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.NewEntry, len(f.starts))
	copy(out, f.starts)
	return out
}

func (f *FakeAPI) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

func (f *FakeAPI) CurrentUser(ctx context.Context) (domain.User, error) {
	f.record("CurrentUser")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UserErr != nil {
		return domain.User{}, f.UserErr
	}
	return f.User, nil
}

func (f *FakeAPI) Workspaces(ctx context.Context) ([]domain.Workspace, error) {
	f.record("Workspaces")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Workspace(nil), f.WorkspaceList...), nil
}

func (f *FakeAPI) WorkspaceSettings(ctx context.Context, workspaceID string) (domain.WorkspaceSettings, error) {
	f.record("WorkspaceSettings")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SettingsErr != nil {
		return domain.WorkspaceSettings{}, f.SettingsErr
	}
	return f.Settings, nil
}

func (f *FakeAPI) Projects(ctx context.Context, workspaceID string) ([]domain.Project, error) {
	f.record("Projects")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Project(nil), f.ProjectList...), nil
}

func (f *FakeAPI) Tasks(ctx context.Context, workspaceID, projectID string) ([]domain.Task, error) {
	f.record("Tasks")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Task
	for _, t := range f.TaskList {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *FakeAPI) Tags(ctx context.Context, workspaceID string) ([]domain.Tag, error) {
	f.record("Tags")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Tag(nil), f.TagList...), nil
}

func (f *FakeAPI) RunningEntry(ctx context.Context, workspaceID, userID string) (*domain.TimeEntry, error) {
	f.record("RunningEntry")
	if f.Entered != nil {
		f.Entered <- struct{}{}
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RunningErr != nil {
		return nil, f.RunningErr
	}
	if f.running == nil {
		return nil, nil
	}
	cp := *f.running
	return &cp, nil
}

func (f *FakeAPI) ListTimeEntries(ctx context.Context, workspaceID, userID string, from, to time.Time) ([]domain.TimeEntry, error) {
	f.record("ListTimeEntries")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TimeEntry
	for _, e := range f.Entries {
		if !e.Start.Before(from) && !e.Start.After(to) {
			out = append(out, e)
		}
	}
	if f.running != nil && !f.running.Start.Before(from) && !f.running.Start.After(to) {
		out = append(out, *f.running)
	}
	return out, nil
}

func (f *FakeAPI) StartEntry(ctx context.Context, workspaceID string, entry domain.NewEntry) (domain.TimeEntry, error) {
	f.record("StartEntry")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return domain.TimeEntry{}, f.StartErr
	}
	f.starts = append(f.starts, entry)
	if f.running != nil {
		end := entry.Start
		done := *f.running
		done.End = &end
		f.Entries = append(f.Entries, done)
	}
	f.nextID++
	e := domain.TimeEntry{
		ID:          fmt.Sprintf("entry-%d", f.nextID),
		WorkspaceID: workspaceID,
		UserID:      f.User.ID,
		Description: entry.Description,
		ProjectID:   entry.ProjectID,
		TaskID:      entry.TaskID,
		TagIDs:      append([]string(nil), entry.TagIDs...),
		Start:       entry.Start,
	}
	f.running = &e
	return e, nil
}

func (f *FakeAPI) StopEntry(ctx context.Context, workspaceID, userID string, end time.Time) (domain.TimeEntry, error) {
	f.record("StopEntry")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StopErr != nil {
		return domain.TimeEntry{}, f.StopErr
	}
	if f.running == nil {
		return domain.TimeEntry{}, &domain.APIError{Op: "stop entry", Status: 404, Err: domain.ErrNotFound}
	}
	done := *f.running
	done.End = &end
	f.Entries = append(f.Entries, done)
	f.running = nil
	return done, nil
}
