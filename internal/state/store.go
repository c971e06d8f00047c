// Package state persists the local belief about the running timer.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"timersync/internal/domain"
	"timersync/internal/ports"
)

// Keys of the persisted snapshot. Values are JSON encoded.
const (
	KeyEntryID          = "lastTimeEntryId"
	KeyUserID           = "lastTimeEntryUserId"
	KeyWorkspaceID      = "lastTimeEntryWorkspaceId"
	KeyStart            = "lastTimeEntryStart"
	KeyDescription      = "lastTimeEntryDescription"
	KeyProjectID        = "lastTimeEntryProjectId"
	KeyTaskID           = "lastTimeEntryTaskId"
	KeyTagIDs           = "lastTimeEntryTagIds"
	KeyLastReconciledAt = "lastReconciledAt"
	KeyRepoSelections   = "repoSelections"
	KeyQuickStart       = "quickStartEnabled"
	KeyDailyGoal        = "dailyGoal"
)

// DefaultDailyGoal applies until a goal is set.
const DefaultDailyGoal = 8 * time.Hour

var recordKeys = []string{
	KeyEntryID, KeyUserID, KeyWorkspaceID, KeyStart, KeyDescription,
	KeyProjectID, KeyTaskID, KeyTagIDs, KeyLastReconciledAt,
}

// ChangeFunc is called after every successful write.
type ChangeFunc func()

// Store is the typed view over a KV backend. Every read supplies its default.
type Store struct {
	kv       ports.KV
	log      *slog.Logger
	onChange ChangeFunc
}

func NewStore(kv ports.KV, log *slog.Logger) *Store {
	return &Store{kv: kv, log: log}
}

// OnChange registers the write hook, typically Notifier.Notify.
func (s *Store) OnChange(fn ChangeFunc) {
	s.onChange = fn
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// LoadRecord returns the persisted record. All fields come from one read, so
// a concurrent write never yields a mixed record. A missing or undecodable
// record is idle.
func (s *Store) LoadRecord(ctx context.Context) (domain.TimerRecord, error) {
	vals, err := s.kv.GetMany(ctx, recordKeys...)
	if err != nil {
		return domain.TimerRecord{}, fmt.Errorf("read timer record: %w", err)
	}
	str := func(key string) string {
		var v string
		s.decode(key, vals[key], &v)
		return v
	}

	var rec domain.TimerRecord
	if rec.EntryID = str(KeyEntryID); rec.EntryID == "" {
		return domain.TimerRecord{}, nil
	}
	rec.UserID = str(KeyUserID)
	rec.WorkspaceID = str(KeyWorkspaceID)
	rec.Description = str(KeyDescription)
	rec.ProjectID = str(KeyProjectID)
	rec.TaskID = str(KeyTaskID)
	rec.Start = s.parseTime(KeyStart, str(KeyStart))
	rec.LastReconciledAt = s.parseTime(KeyLastReconciledAt, str(KeyLastReconciledAt))
	s.decode(KeyTagIDs, vals[KeyTagIDs], &rec.TagIDs)

	if err := rec.Validate(); err != nil {
		s.log.Warn("discarding invalid timer record",
			slog.String("entry", rec.EntryID),
			slog.String("error", err.Error()),
		)
		return domain.TimerRecord{}, nil
	}
	return rec, nil
}

// SaveRecord writes the whole record as one snapshot. An idle record clears.
func (s *Store) SaveRecord(ctx context.Context, rec domain.TimerRecord) error {
	if rec.Idle() {
		return s.Clear(ctx)
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	tags := rec.TagIDs
	if tags == nil {
		tags = []string{}
	}
	values := map[string]string{}
	put := func(key string, v any) {
		b, _ := json.Marshal(v)
		values[key] = string(b)
	}
	put(KeyEntryID, rec.EntryID)
	put(KeyUserID, rec.UserID)
	put(KeyWorkspaceID, rec.WorkspaceID)
	put(KeyStart, rec.Start.UTC().Format(time.RFC3339Nano))
	put(KeyDescription, rec.Description)
	put(KeyProjectID, rec.ProjectID)
	put(KeyTaskID, rec.TaskID)
	put(KeyTagIDs, tags)
	if rec.LastReconciledAt.IsZero() {
		put(KeyLastReconciledAt, "")
	} else {
		put(KeyLastReconciledAt, rec.LastReconciledAt.UTC().Format(time.RFC3339Nano))
	}
	if err := s.kv.SetMany(ctx, values); err != nil {
		return fmt.Errorf("save timer record: %w", err)
	}
	s.changed()
	return nil
}

// Clear removes the record, leaving selections and preferences intact.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, recordKeys...); err != nil {
		return fmt.Errorf("clear timer record: %w", err)
	}
	s.changed()
	return nil
}

// TouchReconciled advances lastReconciledAt only.
func (s *Store) TouchReconciled(ctx context.Context, at time.Time) error {
	b, _ := json.Marshal(at.UTC().Format(time.RFC3339Nano))
	if err := s.kv.SetMany(ctx, map[string]string{KeyLastReconciledAt: string(b)}); err != nil {
		return fmt.Errorf("touch reconciled: %w", err)
	}
	s.changed()
	return nil
}

// RepoSelections decodes the remembered selections. Corrupt data is logged
// and replaced by an empty map; entries with an empty key are dropped.
func (s *Store) RepoSelections(ctx context.Context) (map[string]domain.RepoSelection, error) {
	raw, ok, err := s.kv.Get(ctx, KeyRepoSelections)
	if err != nil {
		return nil, err
	}
	out := map[string]domain.RepoSelection{}
	if !ok || raw == "" {
		return out, nil
	}
	var decoded map[string]domain.RepoSelection
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		s.log.Warn("ignoring corrupt repo selections", slog.String("error", err.Error()))
		return out, nil
	}
	for k, v := range decoded {
		key := domain.NormalizeRepo(k)
		if key == "" {
			continue
		}
		out[key] = v.Normalized()
	}
	return out, nil
}

// RepoSelection returns the remembered selection for repo, if any.
func (s *Store) RepoSelection(ctx context.Context, repo string) (domain.RepoSelection, bool, error) {
	all, err := s.RepoSelections(ctx)
	if err != nil {
		return domain.RepoSelection{}, false, err
	}
	sel, ok := all[domain.NormalizeRepo(repo)]
	return sel, ok && !sel.Empty(), nil
}

// SaveRepoSelection remembers sel for repo. An empty selection forgets it.
func (s *Store) SaveRepoSelection(ctx context.Context, repo string, sel domain.RepoSelection) error {
	key := domain.NormalizeRepo(repo)
	if key == "" {
		return fmt.Errorf("repo key is empty: %w", domain.ErrValidation)
	}
	all, err := s.RepoSelections(ctx)
	if err != nil {
		return err
	}
	sel = sel.Normalized()
	if sel.Empty() {
		delete(all, key)
	} else {
		all[key] = sel
	}
	b, err := json.Marshal(all)
	if err != nil {
		return err
	}
	if err := s.kv.SetMany(ctx, map[string]string{KeyRepoSelections: string(b)}); err != nil {
		return fmt.Errorf("save repo selection: %w", err)
	}
	s.changed()
	return nil
}

// QuickStart reports whether remembered selections seed new timers. Default false.
func (s *Store) QuickStart(ctx context.Context) (bool, error) {
	var v bool
	if err := s.getJSON(ctx, KeyQuickStart, &v); err != nil {
		return false, err
	}
	return v, nil
}

func (s *Store) SetQuickStart(ctx context.Context, enabled bool) error {
	b, _ := json.Marshal(enabled)
	if err := s.kv.SetMany(ctx, map[string]string{KeyQuickStart: string(b)}); err != nil {
		return fmt.Errorf("save quick start: %w", err)
	}
	s.changed()
	return nil
}

func (s *Store) parseTime(key, v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		s.log.Warn("ignoring unparsable timestamp", slog.String("key", key), slog.String("value", v))
		return time.Time{}
	}
	return t
}

// DailyGoal returns the tracked-time target for one day. The value is stored
// in hours; a missing or out of range value yields DefaultDailyGoal.
func (s *Store) DailyGoal(ctx context.Context) (time.Duration, error) {
	var hours float64
	if err := s.getJSON(ctx, KeyDailyGoal, &hours); err != nil {
		return 0, err
	}
	goal := time.Duration(hours * float64(time.Hour))
	if validGoal(goal) != nil {
		return DefaultDailyGoal, nil
	}
	return goal, nil
}

// SetDailyGoal stores goal, which must be more than zero and at most 24h.
func (s *Store) SetDailyGoal(ctx context.Context, goal time.Duration) error {
	if err := validGoal(goal); err != nil {
		return err
	}
	b, _ := json.Marshal(goal.Hours())
	if err := s.kv.SetMany(ctx, map[string]string{KeyDailyGoal: string(b)}); err != nil {
		return fmt.Errorf("save daily goal: %w", err)
	}
	s.changed()
	return nil
}

func validGoal(goal time.Duration) error {
	if goal <= 0 || goal > 24*time.Hour {
		return fmt.Errorf("daily goal %s out of range (0, 24h]: %w", goal, domain.ErrValidation)
	}
	return nil
}

// getJSON leaves dst at its zero value when the key is absent or corrupt.
func (s *Store) getJSON(ctx context.Context, key string, dst any) error {
	raw, _, err := s.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	s.decode(key, raw, dst)
	return nil
}

// decode unmarshals raw into dst; empty or corrupt input leaves dst unchanged.
func (s *Store) decode(key, raw string, dst any) {
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.log.Warn("ignoring corrupt value", slog.String("key", key), slog.String("error", err.Error()))
	}
}
