package domain

import (
	"errors"
	"time"
)

// TimeEntry represents a remote time entry. End is nil while the entry is running.
type TimeEntry struct {
	ID          string
	WorkspaceID string
	UserID      string
	Description string
	ProjectID   string
	TaskID      string
	TagIDs      []string
	Start       time.Time
	End         *time.Time
}

// Running reports whether the entry has no end timestamp yet.
func (e TimeEntry) Running() bool { return e.End == nil }

// Duration returns the entry length, measured against now while it is running.
func (e TimeEntry) Duration(now time.Time) time.Duration {
	end := now
	if e.End != nil {
		end = *e.End
	}
	if end.Before(e.Start) {
		return 0
	}
	return end.Sub(e.Start)
}

// TimerRecord is the locally persisted belief about the running entry.
// An empty EntryID is the idle state.
type TimerRecord struct {
	EntryID          string    `json:"entryId"`
	UserID           string    `json:"userId"`
	WorkspaceID      string    `json:"workspaceId"`
	Description      string    `json:"description"`
	ProjectID        string    `json:"projectId,omitempty"`
	TaskID           string    `json:"taskId,omitempty"`
	TagIDs           []string  `json:"tagIds,omitempty"`
	Start            time.Time `json:"start"`
	LastReconciledAt time.Time `json:"lastReconciledAt"`
}

// ErrInvalidRecord is returned when a record claims an entry without a start time.
var ErrInvalidRecord = errors.New("timer record has an entry id but no start time")

// Idle reports whether the record describes no running timer.
func (r TimerRecord) Idle() bool { return r.EntryID == "" }

// Validate checks that a running record carries its start timestamp.
func (r TimerRecord) Validate() error {
	if r.EntryID != "" && r.Start.IsZero() {
		return ErrInvalidRecord
	}
	return nil
}

// RecordFromEntry builds a record from a remote entry. Remote fields win.
func RecordFromEntry(e TimeEntry, reconciledAt time.Time) TimerRecord {
	tags := make([]string, len(e.TagIDs))
	copy(tags, e.TagIDs)
	return TimerRecord{
		EntryID:          e.ID,
		UserID:           e.UserID,
		WorkspaceID:      e.WorkspaceID,
		Description:      e.Description,
		ProjectID:        e.ProjectID,
		TaskID:           e.TaskID,
		TagIDs:           tags,
		Start:            e.Start,
		LastReconciledAt: reconciledAt,
	}
}

// NewEntry is the body of a start request.
type NewEntry struct {
	Start       time.Time
	Description string
	ProjectID   string
	TaskID      string
	TagIDs      []string
}
