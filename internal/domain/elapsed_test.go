package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatElapsed(t *testing.T) {
	t0 := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		now   time.Time
		start time.Time
		want  string
	}{
		{name: "two minutes five seconds", now: t0.Add(125 * time.Second), start: t0, want: "02:05"},
		{name: "just started", now: t0, start: t0, want: "00:00"},
		{name: "over an hour", now: t0.Add(time.Hour + 2*time.Minute + 3*time.Second), start: t0, want: "1:02:03"},
		{name: "start in the future", now: t0, start: t0.Add(time.Minute), want: "00:00"},
		{name: "zero start", now: t0, start: time.Time{}, want: "00:00"},
		{name: "sub-second truncates", now: t0.Add(1999 * time.Millisecond), start: t0, want: "00:01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatElapsed(tt.now, tt.start))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0m", FormatDuration(0))
	assert.Equal(t, "45m", FormatDuration(45*time.Minute+30*time.Second))
	assert.Equal(t, "2h 5m", FormatDuration(2*time.Hour+5*time.Minute))
	assert.Equal(t, "0m", FormatDuration(-time.Minute))
}

func TestTimerRecordValidate(t *testing.T) {
	assert.NoError(t, TimerRecord{}.Validate())
	assert.ErrorIs(t, TimerRecord{EntryID: "abc"}.Validate(), ErrInvalidRecord)
	assert.NoError(t, TimerRecord{EntryID: "abc", Start: time.Now()}.Validate())
}

func TestRecordFromEntryCopiesTags(t *testing.T) {
	e := TimeEntry{ID: "e1", UserID: "u1", WorkspaceID: "w1", TagIDs: []string{"t1"}, Start: time.Now()}
	rec := RecordFromEntry(e, time.Time{})
	e.TagIDs[0] = "mutated"
	assert.Equal(t, []string{"t1"}, rec.TagIDs)
	assert.Equal(t, "e1", rec.EntryID)
	assert.Equal(t, "u1", rec.UserID)
}
