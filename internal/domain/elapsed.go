package domain

import (
	"fmt"
	"time"
)

// FormatElapsed renders now-start as "MM:SS", or "H:MM:SS" once past an hour.
// A zero start renders "00:00"; a start in the future clamps to zero.
func FormatElapsed(now, start time.Time) string {
	if start.IsZero() {
		return "00:00"
	}
	total := int64(now.Sub(start) / time.Second)
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatDuration renders a duration as "Xh Ym" or "Ym".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int64(d / time.Hour)
	m := int64((d % time.Hour) / time.Minute)
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
