package app

import (
	"fmt"
	"io"
	"sync"

	"timersync/internal/domain"
	"timersync/internal/notify"
)

// ConsoleObserver prints one status line per snapshot, for `watch`.
type ConsoleObserver struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

func NewConsoleObserver(w io.Writer) *ConsoleObserver {
	return &ConsoleObserver{w: w}
}

// Render writes the status line if it changed.
func (c *ConsoleObserver) Render(s notify.Snapshot) {
	line := StatusLine(s)
	c.mu.Lock()
	defer c.mu.Unlock()
	if line == c.last {
		return
	}
	c.last = line
	fmt.Fprintln(c.w, line)
}

func (c *ConsoleObserver) Alert(a notify.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "timer %q has been running for %s\n", a.Description, domain.FormatDuration(a.Elapsed))
}

// StatusLine is the one-line rendering shared by the CLI surfaces.
func StatusLine(s notify.Snapshot) string {
	if !s.Running {
		return "idle"
	}
	desc := s.Record.Description
	if desc == "" {
		desc = "(no description)"
	}
	return fmt.Sprintf("running %s  %s", s.Elapsed(), desc)
}
