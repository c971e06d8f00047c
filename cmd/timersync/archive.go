package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"
)

func archiveCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Copy completed entries to MySQL",
		Description: `Copies completed time entries and the project list into the MySQL
database named by MYSQL_DSN. Rows are upserted, so re-running a window is safe.

With --daily the command stays up and archives the previous day at each local
midnight in sync.timezone.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "RFC3339 or YYYY-MM-DD start (default: to - 24h)"},
			&cli.StringFlag{Name: "to", Usage: "RFC3339 or YYYY-MM-DD end, date-only is inclusive (default: now)"},
			&cli.BoolFlag{Name: "daily", Usage: "run at local midnight each day"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			now := time.Now().UTC()
			toTime, err := parseEnd(c.String("to"), now)
			if err != nil {
				return err
			}
			fromTime, err := parseStart(c.String("from"), toTime.Add(-24*time.Hour))
			if err != nil {
				return err
			}

			a, cfg, logger, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if !c.Bool("daily") {
				if err := a.Archive(ctx, fromTime, toTime); err != nil {
					return err
				}
				logger.Info("archive completed")
				return nil
			}

			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			logger.Info("starting daily archive at midnight", slog.String("tz", loc.String()))
			for {
				next := nextMidnight(time.Now().In(loc))
				dur := time.Until(next)
				logger.Info("sleeping until next midnight", slog.Time("next", next), slog.Duration("sleep", dur))
				select {
				case <-ctx.Done():
					logger.Info("shutting down")
					return nil
				case <-time.After(dur):
					// [midnight-24h, midnight) in local tz, expressed in UTC
					endUTC := next.UTC()
					startUTC := endUTC.Add(-24 * time.Hour)
					if err := a.Archive(ctx, startUTC, endUTC); err != nil {
						logger.Error("daily archive failed", slog.String("error", err.Error()))
					} else {
						logger.Info("daily archive completed", slog.Time("from", startUTC), slog.Time("to", endUTC))
					}
				}
			}
		},
	}
}

// parseStart parses a start boundary that may be RFC3339 or YYYY-MM-DD.
// If empty, defaultVal is returned.
func parseStart(val string, defaultVal time.Time) (time.Time, error) {
	if val == "" {
		return defaultVal, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t, nil
	}
	if d, err := time.Parse("2006-01-02", val); err == nil {
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("invalid --from %q, expected RFC3339 or YYYY-MM-DD", val)
}

// parseEnd parses an end boundary that may be RFC3339 or YYYY-MM-DD.
// Date-only form is inclusive: it becomes next-day 00:00 UTC.
func parseEnd(val string, defaultVal time.Time) (time.Time, error) {
	if val == "" {
		return defaultVal, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t, nil
	}
	if d, err := time.Parse("2006-01-02", val); err == nil {
		next := d.Add(24 * time.Hour)
		return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("invalid --to %q, expected RFC3339 or YYYY-MM-DD", val)
}

// nextMidnight returns the next midnight strictly after t in t's location.
func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
