package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"timersync/internal/domain"
	"timersync/internal/usecase"
)

func historyCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent time entries",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Aliases: []string{"n"}, Value: usecase.DefaultHistoryDays, Usage: "how many days back"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, cfg, _, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			entries, err := a.Engine.History(ctx, int(c.Int("days")))
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no recent time entries")
				return nil
			}

			now := time.Now()
			w := newTable()
			fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tDESCRIPTION")
			for _, te := range entries {
				desc := te.Description
				if desc == "" {
					desc = "(no description)"
				}
				dur := domain.FormatDuration(te.Duration(now))
				if te.Running() {
					dur += " *"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", te.ID, te.Start.In(loc).Format("Mon 01-02 15:04"), dur, desc)
			}
			return w.Flush()
		},
	}
}

func resumeCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Start a new timer from a recent entry",
		UsageText: "timersync resume <entry-id>",
		Description: `Starts a timer with the description, project, task and tags of an entry
from the last week. Use 'timersync history' to find the id.`,
		Action: func(ctx context.Context, c *cli.Command) error {
			id := c.Args().First()
			if id == "" {
				return fmt.Errorf("entry id required: %w", domain.ErrValidation)
			}
			a, _, _, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Engine.Resume(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("resumed as %s  %s\n", rec.EntryID, rec.Description)
			return nil
		},
	}
}

func goalCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:      "goal",
		Usage:     "Show or set the daily tracked-time goal",
		UsageText: "timersync goal [hours | duration]",
		Action: func(ctx context.Context, c *cli.Command) error {
			var (
				goal time.Duration
				set  = c.Args().Present()
			)
			if set {
				var err error
				if goal, err = parseGoal(c.Args().First()); err != nil {
					return err
				}
			}

			a, _, _, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if set {
				if err := a.Store.SetDailyGoal(ctx, goal); err != nil {
					return err
				}
			}
			goal, err = a.Store.DailyGoal(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("daily goal: %s\n", domain.FormatDuration(goal))
			return nil
		},
	}
}

// parseGoal accepts plain hours ("7.5") or a Go duration ("7h30m").
func parseGoal(val string) (time.Duration, error) {
	if h, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(h * float64(time.Hour)), nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid goal %q, expected hours or a duration like 7h30m: %w", val, domain.ErrValidation)
	}
	return d, nil
}
