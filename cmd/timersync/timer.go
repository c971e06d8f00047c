package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"timersync/internal/adapter/gitrepo"
	"timersync/internal/app"
	"timersync/internal/domain"
	"timersync/internal/usecase"
)

func startCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start a timer",
		UsageText: "timersync start [options] [description]",
		Description: `Starts a Clockify timer and records it locally. A timer that is already
running is replaced.

Inside a git working copy the repository and branch are detected and used for
the description and the per-repository project mapping. Use --no-repo to skip.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "entry description"},
			&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Usage: "workspace id"},
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "project id"},
			&cli.StringFlag{Name: "task", Aliases: []string{"t"}, Usage: "task id (requires --project)"},
			&cli.StringSliceFlag{Name: "tag", Usage: "tag id (repeatable)"},
			&cli.StringSliceFlag{Name: "label", Aliases: []string{"l"}, Usage: "issue label mapped to a tag (repeatable)"},
			&cli.StringFlag{Name: "repo", Usage: "override detected repository name"},
			&cli.StringFlag{Name: "branch", Usage: "override detected branch"},
			&cli.BoolFlag{Name: "no-repo", Usage: "do not detect the git working copy"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, _, logger, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			req := usecase.StartRequest{
				Description: c.String("description"),
				WorkspaceID: c.String("workspace"),
				ProjectID:   c.String("project"),
				TaskID:      c.String("task"),
				TagIDs:      c.StringSlice("tag"),
				Labels:      c.StringSlice("label"),
				Repo:        c.String("repo"),
				Branch:      c.String("branch"),
			}
			if req.Description == "" && c.Args().Len() > 0 {
				req.Description = strings.Join(c.Args().Slice(), " ")
			}
			if !c.Bool("no-repo") {
				fillRepo(&req, logger)
			}

			rec, err := a.Engine.Start(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("started %s  %s\n", rec.EntryID, rec.Description)
			return nil
		},
	}
}

// fillRepo sets Repo and Branch from the working directory when not given.
func fillRepo(req *usecase.StartRequest, logger *slog.Logger) {
	if req.Repo != "" && req.Branch != "" {
		return
	}
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	gc, err := gitrepo.Detect(wd)
	if err != nil {
		if !errors.Is(err, gitrepo.ErrNotRepository) {
			logger.Debug("git detection failed", slog.String("error", err.Error()))
		}
		return
	}
	if req.Repo == "" {
		req.Repo = gc.Repo
	}
	if req.Branch == "" {
		req.Branch = gc.Branch
	}
}

func stopCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "Stop the running timer",
		Action: func(ctx context.Context, _ *cli.Command) error {
			a, _, _, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Engine.Stop(ctx)
			if err != nil {
				return err
			}
			switch {
			case res.WasIdle:
				fmt.Println("no timer running")
			case res.AlreadyStopped:
				fmt.Println("timer was already stopped remotely")
			case res.Entry != nil && res.Entry.End != nil:
				fmt.Printf("stopped %s after %s\n", res.Entry.ID,
					domain.FormatDuration(res.Entry.End.Sub(res.Entry.Start)))
			default:
				fmt.Println("stopped")
			}
			return nil
		},
	}
}

func statusCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the timer state",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "refresh", Aliases: []string{"r"}, Usage: "reconcile with Clockify first"},
			&cli.BoolFlag{Name: "json", Usage: "output as JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, _, _, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if c.Bool("refresh") {
				if _, err := a.Engine.ColdStart(ctx); err != nil {
					return err
				}
			}
			snap := a.Engine.Snapshot()
			if c.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap.Record)
			}
			fmt.Println(app.StatusLine(snap))
			return nil
		},
	}
}

func syncCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Reconcile local state with Clockify once",
		Action: func(ctx context.Context, _ *cli.Command) error {
			a, _, _, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Engine.ColdStart(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s  (%s)\n", app.StatusLine(a.Engine.Snapshot()), out)
			return nil
		},
	}
}

func watchCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Show a live status line until interrupted",
		Action: func(ctx context.Context, _ *cli.Command) error {
			a, _, _, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			a.Notifier.Subscribe(app.NewConsoleObserver(os.Stdout))
			return a.Watch(ctx)
		},
	}
}

func quickStartCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:      "quickstart",
		Usage:     "Show or toggle reuse of the last project per repository",
		UsageText: "timersync quickstart [on|off]",
		Action: func(ctx context.Context, c *cli.Command) error {
			a, _, _, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			switch arg := c.Args().First(); arg {
			case "":
			case "on", "off":
				if err := a.Store.SetQuickStart(ctx, arg == "on"); err != nil {
					return err
				}
			default:
				return fmt.Errorf("expected on or off, got %q", arg)
			}
			on, err := a.Store.QuickStart(ctx)
			if err != nil {
				return err
			}
			if on {
				fmt.Println("quick start: on")
			} else {
				fmt.Println("quick start: off")
			}
			return nil
		},
	}
}
