package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"timersync/internal/app"
	"timersync/internal/domain"
)

func refsCommand(g *globals) *cli.Command {
	workspaceFlag := &cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Usage: "workspace id (default: resolved default workspace)"}

	return &cli.Command{
		Name:  "refs",
		Usage: "List workspaces, projects, tasks and tags",
		Commands: []*cli.Command{
			{
				Name:  "workspaces",
				Usage: "List workspaces",
				Action: func(ctx context.Context, _ *cli.Command) error {
					a, _, _, err := g.open(ctx)
					if err != nil {
						return err
					}
					defer a.Close()

					wss, err := a.Fetcher.Workspaces(ctx)
					if err != nil {
						return err
					}
					w := newTable()
					fmt.Fprintln(w, "ID\tNAME")
					for _, ws := range wss {
						fmt.Fprintf(w, "%s\t%s\n", ws.ID, ws.Name)
					}
					return w.Flush()
				},
			},
			{
				Name:  "projects",
				Usage: "List projects and tags of a workspace",
				Flags: []cli.Flag{workspaceFlag},
				Action: func(ctx context.Context, c *cli.Command) error {
					a, _, _, err := g.open(ctx)
					if err != nil {
						return err
					}
					defer a.Close()

					ws, err := workspace(ctx, a, c.String("workspace"))
					if err != nil {
						return err
					}

					var (
						projects []domain.Project
						tags     []domain.Tag
					)
					eg, egCtx := errgroup.WithContext(ctx)
					eg.Go(func() error {
						var err error
						projects, err = a.Fetcher.Projects(egCtx, ws)
						return err
					})
					eg.Go(func() error {
						var err error
						tags, err = a.Fetcher.Tags(egCtx, ws)
						return err
					})
					if err := eg.Wait(); err != nil {
						return err
					}

					w := newTable()
					fmt.Fprintln(w, "PROJECT\tNAME\tCLIENT")
					for _, p := range projects {
						if p.Archived {
							continue
						}
						fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.ClientName)
					}
					fmt.Fprintln(w, "\nTAG\tNAME\t")
					for _, t := range tags {
						fmt.Fprintf(w, "%s\t%s\t\n", t.ID, t.Name)
					}
					return w.Flush()
				},
			},
			{
				Name:      "tasks",
				Usage:     "List tasks of a project",
				UsageText: "timersync refs tasks [--workspace id] <project-id>",
				Flags:     []cli.Flag{workspaceFlag},
				Action: func(ctx context.Context, c *cli.Command) error {
					projectID := c.Args().First()
					if projectID == "" {
						return fmt.Errorf("project id required: %w", domain.ErrValidation)
					}
					a, _, _, err := g.open(ctx)
					if err != nil {
						return err
					}
					defer a.Close()

					ws, err := workspace(ctx, a, c.String("workspace"))
					if err != nil {
						return err
					}
					tasks, err := a.Fetcher.Tasks(ctx, ws, projectID)
					if err != nil {
						return err
					}
					w := newTable()
					fmt.Fprintln(w, "ID\tNAME\tSTATUS")
					for _, t := range tasks {
						fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Name, t.Status)
					}
					return w.Flush()
				},
			},
		},
	}
}

func workspace(ctx context.Context, a *app.App, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	return a.Fetcher.DefaultWorkspace(ctx)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}
