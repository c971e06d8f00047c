package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"timersync/internal/domain"
)

func serveCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP panel and background sync",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (overrides http.addr)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, cfg, logger, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			addr := cfg.HTTP.Addr
			if v := c.String("addr"); v != "" {
				addr = v
			}
			srv := a.HTTPServer(addr)

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				logger.Info("listening", slog.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			eg.Go(func() error {
				return a.Watch(egCtx)
			})
			eg.Go(func() error {
				<-egCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return eg.Wait()
		},
	}
}

func todayCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "today",
		Usage: "Show time tracked today",
		Action: func(ctx context.Context, _ *cli.Command) error {
			a, cfg, _, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			total, err := a.Engine.Today(ctx, loc)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s across %d entries", total.Day.Format("2006-01-02"),
				domain.FormatDuration(total.Total()), total.Entries)
			if total.Running > 0 {
				fmt.Printf(" (%s running)", domain.FormatDuration(total.Running))
			}
			fmt.Printf("\ngoal %s  %.0f%%", domain.FormatDuration(total.Goal), total.Progress()*100)
			if left := total.Remaining(); left > 0 {
				fmt.Printf("  %s to go", domain.FormatDuration(left))
			}
			fmt.Println()
			return nil
		},
	}
}
