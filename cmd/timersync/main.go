package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"timersync/internal/app"
	"timersync/internal/config"
)

type globals struct {
	configPath string
	verbose    bool
}

func main() {
	g := &globals{}

	cmd := &cli.Command{
		Name:  "timersync",
		Usage: "Keep a local timer in sync with Clockify",
		Description: `timersync starts and stops Clockify timers from the terminal and keeps a
local copy of the running timer honest: it polls the remote on a short interval,
adopts timers started elsewhere and clears timers stopped elsewhere.

Run 'timersync watch' for a live status line or 'timersync serve' for the
HTTP/WebSocket panel.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("TIMERSYNC_CONFIG"),
				Destination: &g.configPath,
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Aliases:     []string{"v"},
				Usage:       "enable debug logging",
				Destination: &g.verbose,
			},
		},
		Commands: []*cli.Command{
			startCommand(g),
			stopCommand(g),
			statusCommand(g),
			syncCommand(g),
			watchCommand(g),
			serveCommand(g),
			todayCommand(g),
			goalCommand(g),
			historyCommand(g),
			resumeCommand(g),
			archiveCommand(g),
			refsCommand(g),
			quickStartCommand(g),
		},
	}

	// Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// logger builds the process logger. Commands that print to stdout log to stderr.
func (g *globals) logger() *slog.Logger {
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// open loads config and wires the app. The caller must Close it.
func (g *globals) open(ctx context.Context) (*app.App, config.Config, *slog.Logger, error) {
	logger := g.logger()
	cfg, err := config.Load(g.configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		return nil, cfg, logger, err
	}
	a, err := app.New(ctx, logger, cfg)
	if err != nil {
		logger.Error("failed to initialize app", slog.String("error", err.Error()))
		return nil, cfg, logger, err
	}
	return a, cfg, logger, nil
}
