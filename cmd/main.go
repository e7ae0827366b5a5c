package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/okian/skillboard/internal/config"
	"github.com/okian/skillboard/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("skillboard: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment and config file still apply.
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return newApp().RunContext(ctx, os.Args)
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "skillboard",
		Usage: "rate daily word-puzzle results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("config"); path != "" {
				return os.Setenv(config.EnvPrefix+"CONFIG", path)
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			leaderboardCommand(),
			rebuildCommand(),
			ingestCommand(),
		},
	}
}

// loadConfig loads configuration and applies the configured log level.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}
