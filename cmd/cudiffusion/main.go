package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cudiffusion/internal/logger"
	"github.com/samcharles93/cudiffusion/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "cudiffusion",
		Usage:   "Local stable-diffusion image studio",
		Version: version.String(),
		Flags:   append([]cli.Flag{configFlag()}, loggingFlags()...),
		Before:  setupLogging,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			serveCmd(),
			listModelsCmd(),
			settingsCmd(),
			versionCmd(),
		},
	}
}

// setupLogging installs the logger in the command context. Flags win over
// the config file.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(cmd.String("config"))
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	level, format := cmd.String("log-level"), cmd.String("log-format")
	if !cmd.IsSet("log-level") && cfg.LogLevel != "" {
		level = cfg.LogLevel
	}
	if !cmd.IsSet("log-format") && cfg.LogFormat != "" {
		format = cfg.LogFormat
	}
	if cmd.Bool("debug") {
		level = "debug"
	}
	return logger.WithContext(ctx, logger.Setup(os.Stderr, format, level)), nil
}
