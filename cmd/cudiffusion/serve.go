package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cudiffusion/internal/api"
	"github.com/samcharles93/cudiffusion/internal/logger"
	"github.com/samcharles93/cudiffusion/internal/metrics"
	"github.com/samcharles93/cudiffusion/internal/modelfile"
	"github.com/samcharles93/cudiffusion/internal/output"
	"github.com/samcharles93/cudiffusion/internal/sdcpp"
	"github.com/samcharles93/cudiffusion/internal/settings"
	"github.com/samcharles93/cudiffusion/internal/studio"
	"github.com/samcharles93/cudiffusion/internal/version"
)

func serveCmd() *cli.Command {
	flags := append(pathFlags(), engineFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:  "addr",
			Usage: "listen address (default " + defaultAddress + ")",
		},
		&cli.DurationFlag{
			Name:  "read-timeout",
			Usage: "read header timeout",
			Value: 30 * time.Second,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the studio web UI",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg, err := commandConfig(cmd, applyServeFlags)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			store := openSettings(cfg, log)
			// Persist the repaired document so the file always matches the schema.
			store.Save()

			if err := os.MkdirAll(cfg.ModelsDir, 0o755); err != nil {
				return cli.Exit(fmt.Sprintf("error: models dir: %v", err), 1)
			}

			m := metrics.New()
			out := output.New(cfg.ImagesDir)
			sd, err := studio.New(studio.Config{
				ModelsDir: cfg.ModelsDir,
				Output:    out,
				Settings:  store,
				Factory:   sdcpp.Factory(sdcpp.NewLazy(cfg.LibraryPath)),
				Threads:   int(*cfg.Threads),
				Metrics:   m,
				Logger:    log,
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() {
				if err := sd.Close(); err != nil {
					log.Warn("failed to release engine", "error", err)
				}
			}()

			server, err := api.NewServer(api.Config{
				Studio:   sd,
				Settings: store,
				Output:   out,
				Metrics:  m,
				Version:  version.Resolve(),
				Logger:   log,
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			watchModels(ctx, cfg.ModelsDir, log, server.NotifyModels)

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server",
				"address", cfg.ServerAddress,
				"models", cfg.ModelsDir,
				"images", cfg.ImagesDir,
				"library", cfg.LibraryPath,
			)
			sc := echo.StartConfig{
				Address: cfg.ServerAddress,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = cmd.Duration("read-timeout")
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

func openSettings(cfg Config, log logger.Logger) *settings.Store {
	store := settings.New(filepath.Join(cfg.DataDir, settings.Filename), settings.Defaults(), log)
	store.Load()
	return store
}

// watchModels forwards model directory changes until ctx is done. A watcher
// that cannot start only disables live updates.
func watchModels(ctx context.Context, dir string, log logger.Logger, notify func([]string)) {
	w, err := modelfile.Watch(dir, log)
	if err != nil {
		log.Warn("model directory watch disabled", "path", dir, "error", err)
		return
	}
	go func() {
		defer func() { _ = w.Close() }()
		if err := w.Run(ctx, notify); err != nil {
			log.Warn("model directory watcher stopped", "error", err)
		}
	}()
}
