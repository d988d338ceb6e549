package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cudiffusion/internal/logger"
	"github.com/samcharles93/cudiffusion/internal/modelfile"
)

func listModelsCmd() *cli.Command {
	return &cli.Command{
		Name:    "list-models",
		Aliases: []string{"ls", "models"},
		Usage:   "List available image models",
		Flags:   pathFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg, err := commandConfig(cmd, applyPathFlags)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			models, err := modelfile.List(cfg.ModelsDir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(models) == 0 {
				log.Info("no models found", "path", cfg.ModelsDir)
				return nil
			}

			w := cmd.Root().Writer
			_, _ = fmt.Fprintf(w, "Models in %s:\n\n", cfg.ModelsDir)
			for _, name := range models {
				info, err := modelfile.Probe(filepath.Join(cfg.ModelsDir, name))
				if err != nil {
					log.Debug("model probe failed", "model", name, "error", err)
					_, _ = fmt.Fprintf(w, "  %s\n", name)
					continue
				}
				_, _ = fmt.Fprintf(w, "  %s\n", describeModel(info))
			}
			_, _ = fmt.Fprintf(w, "\n%d model(s) found\n", len(models))
			return nil
		},
	}
}

func describeModel(info modelfile.Info) string {
	line := fmt.Sprintf("%-40s %8s  %s", info.Name, formatModelSize(info.Size), info.Format)
	if info.Architecture != "" {
		line += fmt.Sprintf(" (%s)", info.Architecture)
	}
	if info.TensorCount > 0 {
		line += fmt.Sprintf(", %d tensors", info.TensorCount)
	}
	return line
}

func formatModelSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
