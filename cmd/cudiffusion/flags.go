package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cudiffusion/internal/sdcpp"
)

const (
	envModelsDir = "CUDIFFUSION_MODELS_DIR"
	envImagesDir = "CUDIFFUSION_IMAGES_DIR"
	envDataDir   = "CUDIFFUSION_DATA_DIR"
	envConfig    = "CUDIFFUSION_CONFIG"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Usage:   "path to config.yaml",
		Value:   configPath(),
		Sources: cli.EnvVars(envConfig),
	}
}

func pathFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "models-path",
			Aliases: []string{"models"},
			Usage:   "directory containing .safetensors and .gguf models",
			Sources: cli.EnvVars(envModelsDir),
		},
		&cli.StringFlag{
			Name:    "images-path",
			Aliases: []string{"images"},
			Usage:   "directory generated images are saved to",
			Sources: cli.EnvVars(envImagesDir),
		},
		&cli.StringFlag{
			Name:    "data-path",
			Aliases: []string{"data"},
			Usage:   "directory holding settings.json",
			Sources: cli.EnvVars(envDataDir),
		},
	}
}

func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "library",
			Usage:   "path to the stable-diffusion shim library",
			Sources: cli.EnvVars(sdcpp.EnvLibrary),
		},
		&cli.Int64Flag{
			Name:  "threads",
			Usage: "CPU threads for the engine (-1 = physical cores)",
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug, info, warn, error)",
			Value: "info",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "log format (pretty, json, text)",
			Value: "pretty",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging (shorthand for --log-level=debug)",
		},
	}
}
