package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/cudiffusion/internal/sdcpp"
)

// Config represents the cudiffusion configuration file
// (~/.config/cudiffusion/config.yaml). Empty fields and nil pointers take
// the built-in defaults.
type Config struct {
	ModelsDir string `yaml:"models_dir"`
	ImagesDir string `yaml:"images_dir"`
	DataDir   string `yaml:"data_dir"`

	// Server
	ServerAddress string `yaml:"server_address"`

	// Engine
	LibraryPath string `yaml:"library_path"`
	Threads     *int64 `yaml:"threads"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

const defaultAddress = "127.0.0.1:4200"

func defaultConfig() Config {
	threads := int64(-1)
	return Config{
		ModelsDir:     "models",
		ImagesDir:     "images",
		DataDir:       "data",
		ServerAddress: defaultAddress,
		LibraryPath:   sdcpp.DefaultLibrary(),
		Threads:       &threads,
	}
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cudiffusion", "config.yaml")
}

// LoadConfig reads the config file at path and fills unset fields from the
// defaults. A missing file yields the defaults; a malformed one is an error.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	// Pointer fields are taken as set when non-nil, even if they point at zero.
	if err := mergo.Merge(&cfg, defaultConfig(), mergo.WithoutDereference); err != nil {
		return Config{}, fmt.Errorf("apply config defaults: %w", err)
	}
	return cfg, nil
}

// applyPathFlags overrides the directories with explicitly set flags.
func applyPathFlags(c *cli.Command, cfg *Config) {
	if c.IsSet("models-path") {
		cfg.ModelsDir = c.String("models-path")
	}
	if c.IsSet("images-path") {
		cfg.ImagesDir = c.String("images-path")
	}
	if c.IsSet("data-path") {
		cfg.DataDir = c.String("data-path")
	}
}

// applyServeFlags applies the serve command's flags on top of cfg.
func applyServeFlags(c *cli.Command, cfg *Config) {
	applyPathFlags(c, cfg)
	if c.IsSet("addr") {
		cfg.ServerAddress = c.String("addr")
	}
	if c.IsSet("library") {
		cfg.LibraryPath = c.String("library")
	}
	if c.IsSet("threads") {
		n := c.Int64("threads")
		cfg.Threads = &n
	}
}

// commandConfig loads the config named by --config and applies fn.
func commandConfig(c *cli.Command, fn func(*cli.Command, *Config)) (Config, error) {
	cfg, err := LoadConfig(c.String("config"))
	if err != nil {
		return Config{}, err
	}
	fn(c, &cfg)
	return cfg, nil
}
