package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cudiffusion/internal/modelfile"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ModelsDir != "models" || cfg.ImagesDir != "images" || cfg.DataDir != "data" {
		t.Fatalf("dirs = %+v", cfg)
	}
	if cfg.ServerAddress != "127.0.0.1:4200" {
		t.Fatalf("address = %q", cfg.ServerAddress)
	}
	if cfg.Threads == nil || *cfg.Threads != -1 {
		t.Fatalf("threads = %v", cfg.Threads)
	}
	if cfg.LibraryPath == "" {
		t.Fatalf("library path should default")
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "models_dir: /srv/models\nthreads: 8\nlog_level: warn\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ModelsDir != "/srv/models" || cfg.LogLevel != "warn" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if *cfg.Threads != 8 {
		t.Fatalf("threads = %d", *cfg.Threads)
	}
	if cfg.ImagesDir != "images" {
		t.Fatalf("unset field lost its default: %q", cfg.ImagesDir)
	}
}

func TestLoadConfigZeroThreadsIsKept(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeConfig(t, "threads: 0\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if *cfg.Threads != 0 {
		t.Fatalf("threads = %d, want explicit 0", *cfg.Threads)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	t.Parallel()

	if _, err := LoadConfig(writeConfig(t, "models_dir: [oops\n")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func runServeConfig(t *testing.T, args ...string) Config {
	t.Helper()
	var got Config
	cmd := &cli.Command{
		Name:  "serve",
		Flags: append([]cli.Flag{configFlag()}, serveCmd().Flags...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := commandConfig(cmd, applyServeFlags)
			got = cfg
			return err
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"serve"}, args...)); err != nil {
		t.Fatalf("run: %v", err)
	}
	return got
}

func TestServeFlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "models_dir: from-file\nserver_address: 0.0.0.0:9000\nthreads: 4\n")

	cfg := runServeConfig(t, "--config", path)
	if cfg.ModelsDir != "from-file" || cfg.ServerAddress != "0.0.0.0:9000" || *cfg.Threads != 4 {
		t.Fatalf("file values not applied: %+v", cfg)
	}

	cfg = runServeConfig(t, "--config", path, "--models-path", "from-flag", "--addr", ":4300", "--threads", "2")
	if cfg.ModelsDir != "from-flag" || cfg.ServerAddress != ":4300" || *cfg.Threads != 2 {
		t.Fatalf("flags did not win: %+v", cfg)
	}
	if cfg.ImagesDir != "images" {
		t.Fatalf("images dir = %q", cfg.ImagesDir)
	}
}

func TestServeEnvOverridesConfig(t *testing.T) {
	path := writeConfig(t, "data_dir: from-file\n")
	t.Setenv(envDataDir, "from-env")

	cfg := runServeConfig(t, "--config", path)
	if cfg.DataDir != "from-env" {
		t.Fatalf("data dir = %q, want env value", cfg.DataDir)
	}
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	err := app.Run(context.Background(), append([]string{"cudiffusion", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestSettingsCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeConfig(t, "data_dir: "+dir+"\n")

	out, err := runApp(t, "--config", cfgPath, "settings", "set", "image_model/scheduler", "karras")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if strings.TrimSpace(out) != `"karras"` {
		t.Fatalf("set output = %q", out)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "settings.json"))
	if err != nil {
		t.Fatalf("settings file: %v", err)
	}
	if !strings.Contains(string(raw), `"scheduler": "karras"`) {
		t.Fatalf("settings file = %s", raw)
	}

	out, err = runApp(t, "--config", cfgPath, "settings", "get", "image_model/use_vae_tiling")
	if err != nil || strings.TrimSpace(out) != "true" {
		t.Fatalf("get = %q, %v", out, err)
	}

	if _, err := runApp(t, "--config", cfgPath, "settings", "set", "image_model/scheduler", "linear"); err == nil {
		t.Fatalf("expected invalid choice to fail")
	}
	if _, err := runApp(t, "--config", cfgPath, "settings", "set", "image_model/nope", "1"); err == nil {
		t.Fatalf("expected unknown setting to fail")
	}

	out, err = runApp(t, "--config", cfgPath, "settings", "show")
	if err != nil || !strings.Contains(out, `"scheduler": "karras"`) {
		t.Fatalf("show = %q, %v", out, err)
	}
}

func TestParseSettingValue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want any
	}{
		{"true", true},
		{`"karras"`, "karras"},
		{"karras", "karras"},
		{"3", float64(3)},
	}
	for _, tc := range cases {
		got, err := parseSettingValue(tc.in)
		if err != nil || got != tc.want {
			t.Fatalf("parseSettingValue(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
	if _, err := parseSettingValue("  "); err == nil {
		t.Fatalf("expected empty value error")
	}
}

func TestListModelsCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.gguf", "a.safetensors", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	out, err := runApp(t, "--config", writeConfig(t, "models_dir: "+dir+"\n"), "list-models")
	if err != nil {
		t.Fatalf("list-models: %v", err)
	}
	if !strings.Contains(out, "a.safetensors") || !strings.Contains(out, "b.gguf") || strings.Contains(out, "notes.txt") {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(out, "2 model(s) found") {
		t.Fatalf("missing count: %q", out)
	}
}

func TestDescribeModel(t *testing.T) {
	t.Parallel()

	got := describeModel(modelfile.Info{Name: "m.gguf", Format: "gguf", Size: 3 << 30, Architecture: "sdxl", TensorCount: 12})
	for _, want := range []string{"m.gguf", "3.0 GB", "gguf (sdxl)", "12 tensors"} {
		if !strings.Contains(got, want) {
			t.Fatalf("describeModel = %q, missing %q", got, want)
		}
	}
	if got := formatModelSize(512); got != "512 B" {
		t.Fatalf("formatModelSize(512) = %q", got)
	}
}
