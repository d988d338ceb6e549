package settings

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/samcharles93/cudiffusion/internal/logger"
)

func newTestStore(t *testing.T, contents string) (*Store, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data", Filename)
	if contents != "" {
		mustWriteFile(t, path, contents)
	}
	var buf bytes.Buffer
	s := New(path, Defaults(), logger.JSON(&syncWriter{w: &buf}, slog.LevelDebug))
	return s, &buf
}

func TestLoadMissingFileUsesDefaultsAndSaveCreatesIt(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, "")
	s.Load()

	if got := s.Snapshot(); !reflect.DeepEqual(got, Defaults()) {
		t.Fatalf("Snapshot() = %v, want defaults", got)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Fatalf("Load must not create the file, stat err = %v", err)
	}

	s.Save()
	raw, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("expected settings file after Save: %v", err)
	}
	if !strings.Contains(string(raw), "\n    \"image_model\": {") {
		t.Fatalf("expected 4-space indentation, got:\n%s", raw)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("saved file is not JSON: %v", err)
	}
	if !reflect.DeepEqual(decoded, Defaults()) {
		t.Fatalf("saved document = %v, want defaults", decoded)
	}
}

func TestLoadTypeMismatchFallsBackToDefault(t *testing.T) {
	t.Parallel()
	s, logs := newTestStore(t, `{"image_model": {"use_vae_tiling": "yes"}}`)
	s.Load()

	got := s.Get("image_model/use_vae_tiling", false)
	if got != true {
		t.Fatalf("use_vae_tiling = %#v, want true", got)
	}
	out := logs.String()
	if !strings.Contains(out, "type mismatch") || !strings.Contains(out, `"key":"image_model/use_vae_tiling"`) {
		t.Fatalf("expected type mismatch diagnostic naming the key, got: %s", out)
	}
	if !strings.Contains(out, `"expected":"bool"`) || !strings.Contains(out, `"got":"string"`) {
		t.Fatalf("expected diagnostic to name both types, got: %s", out)
	}
	if s.GetString(PathScheduler, "") != "default" {
		t.Fatalf("missing scheduler should be filled from defaults")
	}
}

func TestLoadCorruptFileUsesDefaults(t *testing.T) {
	t.Parallel()

	for name, contents := range map[string]string{
		"syntax":    `{"image_model": `,
		"array":     `[1, 2, 3]`,
		"null":      `null`,
		"wrong map": `{"image_model": "flat"}`,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestStore(t, contents)
			s.Load()
			if got := s.Snapshot(); !reflect.DeepEqual(got, Defaults()) {
				t.Fatalf("Snapshot() = %v, want defaults", got)
			}
		})
	}
}

func TestLoadKeepsValidValuesAndDropsUnknown(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, `{
		"image_model": {"use_vae_tiling": false, "scheduler": "karras", "extra": 1},
		"legacy": {"x": true}
	}`)
	s.Load()

	want := map[string]any{
		"image_model": map[string]any{
			"use_vae_tiling": false,
			"scheduler":      "karras",
			"rng_type":       "default",
		},
	}
	if got := s.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}
}

func TestGetMalformedPathReturnsDefault(t *testing.T) {
	t.Parallel()
	s, logs := newTestStore(t, "")
	s.Load()

	for _, path := range []string{"missing", "image_model/missing", "image_model/scheduler/deeper", "", "image_model//scheduler"} {
		if got := s.Get(path, "fallback"); got != "fallback" {
			t.Errorf("Get(%q) = %#v, want fallback", path, got)
		}
	}
	if !strings.Contains(logs.String(), "malformed setting") {
		t.Fatalf("expected malformed setting diagnostic, got: %s", logs.String())
	}
}

func TestSetThenGet(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, "")
	s.Load()

	s.Set(PathScheduler, "karras")
	s.Set("ui/theme/name", "dark")

	if got := s.Get(PathScheduler, nil); got != "karras" {
		t.Fatalf("Get(scheduler) = %#v", got)
	}
	if got := s.Get("ui/theme/name", nil); got != "dark" {
		t.Fatalf("Get(ui/theme/name) = %#v", got)
	}

	// Write-through: a fresh store sees the persisted value.
	reloaded := New(s.Path(), Defaults(), nil)
	reloaded.Load()
	if got := reloaded.GetString(PathScheduler, ""); got != "karras" {
		t.Fatalf("reloaded scheduler = %q, want karras", got)
	}
}

func TestSetThroughLeafIsNoop(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, "")
	s.Load()
	before := s.Snapshot()

	s.Set("image_model/scheduler/nested", "x")

	if got := s.Snapshot(); !reflect.DeepEqual(got, before) {
		t.Fatalf("document changed: %v, want %v", got, before)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Fatalf("aborted Set must not save, stat err = %v", err)
	}
}

func TestSaveFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "data")
	mustWriteFile(t, blocker, "not a directory")

	var buf bytes.Buffer
	s := New(filepath.Join(blocker, Filename), Defaults(), logger.JSON(&syncWriter{w: &buf}, slog.LevelDebug))
	s.Load()
	s.Set(PathRNGType, "cuda")

	if got := s.GetString(PathRNGType, ""); got != "cuda" {
		t.Fatalf("in-memory value = %q, want cuda", got)
	}
	if !strings.Contains(buf.String(), "error saving settings") {
		t.Fatalf("expected save error to be logged, got: %s", buf.String())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, "")
	snap := s.Snapshot()
	snap["image_model"].(map[string]any)["scheduler"] = "mutated"
	if got := s.GetString(PathScheduler, ""); got != "default" {
		t.Fatalf("store was mutated through snapshot: %q", got)
	}
}

func TestConcurrentSet(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, "")
	s.Load()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Set(PathVAETiling, i%2 == 0)
			_ = s.Get(PathVAETiling, true)
		}(i)
	}
	wg.Wait()

	reloaded := New(s.Path(), Defaults(), nil)
	reloaded.Load()
	if _, ok := reloaded.Get(PathVAETiling, nil).(bool); !ok {
		t.Fatalf("persisted use_vae_tiling is not a bool")
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
