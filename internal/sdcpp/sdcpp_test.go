package sdcpp

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/cudiffusion/internal/diffusion"
)

func TestOpenMissingLibrary(t *testing.T) {
	t.Parallel()
	_, err := Open(filepath.Join(t.TempDir(), "libsdshim.so"))
	if err == nil {
		t.Fatalf("Open succeeded on a missing file")
	}
	if _, err := Open(""); err == nil {
		t.Fatalf("Open succeeded on an empty path")
	}
}

func TestFactoryReportsLibraryError(t *testing.T) {
	t.Parallel()
	lazy := NewLazy(filepath.Join(t.TempDir(), "missing.so"))
	f := Factory(lazy)
	eng, err := f(context.Background(), diffusion.Options{ModelPath: "m.gguf"})
	if err == nil || eng != nil {
		t.Fatalf("factory = %v, %v; want error", eng, err)
	}
	if !strings.Contains(err.Error(), "missing.so") {
		t.Fatalf("error does not name the library: %v", err)
	}
}

func TestFit(t *testing.T) {
	t.Parallel()
	src := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	for x := range 100 {
		for y := range 50 {
			src.Set(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	if got := Fit(src, 100, 50); got != image.Image(src) {
		t.Fatalf("Fit at native size should return the input")
	}
	got := Fit(src, 64, 64)
	if b := got.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Fatalf("Fit bounds = %v", b)
	}
	r, _, _, a := got.At(32, 32).RGBA()
	if a == 0 || r>>8 < 150 {
		t.Fatalf("scaled pixel lost its colour: r=%d a=%d", r>>8, a>>8)
	}
}

func TestClosedEngineRefusesWork(t *testing.T) {
	t.Parallel()
	e := &Engine{}
	if _, err := e.Generate(context.Background(), diffusion.NewRequest("cat")); err == nil {
		t.Fatalf("Generate on closed engine succeeded")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
