package sdcpp

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/draw"

	"github.com/samcharles93/cudiffusion/internal/diffusion"
	"github.com/samcharles93/cudiffusion/internal/logger"
)

// Factory returns a diffusion.Factory backed by lib.
func Factory(lib *Lazy) diffusion.Factory {
	return func(ctx context.Context, opts diffusion.Options) (diffusion.Engine, error) {
		l, err := lib.Get()
		if err != nil {
			return nil, err
		}
		eng, err := l.Load(ctx, opts)
		if err != nil {
			return nil, err
		}
		return eng, nil
	}
}

var _ diffusion.Engine = (*Engine)(nil)

// Engine is a model resident in the native runtime.
type Engine struct {
	lib *Library
	log logger.Logger

	mu  sync.Mutex
	ctx uintptr
}

// Load constructs a native context for opts.ModelPath.
func (l *Library) Load(ctx context.Context, opts diffusion.Options) (*Engine, error) {
	if opts.ModelPath == "" {
		return nil, errors.New("model path is empty")
	}
	log := logger.FromContext(ctx).With("component", "sdcpp")
	log.Info("loading model", "path", opts.ModelPath, "vae_tiling", opts.VAETiling,
		"scheduler", opts.Scheduler, "rng", opts.RNG, "threads", opts.Threads)

	h := l.sdLoad(opts.ModelPath, opts.VAETiling, opts.Scheduler, opts.RNG, int32(opts.Threads))
	if h == 0 {
		return nil, fmt.Errorf("native runtime could not load %s", filepath.Base(opts.ModelPath))
	}
	return &Engine{lib: l, log: log, ctx: h}, nil
}

// Generate writes the reference image (if any) to a temp file, runs the
// native sampler and decodes its PNG output.
func (e *Engine) Generate(ctx context.Context, req *diffusion.Request) ([]image.Image, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == 0 {
		return nil, errors.New("engine is closed")
	}

	dir, err := os.MkdirTemp("", "cudiffusion-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	initPath := ""
	strength := float32(0)
	if req.ImageToImage() {
		initPath = filepath.Join(dir, "init.png")
		ref := Fit(req.Reference, req.Width, req.Height)
		if err := writePNG(initPath, ref); err != nil {
			return nil, fmt.Errorf("write reference image: %w", err)
		}
		strength = float32(req.Strength)
	}
	dst := filepath.Join(dir, "out.png")

	ret := e.lib.sdGenerate(e.ctx, req.Prompt, req.NegativePrompt, int32(req.ClipSkip),
		float32(req.CFGScale), float32(req.MinCFG), initPath, strength,
		int32(req.Width), int32(req.Height), req.Sampler, int32(req.Steps), req.Seed, dst)
	if ret != 0 {
		return nil, fmt.Errorf("native sampler failed with code %d", ret)
	}

	img, err := readPNG(dst)
	if err != nil {
		return nil, fmt.Errorf("read generated image: %w", err)
	}
	return []image.Image{img}, nil
}

// Close releases the native context. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == 0 {
		return nil
	}
	e.lib.sdFree(e.ctx)
	e.ctx = 0
	e.log.Debug("native context released")
	return nil
}

// Fit scales img to exactly w x h. Images already at that size are
// returned unchanged.
func Fit(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return png.Decode(f)
}
