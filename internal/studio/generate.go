package studio

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/samcharles93/cudiffusion/internal/diffusion"
	"github.com/samcharles93/cudiffusion/internal/logger"
)

// Generation modes, used in logs and metrics.
const (
	ModeTextToImage  = "txt2img"
	ModeImageToImage = "img2img"
)

// Result is a generated and persisted image.
type Result struct {
	ID        string
	Model     string
	Image     image.Image
	SavedPath string
	Duration  time.Duration
}

// TextToImage generates from req.Prompt. Any reference image on req is
// ignored.
func (s *Studio) TextToImage(ctx context.Context, req *diffusion.Request) (*Result, error) {
	if req == nil || strings.TrimRightFunc(req.Prompt, isSpace) == "" {
		s.cfg.Metrics.Reject("validation")
		return nil, newValidation("You must specify a positive prompt.")
	}
	r := *req
	r.Reference = nil
	return s.generate(ctx, ModeTextToImage, &r)
}

// ImageToImage generates from req.Reference. The prompt may be empty.
func (s *Studio) ImageToImage(ctx context.Context, req *diffusion.Request) (*Result, error) {
	if req == nil || req.Reference == nil {
		s.cfg.Metrics.Reject("validation")
		return nil, newValidation("You must provide a reference image.")
	}
	r := *req
	if r.Strength <= 0 || r.Strength > 1 {
		r.Strength = diffusion.DefaultStrength
	}
	return s.generate(ctx, ModeImageToImage, &r)
}

// isSpace matches Unicode white space plus the ASCII file, group, record
// and unit separators.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

func (s *Studio) generate(ctx context.Context, mode string, req *diffusion.Request) (*Result, error) {
	req.MinCFG = 0
	if err := diffusion.CheckParams(req); err != nil {
		s.cfg.Metrics.Reject("validation")
		return nil, newValidation(err.Error())
	}

	if err := s.acquire(PhaseGenerating); err != nil {
		return nil, err
	}
	defer s.release()

	s.mu.Lock()
	engine, modelID := s.engine, s.modelID
	s.mu.Unlock()
	if engine == nil || modelID == "" {
		s.cfg.Metrics.Reject("no_model")
		return nil, ErrNoModel
	}

	id := uuid.NewString()
	log := s.log.With("id", id, "mode", mode, "model", modelID)
	log.Info("generation started", "steps", req.Steps, "sampler", req.Sampler,
		"width", req.Width, "height", req.Height, "seed", req.Seed)

	start := time.Now()
	images, err := safeGenerate(logger.WithContext(context.WithoutCancel(ctx), log), engine, req)
	elapsed := time.Since(start)
	if err == nil && len(images) == 0 {
		err = fmt.Errorf("engine returned no images")
	}
	if err != nil {
		s.cfg.Metrics.ObserveGeneration(mode, elapsed, err)
		log.Error("generation failed", "error", err, "duration", elapsed)
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	img := images[0]
	path, err := s.cfg.Output.Save(modelID, img)
	if err != nil {
		s.cfg.Metrics.ObserveGeneration(mode, elapsed, err)
		log.Error("failed to save image", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	s.cfg.Metrics.ObserveGeneration(mode, elapsed, nil)
	s.cfg.Metrics.ImageSaved()
	log.Info("generation finished", "duration", elapsed, "saved_as", path)

	return &Result{
		ID:        id,
		Model:     modelID,
		Image:     img,
		SavedPath: path,
		Duration:  elapsed,
	}, nil
}

func safeGenerate(ctx context.Context, e diffusion.Engine, req *diffusion.Request) (images []image.Image, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			images, err = nil, fmt.Errorf("panic in Generate: %v", rec)
		}
	}()
	return e.Generate(ctx, req)
}
