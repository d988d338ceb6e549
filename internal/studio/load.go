package studio

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samcharles93/cudiffusion/internal/diffusion"
	"github.com/samcharles93/cudiffusion/internal/logger"
	"github.com/samcharles93/cudiffusion/internal/modelfile"
	"github.com/samcharles93/cudiffusion/internal/settings"
)

// Loaded describes a completed Load.
type Loaded struct {
	ID       string        `json:"id"`
	Reused   bool          `json:"reused"`
	Duration time.Duration `json:"-"`
}

// Models lists the loadable model names.
func (s *Studio) Models() ([]string, error) {
	return modelfile.List(s.cfg.ModelsDir)
}

// Load makes modelID the active model. Requesting the active model again
// is a no-op that still passes through the loading phase.
func (s *Studio) Load(ctx context.Context, modelID string) (Loaded, error) {
	if err := s.acquire(PhaseLoading); err != nil {
		return Loaded{}, err
	}
	defer s.release()

	s.mu.Lock()
	current, resident := s.modelID, s.engine != nil
	s.mu.Unlock()
	if resident && current == modelID {
		s.cfg.Metrics.ReuseLoad()
		s.log.Debug("model already loaded", "model", modelID)
		return Loaded{ID: modelID, Reused: true}, nil
	}

	path, err := s.resolve(modelID)
	if err != nil {
		s.cfg.Metrics.Reject("validation")
		return Loaded{}, err
	}

	// The old engine goes first so two models never share the device.
	s.unload()

	opts := diffusion.Options{
		ModelPath: path,
		VAETiling: s.cfg.Settings.GetBool(settings.PathVAETiling, true),
		Scheduler: s.cfg.Settings.GetString(settings.PathScheduler, "default"),
		RNG:       s.cfg.Settings.GetString(settings.PathRNGType, "default"),
		Threads:   s.cfg.Threads,
	}
	log := s.log.With("model", modelID)
	start := time.Now()
	engine, err := s.construct(logger.WithContext(context.WithoutCancel(ctx), log), opts)
	elapsed := time.Since(start)
	s.cfg.Metrics.ObserveLoad(elapsed, err)
	if err != nil {
		log.Error("model load failed", "error", err, "duration", elapsed)
		return Loaded{}, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	s.mu.Lock()
	s.engine = engine
	s.modelID = modelID
	s.mu.Unlock()
	log.Info("model loaded", "duration", elapsed, "scheduler", opts.Scheduler, "rng", opts.RNG, "vae_tiling", opts.VAETiling)
	return Loaded{ID: modelID, Duration: elapsed}, nil
}

func (s *Studio) resolve(modelID string) (string, error) {
	if strings.TrimSpace(modelID) == "" {
		return "", newValidation("You must select an image model.")
	}
	if strings.ContainsAny(modelID, `/\`) {
		return "", newValidation(fmt.Sprintf("Unknown image model %q.", modelID))
	}
	models, err := modelfile.List(s.cfg.ModelsDir)
	if err != nil {
		s.log.Warn("failed to list models", "dir", s.cfg.ModelsDir, "error", err)
	}
	if !slices.Contains(models, modelID) {
		return "", newValidation(fmt.Sprintf("Unknown image model %q.", modelID))
	}
	path, err := modelfile.Resolve(s.cfg.ModelsDir, modelID)
	if err != nil {
		return "", newValidation(fmt.Sprintf("Unknown image model %q.", modelID))
	}
	return path, nil
}

func (s *Studio) unload() {
	s.mu.Lock()
	prev, prevID := s.engine, s.modelID
	s.engine = nil
	s.modelID = ""
	s.publishLocked()
	s.mu.Unlock()
	if prev == nil {
		return
	}
	if err := safeClose(prev); err != nil {
		s.log.Warn("failed to release previous engine", "model", prevID, "error", err)
	}
}

func (s *Studio) construct(ctx context.Context, opts diffusion.Options) (engine diffusion.Engine, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			engine, err = nil, fmt.Errorf("panic in engine factory: %v", rec)
		}
	}()
	engine, err = s.cfg.Factory(ctx, opts)
	if err == nil && engine == nil {
		err = fmt.Errorf("engine factory returned no engine")
	}
	return engine, err
}
