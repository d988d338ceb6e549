package diffusion

import (
	"fmt"
	"slices"
)

// Parameter defaults and bounds exposed by the UI controls.
const (
	DefaultSeed     int64 = -1
	DefaultSteps          = 20
	DefaultSampler        = "euler"
	DefaultCFGScale       = 7.0
	DefaultSize           = 512
	DefaultClipSkip       = 0
	DefaultStrength       = 0.75

	MinSteps    = 1
	MaxSteps    = 100
	MinCFGScale = 0.0
	MaxCFGScale = 30.0
	CFGStep     = 0.5
	MinSize     = 64
	MaxSize     = 2048
	SizeStep    = 64
	MinClipSkip = 0
	MaxClipSkip = 2
)

var (
	Samplers = []string{
		"euler_a",
		"euler",
		"heun",
		"dpm2",
		"dpmpp2s_a",
		"dpmpp2m",
		"dpmpp2mv2",
		"ipndm",
		"ipndm_v",
		"lcm",
		"ddim_trailing",
		"tcd",
	}
	Schedulers = []string{
		"default",
		"discrete",
		"karras",
		"exponential",
		"ays",
		"gits",
	}
	RNGTypes = []string{
		"default",
		"cuda",
	}
)

// NewRequest returns a text-to-image request with UI defaults applied.
func NewRequest(prompt string) *Request {
	return &Request{
		Prompt:   prompt,
		Seed:     DefaultSeed,
		Steps:    DefaultSteps,
		Sampler:  DefaultSampler,
		CFGScale: DefaultCFGScale,
		Width:    DefaultSize,
		Height:   DefaultSize,
		ClipSkip: DefaultClipSkip,
		Strength: DefaultStrength,
	}
}

// CheckParams validates numeric ranges and catalog membership. Prompt and
// reference image presence are checked by the caller, which owns the
// user-facing wording for those.
func CheckParams(r *Request) error {
	if r == nil {
		return fmt.Errorf("request is required")
	}
	if r.Steps < MinSteps || r.Steps > MaxSteps {
		return fmt.Errorf("steps must be between %d and %d", MinSteps, MaxSteps)
	}
	if r.CFGScale < MinCFGScale || r.CFGScale > MaxCFGScale {
		return fmt.Errorf("guidance scale must be between %g and %g", MinCFGScale, MaxCFGScale)
	}
	if err := checkSize("width", r.Width); err != nil {
		return err
	}
	if err := checkSize("height", r.Height); err != nil {
		return err
	}
	if r.ClipSkip < MinClipSkip || r.ClipSkip > MaxClipSkip {
		return fmt.Errorf("CLIP skip must be between %d and %d", MinClipSkip, MaxClipSkip)
	}
	if !slices.Contains(Samplers, r.Sampler) {
		return fmt.Errorf("unknown sampler %q", r.Sampler)
	}
	if r.Seed < -1 {
		return fmt.Errorf("seed must be -1 (random) or a non-negative integer")
	}
	return nil
}

func checkSize(name string, v int) error {
	if v < MinSize || v > MaxSize || v%SizeStep != 0 {
		return fmt.Errorf("%s must be a multiple of %d between %d and %d", name, SizeStep, MinSize, MaxSize)
	}
	return nil
}
