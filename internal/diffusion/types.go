// Package diffusion defines the boundary to the external image-diffusion
// runtime: how an engine is constructed, what a generation request carries
// and which parameter values the runtime accepts.
package diffusion

import (
	"context"
	"image"
)

// Engine is a loaded diffusion model.
type Engine interface {
	// Generate runs one sampling pass and returns at least one image on
	// success. It is not interruptible once started.
	Generate(ctx context.Context, req *Request) ([]image.Image, error)
	Close() error
}

// Factory constructs an Engine for a model file.
type Factory func(ctx context.Context, opts Options) (Engine, error)

// Options configure engine construction.
type Options struct {
	ModelPath string
	VAETiling bool
	Scheduler string
	RNG       string
	Threads   int
}

// Request holds the parameters of a single generation. It is built fresh
// for every call and never persisted.
type Request struct {
	Prompt         string
	NegativePrompt string
	Seed           int64
	Steps          int
	Sampler        string
	CFGScale       float64
	MinCFG         float64
	Width          int
	Height         int
	ClipSkip       int

	// Reference switches the request to image-to-image. Strength is only
	// meaningful when Reference is set.
	Reference image.Image
	Strength  float64
}

// ImageToImage reports whether the request carries a reference image.
func (r *Request) ImageToImage() bool {
	return r != nil && r.Reference != nil
}
