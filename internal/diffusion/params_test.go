package diffusion

import (
	"image"
	"strings"
	"testing"
)

func TestNewRequestPassesCheck(t *testing.T) {
	t.Parallel()
	req := NewRequest("a lighthouse at dusk")
	if err := CheckParams(req); err != nil {
		t.Fatalf("CheckParams(defaults) error = %v", err)
	}
	if req.ImageToImage() {
		t.Fatalf("default request should be text-to-image")
	}
	req.Reference = image.NewRGBA(image.Rect(0, 0, 8, 8))
	if !req.ImageToImage() {
		t.Fatalf("request with reference should be image-to-image")
	}
}

func TestCheckParamsRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(r *Request)
		want   string
	}{
		{"steps low", func(r *Request) { r.Steps = 0 }, "steps"},
		{"steps high", func(r *Request) { r.Steps = 101 }, "steps"},
		{"cfg high", func(r *Request) { r.CFGScale = 30.5 }, "guidance"},
		{"width off grid", func(r *Request) { r.Width = 500 }, "width"},
		{"height too big", func(r *Request) { r.Height = 4096 }, "height"},
		{"clip skip", func(r *Request) { r.ClipSkip = 3 }, "CLIP"},
		{"sampler", func(r *Request) { r.Sampler = "plms" }, "sampler"},
		{"seed", func(r *Request) { r.Seed = -2 }, "seed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := NewRequest("x")
			tc.mutate(req)
			err := CheckParams(req)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCheckParamsBounds(t *testing.T) {
	t.Parallel()
	req := NewRequest("x")
	req.Steps = MaxSteps
	req.CFGScale = MaxCFGScale
	req.Width = MinSize
	req.Height = MaxSize
	req.ClipSkip = MaxClipSkip
	req.Seed = 0
	if err := CheckParams(req); err != nil {
		t.Fatalf("CheckParams(bounds) error = %v", err)
	}
}
