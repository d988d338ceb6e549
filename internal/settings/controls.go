package settings

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samcharles93/cudiffusion/internal/diffusion"
)

// Setting paths of the image model group.
const (
	PathVAETiling = "image_model/use_vae_tiling"
	PathScheduler = "image_model/scheduler"
	PathRNGType   = "image_model/rng_type"
)

// Defaults returns a fresh copy of the default schema.
func Defaults() map[string]any {
	return map[string]any{
		"image_model": map[string]any{
			"use_vae_tiling": true,
			"scheduler":      "default",
			"rng_type":       "default",
		},
	}
}

// ErrInvalidValue is returned by Apply when a submitted value does not fit
// the control.
var ErrInvalidValue = errors.New("invalid setting value")

// Control is a UI control bound to one settings path. The set of variants
// is closed: Checkbox and Dropdown.
type Control interface {
	SettingPath() string
	Kind() string
	defaultValue() any
	accept(v any) (any, error)
}

// Checkbox binds a boolean setting.
type Checkbox struct {
	Path    string
	Label   string
	Default bool
}

func (c Checkbox) SettingPath() string { return c.Path }
func (c Checkbox) Kind() string        { return "checkbox" }
func (c Checkbox) defaultValue() any   { return c.Default }

func (c Checkbox) accept(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a boolean, got %s", ErrInvalidValue, c.Path, typeName(v))
	}
	return b, nil
}

// Dropdown binds a string setting restricted to Choices.
type Dropdown struct {
	Path    string
	Label   string
	Default string
	Choices []string
}

func (d Dropdown) SettingPath() string { return d.Path }
func (d Dropdown) Kind() string        { return "dropdown" }
func (d Dropdown) defaultValue() any   { return d.Default }

func (d Dropdown) accept(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a string, got %s", ErrInvalidValue, d.Path, typeName(v))
	}
	if !slices.Contains(d.Choices, s) {
		return nil, fmt.Errorf("%w: %q is not one of %v", ErrInvalidValue, s, d.Choices)
	}
	return s, nil
}

// SidebarControls is the catalog of persisted controls shown next to the
// model picker.
func SidebarControls() []Control {
	return []Control{
		Checkbox{Path: PathVAETiling, Label: "VAE Tiling", Default: true},
		Dropdown{Path: PathScheduler, Label: "Scheduler", Default: "default", Choices: diffusion.Schedulers},
		Dropdown{Path: PathRNGType, Label: "Random Number Generator", Default: "default", Choices: diffusion.RNGTypes},
	}
}

// Bind returns the current value of c from the store.
func Bind(s *Store, c Control) any {
	return s.Get(c.SettingPath(), c.defaultValue())
}

// Apply validates a submitted value against c and persists it.
func Apply(s *Store, c Control, v any) error {
	accepted, err := c.accept(v)
	if err != nil {
		return err
	}
	s.Set(c.SettingPath(), accepted)
	return nil
}

// Lookup finds the control bound to path.
func Lookup(controls []Control, path string) (Control, bool) {
	for _, c := range controls {
		if c.SettingPath() == path {
			return c, true
		}
	}
	return nil, false
}

// ControlView is the JSON shape of a bound control.
type ControlView struct {
	Path    string   `json:"path"`
	Kind    string   `json:"kind"`
	Label   string   `json:"label"`
	Value   any      `json:"value"`
	Choices []string `json:"choices,omitempty"`
}

// Describe renders controls with their current values.
func Describe(s *Store, controls []Control) []ControlView {
	out := make([]ControlView, 0, len(controls))
	for _, c := range controls {
		view := ControlView{
			Path:  c.SettingPath(),
			Kind:  c.Kind(),
			Value: Bind(s, c),
		}
		switch t := c.(type) {
		case Checkbox:
			view.Label = t.Label
		case Dropdown:
			view.Label = t.Label
			view.Choices = append([]string(nil), t.Choices...)
		}
		out = append(out, view)
	}
	return out
}
