package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/cudiffusion/internal/diffusion"
	"github.com/samcharles93/cudiffusion/internal/settings"
)

type rangeView struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Step    float64 `json:"step"`
	Default float64 `json:"default"`
}

type generationView struct {
	Samplers       []string  `json:"samplers"`
	DefaultSampler string    `json:"default_sampler"`
	DefaultSeed    int64     `json:"default_seed"`
	Steps          rangeView `json:"steps"`
	CFGScale       rangeView `json:"cfg_scale"`
	Width          rangeView `json:"width"`
	Height         rangeView `json:"height"`
	ClipSkip       rangeView `json:"clip_skip"`
}

type controlsResponse struct {
	Version    string                 `json:"version"`
	Sidebar    []settings.ControlView `json:"sidebar"`
	Generation generationView         `json:"generation"`
}

func generationCatalog() generationView {
	size := rangeView{Min: diffusion.MinSize, Max: diffusion.MaxSize, Step: diffusion.SizeStep, Default: diffusion.DefaultSize}
	return generationView{
		Samplers:       diffusion.Samplers,
		DefaultSampler: diffusion.DefaultSampler,
		DefaultSeed:    diffusion.DefaultSeed,
		Steps:          rangeView{Min: diffusion.MinSteps, Max: diffusion.MaxSteps, Step: 1, Default: diffusion.DefaultSteps},
		CFGScale:       rangeView{Min: diffusion.MinCFGScale, Max: diffusion.MaxCFGScale, Step: diffusion.CFGStep, Default: diffusion.DefaultCFGScale},
		Width:          size,
		Height:         size,
		ClipSkip:       rangeView{Min: diffusion.MinClipSkip, Max: diffusion.MaxClipSkip, Step: 1, Default: diffusion.DefaultClipSkip},
	}
}

func (s *Server) handleControls(c *echo.Context) error {
	return c.JSON(http.StatusOK, controlsResponse{
		Version:    s.cfg.Version.Version,
		Sidebar:    settings.Describe(s.cfg.Settings, settings.SidebarControls()),
		Generation: generationCatalog(),
	})
}

func (s *Server) handleSettings(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.cfg.Settings.Snapshot())
}

type putSettingRequest struct {
	Value any `json:"value"`
}

func (s *Server) handlePutSetting(c *echo.Context) error {
	path := strings.Trim(c.Param("*"), "/")
	control, ok := settings.Lookup(settings.SidebarControls(), path)
	if !ok {
		return writeNotFound(c, "unknown setting: "+path)
	}
	req, err := decodeJSON[putSettingRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := settings.Apply(s.cfg.Settings, control, req.Value); err != nil {
		if errors.Is(err, settings.ErrInvalidValue) {
			return writeBadRequest(c, err.Error())
		}
		return writeStudioError(c, err)
	}
	s.log.Debug("setting updated", "path", path, "value", req.Value)
	view := settings.Describe(s.cfg.Settings, []settings.Control{control})[0]
	return c.JSON(http.StatusOK, view)
}
