package api

import (
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/cudiffusion/internal/modelfile"
)

type modelsResponse struct {
	Models  []string         `json:"models"`
	Details []modelfile.Info `json:"details,omitempty"`
	Loaded  string           `json:"loaded"`
}

func (s *Server) handleListModels(c *echo.Context) error {
	models, err := s.cfg.Studio.Models()
	if err != nil {
		s.log.Warn("failed to list models", "error", err)
		return writeStudioError(c, err)
	}
	resp := modelsResponse{Models: models, Loaded: s.cfg.Studio.State().ModelID}
	if q := c.QueryParam("details"); q == "1" || q == "true" {
		resp.Details = make([]modelfile.Info, 0, len(models))
		for _, name := range models {
			info, err := modelfile.Probe(filepath.Join(s.cfg.Studio.ModelsDir(), name))
			if err != nil {
				s.log.Debug("model probe failed", "model", name, "error", err)
				info = modelfile.Info{Name: name}
			}
			resp.Details = append(resp.Details, info)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type loadModelRequest struct {
	Model string `json:"model"`
}

type loadModelResponse struct {
	Model      string `json:"model"`
	Reused     bool   `json:"reused"`
	DurationMS int64  `json:"duration_ms"`
}

func (s *Server) handleLoadModel(c *echo.Context) error {
	req, err := decodeJSON[loadModelRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	loaded, err := s.cfg.Studio.Load(c.Request().Context(), req.Model)
	if err != nil {
		return writeStudioError(c, err)
	}
	return c.JSON(http.StatusOK, loadModelResponse{
		Model:      loaded.ID,
		Reused:     loaded.Reused,
		DurationMS: loaded.Duration.Milliseconds(),
	})
}
