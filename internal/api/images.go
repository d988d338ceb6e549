package api

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v5"
)

func (s *Server) handleListImages(c *echo.Context) error {
	entries, err := s.cfg.Output.List()
	if err != nil {
		s.log.Warn("failed to list images", "error", err)
		return writeStudioError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"images": entries})
}

func (s *Server) handleImage(c *echo.Context) error {
	f, err := s.cfg.Output.Open(c.Param("name"))
	if errors.Is(err, fs.ErrNotExist) {
		return writeNotFound(c, "image not found")
	}
	if err != nil {
		return writeStudioError(c, err)
	}
	defer func() { _ = f.Close() }()
	return c.Stream(http.StatusOK, "image/png", f)
}
