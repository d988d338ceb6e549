// Package api exposes the studio to the browser UI over JSON and
// server-sent events.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/cudiffusion/internal/logger"
	"github.com/samcharles93/cudiffusion/internal/metrics"
	"github.com/samcharles93/cudiffusion/internal/output"
	"github.com/samcharles93/cudiffusion/internal/settings"
	"github.com/samcharles93/cudiffusion/internal/studio"
	"github.com/samcharles93/cudiffusion/internal/version"
	"github.com/samcharles93/cudiffusion/internal/webui"
)

const defaultPingInterval = 15 * time.Second

type Config struct {
	Studio   *studio.Studio
	Settings *settings.Store
	Output   *output.Dir
	Metrics  *metrics.Metrics
	Version  version.Info
	Logger   logger.Logger

	// PingInterval spaces SSE keepalive comments. Zero uses the default.
	PingInterval time.Duration
}

type Server struct {
	cfg    Config
	log    logger.Logger
	models *modelsHub
	clock  func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Studio == nil || cfg.Settings == nil || cfg.Output == nil {
		return nil, errors.New("api: studio, settings and output are required")
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		cfg:    cfg,
		log:    log.With("component", "api"),
		models: newModelsHub(),
		clock:  time.Now,
	}, nil
}

func (s *Server) Register(e *echo.Echo) {
	// UI
	e.GET("/", s.handleIndex)
	e.GET("/static/*", echo.WrapHandler(http.StripPrefix("/static/", http.FileServer(webui.StaticFS()))))
	e.GET("/images/:name", s.handleImage)

	// Probes
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(s.cfg.Metrics.Handler()))

	// State
	e.GET("/api/state", s.handleState)
	e.GET("/api/events", s.handleEvents)

	// Settings
	e.GET("/api/controls", s.handleControls)
	e.GET("/api/settings", s.handleSettings)
	e.PUT("/api/settings/*", s.handlePutSetting)

	// Models
	e.GET("/api/models", s.handleListModels)
	e.POST("/api/models/load", s.handleLoadModel)

	// Generation
	e.POST("/api/generate/txt2img", s.handleTextToImage)
	e.POST("/api/generate/img2img", s.handleImageToImage)
	e.GET("/api/images", s.handleListImages)
}

// NotifyModels pushes a fresh model listing to connected UIs.
func (s *Server) NotifyModels(models []string) {
	s.log.Info("models directory changed", "count", len(models))
	s.models.publish(models)
}

func (s *Server) handleIndex(c *echo.Context) error {
	page, err := webui.Index()
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", studio.GenericMessage)
	}
	return c.HTML(http.StatusOK, string(page))
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.cfg.Version.Version,
	})
}

func (s *Server) handleState(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.cfg.Studio.State())
}

// handleEvents streams "state" events for every coordinator change and
// "models" events when the models directory changes.
func (s *Server) handleEvents(c *echo.Context) error {
	w, err := NewSSEStreamWriter(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	c.Response().WriteHeader(http.StatusOK)

	states, cancelStates := s.cfg.Studio.Subscribe()
	defer cancelStates()
	models, cancelModels := s.models.subscribe()
	defer cancelModels()

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-states:
			if !ok {
				return nil
			}
			if err := w.Send("state", st); err != nil {
				return nil
			}
		case list := <-models:
			if err := w.Send("models", map[string]any{"models": list}); err != nil {
				return nil
			}
		case <-ping.C:
			if err := w.Ping(); err != nil {
				return nil
			}
		}
	}
}
