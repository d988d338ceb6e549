package api

import (
	"image"
	_ "image/jpeg"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	_ "golang.org/x/image/webp"

	"github.com/samcharles93/cudiffusion/internal/diffusion"
	"github.com/samcharles93/cudiffusion/internal/studio"
)

// generateRequest mirrors the generation form. Unset fields take the UI
// defaults.
type generateRequest struct {
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt"`
	Seed           *int64   `json:"seed,omitempty"`
	Steps          *int     `json:"steps,omitempty"`
	Sampler        string   `json:"sampler,omitempty"`
	CFGScale       *float64 `json:"cfg_scale,omitempty"`
	Width          *int     `json:"width,omitempty"`
	Height         *int     `json:"height,omitempty"`
	ClipSkip       *int     `json:"clip_skip,omitempty"`
	Strength       *float64 `json:"strength,omitempty"`

	// ReferenceImage is base64 or a data URL. img2img only.
	ReferenceImage string `json:"reference_image,omitempty"`
}

func (g generateRequest) toRequest() *diffusion.Request {
	r := diffusion.NewRequest(g.Prompt)
	r.NegativePrompt = g.NegativePrompt
	if g.Seed != nil {
		r.Seed = *g.Seed
	}
	if g.Steps != nil {
		r.Steps = *g.Steps
	}
	if g.Sampler != "" {
		r.Sampler = g.Sampler
	}
	if g.CFGScale != nil {
		r.CFGScale = *g.CFGScale
	}
	if g.Width != nil {
		r.Width = *g.Width
	}
	if g.Height != nil {
		r.Height = *g.Height
	}
	if g.ClipSkip != nil {
		r.ClipSkip = *g.ClipSkip
	}
	if g.Strength != nil {
		r.Strength = *g.Strength
	}
	return r
}

type generateResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	Image      string `json:"image"`
	SavedAs    string `json:"saved_as"`
	DurationMS int64  `json:"duration_ms"`
}

func (s *Server) handleTextToImage(c *echo.Context) error {
	req, err := decodeJSON[generateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	res, err := s.cfg.Studio.TextToImage(c.Request().Context(), req.toRequest())
	if err != nil {
		return writeStudioError(c, err)
	}
	return s.writeResult(c, res)
}

func (s *Server) handleImageToImage(c *echo.Context) error {
	req, ref, err := s.readImageToImage(c)
	if err != nil {
		return writeStudioError(c, err)
	}
	r := req.toRequest()
	r.Reference = ref
	res, err := s.cfg.Studio.ImageToImage(c.Request().Context(), r)
	if err != nil {
		return writeStudioError(c, err)
	}
	return s.writeResult(c, res)
}

// readImageToImage accepts either a JSON body with a base64 reference
// image or a multipart form with an "image" file and an optional "params"
// JSON field. A missing image is not an error here.
func (s *Server) readImageToImage(c *echo.Context) (generateRequest, image.Image, error) {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		req, err := decodeJSON[generateRequest](c.Request().Body)
		if err != nil {
			return req, nil, newInvalidRequest(err.Error())
		}
		if req.ReferenceImage == "" {
			return req, nil, nil
		}
		img, err := decodeDataImage(req.ReferenceImage)
		if err != nil {
			return req, nil, newInvalidRequest(err.Error())
		}
		return req, img, nil
	}

	var req generateRequest
	if raw := c.FormValue("params"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return req, nil, newInvalidRequest("params: " + err.Error())
		}
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return req, nil, nil
	}
	f, err := fh.Open()
	if err != nil {
		return req, nil, newInvalidRequest(err.Error())
	}
	defer func() { _ = f.Close() }()
	img, err := decodeImage(f)
	if err != nil {
		return req, nil, newInvalidRequest(err.Error())
	}
	return req, img, nil
}

func (s *Server) writeResult(c *echo.Context, res *studio.Result) error {
	b64, err := encodePNGBase64(res.Image)
	if err != nil {
		s.log.Error("failed to encode result", "id", res.ID, "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", studio.GenericMessage)
	}
	return c.JSON(http.StatusOK, generateResponse{
		ID:         res.ID,
		Model:      res.Model,
		Image:      b64,
		SavedAs:    filepath.Base(res.SavedPath),
		DurationMS: res.Duration.Milliseconds(),
	})
}
