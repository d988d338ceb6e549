package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/cudiffusion/internal/studio"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// writeStudioError maps coordinator and request errors onto the error
// body. Busy and no-model rejections carry no message; the UI shows
// nothing for them.
func writeStudioError(c *echo.Context, err error) error {
	var verr studio.ValidationError
	switch {
	case errors.As(err, &verr):
		return writeBadRequest(c, verr.Message)
	case errors.Is(err, ErrInvalidRequest):
		return writeBadRequest(c, err.Error())
	case errors.Is(err, studio.ErrBusy):
		return writeError(c, http.StatusConflict, "busy", "")
	case errors.Is(err, studio.ErrNoModel):
		return writeError(c, http.StatusConflict, "no_model", "")
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", studio.GenericMessage)
	}
}
